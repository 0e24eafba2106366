/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"testing"
	"time"

	"github.com/uptrace/bun"
)

func TestJoinKV(t *testing.T) {
	tests := []struct {
		name   string
		fields []interface{}
		want   string
	}{
		{"no fields", nil, ""},
		{"one pair", []interface{}{"host", "localhost"}, " host=localhost"},
		{"two pairs", []interface{}{"host", "localhost", "port", 5432}, " host=localhost port=5432"},
		{"odd trailing field", []interface{}{"host", "localhost", "dangling"}, " host=localhost dangling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinKV(tt.fields...); got != tt.want {
				t.Errorf("joinKV = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevel(42), "DEBUG"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	a := GetLogger()
	b := GetLogger()
	if a == nil || a != b {
		t.Error("GetLogger must hand out one shared logger")
	}
}

func TestInitLoggerFirstWins(t *testing.T) {
	// The global may already be set by another test; either way a later
	// InitLogger must not replace whatever is installed.
	installed := GetLogger()
	InitLogger(NopLogger{})
	if got := GetLogger(); got != installed {
		t.Error("InitLogger must not replace an installed logger")
	}
}

// recordLogger captures warn calls for hook tests.
type recordLogger struct {
	NopLogger
	warns int
}

func (r *recordLogger) Warn(msg string, fields ...interface{}) { r.warns++ }

func TestSlowQueryHook(t *testing.T) {
	rec := &recordLogger{}
	hook := NewSlowQueryHook(10*time.Millisecond, rec)

	ctx := context.Background()
	slow := &bun.QueryEvent{Query: "SELECT pg_sleep(1)", StartTime: time.Now().Add(-50 * time.Millisecond)}
	hook.AfterQuery(hook.BeforeQuery(ctx, slow), slow)
	if rec.warns != 1 {
		t.Errorf("warns = %d, slow query should warn", rec.warns)
	}

	fast := &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()}
	hook.AfterQuery(ctx, fast)
	if rec.warns != 1 {
		t.Errorf("warns = %d, fast query must not warn", rec.warns)
	}
}

func TestSlowQueryHookSilentMode(t *testing.T) {
	rec := &recordLogger{}
	hook := NewSlowQueryHook(time.Millisecond, rec)

	SilenceQueryLogs(true)
	defer SilenceQueryLogs(false)

	slow := &bun.QueryEvent{Query: "SELECT pg_sleep(1)", StartTime: time.Now().Add(-time.Second)}
	hook.AfterQuery(context.Background(), slow)
	if rec.warns != 0 {
		t.Errorf("warns = %d, silent mode must suppress output", rec.warns)
	}
}

func TestSlowQueryHookEnvDisable(t *testing.T) {
	rec := &recordLogger{}
	hook := NewSlowQueryHook(time.Millisecond, rec)

	t.Setenv("PGBOOT_SLOW_QUERY", "0")
	slow := &bun.QueryEvent{Query: "SELECT pg_sleep(1)", StartTime: time.Now().Add(-time.Second)}
	hook.AfterQuery(context.Background(), slow)
	if rec.warns != 0 {
		t.Errorf("warns = %d, PGBOOT_SLOW_QUERY=0 must disable the hook", rec.warns)
	}
}
