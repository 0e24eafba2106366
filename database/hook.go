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
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var querySilentMode bool

// SilenceQueryLogs suppresses hook output globally. Used by the CLI quiet
// mode and by tests that would otherwise spam the build log.
func SilenceQueryLogs(b bool) {
	querySilentMode = b
}

// SlowQueryHook warns about statements slower than a threshold. The
// PGBOOT_SLOW_QUERY environment variable overrides the enabled state at
// runtime: "0" disables the hook, anything else enables it.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook returns a hook warning when a query exceeds slowTime.
func NewSlowQueryHook(slowTime time.Duration, logger Logger) *SlowQueryHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &SlowQueryHook{slowTime: slowTime, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilentMode || event.Err != nil {
		return
	}

	enabled := true
	if env, ok := os.LookupEnv("PGBOOT_SLOW_QUERY"); ok {
		enabled = strings.TrimSpace(env) != "0"
	}
	if !enabled {
		return
	}

	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn(color.New(color.FgYellow).Sprint("Slow query detected"),
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
}
