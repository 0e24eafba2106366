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
	"testing"
	"time"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig()
	if cfg.Port != 5432 {
		t.Errorf("port = %d, want 5432", cfg.Port)
	}
	if cfg.DBName != "postgres" {
		t.Errorf("dbname = %s, want postgres", cfg.DBName)
	}
	if cfg.SSLMode != "disable" {
		t.Errorf("sslmode = %s, want disable", cfg.SSLMode)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("connect_timeout = %s, want 10s", cfg.ConnectTimeout)
	}
	if !cfg.UsesUnixSocket() {
		t.Error("default config should use the unix socket")
	}
}

func TestUsesUnixSocket(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"", true},
		{"/var/run/postgresql", true},
		{"/tmp", true},
		{"localhost", false},
		{"10.0.0.12", false},
	}
	for _, tt := range tests {
		cfg := &ConnectionConfig{Host: tt.host}
		if got := cfg.UsesUnixSocket(); got != tt.want {
			t.Errorf("UsesUnixSocket(%q) = %t, want %t", tt.host, got, tt.want)
		}
	}
}

func TestNormalized(t *testing.T) {
	cfg := &ConnectionConfig{}
	n := cfg.normalized()

	if n.Host != DefaultUnixSocketDir {
		t.Errorf("host = %q, want %q", n.Host, DefaultUnixSocketDir)
	}
	if n.Port != DefaultPort {
		t.Errorf("port = %d, want %d", n.Port, DefaultPort)
	}
	if n.Username == "" {
		t.Error("username should default to the current OS account")
	}
	if n.DBName != DefaultDBName {
		t.Errorf("dbname = %q, want %q", n.DBName, DefaultDBName)
	}

	// The original must stay untouched.
	if cfg.Host != "" || cfg.Username != "" {
		t.Error("normalized modified the receiver")
	}
}

func TestNormalizedKeepsExplicitValues(t *testing.T) {
	cfg := &ConnectionConfig{
		Host:     "db.internal",
		Port:     6000,
		Username: "svc",
		DBName:   "app",
		SSLMode:  "require",
	}
	n := cfg.normalized()
	if n.Host != "db.internal" || n.Port != 6000 || n.Username != "svc" ||
		n.DBName != "app" || n.SSLMode != "require" {
		t.Errorf("normalized rewrote explicit values: %+v", n)
	}
}

func TestCurrentOSUser(t *testing.T) {
	if CurrentOSUser() == "" {
		t.Skip("no resolvable OS user in this environment")
	}
}
