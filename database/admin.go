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
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

// quoteIdent double-quotes a PostgreSQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// superuserDDL renders the role creation statement. Split out so the exact
// SQL is testable without a server.
func superuserDDL(role string) string {
	return fmt.Sprintf("CREATE ROLE %s WITH SUPERUSER CREATEDB CREATEROLE INHERIT LOGIN", quoteIdent(role))
}

// CreateSuperuser creates a login role holding every cluster privilege.
// Creation is strict: an existing role of the same name is an error, it is
// never silently adopted.
func (c *Conn) CreateSuperuser(ctx context.Context, role string) error {
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("role name cannot be empty")
	}
	db := c.SQLDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}

	c.logger.Info("Creating superuser role", "role", role)
	if _, err := db.ExecContext(ctx, superuserDDL(role)); err != nil {
		if IsDuplicateObject(err) {
			return fmt.Errorf("role %q already exists: %w", role, err)
		}
		return fmt.Errorf("failed to create role %q: %w", role, err)
	}
	return nil
}

// RoleExists checks pg_roles for the given role name.
func (c *Conn) RoleExists(ctx context.Context, role string) (bool, error) {
	db := c.DB()
	if db == nil {
		return false, fmt.Errorf("database not connected")
	}
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = ?)", role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query pg_roles: %w", err)
	}
	return exists, nil
}

// ShowSetting returns the value of a server runtime parameter. SHOW answers
// with a single row holding a single column, the bare value, so one Scan is
// the whole parse.
func (c *Conn) ShowSetting(ctx context.Context, name string) (string, error) {
	db := c.SQLDB()
	if db == nil {
		return "", fmt.Errorf("database not connected")
	}
	var value string
	if err := db.QueryRowContext(ctx, "SHOW "+quoteIdent(name)).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", name, err)
	}
	c.logger.Debug("Server setting", name, value)
	return value, nil
}

// ServerInfo describes the running server for status output.
type ServerInfo struct {
	Version               string `json:"version"`
	DataDirectory         string `json:"data_directory"`
	HBAFile               string `json:"hba_file"`
	Port                  string `json:"port"`
	UnixSocketDirectories string `json:"unix_socket_directories"`
}

// ServerInfo collects the server version and the settings the bootstrap
// procedure cares about from pg_settings.
func (c *Conn) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	db := c.DB()
	if db == nil {
		return nil, fmt.Errorf("database not connected")
	}

	info := &ServerInfo{}
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&info.Version); err != nil {
		return nil, fmt.Errorf("failed to query server version: %w", err)
	}

	names := []string{"data_directory", "hba_file", "port", "unix_socket_directories"}
	rows, err := db.QueryContext(ctx,
		"SELECT name, setting FROM pg_settings WHERE name IN (?)", bun.In(names))
	if err != nil {
		return nil, fmt.Errorf("failed to query pg_settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name, setting string
		if err := rows.Scan(&name, &setting); err != nil {
			return nil, fmt.Errorf("failed to scan pg_settings row: %w", err)
		}
		switch name {
		case "data_directory":
			info.DataDirectory = setting
		case "hba_file":
			info.HBAFile = setting
		case "port":
			info.Port = setting
		case "unix_socket_directories":
			info.UnixSocketDirectories = setting
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pg_settings rows: %w", err)
	}
	return info, nil
}
