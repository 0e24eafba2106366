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
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

// sqlExecutor is the slice of database/sql needed to run script statements.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ScriptRunner executes one SQL file the way piping it into a client does:
// statement by statement on a single session, each in its own implicit
// transaction, stopping at the first failure. Statements executed before a
// failure stay applied, no surrounding transaction rolls them back.
type ScriptRunner struct {
	db     *sql.DB
	exec   sqlExecutor // overrides db when set, used by tests
	logger Logger
}

// ScriptResult summarizes one script execution.
type ScriptResult struct {
	Path         string        `json:"path"`
	Statements   int           `json:"statements"`
	RowsAffected int64         `json:"rows_affected"`
	Duration     time.Duration `json:"duration"`
}

// NewScriptRunner builds a runner over an open connection.
func NewScriptRunner(conn *Conn) *ScriptRunner {
	return &ScriptRunner{
		db:     conn.SQLDB(),
		logger: GetLogger(),
	}
}

// RunFile reads the SQL file at path and executes its statements in order.
// The returned result counts the statements that completed, so on error it
// reflects how far the script got.
func (r *ScriptRunner) RunFile(ctx context.Context, path string) (*ScriptResult, error) {
	start := time.Now()
	result := &ScriptResult{Path: path}
	if r.exec == nil && r.db == nil {
		return result, fmt.Errorf("database not connected")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("failed to read SQL file: %w", err)
	}

	statements := SplitStatements(string(content))
	if len(statements) == 0 {
		result.Duration = time.Since(start)
		r.logger.Info("SQL file has no statements to execute", "file", path)
		return result, nil
	}

	exec := r.exec
	if exec == nil {
		// Pin one session for the whole script. SET and other session
		// state must carry across statements, and a pooled handle does
		// not guarantee consecutive statements share a connection.
		session, err := r.db.Conn(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to acquire session: %w", err)
		}
		defer func() { _ = session.Close() }()
		exec = session
	}

	r.logger.Info("Executing SQL file", "file", path, "statements", len(statements))
	for i, stmt := range statements {
		stmtStart := time.Now()
		res, err := exec.ExecContext(ctx, stmt)
		if err != nil {
			result.Statements = i
			result.Duration = time.Since(start)
			return result, fmt.Errorf("statement %d failed (%s): %w", i+1, abbreviateSQL(stmt), err)
		}
		var rows int64
		if res != nil {
			if n, err := res.RowsAffected(); err == nil {
				rows = n
			}
		}
		result.RowsAffected += rows
		r.logger.Debug("Statement executed",
			"index", i+1,
			"duration", time.Since(stmtStart).Round(time.Microsecond),
			"rows_affected", rows)
	}

	result.Statements = len(statements)
	result.Duration = time.Since(start)
	r.logger.Info("SQL file executed",
		"file", path,
		"statements", result.Statements,
		"duration", result.Duration.Round(time.Millisecond),
		"rows_affected", result.RowsAffected)
	return result, nil
}

// SplitStatements breaks SQL text into executable statements. Blank lines
// and full-line `--` comments are skipped, lines accumulate until one ends
// with the `;` terminator, and a trailing statement without a terminator is
// kept.
//
// TODO: dollar-quoted bodies with embedded semicolons are split incorrectly;
// none of the bundled scripts use them.
func SplitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		current.WriteString(line)
		current.WriteString(" ")

		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if current.Len() > 0 {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}

func abbreviateSQL(stmt string) string {
	const max = 120
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) <= max {
		return stmt
	}
	return stmt[:max] + "..."
}
