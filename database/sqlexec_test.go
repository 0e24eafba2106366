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
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type fakeExecutor struct {
	statements []string
	failAt     int // 1-based index of the statement to fail, 0 never fails
}

func (f *fakeExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.statements = append(f.statements, query)
	if f.failAt > 0 && len(f.statements) == f.failAt {
		return nil, errors.New(`pq: syntax error at or near "CREAT"`)
	}
	return driver.RowsAffected(1), nil
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setup.sql")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name: "statements with comments and blank lines",
			content: `-- roles
CREATE ROLE a LOGIN;

-- another
CREATE ROLE b LOGIN;
`,
			want: []string{"CREATE ROLE a LOGIN;", "CREATE ROLE b LOGIN;"},
		},
		{
			name: "multi line statement",
			content: `CREATE TABLE t (
    id serial PRIMARY KEY,
    note text
);`,
			want: []string{"CREATE TABLE t ( id serial PRIMARY KEY, note text );"},
		},
		{
			name:    "trailing statement without terminator",
			content: "CREATE ROLE a LOGIN;\nSELECT 1",
			want:    []string{"CREATE ROLE a LOGIN;", "SELECT 1"},
		},
		{
			name:    "only comments",
			content: "-- nothing here\n\n-- still nothing\n",
			want:    nil,
		},
		{
			name:    "empty input",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.content)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitStatements:\n got: %q\nwant: %q", got, tt.want)
			}
		})
	}
}

func TestRunFile(t *testing.T) {
	path := writeScript(t, `
SET password_encryption TO 'md5';
CREATE ROLE pass_user PASSWORD 'password' LOGIN;
CREATE EXTENSION hstore;
`)
	fake := &fakeExecutor{}
	runner := &ScriptRunner{exec: fake, logger: NopLogger{}}

	result, err := runner.RunFile(context.Background(), path)
	if err != nil {
		t.Fatalf("RunFile error: %v", err)
	}
	if result.Statements != 3 {
		t.Errorf("statements = %d, want 3", result.Statements)
	}
	if len(fake.statements) != 3 {
		t.Errorf("executed = %d, want 3", len(fake.statements))
	}
	if result.RowsAffected != 3 {
		t.Errorf("rows affected = %d, want 3", result.RowsAffected)
	}
	if !strings.HasPrefix(fake.statements[0], "SET password_encryption") {
		t.Errorf("unexpected first statement: %q", fake.statements[0])
	}
}

func TestRunFileAbortsOnFirstError(t *testing.T) {
	path := writeScript(t, `
CREATE ROLE a LOGIN;
CREAT ROLE broken;
CREATE ROLE never_reached LOGIN;
`)
	fake := &fakeExecutor{failAt: 2}
	runner := &ScriptRunner{exec: fake, logger: NopLogger{}}

	result, err := runner.RunFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected error from failing statement")
	}
	if !strings.Contains(err.Error(), "statement 2 failed") {
		t.Errorf("error should name the failing statement: %v", err)
	}
	if len(fake.statements) != 2 {
		t.Errorf("executed = %d, want 2: later statements must not run", len(fake.statements))
	}
	if result.Statements != 1 {
		t.Errorf("completed statements = %d, want 1", result.Statements)
	}
}

func TestRunFileMissingFile(t *testing.T) {
	runner := &ScriptRunner{exec: &fakeExecutor{}, logger: NopLogger{}}
	_, err := runner.RunFile(context.Background(), filepath.Join(t.TempDir(), "absent.sql"))
	if err == nil {
		t.Fatal("expected read error")
	}
	if !strings.Contains(err.Error(), "failed to read SQL file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunFileEmptyScript(t *testing.T) {
	path := writeScript(t, "-- comments only\n")
	fake := &fakeExecutor{}
	runner := &ScriptRunner{exec: fake, logger: NopLogger{}}

	result, err := runner.RunFile(context.Background(), path)
	if err != nil {
		t.Fatalf("RunFile error: %v", err)
	}
	if result.Statements != 0 || len(fake.statements) != 0 {
		t.Errorf("nothing should execute, got %d/%d", result.Statements, len(fake.statements))
	}
}

func TestRunFileNotConnected(t *testing.T) {
	runner := &ScriptRunner{logger: NopLogger{}}
	_, err := runner.RunFile(context.Background(), "unused.sql")
	if err == nil || !strings.Contains(err.Error(), "database not connected") {
		t.Fatalf("expected not-connected error, got %v", err)
	}
}

func TestAbbreviateSQL(t *testing.T) {
	short := "SELECT   1"
	if got := abbreviateSQL(short); got != "SELECT 1" {
		t.Errorf("abbreviateSQL collapse = %q", got)
	}
	long := strings.Repeat("SELECT column_name FROM table_name ", 10)
	got := abbreviateSQL(long)
	if len(got) != 123 || !strings.HasSuffix(got, "...") {
		t.Errorf("abbreviateSQL should cap at 120 chars plus ellipsis, got %d chars", len(got))
	}
}
