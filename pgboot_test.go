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

package pgboot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tomoncle/pgboot/config"
	"github.com/tomoncle/pgboot/database"
)

func recordingSteps(record *[]string, fail string) []Step {
	names := []string{"reinstall-package", "start-server", "wait-ready", "create-superuser"}
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		name := name
		steps = append(steps, Step{
			Name: name,
			Run: func(ctx context.Context) error {
				*record = append(*record, name)
				if name == fail {
					return errors.New("boom")
				}
				return nil
			},
		})
	}
	return steps
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	r := NewRunner(nil)
	var record []string

	if err := r.execute(context.Background(), recordingSteps(&record, "")); err != nil {
		t.Fatalf("execute error: %v", err)
	}
	want := []string{"reinstall-package", "start-server", "wait-ready", "create-superuser"}
	if !reflect.DeepEqual(record, want) {
		t.Errorf("order = %v, want %v", record, want)
	}
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	r := NewRunner(nil)
	var record []string

	err := r.execute(context.Background(), recordingSteps(&record, "start-server"))
	if err == nil {
		t.Fatal("expected failure to propagate")
	}
	if !strings.Contains(err.Error(), "step start-server failed") {
		t.Errorf("error should name the failing step: %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error should chain the cause: %v", err)
	}
	want := []string{"reinstall-package", "start-server"}
	if !reflect.DeepEqual(record, want) {
		t.Errorf("executed = %v, later steps must not run", record)
	}
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	r := NewRunner(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var record []string
	err := r.execute(ctx, recordingSteps(&record, ""))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(record) != 0 {
		t.Errorf("no step should run under a cancelled context, got %v", record)
	}
}

func TestAcquireLockIsExclusive(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "pgboot.lock")

	cfg := config.Default()
	cfg.Bootstrap.LockFile = lockPath
	first := NewRunner(cfg)
	second := NewRunner(cfg)

	unlock, err := first.acquireLock()
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	if _, err := second.acquireLock(); err == nil {
		t.Fatal("second concurrent lock must fail")
	} else if !strings.Contains(err.Error(), "another pgboot run holds") {
		t.Errorf("unexpected error: %v", err)
	}

	unlock()
	unlock2, err := second.acquireLock()
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	unlock2()
}

func TestRunID(t *testing.T) {
	a := NewRunner(nil)
	b := NewRunner(nil)
	if a.RunID() == "" {
		t.Error("run id must not be empty")
	}
	if a.RunID() == b.RunID() {
		t.Error("run ids must differ between invocations")
	}
}

func TestBundledSetupScriptSplits(t *testing.T) {
	content, err := os.ReadFile("configs/setup.sql")
	if err != nil {
		t.Fatalf("read bundled script: %v", err)
	}

	statements := database.SplitStatements(string(content))
	if len(statements) != 10 {
		t.Fatalf("statements = %d, want 10:\n%s", len(statements), strings.Join(statements, "\n"))
	}
	if !strings.HasPrefix(statements[0], "SET password_encryption") {
		t.Errorf("first statement = %q", statements[0])
	}
	if !strings.HasPrefix(statements[len(statements)-1], "INSERT INTO bootstrap_marker") {
		t.Errorf("last statement = %q", statements[len(statements)-1])
	}
}
