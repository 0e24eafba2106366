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

// Package system runs external commands: foreground with inherited output,
// captured, or detached with output redirected to a log file. Everything
// goes through the Runner interface so callers can be tested with a fake.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tomoncle/pgboot/utils"
)

// Runner executes external commands.
type Runner interface {
	// Run executes the command, streaming its output to the current
	// process's stdout and stderr, and waits for completion.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes the command and returns its trimmed standard output.
	Output(ctx context.Context, name string, args ...string) (string, error)

	// Start launches the command detached: stdin closed, stdout and stderr
	// appended to the file at logPath, no wait. It returns the child pid.
	Start(name string, args []string, logPath string) (int, error)

	// LookPath reports the full path of an executable, or an error when the
	// name cannot be found.
	LookPath(name string) (string, error)
}

// ExecRunner is the os/exec-backed Runner.
type ExecRunner struct {
	logger *utils.Logger
}

// NewRunner returns a Runner executing real commands.
func NewRunner() *ExecRunner {
	return &ExecRunner{logger: utils.NewLogger("SYSTEM")}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	r.logger.Debugf("executing: %s", commandLine(name, args))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return nil
}

func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	r.logger.Debugf("executing: %s", commandLine(name, args))
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s: %s: %w",
				commandLine(name, args), strings.TrimSpace(string(exitErr.Stderr)), err)
		}
		return "", fmt.Errorf("%s: %w", commandLine(name, args), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *ExecRunner) Start(name string, args []string, logPath string) (int, error) {
	r.logger.Debugf("starting detached: %s >> %s", commandLine(name, args), logPath)

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// New session so the child survives this process and any terminal hangup.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, fmt.Errorf("failed to start %s: %w", commandLine(name, args), err)
	}
	// The child holds its own descriptor now.
	_ = logFile.Close()
	return cmd.Process.Pid, nil
}

func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// geteuid is swappable so tests can exercise both elevation branches.
var geteuid = os.Geteuid

// Elevated prefixes the command with sudo unless the current process already
// runs as root. The sudo prompt stays interactive, matching a local
// operator-driven workflow.
func Elevated(name string, args ...string) (string, []string) {
	if geteuid() == 0 {
		return name, args
	}
	return "sudo", append([]string{name}, args...)
}
