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

// Package server controls the local PostgreSQL server process: locating the
// binary, starting it detached against a data directory, reading the
// postmaster PID file, signalling reloads, and installing the host-based
// authentication file.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/tomoncle/pgboot/system"
	"github.com/tomoncle/pgboot/utils"
)

var logger = utils.NewLogger("SERVER")

// Config ties the server binary to its data directory and log file.
type Config struct {
	// BinPath is the postgres executable. Empty means locate it.
	BinPath string
	// DataDir is the cluster data directory passed via -D.
	DataDir string
	// LogPath receives the detached server's stdout and stderr.
	LogPath string
}

// Server starts, stops, and signals one local postmaster.
type Server struct {
	cfg    Config
	runner system.Runner
}

// New returns a Server for the given config.
func New(cfg Config, runner system.Runner) *Server {
	return &Server{cfg: cfg, runner: runner}
}

// wellKnownGlobs are the versioned install locations distribution packages
// and source builds use when the binary is not on PATH.
var wellKnownGlobs = []string{
	"/usr/lib/postgresql/*/bin/postgres",
	"/usr/pgsql-*/bin/postgres",
	"/opt/homebrew/opt/postgresql*/bin/postgres",
	"/usr/local/opt/postgresql*/bin/postgres",
	"/usr/local/pgsql/bin/postgres",
}

// Locate finds the postgres binary, preferring PATH and falling back to the
// well-known versioned install directories. Among several installed versions
// the highest one wins.
func Locate(runner system.Runner) (string, error) {
	if p, err := runner.LookPath("postgres"); err == nil {
		return p, nil
	}

	var candidates []string
	for _, pattern := range wellKnownGlobs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		candidates = append(candidates, matches...)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("postgres binary not found in PATH or well-known install directories")
	}

	sort.Slice(candidates, func(i, j int) bool {
		return lessVersionPath(candidates[i], candidates[j])
	})
	return candidates[len(candidates)-1], nil
}

var versionDigits = regexp.MustCompile(`\d+`)

// lessVersionPath orders install paths by the numeric components embedded in
// them, so /usr/lib/postgresql/9.6 sorts below /usr/lib/postgresql/16.
func lessVersionPath(a, b string) bool {
	av := versionDigits.FindAllString(a, -1)
	bv := versionDigits.FindAllString(b, -1)
	for i := 0; i < len(av) && i < len(bv); i++ {
		an, _ := strconv.Atoi(av[i])
		bn, _ := strconv.Atoi(bv[i])
		if an != bn {
			return an < bn
		}
	}
	if len(av) != len(bv) {
		return len(av) < len(bv)
	}
	return a < b
}

// Start launches `postgres -D <datadir>` detached, appending server output
// to the configured log file, and returns the child pid. The data directory
// must already exist; the freshly installed package provides it.
func (s *Server) Start() (int, error) {
	bin := s.cfg.BinPath
	if bin == "" {
		located, err := Locate(s.runner)
		if err != nil {
			return 0, err
		}
		bin = located
	}
	if _, err := os.Stat(s.cfg.DataDir); err != nil {
		return 0, fmt.Errorf("data directory %s: %w", s.cfg.DataDir, err)
	}

	pid, err := s.runner.Start(bin, []string{"-D", s.cfg.DataDir}, s.cfg.LogPath)
	if err != nil {
		return 0, fmt.Errorf("failed to start postgres: %w", err)
	}
	logger.Infof("postgres started: pid=%d datadir=%s log=%s", pid, s.cfg.DataDir, s.cfg.LogPath)
	return pid, nil
}

// Alive reports whether a process with the given pid exists. A permission
// error still means the process is there, just owned by someone else.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// Reload sends SIGHUP so the postmaster re-reads its configuration files
// without restarting. When the direct signal is denied the kill runs through
// sudo, since package-installed postmasters run as the postgres user.
func (s *Server) Reload(ctx context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid postmaster pid %d", pid)
	}

	err := syscall.Kill(pid, syscall.SIGHUP)
	if err == nil {
		logger.Infof("sent SIGHUP to postmaster pid %d", pid)
		return nil
	}
	if !errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("failed to signal postmaster pid %d: %w", pid, err)
	}

	logger.Debugf("direct SIGHUP to pid %d denied, retrying elevated", pid)
	name, args := system.Elevated("kill", "-HUP", strconv.Itoa(pid))
	if err := s.runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to signal postmaster pid %d: %w", pid, err)
	}
	logger.Infof("sent SIGHUP to postmaster pid %d (elevated)", pid)
	return nil
}

// Stop sends SIGTERM (smart shutdown) and waits up to the given duration for
// the postmaster to exit.
func (s *Server) Stop(ctx context.Context, pid int, wait time.Duration) error {
	if !Alive(pid) {
		return nil
	}

	err := syscall.Kill(pid, syscall.SIGTERM)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		if !errors.Is(err, syscall.EPERM) {
			return fmt.Errorf("failed to stop postmaster pid %d: %w", pid, err)
		}
		name, args := system.Elevated("kill", "-TERM", strconv.Itoa(pid))
		if err := s.runner.Run(ctx, name, args...); err != nil {
			return fmt.Errorf("failed to stop postmaster pid %d: %w", pid, err)
		}
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			logger.Infof("postmaster pid %d stopped", pid)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("postmaster pid %d still running after %s", pid, wait)
}
