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

package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tomoncle/pgboot/system"
)

// PIDFilePath returns the postmaster PID file inside a data directory.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, "postmaster.pid")
}

// ParsePostmasterPID extracts the process id from PID file contents. Only
// the first line carries the pid; later lines hold the data directory,
// start time, port, and socket information.
func ParsePostmasterPID(content string) (int, error) {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, fmt.Errorf("pid file is empty")
	}
	pid, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("invalid pid %q: %w", line, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	return pid, nil
}

// ReadPostmasterPID reads and parses the PID file at path. Data directories
// are usually readable only by the cluster owner, so a permission error
// retries the read through sudo.
func ReadPostmasterPID(ctx context.Context, runner system.Runner, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return ParsePostmasterPID(string(data))
	}
	if !errors.Is(err, fs.ErrPermission) {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	logger.Debugf("direct read of %s denied, retrying elevated", path)
	name, args := system.Elevated("cat", path)
	out, sudoErr := runner.Output(ctx, name, args...)
	if sudoErr != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, sudoErr)
	}
	return ParsePostmasterPID(out)
}
