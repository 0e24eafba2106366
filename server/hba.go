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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tomoncle/pgboot/system"
)

// InstallHBA overwrites the server's authentication file at dst with the
// bundled file at src, byte for byte. The destination usually lives inside
// the cluster-owner-only data directory, so a denied direct write falls back
// to an elevated copy. Either way the installed file ends up with the 0600
// mode the server requires.
func InstallHBA(ctx context.Context, runner system.Runner, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}

	err = writeFile0600(dst, data)
	if err == nil {
		logger.Infof("installed %s at %s (%d bytes)", src, dst, len(data))
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	logger.Debugf("direct write to %s denied, copying elevated", dst)
	name, args := system.Elevated("cp", src, dst)
	if err := runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	name, args = system.Elevated("chmod", "600", dst)
	if err := runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to restrict mode of %s: %w", dst, err)
	}
	logger.Infof("installed %s at %s (%d bytes, elevated)", src, dst, len(data))
	return nil
}

func writeFile0600(dst string, data []byte) error {
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return err
	}
	// WriteFile applies the mode only on create; existing files keep theirs.
	return os.Chmod(dst, 0o600)
}

// VerifyHBA confirms dst matches src byte for byte. When dst is not directly
// readable the comparison runs through an elevated cmp.
func VerifyHBA(ctx context.Context, runner system.Runner, src, dst string) error {
	want, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		if !errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("failed to read %s: %w", dst, err)
		}
		name, args := system.Elevated("cmp", "-s", src, dst)
		if err := runner.Run(ctx, name, args...); err != nil {
			return fmt.Errorf("%s does not match %s: %w", dst, src, err)
		}
		return nil
	}

	if !bytes.Equal(want, got) {
		return fmt.Errorf("%s does not match %s (%d bytes vs %d bytes)", dst, src, len(got), len(want))
	}
	return nil
}
