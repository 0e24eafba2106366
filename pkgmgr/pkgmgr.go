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

// Package pkgmgr removes and installs operating system packages through the
// host's package manager, detected from PATH.
package pkgmgr

import (
	"context"
	"fmt"

	"github.com/tomoncle/pgboot/system"
	"github.com/tomoncle/pgboot/utils"
)

// Kind names a supported package manager binary.
type Kind string

const (
	Apt  Kind = "apt-get"
	Dnf  Kind = "dnf"
	Yum  Kind = "yum"
	Brew Kind = "brew"
	Apk  Kind = "apk"
)

// detectOrder prefers native system managers over brew.
var detectOrder = []Kind{Apt, Dnf, Yum, Brew, Apk}

// Manager drives one package manager. All commands run non-interactively
// where the manager supports it, elevated via sudo except for brew, which
// refuses to run as root.
type Manager struct {
	kind    Kind
	runner  system.Runner
	logger  *utils.Logger
	elevate func(name string, args ...string) (string, []string)
}

// New returns a Manager for a known Kind.
func New(kind Kind, runner system.Runner) (*Manager, error) {
	switch kind {
	case Apt, Dnf, Yum, Brew, Apk:
	default:
		return nil, fmt.Errorf("unsupported package manager %q", kind)
	}
	return &Manager{
		kind:    kind,
		runner:  runner,
		logger:  utils.NewLogger("PKGMGR"),
		elevate: system.Elevated,
	}, nil
}

// Detect finds the first supported package manager on PATH.
func Detect(runner system.Runner) (*Manager, error) {
	for _, kind := range detectOrder {
		if _, err := runner.LookPath(string(kind)); err == nil {
			return New(kind, runner)
		}
	}
	return nil, fmt.Errorf("no supported package manager found (tried apt-get, dnf, yum, brew, apk)")
}

// Kind reports which package manager this Manager drives.
func (m *Manager) Kind() Kind {
	return m.kind
}

// Remove uninstalls the package. A non-zero exit propagates, including the
// case where the package was never installed.
func (m *Manager) Remove(ctx context.Context, pkg string) error {
	m.logger.Infof("removing package %s via %s", pkg, m.kind)
	name, args := m.prepare(removeArgv(m.kind, pkg))
	if err := m.runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to remove package %s: %w", pkg, err)
	}
	return nil
}

// Install installs the package.
func (m *Manager) Install(ctx context.Context, pkg string) error {
	m.logger.Infof("installing package %s via %s", pkg, m.kind)
	name, args := m.prepare(installArgv(m.kind, pkg))
	if err := m.runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to install package %s: %w", pkg, err)
	}
	return nil
}

// Reinstall removes then installs the package, stopping at the first failure.
func (m *Manager) Reinstall(ctx context.Context, pkg string) error {
	if err := m.Remove(ctx, pkg); err != nil {
		return err
	}
	return m.Install(ctx, pkg)
}

func (m *Manager) prepare(argv []string) (string, []string) {
	if m.kind == Brew {
		return argv[0], argv[1:]
	}
	return m.elevate(argv[0], argv[1:]...)
}

// removeArgv builds the removal command line for a manager.
func removeArgv(kind Kind, pkg string) []string {
	switch kind {
	case Apt:
		return []string{"apt-get", "remove", "-y", pkg}
	case Dnf:
		return []string{"dnf", "remove", "-y", pkg}
	case Yum:
		return []string{"yum", "remove", "-y", pkg}
	case Brew:
		return []string{"brew", "uninstall", pkg}
	case Apk:
		return []string{"apk", "del", pkg}
	}
	return nil
}

// installArgv builds the install command line for a manager.
func installArgv(kind Kind, pkg string) []string {
	switch kind {
	case Apt:
		return []string{"apt-get", "install", "-y", pkg}
	case Dnf:
		return []string{"dnf", "install", "-y", pkg}
	case Yum:
		return []string{"yum", "install", "-y", pkg}
	case Brew:
		return []string{"brew", "install", pkg}
	case Apk:
		return []string{"apk", "add", pkg}
	}
	return nil
}
