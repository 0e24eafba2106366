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

// Package pgboot bootstraps a local PostgreSQL installation: reinstall the
// package, start the server, wait until it answers, create a superuser role,
// apply the bundled setup script, install the bundled pg_hba.conf at the
// server's reported location, and signal the postmaster to reload. The
// sequence is fixed and fail-fast; the first failing step aborts the run.
package pgboot

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tomoncle/pgboot/config"
	"github.com/tomoncle/pgboot/database"
	"github.com/tomoncle/pgboot/pkgmgr"
	"github.com/tomoncle/pgboot/server"
	"github.com/tomoncle/pgboot/system"
	"github.com/tomoncle/pgboot/utils"
)

// Step is one named unit of the bootstrap procedure.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner wires the packages together and drives the fixed step sequence.
// One Runner performs one invocation; every log line it emits carries the
// invocation's run id.
type Runner struct {
	cfg    *config.Config
	logger *utils.Logger
	runID  string

	exec system.Runner
	conn *database.Conn
	srv  *server.Server
}

// NewRunner builds a Runner over the given configuration. A nil config
// selects the defaults.
func NewRunner(cfg *config.Config) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Runner{
		cfg:    cfg,
		logger: utils.NewLogger("BOOTSTRAP"),
		runID:  uuid.NewString(),
		exec:   system.NewRunner(),
	}
}

// RunID identifies this invocation in log output.
func (r *Runner) RunID() string {
	return r.runID
}

func (r *Runner) prepare() {
	if r.conn == nil {
		r.conn = database.NewConn(r.cfg.ConfigLoader())
	}
	if r.srv == nil {
		r.srv = server.New(server.Config{
			BinPath: r.cfg.Server.BinPath,
			DataDir: r.cfg.Server.DataDir,
			LogPath: r.cfg.Server.LogFile,
		}, r.exec)
	}
}

func (r *Runner) closeConn() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// acquireLock takes an exclusive flock on the configured lock file. The
// procedure assumes exclusive access to the local installation, so a second
// concurrent run fails immediately instead of interleaving with this one.
func (r *Runner) acquireLock() (func(), error) {
	path := r.cfg.Bootstrap.LockFile
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another pgboot run holds %s", path)
	}
	return func() { _ = lock.Unlock() }, nil
}

// Up executes the whole bootstrap procedure.
func (r *Runner) Up(ctx context.Context) error {
	unlock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	r.prepare()
	defer r.closeConn()

	steps := []Step{
		{Name: "reinstall-package", Run: r.stepReinstallPackage},
		{Name: "start-server", Run: r.stepStartServer},
		{Name: "wait-ready", Run: r.stepWaitReady},
		{Name: "create-superuser", Run: r.stepCreateSuperuser},
		{Name: "apply-setup-sql", Run: r.stepApplySetupSQL},
		{Name: "install-hba", Run: r.stepInstallHBA},
		{Name: "reload-server", Run: r.stepReloadServer},
	}
	return r.execute(ctx, steps)
}

// Reload re-runs only the configuration half of the procedure against an
// already running server: install the bundled pg_hba.conf and SIGHUP the
// postmaster.
func (r *Runner) Reload(ctx context.Context) error {
	unlock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	r.prepare()
	defer r.closeConn()

	if err := r.conn.Connect(ctx); err != nil {
		return err
	}
	steps := []Step{
		{Name: "install-hba", Run: r.stepInstallHBA},
		{Name: "reload-server", Run: r.stepReloadServer},
	}
	return r.execute(ctx, steps)
}

// Status describes the cluster from the tool's point of view.
type Status struct {
	Server        *database.ServerInfo `json:"server"`
	Superuser     string               `json:"superuser"`
	RoleExists    bool                 `json:"role_exists"`
	PostmasterPID int                  `json:"postmaster_pid"`
	Running       bool                 `json:"running"`
}

// Status connects to the server and reports its version, key settings, the
// postmaster pid, and whether the configured superuser role exists.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	r.prepare()
	defer r.closeConn()

	if err := r.conn.Connect(ctx); err != nil {
		return nil, err
	}

	info, err := r.conn.ServerInfo(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{Server: info, Superuser: r.cfg.Bootstrap.Superuser}
	st.RoleExists, err = r.conn.RoleExists(ctx, st.Superuser)
	if err != nil {
		return nil, err
	}

	if info.DataDirectory != "" {
		pid, err := server.ReadPostmasterPID(ctx, r.exec, server.PIDFilePath(info.DataDirectory))
		if err != nil {
			r.logger.Debugf("could not read postmaster pid: %v", err)
		} else {
			st.PostmasterPID = pid
			st.Running = server.Alive(pid)
		}
	}
	return st, nil
}

// execute runs the steps in order, stopping at the first failure. The
// failing step's name wraps its error so the exit message pinpoints where
// the procedure stopped.
func (r *Runner) execute(ctx context.Context, steps []Step) error {
	runStart := time.Now()
	for i, step := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fields := logrus.Fields{"run_id": r.runID, "step": step.Name}
		start := time.Now()
		r.logger.WithFields(fields).Infof("step %d/%d started", i+1, len(steps))

		if err := step.Run(ctx); err != nil {
			r.logger.WithFields(fields).Errorf("step failed after %s: %v",
				time.Since(start).Round(time.Millisecond), err)
			return fmt.Errorf("step %s failed: %w", step.Name, err)
		}
		r.logger.WithFields(fields).Infof("step completed in %s",
			time.Since(start).Round(time.Millisecond))
	}
	r.logger.WithFields(logrus.Fields{"run_id": r.runID}).Infof(
		"bootstrap completed in %s", time.Since(runStart).Round(time.Millisecond))
	return nil
}

func (r *Runner) packageManager() (*pkgmgr.Manager, error) {
	if r.cfg.Package.Manager != "" {
		return pkgmgr.New(pkgmgr.Kind(r.cfg.Package.Manager), r.exec)
	}
	return pkgmgr.Detect(r.exec)
}

func (r *Runner) stepReinstallPackage(ctx context.Context) error {
	r.stopLeftoverServer(ctx)
	mgr, err := r.packageManager()
	if err != nil {
		return err
	}
	return mgr.Reinstall(ctx, r.cfg.Package.Name)
}

// stopLeftoverServer terminates a postmaster surviving from an earlier run,
// so the freshly installed server can take the data directory. The pid file
// must be read before the reinstall replaces the data directory. A clean
// machine has no pid file; a stop failure surfaces later when start-server
// finds the directory locked.
func (r *Runner) stopLeftoverServer(ctx context.Context) {
	pid, err := server.ReadPostmasterPID(ctx, r.exec, server.PIDFilePath(r.cfg.Server.DataDir))
	if err != nil || !server.Alive(pid) {
		return
	}
	r.logger.Infof("stopping postmaster pid %d from a previous run", pid)
	if err := r.srv.Stop(ctx, pid, 15*time.Second); err != nil {
		r.logger.Warnf("could not stop old postmaster: %v", err)
	}
}

func (r *Runner) stepStartServer(ctx context.Context) error {
	_, err := r.srv.Start()
	return err
}

func (r *Runner) stepWaitReady(ctx context.Context) error {
	return r.conn.WaitReady(ctx,
		r.cfg.Server.ReadyInterval.Std(),
		r.cfg.Server.ReadyTimeout.Std())
}

func (r *Runner) stepCreateSuperuser(ctx context.Context) error {
	return r.conn.CreateSuperuser(ctx, r.cfg.Bootstrap.Superuser)
}

func (r *Runner) stepApplySetupSQL(ctx context.Context) error {
	_, err := database.NewScriptRunner(r.conn).RunFile(ctx, r.cfg.Bootstrap.SetupSQL)
	return err
}

func (r *Runner) stepInstallHBA(ctx context.Context) error {
	hbaPath, err := r.conn.ShowSetting(ctx, "hba_file")
	if err != nil {
		return err
	}
	if err := server.InstallHBA(ctx, r.exec, r.cfg.Bootstrap.HBAFile, hbaPath); err != nil {
		return err
	}
	return server.VerifyHBA(ctx, r.exec, r.cfg.Bootstrap.HBAFile, hbaPath)
}

func (r *Runner) stepReloadServer(ctx context.Context) error {
	dataDir, err := r.conn.ShowSetting(ctx, "data_directory")
	if err != nil {
		return err
	}
	pid, err := server.ReadPostmasterPID(ctx, r.exec, server.PIDFilePath(dataDir))
	if err != nil {
		return err
	}
	return r.srv.Reload(ctx, pid)
}
