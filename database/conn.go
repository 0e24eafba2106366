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
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/extra/bundebug"
)

// Conn owns one pooled connection to a PostgreSQL server. Open builds the
// pool without dialing, Connect additionally verifies the server answers,
// and WaitReady polls a freshly started server until it does.
type Conn struct {
	cfg       *ConnectionConfig
	db        *bun.DB
	sqlDB     *sql.DB
	logger    Logger
	mu        sync.RWMutex
	connected bool
}

// NewConn prepares a connection from the given config. A nil config selects
// the local-cluster defaults.
func NewConn(cfg *ConnectionConfig) *Conn {
	if cfg == nil {
		cfg = DefaultConnectionConfig()
	}
	return &Conn{
		cfg:    cfg.normalized(),
		logger: GetLogger(),
	}
}

// SetLogger replaces the connection's logger.
func (c *Conn) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// Open builds the connection pool without touching the network. Server
// notices are forwarded to the logger at info level, matching how the psql
// client surfaces them.
func (c *Conn) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}

	dsn := BuildDSN(c.cfg)
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return fmt.Errorf("invalid connection settings: %w", err)
	}

	sqlDB := sql.OpenDB(pq.ConnectorWithNoticeHandler(connector, func(n *pq.Error) {
		c.logger.Info("Server notice: "+n.Message, "severity", n.Severity, "code", string(n.Code))
	}))
	sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(c.cfg.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, pgdialect.New())
	if c.cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if c.cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(c.cfg.SlowQueryTime, c.logger))
	}

	c.sqlDB = sqlDB
	c.db = db
	return nil
}

// Connect opens the pool and verifies the server answers a ping within the
// configured connect timeout.
func (c *Conn) Connect(ctx context.Context) error {
	if err := c.Open(); err != nil {
		return err
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := c.db.PingContext(ctxTimeout); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("Database connected",
		"host", c.cfg.Host, "port", c.cfg.Port,
		"dbname", c.cfg.DBName, "user", c.cfg.Username)
	return nil
}

// Ping checks the server is still answering.
func (c *Conn) Ping(ctx context.Context) error {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

// Close tears down the pool.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.sqlDB = nil
	c.connected = false
	if err != nil {
		c.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	c.logger.Debug("Database connection closed")
	return nil
}

// DB returns the Bun handle, or nil before Open.
func (c *Conn) DB() *bun.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// SQLDB returns the raw database/sql pool, or nil before Open.
func (c *Conn) SQLDB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sqlDB
}

// Connected reports whether a ping has succeeded since Open.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Config returns a copy of the normalized connection config.
func (c *Conn) Config() ConnectionConfig {
	return *c.cfg
}

// WaitReady polls the server until it accepts a connection, the timeout
// elapses, or the server answers with a definitive rejection. This replaces
// the fixed post-start sleep a human would otherwise tune by hand.
func (c *Conn) WaitReady(ctx context.Context, interval, timeout time.Duration) error {
	if err := c.Open(); err != nil {
		return err
	}
	err := waitReady(ctx, c.pingOnce, interval, timeout, c.logger)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) pingOnce(ctx context.Context) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	return c.sqlDB.PingContext(ctxTimeout)
}

func waitReady(ctx context.Context, ping func(context.Context) error, interval, timeout time.Duration, logger Logger) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	var lastErr error
	for {
		attempts++
		lastErr = ping(ctx)
		if lastErr == nil {
			logger.Info("Database server is ready", "attempts", attempts)
			return nil
		}
		if is, code := IsSqlError(lastErr); is {
			switch code {
			case AuthFailedErr, InvalidCatalogErr, InsufficientPrivilegeErr:
				// The server is up and said no. Waiting will not change its mind.
				return fmt.Errorf("server rejected connection: %w", lastErr)
			}
		}
		logger.Debug("Database server not ready yet", "attempt", attempts, "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready after %s (%d attempts): %w", timeout, attempts, lastErr)
		case <-ticker.C:
		}
	}
}
