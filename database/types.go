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
	"os"
	"os/user"
	"strings"
	"time"
)

const (
	// DefaultPort is the stock PostgreSQL listen port.
	DefaultPort = 5432

	// DefaultUnixSocketDir is where Linux distribution packages place the
	// server's unix domain socket.
	DefaultUnixSocketDir = "/var/run/postgresql"

	// DefaultDBName is the maintenance database every cluster ships with.
	DefaultDBName = "postgres"
)

// ConnectionConfig describes how to reach a PostgreSQL server and how to tune
// the resulting pool.
//
// Host selects the transport: an empty value or one starting with a path
// separator means a unix domain socket directory, anything else is a TCP
// host name or address. An empty Username means the current operating system
// account, matching what the client tools assume for a local cluster.
type ConnectionConfig struct {
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	Username        string            `json:"username"`
	Password        string            `json:"password"`
	DBName          string            `json:"dbname"`
	SSLMode         string            `json:"sslmode"`
	ConnectTimeout  time.Duration     `json:"connect_timeout"`
	MaxIdleConns    int               `json:"max_idle_conns"`
	MaxOpenConns    int               `json:"max_open_conns"`
	ConnMaxLifetime time.Duration     `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration     `json:"conn_max_idle_time"`
	EnableQueryLog  bool              `json:"enable_query_log"`
	SlowQueryTime   time.Duration     `json:"slow_query_time"`
	Options         map[string]string `json:"options,omitempty"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults
// for a freshly installed local cluster.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Port:            DefaultPort,
		DBName:          DefaultDBName,
		SSLMode:         "disable",
		ConnectTimeout:  time.Second * 10,
		MaxIdleConns:    2,
		MaxOpenConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		SlowQueryTime:   time.Second * 2,
	}
}

// UsesUnixSocket reports whether the config points at a unix domain socket
// directory rather than a TCP host.
func (c *ConnectionConfig) UsesUnixSocket() bool {
	return c.Host == "" || strings.HasPrefix(c.Host, "/")
}

// normalized returns a copy with every empty field replaced by its default:
// socket directory for the host, current OS account for the user, stock port
// and maintenance database otherwise.
func (c *ConnectionConfig) normalized() *ConnectionConfig {
	out := *c
	if out.Host == "" {
		out.Host = DefaultUnixSocketDir
	}
	if out.Port == 0 {
		out.Port = DefaultPort
	}
	if out.Username == "" {
		out.Username = CurrentOSUser()
	}
	if out.DBName == "" {
		out.DBName = DefaultDBName
	}
	if out.SSLMode == "" {
		out.SSLMode = "disable"
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = time.Second * 10
	}
	return &out
}

// CurrentOSUser resolves the operating system account name, falling back to
// the USER environment variable when the lookup fails (static binaries
// without cgo user databases, stripped containers).
func CurrentOSUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
