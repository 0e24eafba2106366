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

// Package config loads the tool configuration: defaults, then an optional
// YAML file, then environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomoncle/pgboot/database"
	"github.com/tomoncle/pgboot/utils"
)

// DefaultFileName is picked up from the working directory when no explicit
// config path is given.
const DefaultFileName = "pgboot.yaml"

// Duration wraps time.Duration so YAML values parse from strings like
// "250ms" or "15s". Bare integers are taken as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration: expected a scalar value")
	}
	s := value.Value
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full pgboot configuration.
type Config struct {
	Connection ConnectionSettings `yaml:"connection"`
	Server     ServerSettings     `yaml:"server"`
	Package    PackageSettings    `yaml:"package"`
	Bootstrap  BootstrapSettings  `yaml:"bootstrap"`
	Logging    LoggingSettings    `yaml:"logging"`
}

// ConnectionSettings describes how the tool connects to the server it just
// started. Empty host and username fall back to the local socket directory
// and the current OS account.
type ConnectionSettings struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	DBName         string   `yaml:"dbname"`
	SSLMode        string   `yaml:"sslmode"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	EnableQueryLog bool     `yaml:"enable_query_log"`
	SlowQueryTime  Duration `yaml:"slow_query_time"`
}

// ServerSettings describes the server process under management.
type ServerSettings struct {
	BinPath       string   `yaml:"bin_path"`
	DataDir       string   `yaml:"data_dir"`
	LogFile       string   `yaml:"log_file"`
	ReadyInterval Duration `yaml:"ready_interval"`
	ReadyTimeout  Duration `yaml:"ready_timeout"`
}

// PackageSettings names the package and optionally pins the manager.
type PackageSettings struct {
	// Manager overrides detection: apt-get, dnf, yum, brew, or apk.
	Manager string `yaml:"manager"`
	Name    string `yaml:"name"`
}

// BootstrapSettings covers the procedure itself.
type BootstrapSettings struct {
	Superuser string `yaml:"superuser"`
	SetupSQL  string `yaml:"setup_sql"`
	HBAFile   string `yaml:"hba_file"`
	LockFile  string `yaml:"lock_file"`
}

// LoggingSettings tunes the console and optional file logging.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration for a stock local bootstrap.
func Default() *Config {
	return &Config{
		Connection: ConnectionSettings{
			Port:           database.DefaultPort,
			DBName:         database.DefaultDBName,
			SSLMode:        "disable",
			ConnectTimeout: Duration(10 * time.Second),
			SlowQueryTime:  Duration(2 * time.Second),
		},
		Server: ServerSettings{
			DataDir:       "/usr/local/pgsql/data",
			LogFile:       "/tmp/pgboot-postgres.log",
			ReadyInterval: Duration(250 * time.Millisecond),
			ReadyTimeout:  Duration(15 * time.Second),
		},
		Package: PackageSettings{
			Name: "postgresql",
		},
		Bootstrap: BootstrapSettings{
			Superuser: "postgres",
			SetupSQL:  "configs/setup.sql",
			HBAFile:   "configs/pg_hba.conf",
			LockFile:  "/tmp/pgboot.lock",
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path, and
// environment overrides. An empty path uses pgboot.yaml from the working
// directory when present, otherwise just defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFileName); err == nil {
			path = DefaultFileName
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides configuration values from environment variables.
func (c *Config) applyEnv() {
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Connection.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Connection.Port = p
		}
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		c.Connection.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Connection.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		c.Connection.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		c.Connection.SSLMode = sslmode
	}
	if enableQueryLog := os.Getenv("DB_ENABLE_QUERY_LOG"); enableQueryLog != "" {
		c.Connection.EnableQueryLog = enableQueryLog == "true"
	}

	if binPath := os.Getenv("PGBOOT_BIN_PATH"); binPath != "" {
		c.Server.BinPath = binPath
	}
	if dataDir := os.Getenv("PGBOOT_DATA_DIR"); dataDir != "" {
		c.Server.DataDir = dataDir
	}
	if logFile := os.Getenv("PGBOOT_SERVER_LOG"); logFile != "" {
		c.Server.LogFile = logFile
	}
	if manager := os.Getenv("PGBOOT_PACKAGE_MANAGER"); manager != "" {
		c.Package.Manager = manager
	}
	if name := os.Getenv("PGBOOT_PACKAGE_NAME"); name != "" {
		c.Package.Name = name
	}
	if superuser := os.Getenv("PGBOOT_SUPERUSER"); superuser != "" {
		c.Bootstrap.Superuser = superuser
	}
	if setupSQL := os.Getenv("PGBOOT_SETUP_SQL"); setupSQL != "" {
		c.Bootstrap.SetupSQL = setupSQL
	}
	if hbaFile := os.Getenv("PGBOOT_HBA_FILE"); hbaFile != "" {
		c.Bootstrap.HBAFile = hbaFile
	}
	if lockFile := os.Getenv("PGBOOT_LOCK_FILE"); lockFile != "" {
		c.Bootstrap.LockFile = lockFile
	}
	if level := os.Getenv("PGBOOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// ConfigLoader converts the connection section into the database package's
// connection config.
func (c *Config) ConfigLoader() *database.ConnectionConfig {
	dbCfg := database.DefaultConnectionConfig()
	dbCfg.Host = c.Connection.Host
	if c.Connection.Port > 0 {
		dbCfg.Port = c.Connection.Port
	}
	dbCfg.Username = c.Connection.Username
	dbCfg.Password = c.Connection.Password
	if c.Connection.DBName != "" {
		dbCfg.DBName = c.Connection.DBName
	}
	if c.Connection.SSLMode != "" {
		dbCfg.SSLMode = c.Connection.SSLMode
	}
	if c.Connection.ConnectTimeout > 0 {
		dbCfg.ConnectTimeout = c.Connection.ConnectTimeout.Std()
	}
	dbCfg.EnableQueryLog = c.Connection.EnableQueryLog
	dbCfg.SlowQueryTime = c.Connection.SlowQueryTime.Std()
	return dbCfg
}

// ApplyLogging pushes the logging section into the shared logging stack.
func (c *Config) ApplyLogging() {
	if c.Logging.Format != "" {
		utils.ConfigureConsoleLogFormat(c.Logging.Format)
	}
	if c.Logging.File != "" {
		utils.ConfigureFileLog(c.Logging.File)
	}
	if c.Logging.Level != "" {
		utils.ConfigureLogLevel(c.Logging.Level)
	}
}
