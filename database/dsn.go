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
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BuildDSN renders the config as a keyword/value connection string. The
// keyword form is used instead of a URL because unix socket directories do
// not survive URL host encoding. Output key order is fixed so the result is
// stable for a given config.
func BuildDSN(cfg *ConnectionConfig) string {
	c := cfg.normalized()

	timeout := int(c.ConnectTimeout.Seconds())
	if timeout < 1 {
		timeout = 1
	}

	pairs := []string{
		"host=" + quoteDSNValue(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"user=" + quoteDSNValue(c.Username),
	}
	if c.Password != "" {
		pairs = append(pairs, "password="+quoteDSNValue(c.Password))
	}
	pairs = append(pairs,
		"dbname="+quoteDSNValue(c.DBName),
		"sslmode="+c.SSLMode,
		"connect_timeout="+strconv.Itoa(timeout),
	)

	if len(c.Options) > 0 {
		keys := make([]string, 0, len(c.Options))
		for k := range c.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = append(pairs, k+"="+quoteDSNValue(c.Options[k]))
		}
	}

	return strings.Join(pairs, " ")
}

// quoteDSNValue quotes a keyword/value connection string value when it is
// empty or contains spaces, quotes, or backslashes.
func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// ParseURL converts a postgres:// or postgresql:// URL into a connection
// config. A unix socket directory is selected with the host query parameter,
// e.g. postgres:///mydb?host=/var/run/postgresql, and a missing host falls
// back to the platform socket directory. Unknown query parameters are
// preserved as runtime options.
func ParseURL(rawURL string) (*ConnectionConfig, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid connection url scheme: %q", u.Scheme)
	}

	cfg := DefaultConnectionConfig()
	cfg.Host = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", p, err)
		}
		cfg.Port = port
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}

	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		if strings.Contains(db, "/") {
			return nil, fmt.Errorf("invalid database name %q", db)
		}
		cfg.DBName = db
	}

	for key, values := range u.Query() {
		value := values[len(values)-1]
		switch key {
		case "host":
			cfg.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid port option %q: %w", value, err)
			}
			cfg.Port = port
		case "user":
			cfg.Username = value
		case "password":
			cfg.Password = value
		case "dbname":
			cfg.DBName = value
		case "sslmode":
			cfg.SSLMode = value
		case "connect_timeout":
			secs, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid connect_timeout %q: %w", value, err)
			}
			cfg.ConnectTimeout = secondsDuration(secs)
		default:
			if cfg.Options == nil {
				cfg.Options = map[string]string{}
			}
			cfg.Options[key] = value
		}
	}

	return cfg, nil
}

func secondsDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
