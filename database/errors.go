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
	"errors"
	"strings"

	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	DuplicateObjectErr
	DuplicateDatabaseErr
	DuplicateKeyErr
	UndefinedObjectErr
	UndefinedTableErr
	InvalidCatalogErr
	InsufficientPrivilegeErr
	AuthFailedErr
	StartingUpErr
	ShuttingDownErr
	TooManyConnectionsErr
	SyntaxErr
)

// IsSqlError classifies a server error into a SQLError value. It prefers the
// driver's typed error with its SQLSTATE code and falls back to message
// matching for errors that arrive already flattened into strings.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "42710": // duplicate_object, e.g. CREATE ROLE on an existing role
			return true, DuplicateObjectErr
		case "42P04": // duplicate_database
			return true, DuplicateDatabaseErr
		case "23505": // unique_violation
			return true, DuplicateKeyErr
		case "42704": // undefined_object
			return true, UndefinedObjectErr
		case "42P01": // undefined_table
			return true, UndefinedTableErr
		case "3D000": // invalid_catalog_name, the database does not exist
			return true, InvalidCatalogErr
		case "42501": // insufficient_privilege
			return true, InsufficientPrivilegeErr
		case "28000", "28P01": // invalid_authorization_specification, invalid_password
			return true, AuthFailedErr
		case "57P03": // cannot_connect_now, server still starting up
			return true, StartingUpErr
		case "57P01", "57P02": // admin_shutdown, crash_shutdown
			return true, ShuttingDownErr
		case "53300": // too_many_connections
			return true, TooManyConnectionsErr
		case "42601": // syntax_error
			return true, SyntaxErr
		default:
			return true, UnknownErr
		}
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "sqlstate 42710"),
		strings.Contains(s, "already exists") && strings.Contains(s, "role"):
		return true, DuplicateObjectErr
	case strings.Contains(s, "sqlstate 42p04"),
		strings.Contains(s, "already exists") && strings.Contains(s, "database"):
		return true, DuplicateDatabaseErr
	case strings.Contains(s, "sqlstate 23505"),
		strings.Contains(s, "duplicate key value"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "sqlstate 42704"):
		return true, UndefinedObjectErr
	case strings.Contains(s, "sqlstate 42p01"),
		strings.Contains(s, "undefined table"):
		return true, UndefinedTableErr
	case strings.Contains(s, "sqlstate 3d000"),
		strings.Contains(s, "database") && strings.Contains(s, "does not exist"):
		return true, InvalidCatalogErr
	case strings.Contains(s, "sqlstate 42501"),
		strings.Contains(s, "permission denied"):
		return true, InsufficientPrivilegeErr
	case strings.Contains(s, "sqlstate 28p01"),
		strings.Contains(s, "sqlstate 28000"),
		strings.Contains(s, "password authentication failed"):
		return true, AuthFailedErr
	case strings.Contains(s, "sqlstate 57p03"),
		strings.Contains(s, "the database system is starting up"):
		return true, StartingUpErr
	case strings.Contains(s, "sqlstate 57p01"),
		strings.Contains(s, "sqlstate 57p02"),
		strings.Contains(s, "the database system is shutting down"):
		return true, ShuttingDownErr
	case strings.Contains(s, "sqlstate 53300"),
		strings.Contains(s, "too many clients"):
		return true, TooManyConnectionsErr
	case strings.Contains(s, "sqlstate 42601"),
		strings.Contains(s, "syntax error"):
		return true, SyntaxErr
	}
	return false, UnknownErr
}

// IsDuplicateObject reports whether err is the server rejecting a CREATE for
// a name that already exists (role, database, or unique key).
func IsDuplicateObject(err error) bool {
	is, code := IsSqlError(err)
	if !is {
		return false
	}
	switch code {
	case DuplicateObjectErr, DuplicateDatabaseErr, DuplicateKeyErr:
		return true
	}
	return false
}

// IsServerNotReady reports whether err looks like a server that exists but
// is not accepting connections yet. Connection refusals at the network layer
// count too, since the postmaster may not be listening at all while booting.
func IsServerNotReady(err error) bool {
	if err == nil {
		return false
	}
	if is, code := IsSqlError(err); is && (code == StartingUpErr || code == TooManyConnectionsErr) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "no such file or directory") ||
		strings.Contains(s, "connection reset")
}
