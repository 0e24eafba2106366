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
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func pqError(code string) error {
	return &pq.Error{Code: pq.ErrorCode(code), Message: "server message"}
}

func TestIsSqlErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want SQLError
	}{
		{"42710", DuplicateObjectErr},
		{"42P04", DuplicateDatabaseErr},
		{"23505", DuplicateKeyErr},
		{"42704", UndefinedObjectErr},
		{"42P01", UndefinedTableErr},
		{"3D000", InvalidCatalogErr},
		{"42501", InsufficientPrivilegeErr},
		{"28000", AuthFailedErr},
		{"28P01", AuthFailedErr},
		{"57P03", StartingUpErr},
		{"57P01", ShuttingDownErr},
		{"53300", TooManyConnectionsErr},
		{"42601", SyntaxErr},
		{"XX000", UnknownErr},
	}
	for _, tt := range tests {
		is, got := IsSqlError(pqError(tt.code))
		if !is {
			t.Errorf("code %s: expected classification", tt.code)
			continue
		}
		if got != tt.want {
			t.Errorf("code %s: got %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestIsSqlErrorWrapped(t *testing.T) {
	wrapped := fmt.Errorf("create role failed: %w", pqError("42710"))
	is, got := IsSqlError(wrapped)
	if !is || got != DuplicateObjectErr {
		t.Fatalf("wrapped pq error not classified: is=%t code=%d", is, got)
	}
}

func TestIsSqlErrorStringFallback(t *testing.T) {
	tests := []struct {
		msg  string
		want SQLError
	}{
		{`pq: role "postgres" already exists`, DuplicateObjectErr},
		{`database "app" already exists`, DuplicateDatabaseErr},
		{"duplicate key value violates unique constraint", DuplicateKeyErr},
		{`database "missing" does not exist`, InvalidCatalogErr},
		{"pq: permission denied for relation t", InsufficientPrivilegeErr},
		{`password authentication failed for user "postgres"`, AuthFailedErr},
		{"pq: the database system is starting up", StartingUpErr},
		{"pq: the database system is shutting down", ShuttingDownErr},
		{"sorry, too many clients already", TooManyConnectionsErr},
		{`syntax error at or near "CREAT"`, SyntaxErr},
	}
	for _, tt := range tests {
		is, got := IsSqlError(errors.New(tt.msg))
		if !is {
			t.Errorf("%q: expected classification", tt.msg)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %d, want %d", tt.msg, got, tt.want)
		}
	}
}

func TestIsSqlErrorNil(t *testing.T) {
	if is, _ := IsSqlError(nil); is {
		t.Error("nil should not classify")
	}
	if is, _ := IsSqlError(errors.New("dial tcp: i/o timeout")); is {
		t.Error("plain network error should not classify")
	}
}

func TestIsDuplicateObject(t *testing.T) {
	if !IsDuplicateObject(pqError("42710")) {
		t.Error("42710 should be a duplicate object")
	}
	if !IsDuplicateObject(pqError("42P04")) {
		t.Error("42P04 should be a duplicate object")
	}
	if IsDuplicateObject(pqError("42501")) {
		t.Error("42501 is not a duplicate object")
	}
	if IsDuplicateObject(nil) {
		t.Error("nil is not a duplicate object")
	}
}

func TestIsServerNotReady(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{pqError("57P03"), true},
		{pqError("53300"), true},
		{errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{errors.New("dial unix /var/run/postgresql/.s.PGSQL.5432: connect: no such file or directory"), true},
		{pqError("28P01"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsServerNotReady(tt.err); got != tt.want {
			t.Errorf("IsServerNotReady(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}
