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
	"testing"
)

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres", `"postgres"`},
		{"hba_file", `"hba_file"`},
		{`odd"name`, `"odd""name"`},
		{"has space", `"has space"`},
	}
	for _, tt := range tests {
		if got := quoteIdent(tt.in); got != tt.want {
			t.Errorf("quoteIdent(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSuperuserDDL(t *testing.T) {
	got := superuserDDL("postgres")
	want := `CREATE ROLE "postgres" WITH SUPERUSER CREATEDB CREATEROLE INHERIT LOGIN`
	if got != want {
		t.Fatalf("superuserDDL:\n got: %s\nwant: %s", got, want)
	}
}

func TestSuperuserDDLQuotesRole(t *testing.T) {
	got := superuserDDL(`admin"role`)
	want := `CREATE ROLE "admin""role" WITH SUPERUSER CREATEDB CREATEROLE INHERIT LOGIN`
	if got != want {
		t.Fatalf("superuserDDL:\n got: %s\nwant: %s", got, want)
	}
}

func TestCreateSuperuserValidation(t *testing.T) {
	c := NewConn(nil)

	if err := c.CreateSuperuser(context.Background(), "  "); err == nil {
		t.Error("blank role name should be rejected")
	}
	if err := c.CreateSuperuser(context.Background(), "postgres"); err == nil {
		t.Error("create before Open should fail")
	}
}

func TestAdminQueriesRequireConnection(t *testing.T) {
	c := NewConn(nil)

	if _, err := c.RoleExists(context.Background(), "postgres"); err == nil {
		t.Error("RoleExists before Open should fail")
	}
	if _, err := c.ShowSetting(context.Background(), "hba_file"); err == nil {
		t.Error("ShowSetting before Open should fail")
	}
	if _, err := c.ServerInfo(context.Background()); err == nil {
		t.Error("ServerInfo before Open should fail")
	}
}
