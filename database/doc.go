// Package database provides PostgreSQL connection management, readiness
// polling, administrative operations (role creation, setting reads), SQL
// script execution, error classification, and logging built on top of Bun
// and lib/pq.
package database
