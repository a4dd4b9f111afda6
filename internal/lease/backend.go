/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lease

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
)

// Backend provisions and tears down credentials on a real database engine.
// A no-op Backend is used when the execute-SQL configuration toggle is off.
type Backend interface {
	CreateUser(ctx context.Context, cfg ConnectionConfig, username, password string) error
	DropUser(ctx context.Context, cfg ConnectionConfig, username string) error
}

// sqlBackend executes the spec's literal DDL/DCL statements against the
// backend named by ConnectionConfig.BackendType.
type sqlBackend struct{}

// NewSQLBackend returns a Backend that opens a real connection and issues
// CREATE/DROP statements. Used when the execute-SQL toggle is enabled.
func NewSQLBackend() Backend {
	return sqlBackend{}
}

func (sqlBackend) CreateUser(ctx context.Context, cfg ConnectionConfig, username, password string) error {
	db, driver, err := open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var stmts []string
	switch driver {
	case "pgx":
		stmts = []string{
			fmt.Sprintf(`CREATE ROLE %s WITH LOGIN PASSWORD '%s'`, username, password),
			fmt.Sprintf(`GRANT CONNECT ON DATABASE %s TO %s`, cfg.Database, username),
			fmt.Sprintf(`GRANT USAGE ON SCHEMA public TO %s`, username),
		}
	case "mysql":
		stmts = []string{
			fmt.Sprintf(`CREATE USER '%s'@'%%' IDENTIFIED BY '%s'`, username, password),
			fmt.Sprintf(`GRANT SELECT, INSERT, UPDATE, DELETE ON %s.* TO '%s'@'%%'`, cfg.Database, username),
			`FLUSH PRIVILEGES`,
		}
	}
	return execAll(ctx, db, stmts)
}

func (sqlBackend) DropUser(ctx context.Context, cfg ConnectionConfig, username string) error {
	db, driver, err := open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var stmt string
	switch driver {
	case "pgx":
		stmt = fmt.Sprintf(`DROP ROLE IF EXISTS %s`, username)
	case "mysql":
		stmt = fmt.Sprintf(`DROP USER IF EXISTS '%s'@'%%'`, username)
	}
	return execAll(ctx, db, []string{stmt})
}

func open(cfg ConnectionConfig) (*sql.DB, string, error) {
	switch cfg.BackendType {
	case BackendPostgreSQL:
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.AdminUsername, cfg.AdminPassword, cfg.Host, cfg.Port, cfg.Database)
		db, err := sql.Open("pgx", dsn)
		return db, "pgx", err
	case BackendMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", cfg.AdminUsername, cfg.AdminPassword, cfg.Host, cfg.Port, cfg.Database)
		db, err := sql.Open("mysql", dsn)
		return db, "mysql", err
	default:
		return nil, "", fmt.Errorf("lease: unsupported backend type %q", cfg.BackendType)
	}
}

func execAll(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lease: backend statement failed: %w", err)
		}
	}
	return nil
}

// noopBackend is used when execute-SQL is disabled: the lease lifecycle
// still runs, but no real database user is ever created or dropped.
type noopBackend struct{}

// NewNoopBackend returns a Backend that performs no real I/O.
func NewNoopBackend() Backend { return noopBackend{} }

func (noopBackend) CreateUser(ctx context.Context, cfg ConnectionConfig, username, password string) error {
	return nil
}
func (noopBackend) DropUser(ctx context.Context, cfg ConnectionConfig, username string) error {
	return nil
}
