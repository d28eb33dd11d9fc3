// Package store implements the mapping database: staging tables for raw
// Jira/Redmine payloads, migration_mapping_* tables for proposals and
// Redmine identifiers, and operator lookup tables.
//
// Two backends are supported. sqlite (via ncruces/go-sqlite3, CGO-free) is
// the default for single-operator runs; mysql keeps compatibility with
// installations that inspect the mapping tables from other tooling. All
// query text uses ? placeholders, which both drivers accept; only the DDL
// and upsert syntax differ per dialect.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// memdbSeq names in-memory databases so each Open gets its own.
var memdbSeq atomic.Int64

// Store wraps the mapping database connection.
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the mapping database and creates missing tables.
// driver is "sqlite" or "mysql"; dsn is a file path / URI for sqlite or a
// go-sql-driver DSN for mysql.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var db *sql.DB
	var err error

	switch driver {
	case "sqlite":
		connStr := dsn
		if connStr == ":memory:" {
			// A named shared-cache database survives database/sql
			// recycling the connection; the unique name keeps separate
			// opens (test fixtures) isolated from each other.
			name := fmt.Sprintf("memdb%d", memdbSeq.Add(1))
			connStr = "file:" + name + "?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
		} else if !strings.HasPrefix(connStr, "file:") {
			if dir := filepath.Dir(connStr); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return nil, fmt.Errorf("create database directory: %w", err)
				}
			}
			connStr = "file:" + connStr + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
		}
		db, err = sql.Open("sqlite3", connStr)
	case "mysql":
		db, err = sql.Open("mysql", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The pipeline serializes all writes through one connection; mapping
	// updates are single-row transactions so progress survives any abort.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, dialect: driver}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if s.dialect == "mysql" {
		for _, stmt := range schemaMySQL {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schemaSQLite); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// now returns the canonical timestamp written to extracted_at and
// last_updated_at columns.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// upsertSQL builds an insert-or-update statement for the active dialect.
// keyCols are the conflict target; updateCols are overwritten on conflict.
func (s *Store) upsertSQL(table string, keyCols, updateCols []string) string {
	all := append(append([]string{}, keyCols...), updateCols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(all)), ",")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(all, ", "), placeholders)

	if s.dialect == "mysql" {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, c := range updateCols {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = VALUES(%s)", c, c)
		}
	} else {
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(keyCols, ", "))
		for i, c := range updateCols {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = excluded.%s", c, c)
		}
	}
	return b.String()
}

// withTx runs fn inside a transaction. Batch boundaries match the upstream
// pagination boundaries, so a mid-page failure rolls back the whole page.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- nullable scan/arg helpers ---

func nullStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	if *v {
		return 1
	}
	return 0
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolPtr(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 != 0
	return &b
}
