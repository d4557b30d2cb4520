package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/koba/db-cascade/internal/schema"
)

// SQLite implements the Database interface for a SQLite file.
// Config.Database holds the file path.
type SQLite struct {
	config Config
	db     *sql.DB
}

// NewSQLite creates a new SQLite database connection
func NewSQLite(config Config) *SQLite {
	return &SQLite{config: config}
}

// Connect opens the SQLite file
func (s *SQLite) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping SQLite: %w", err)
	}

	log.Debug().Str("path", s.config.Database).Msg("opened SQLite database")

	s.db = db
	return nil
}

// Close closes the SQLite connection
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying connection pool
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQLite dialect
func (s *SQLite) Dialect() Dialect {
	return DialectSQLite
}

// GetPrimaryKeys retrieves the primary key columns of every table. Tables
// without a declared primary key yield a single row with a NULL column.
func (s *SQLite) GetPrimaryKeys(ctx context.Context) ([]schema.PrimaryKeyRow, error) {
	query := `
		SELECT
			m.name,
			'PRIMARY',
			p.name,
			p.pk
		FROM sqlite_master m
		LEFT JOIN pragma_table_info(m.name) p ON p.pk > 0
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.pk
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get primary keys: %w", err)
	}

	return scanPrimaryKeys(rows)
}

// GetForeignKeys retrieves every foreign key relation. SQLite constraints are
// unnamed, so names follow the PostgreSQL default of <table>_<column>_fkey.
// A relation without an explicit target column points at the referenced
// table's primary key.
func (s *SQLite) GetForeignKeys(ctx context.Context) ([]schema.ForeignKeyRow, error) {
	query := `
		SELECT
			m.name || '_' || f."from" || '_fkey',
			m.name,
			f."from",
			f."table",
			COALESCE(f."to", (
				SELECT t.name FROM pragma_table_info(f."table") t WHERE t.pk = 1
			), '')
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, f.id, f.seq
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	return scanForeignKeys(rows)
}
