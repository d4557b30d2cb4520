package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/koba/db-cascade/internal/schema"
)

// MySQL implements the Database interface for MySQL
type MySQL struct {
	config Config
	db     *sql.DB
}

// NewMySQL creates a new MySQL database connection
func NewMySQL(config Config) *MySQL {
	return &MySQL{config: config}
}

// Connect establishes a connection to MySQL
func (m *MySQL) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		m.config.User,
		m.config.Password,
		m.config.Host,
		m.config.Port,
		m.config.Database,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping MySQL: %w", err)
	}

	log.Debug().Str("host", m.config.Host).Str("database", m.config.Database).Msg("connected to MySQL")

	m.db = db
	return nil
}

// Close closes the MySQL connection
func (m *MySQL) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// DB returns the underlying connection pool
func (m *MySQL) DB() *sql.DB {
	return m.db
}

// Dialect returns the MySQL dialect
func (m *MySQL) Dialect() Dialect {
	return DialectMySQL
}

// GetPrimaryKeys retrieves the primary key columns of every table in the database
func (m *MySQL) GetPrimaryKeys(ctx context.Context) ([]schema.PrimaryKeyRow, error) {
	query := `
		SELECT
			t.TABLE_NAME,
			COALESCE(k.CONSTRAINT_NAME, 'PRIMARY'),
			k.COLUMN_NAME,
			k.ORDINAL_POSITION
		FROM information_schema.TABLES t
		LEFT JOIN information_schema.KEY_COLUMN_USAGE k
			ON k.TABLE_SCHEMA = t.TABLE_SCHEMA
			AND k.TABLE_NAME = t.TABLE_NAME
			AND k.CONSTRAINT_NAME = 'PRIMARY'
		WHERE t.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY t.TABLE_NAME, k.ORDINAL_POSITION
	`
	rows, err := m.db.QueryContext(ctx, query, m.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to get primary keys: %w", err)
	}

	return scanPrimaryKeys(rows)
}

// GetForeignKeys retrieves every foreign key relation in the database
func (m *MySQL) GetForeignKeys(ctx context.Context) ([]schema.ForeignKeyRow, error) {
	query := `
		SELECT
			CONSTRAINT_NAME,
			TABLE_NAME,
			COLUMN_NAME,
			REFERENCED_TABLE_NAME,
			REFERENCED_COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`
	rows, err := m.db.QueryContext(ctx, query, m.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	return scanForeignKeys(rows)
}
