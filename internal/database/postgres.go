package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/koba/db-cascade/internal/schema"
)

// Postgres implements the Database interface for PostgreSQL
type Postgres struct {
	config Config
	db     *sql.DB
}

// NewPostgres creates a new PostgreSQL database connection
func NewPostgres(config Config) *Postgres {
	if config.Schema == "" {
		config.Schema = "public"
	}
	return &Postgres{config: config}
}

// driverName maps DB_DRIVER to a registered database/sql driver
func (p *Postgres) driverName() (string, error) {
	switch p.config.Driver {
	case "", "pq", "postgres":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported PostgreSQL driver: %s", p.config.Driver)
	}
}

// Connect establishes a connection to PostgreSQL
func (p *Postgres) Connect(ctx context.Context) error {
	driver, err := p.driverName()
	if err != nil {
		return err
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		p.config.Host,
		p.config.Port,
		p.config.User,
		p.config.Password,
		p.config.Database,
	)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	log.Debug().
		Str("driver", driver).
		Str("host", p.config.Host).
		Str("database", p.config.Database).
		Msg("connected to PostgreSQL")

	p.db = db
	return nil
}

// Close closes the PostgreSQL connection
func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// DB returns the underlying connection pool
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Dialect returns the PostgreSQL dialect
func (p *Postgres) Dialect() Dialect {
	return DialectPostgres
}

// GetPrimaryKeys retrieves the primary key columns of every table in the schema.
// Some constraints are not matched by key_column_usage and come back with a
// NULL column.
func (p *Postgres) GetPrimaryKeys(ctx context.Context) ([]schema.PrimaryKeyRow, error) {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			kcu.ordinal_position
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.ordinal_position
	`
	rows, err := p.db.QueryContext(ctx, query, p.config.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to get primary keys: %w", err)
	}

	return scanPrimaryKeys(rows)
}

// GetForeignKeys retrieves every foreign key relation in the schema.
// Constraint names are only unique per table, so columns are resolved through
// pg_constraint rather than by joining information_schema on the name.
func (p *Postgres) GetForeignKeys(ctx context.Context) ([]schema.ForeignKeyRow, error) {
	query := `
		SELECT
			c.conname::text,
			cl.relname::text,
			a.attname::text,
			rcl.relname::text AS referenced_table,
			ra.attname::text AS referenced_column
		FROM pg_catalog.pg_constraint c
		JOIN pg_catalog.pg_class cl ON cl.oid = c.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = cl.relnamespace
		JOIN pg_catalog.pg_class rcl ON rcl.oid = c.confrelid
		CROSS JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(attnum, refnum, ord)
		JOIN pg_catalog.pg_attribute a
			ON a.attrelid = c.conrelid
			AND a.attnum = k.attnum
		JOIN pg_catalog.pg_attribute ra
			ON ra.attrelid = c.confrelid
			AND ra.attnum = k.refnum
		WHERE c.contype = 'f'
			AND n.nspname = $1
		ORDER BY c.conname, cl.relname, k.ord
	`
	rows, err := p.db.QueryContext(ctx, query, p.config.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	return scanForeignKeys(rows)
}
