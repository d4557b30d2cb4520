package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/koba/db-cascade/internal/schema"
)

// Config holds database connection configuration
type Config struct {
	Type     string `env:"DB_TYPE,notEmpty"` // "mysql", "postgres" or "sqlite"
	Driver   string `env:"DB_DRIVER"`        // postgres only: "pq" (default) or "pgx"
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT"`
	Database string `env:"DB_NAME,notEmpty"`
	Schema   string `env:"DB_SCHEMA" envDefault:"public"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
}

// Database interface defines the operations the cascade needs from a store
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	DB() *sql.DB
	Dialect() Dialect
	GetPrimaryKeys(ctx context.Context) ([]schema.PrimaryKeyRow, error)
	GetForeignKeys(ctx context.Context) ([]schema.ForeignKeyRow, error)
}

// NewDatabase creates a new database connection based on type
func NewDatabase(config Config) (Database, error) {
	switch config.Type {
	case "mysql", "MySQL":
		return NewMySQL(config), nil
	case "postgres", "Postgres", "PostgreSQL":
		return NewPostgres(config), nil
	case "sqlite", "SQLite":
		return NewSQLite(config), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// LoadConfigFromEnv loads database configuration from environment variables.
// A .env file in the working directory is read first when present.
func LoadConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	config, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}

	if config.Port == "" {
		switch strings.ToLower(config.Type) {
		case "mysql":
			config.Port = "3306"
		case "postgres", "postgresql":
			config.Port = "5432"
		}
	}

	return config, nil
}

// Load introspects the store and returns its primary key index and relations
func Load(ctx context.Context, db Database) (schema.PrimaryKeyIndex, []schema.ForeignKey, error) {
	pkRows, err := db.GetPrimaryKeys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load primary keys: %w", err)
	}

	fkRows, err := db.GetForeignKeys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load foreign keys: %w", err)
	}

	relations, err := schema.LoadForeignKeys(fkRows)
	if err != nil {
		return nil, nil, err
	}

	return schema.LoadPrimaryKeys(pkRows), relations, nil
}

func scanPrimaryKeys(rows *sql.Rows) ([]schema.PrimaryKeyRow, error) {
	defer rows.Close()

	var keys []schema.PrimaryKeyRow
	for rows.Next() {
		var pk schema.PrimaryKeyRow
		var column sql.NullString
		var position sql.NullInt64

		if err := rows.Scan(&pk.Table, &pk.Constraint, &column, &position); err != nil {
			return nil, fmt.Errorf("failed to scan primary key: %w", err)
		}

		if column.Valid {
			pk.Column = &column.String
		}
		pk.Position = int(position.Int64)

		keys = append(keys, pk)
	}

	return keys, rows.Err()
}

func scanForeignKeys(rows *sql.Rows) ([]schema.ForeignKeyRow, error) {
	defer rows.Close()

	var foreignKeys []schema.ForeignKeyRow
	for rows.Next() {
		var fk schema.ForeignKeyRow

		if err := rows.Scan(&fk.Name, &fk.Table, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		foreignKeys = append(foreignKeys, fk)
	}

	return foreignKeys, rows.Err()
}
