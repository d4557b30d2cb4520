package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/koba/db-cascade/internal/cascade"
)

// Entry is one statement read back from an audit file
type Entry struct {
	Kind         cascade.Kind
	Table        string
	SQL          string
	Args         []interface{}
	Applied      bool
	RowsAffected int64
}

// Trail is the content of an audit file
type Trail struct {
	Metadata map[string]string
	Entries  []Entry
}

// Write stores a cascade result in a fresh SQLite file at outputPath
func Write(result *cascade.Result, outputPath string) error {
	// Ensure output directory exists
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if _, err := os.Stat(outputPath); err == nil {
		if err := os.Remove(outputPath); err != nil {
			return fmt.Errorf("failed to remove existing audit file: %w", err)
		}
	}

	db, err := sql.Open("sqlite", outputPath)
	if err != nil {
		return fmt.Errorf("failed to create audit database: %w", err)
	}
	defer db.Close()

	if err := initializeSchema(db); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	metadata := map[string]string{
		"table":       result.Table,
		"id":          fmt.Sprint(result.ID.Value()),
		"committed":   strconv.FormatBool(result.Committed),
		"interrupted": strconv.FormatBool(result.Interrupted),
		"started_at":  result.Started.Format(time.RFC3339Nano),
		"finished_at": result.Finished.Format(time.RFC3339Nano),
	}

	for key, value := range metadata {
		if _, err := tx.Exec("INSERT INTO metadata (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to insert metadata: %w", err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO statements
		(kind, table_name, sql_text, args_json, applied, rows_affected)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range result.Records {
		argsJSON, err := json.Marshal(rec.Statement.Args)
		if err != nil {
			return fmt.Errorf("failed to marshal arguments: %w", err)
		}

		_, err = stmt.Exec(
			string(rec.Statement.Kind),
			rec.Statement.Table,
			rec.Statement.SQL,
			string(argsJSON),
			rec.Applied,
			rec.RowsAffected,
		)
		if err != nil {
			return fmt.Errorf("failed to insert statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Load reads an audit file back
func Load(path string) (*Trail, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audit file does not exist: %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	defer db.Close()

	trail := &Trail{Metadata: make(map[string]string)}

	rows, err := db.Query("SELECT key, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		trail.Metadata[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stmtRows, err := db.Query(`SELECT kind, table_name, sql_text, args_json, applied, rows_affected
		FROM statements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer stmtRows.Close()

	for stmtRows.Next() {
		var e Entry
		var kind, argsJSON string

		if err := stmtRows.Scan(&kind, &e.Table, &e.SQL, &argsJSON, &e.Applied, &e.RowsAffected); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		e.Kind = cascade.Kind(kind)

		if err := json.Unmarshal([]byte(argsJSON), &e.Args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
		}

		trail.Entries = append(trail.Entries, e)
	}

	return trail, stmtRows.Err()
}
