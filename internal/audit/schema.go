package audit

import "database/sql"

const (
	// SQLite schema for storing cascade runs
	createMetadataTable = `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	createStatementsTable = `
		CREATE TABLE IF NOT EXISTS statements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			table_name TEXT NOT NULL,
			sql_text TEXT NOT NULL,
			args_json TEXT NOT NULL,
			applied INTEGER NOT NULL,
			rows_affected INTEGER NOT NULL
		);
	`

	createStatementsIndex = `
		CREATE INDEX IF NOT EXISTS idx_statements_table_name
		ON statements(table_name);
	`
)

func initializeSchema(db *sql.DB) error {
	schemas := []string{
		createMetadataTable,
		createStatementsTable,
		createStatementsIndex,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return err
		}
	}

	return nil
}
