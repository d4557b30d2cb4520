package cascade

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koba/db-cascade/internal/database"
)

// fixture is a SQLite store with its introspected catalog
type fixture struct {
	db      *sql.DB
	catalog *Catalog
}

// newFixture creates a SQLite store from ddl, loads rows and builds the
// catalog through the regular introspection path.
func newFixture(t *testing.T, ddl, rows, trouble []string) *fixture {
	t.Helper()
	ctx := context.Background()

	// Foreign keys stay unenforced so fixtures can hold rows the schema would reject.
	path := "file:" + filepath.Join(t.TempDir(), "fixture.db") + "?_pragma=foreign_keys(0)"
	store := database.NewSQLite(database.Config{Database: path})
	require.NoError(t, store.Connect(ctx))
	t.Cleanup(func() { store.Close() })

	for _, stmt := range append(ddl, rows...) {
		_, err := store.DB().ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	keys, relations, err := database.Load(ctx, store)
	require.NoError(t, err)

	catalog, err := NewCatalog(keys, relations, trouble)
	require.NoError(t, err)

	return &fixture{db: store.DB(), catalog: catalog}
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	err := f.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&n)
	require.NoError(t, err)
	return n
}

func (f *fixture) counts(t *testing.T, tables ...string) map[string]int {
	t.Helper()
	out := make(map[string]int, len(tables))
	for _, table := range tables {
		out[table] = f.count(t, table)
	}
	return out
}

var blogSchema = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
	`CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id), title TEXT)`,
	`CREATE TABLE comments (id INTEGER PRIMARY KEY, post_id INTEGER REFERENCES posts(id), body TEXT)`,
}

var blogRows = []string{
	`INSERT INTO users (id, name) VALUES (1, 'alice'), (2, 'bob')`,
	`INSERT INTO posts (id, user_id, title) VALUES (10, 1, 'hello'), (20, 2, 'other')`,
	`INSERT INTO comments (id, post_id, body) VALUES (100, 10, 'first'), (200, 20, 'second')`,
}

// spyQuerier records every SELECT the engine issues
type spyQuerier struct {
	q       Querier
	queries []string
}

func (s *spyQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	s.queries = append(s.queries, query)
	return s.q.QueryContext(ctx, query, args...)
}

// sqlOf flattens records into "SQL args" strings for comparison
func sqlOf(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Statement.String()
	}
	return out
}
