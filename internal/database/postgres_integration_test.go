//go:build integration

package database_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/koba/db-cascade/internal/cascade"
	"github.com/koba/db-cascade/internal/database"
	"github.com/koba/db-cascade/internal/schema"
)

// startPostgres runs a throwaway PostgreSQL container and returns its config
func startPostgres(t *testing.T) database.Config {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("cascade"),
		postgres.WithUsername("cascade"),
		postgres.WithPassword("cascade"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)

	return database.Config{
		Type:     "postgres",
		Host:     u.Hostname(),
		Port:     u.Port(),
		Database: "cascade",
		Schema:   "public",
		User:     "cascade",
		Password: "cascade",
	}
}

func TestPostgresCascade(t *testing.T) {
	config := startPostgres(t)

	for _, driver := range []string{"pq", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			config.Driver = driver

			db, err := database.NewDatabase(config)
			require.NoError(t, err)
			require.NoError(t, db.Connect(ctx))
			defer db.Close()

			// posts and notes both name their constraint fk_user, which
			// Postgres allows because the names are scoped per table.
			for _, stmt := range []string{
				`DROP TABLE IF EXISTS notes, comments, posts, users CASCADE`,
				`CREATE TABLE users (id BIGINT PRIMARY KEY, name TEXT)`,
				`CREATE TABLE posts (id BIGINT PRIMARY KEY, user_id BIGINT CONSTRAINT fk_user REFERENCES users(id))`,
				`CREATE TABLE comments (id BIGINT PRIMARY KEY, post_id BIGINT REFERENCES posts(id))`,
				`CREATE TABLE notes (id BIGINT PRIMARY KEY, author_id BIGINT CONSTRAINT fk_user REFERENCES users(id))`,
				`INSERT INTO users VALUES (1, 'alice'), (2, 'bob')`,
				`INSERT INTO posts VALUES (10, 1), (20, 2)`,
				`INSERT INTO comments VALUES (100, 10), (200, 20)`,
				`INSERT INTO notes VALUES (1000, 1), (2000, 2)`,
			} {
				_, err := db.DB().ExecContext(ctx, stmt)
				require.NoError(t, err, stmt)
			}

			keys, relations, err := database.Load(ctx, db)
			require.NoError(t, err)
			assert.Equal(t, []string{"id"}, keys.Columns("posts"))
			assert.ElementsMatch(t, []schema.ForeignKey{
				{Name: "comments_post_id_fkey", Table: "comments", Column: "post_id", ReferencedTable: "posts", ReferencedColumn: "id"},
				{Name: "fk_user", Table: "notes", Column: "author_id", ReferencedTable: "users", ReferencedColumn: "id"},
				{Name: "fk_user", Table: "posts", Column: "user_id", ReferencedTable: "users", ReferencedColumn: "id"},
			}, relations)

			catalog, err := cascade.NewCatalog(keys, relations, nil)
			require.NoError(t, err)

			result, err := cascade.Run(ctx, db.DB(), catalog, db.Dialect(), cascade.Options{
				Table:  "users",
				ID:     int64(1),
				Commit: true,
			})
			require.NoError(t, err)
			assert.True(t, result.Committed)

			for _, table := range []string{"users", "posts", "comments", "notes"} {
				var remaining int
				require.NoError(t, db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&remaining))
				assert.Equal(t, 1, remaining, table)
			}
		})
	}
}
