package cascade

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/koba/db-cascade/internal/database"
	"github.com/koba/db-cascade/internal/schema"
)

// Querier runs SELECTs against the store. *sql.Tx and *sql.DB satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Engine resolves cascades over one catalog, reading through a Querier and
// writing through a Sink.
type Engine struct {
	catalog *Catalog
	store   Querier
	sink    *Sink
	builder *StatementBuilder
}

// NewEngine creates a new cascade engine
func NewEngine(catalog *Catalog, store Querier, sink *Sink, dialect database.Dialect) *Engine {
	return &Engine{
		catalog: catalog,
		store:   store,
		sink:    sink,
		builder: NewStatementBuilder(dialect),
	}
}

// Cascade deletes the row of table identified by id and everything depending on it
func (e *Engine) Cascade(ctx context.Context, table string, id schema.RowIdentity) error {
	u := e.NewUnloadable(table, id)
	if err := u.Unload(ctx); err != nil {
		return err
	}
	return u.Delete(ctx)
}

// Unloadable is a row about to be deleted together with its dependents
type Unloadable struct {
	engine *Engine
	Table  string
	ID     schema.RowIdentity
	// Deps are the relations that may hold rows pointing at this one
	Deps []schema.ForeignKey

	// statements run right before the row itself is deleted
	queue []Statement
}

// NewUnloadable prepares the row of table identified by id for unloading
func (e *Engine) NewUnloadable(table string, id schema.RowIdentity) *Unloadable {
	return &Unloadable{
		engine: e,
		Table:  table,
		ID:     id,
		Deps:   e.catalog.Dependents(table),
	}
}

// Unload removes everything that depends on this row, leaving the row itself.
// Trouble relations are unlinked; other dependents are deleted depth-first.
func (u *Unloadable) Unload(ctx context.Context) error {
	log.Debug().Str("table", u.Table).Stringer("id", u.ID).Int("deps", len(u.Deps)).Msg("unloading")

	for _, edge := range u.Deps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if u.engine.catalog.IsTrouble(edge.Name) {
			if err := u.unlink(ctx, edge); err != nil {
				return err
			}
			continue
		}

		ids, err := u.getDeps(ctx, edge)
		if err != nil {
			return err
		}

		// Rows the SELECT could not identify are still removed by this.
		u.queue = append(u.queue, u.engine.builder.BulkDelete(edge, u.ID.Value()))

		for _, id := range ids {
			child := u.engine.NewUnloadable(edge.Table, id)
			if err := child.Unload(ctx); err != nil {
				return err
			}
			if err := child.Delete(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// Delete runs the queued statements and then deletes this row.
// Unload must have completed first.
func (u *Unloadable) Delete(ctx context.Context) error {
	for _, stmt := range u.queue {
		if err := u.engine.sink.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	u.queue = nil

	return u.engine.sink.Execute(ctx, u.engine.builder.Delete(u.Table, u.ID))
}

func (u *Unloadable) unlink(ctx context.Context, edge schema.ForeignKey) error {
	if err := u.checkReferrer(edge); err != nil {
		return err
	}
	return u.engine.sink.Execute(ctx, u.engine.builder.Unlink(edge, u.ID.Value()))
}

// getDeps selects the identities of rows in edge.Table pointing at this row.
// Tables without a known primary key yield nothing.
func (u *Unloadable) getDeps(ctx context.Context, edge schema.ForeignKey) ([]schema.RowIdentity, error) {
	if err := u.checkReferrer(edge); err != nil {
		return nil, err
	}

	keys := u.engine.catalog.Keys().Columns(edge.Table)
	if len(keys) == 0 {
		log.Debug().Str("table", edge.Table).Msg("no known primary key, relying on bulk delete")
		return nil, nil
	}

	stmt := u.engine.builder.SelectKeys(edge, keys, u.ID.Value())
	log.Debug().Str("sql", stmt.String()).Msg("select")

	rows, err := u.engine.store.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select dependents in %s: %w", edge.Table, err)
	}
	defer rows.Close()

	var ids []schema.RowIdentity
	for rows.Next() {
		values := make([]interface{}, len(keys))
		valuePtrs := make([]interface{}, len(keys))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan dependent of %s: %w", edge.Table, err)
		}

		for i, val := range values {
			if b, ok := val.([]byte); ok {
				values[i] = string(b)
			}
		}

		id, err := schema.NewRowIdentity(keys, values)
		if err != nil {
			return nil, fmt.Errorf("dependent row in %s: %w", edge.Table, err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (u *Unloadable) checkReferrer(edge schema.ForeignKey) error {
	if edge.ReferencedTable != u.Table {
		return fmt.Errorf("relation %s references %s, not %s", edge.Name, edge.ReferencedTable, u.Table)
	}
	return nil
}
