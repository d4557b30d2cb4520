package cascade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/koba/db-cascade/internal/database"
	"github.com/koba/db-cascade/internal/schema"
)

// ErrNotUnloadable is returned when the requested table is not configured
// as a cascade root.
var ErrNotUnloadable = errors.New("table is not unloadable")

// Options configures one top-level cascade invocation
type Options struct {
	Table   string
	ID      interface{}
	Commit  bool
	Verbose bool
	Out     io.Writer
	// Unloadables restricts the tables a cascade may start from.
	// Empty means any table.
	Unloadables []string
}

// Result describes a finished invocation
type Result struct {
	Table       string
	ID          schema.RowIdentity
	Committed   bool
	Interrupted bool
	Started     time.Time
	Finished    time.Time
	Records     []Record
	Summary     Summary
}

// Run executes the whole cascade inside one transaction. The transaction is
// committed only when opts.Commit is set and nothing failed or interrupted
// the run; every other path rolls back. A cancelled context is reported via
// Result.Interrupted rather than as an error.
func Run(ctx context.Context, db *sql.DB, catalog *Catalog, dialect database.Dialect, opts Options) (*Result, error) {
	id, err := rootIdentity(catalog, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Table: opts.Table, ID: id, Started: time.Now()}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sink := NewSink(tx, opts.Commit, opts.Verbose, opts.Out)
	engine := NewEngine(catalog, tx, sink, dialect)

	cascadeErr := engine.Cascade(ctx, opts.Table, id)

	result.Records = sink.Records()
	result.Summary = sink.Summarize()
	result.Finished = time.Now()

	if ctx.Err() != nil {
		log.Warn().Msg("interrupted by user")
		result.Interrupted = true
		return result, nil
	}
	if cascadeErr != nil {
		return result, cascadeErr
	}

	if !opts.Commit {
		return result, nil
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}
	result.Committed = true

	return result, nil
}

func rootIdentity(catalog *Catalog, opts Options) (schema.RowIdentity, error) {
	if len(opts.Unloadables) > 0 {
		allowed := false
		for _, t := range opts.Unloadables {
			if t == opts.Table {
				allowed = true
				break
			}
		}
		if !allowed {
			return schema.RowIdentity{}, fmt.Errorf("%s: %w", opts.Table, ErrNotUnloadable)
		}
	}

	column, err := catalog.Keys().SingleColumn(opts.Table)
	if err != nil {
		return schema.RowIdentity{}, err
	}

	return schema.NewRowIdentity([]string{column}, []interface{}{opts.ID})
}
