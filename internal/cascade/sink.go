package cascade

import (
	"context"
	"database/sql"
	"fmt"
	"io"
)

// Execer applies statements to the store. *sql.Tx and *sql.DB satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Record is a statement that passed through the sink
type Record struct {
	Statement    Statement
	Applied      bool
	RowsAffected int64
}

// Sink receives every mutating statement of a cascade. It always records the
// statement, prints it when verbose, and applies it only in commit mode.
type Sink struct {
	exec    Execer
	commit  bool
	verbose bool
	out     io.Writer
	records []Record
}

// NewSink creates a sink. exec may be nil when commit is false.
func NewSink(exec Execer, commit, verbose bool, out io.Writer) *Sink {
	if out == nil {
		out = io.Discard
	}
	return &Sink{exec: exec, commit: commit, verbose: verbose, out: out}
}

// Execute emits and, in commit mode, applies one statement
func (s *Sink) Execute(ctx context.Context, stmt Statement) error {
	if s.verbose {
		fmt.Fprintln(s.out, stmt.String())
	}

	rec := Record{Statement: stmt}
	if s.commit {
		res, err := s.exec.ExecContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return fmt.Errorf("failed to execute %s: %w", stmt.String(), err)
		}
		rec.Applied = true
		if n, err := res.RowsAffected(); err == nil {
			rec.RowsAffected = n
		}
	}

	s.records = append(s.records, rec)
	return nil
}

// Commit reports whether statements are applied to the store
func (s *Sink) Commit() bool {
	return s.commit
}

// Records returns every statement seen so far, in execution order
func (s *Sink) Records() []Record {
	return s.records
}

// Summary aggregates records per statement kind
type Summary struct {
	Statements   map[Kind]int
	RowsAffected map[Kind]int64
}

// Summarize counts the recorded statements and affected rows per kind
func (s *Sink) Summarize() Summary {
	sum := Summary{
		Statements:   make(map[Kind]int),
		RowsAffected: make(map[Kind]int64),
	}
	for _, r := range s.records {
		sum.Statements[r.Statement.Kind]++
		sum.RowsAffected[r.Statement.Kind] += r.RowsAffected
	}
	return sum
}
