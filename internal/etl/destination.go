package etl

import (
	"context"
	"strings"
)

// ── Destination ────────────────────────────────────────────
// A Destination persists the enriched record set. Every destination is
// full-refresh: after a successful Write it holds exactly the given
// records, in order, and nothing from earlier runs.
//
// There is no atomicity across destinations. If the table write fails
// after the flat file was replaced, the run is failed and must be rerun
// as a whole.

// Destination writes records to a target system.
type Destination interface {
	// Name identifies the destination in logs and errors, e.g. "csv:/out/banks.csv".
	Name() string
	Write(ctx context.Context, schema *Schema, records []EnrichedRecord) (int, error)
}

// TableStore is a relational sink that can be replaced and queried.
// Implementations live in internal/dbclient.
type TableStore interface {
	// ReplaceTable drops table and recreates it holding exactly records.
	ReplaceTable(ctx context.Context, table string, schema *Schema, records []EnrichedRecord) (int, error)

	// Query runs a read-only statement and returns every row.
	Query(ctx context.Context, statement string) (*QueryResult, error)

	Quoter
	Close() error
}

// Quoter quotes identifiers for a SQL dialect.
type Quoter interface {
	QuoteIdent(name string) string
}

// ANSIQuoter quotes with double quotes, as SQLite and Postgres do.
type ANSIQuoter struct{}

func (ANSIQuoter) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ── Table Destination ──────────────────────────────────────

// TableWriter implements Destination for a named table in a TableStore.
type TableWriter struct {
	Store TableStore
	Table string
}

func (w *TableWriter) Name() string { return "table:" + w.Table }

func (w *TableWriter) Write(ctx context.Context, schema *Schema, records []EnrichedRecord) (int, error) {
	n, err := w.Store.ReplaceTable(ctx, w.Table, schema, records)
	if err != nil {
		return n, SinkError(w.Name(), err)
	}
	return n, nil
}

// writeAll writes records to each destination in order and stops at the
// first failure.
func writeAll(ctx context.Context, dests []Destination, schema *Schema, records []EnrichedRecord) error {
	for _, d := range dests {
		if _, err := d.Write(ctx, schema, records); err != nil {
			if KindOf(err) == "" {
				err = SinkError(d.Name(), err)
			}
			return err
		}
	}
	return nil
}
