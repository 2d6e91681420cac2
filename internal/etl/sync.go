package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ── Pipeline ───────────────────────────────────────────────
// Orchestrates: fetch → extract ┐
//                  load rates   ┴→ transform → file sinks → table sink → queries
//
// Every stage fails fast; the first error aborts the run.

// Stage names a pipeline step for progress and run logs.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageRates     Stage = "rates"
	StageTransform Stage = "transform"
	StageFiles     Stage = "load_files"
	StageTable     Stage = "load_table"
	StageQuery     Stage = "query"
)

// Checkpoint messages written to the progress log, in run order.
const (
	MsgStart       = "Preliminaries complete. Initiating ETL process"
	MsgExtracted   = "Data extraction complete. Initiating Transformation process"
	MsgTransformed = "Data transformation complete. Initiating Loading process"
	MsgFilesSaved  = "Data saved to CSV file"
	MsgConnected   = "SQL Connection initiated"
	MsgTableLoaded = "Data loaded to Database as a table, Executing queries"
	MsgComplete    = "Process Complete"
	MsgClosed      = "Server Connection closed"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Progress receives checkpoint and failure events from a run.
type Progress interface {
	Checkpoint(message string)
	Failure(stage Stage, err error)
}

// Job is the explicit configuration of one pipeline run.
type Job struct {
	Name         string        `json:"name"`
	Location     string        `json:"location"`
	RatesPath    string        `json:"ratesPath"`
	Mapping      ColumnMapping `json:"mapping"`
	Schema       *Schema       `json:"schema"`
	Table        string        `json:"table"`
	MeanCurrency string        `json:"meanCurrency"`
}

// RunResult is the outcome of a pipeline run.
type RunResult struct {
	RunID         string         `json:"runId"`
	Job           string         `json:"job"`
	Status        string         `json:"status"` // "success" | "error"
	RowsExtracted int            `json:"rowsExtracted"`
	RowsWritten   int            `json:"rowsWritten"`
	Queries       []*QueryResult `json:"queries,omitempty"`
	StartedAt     time.Time      `json:"startedAt"`
	Duration      time.Duration  `json:"duration"`
	FailedStage   Stage          `json:"failedStage,omitempty"`
	ErrorKind     Kind           `json:"errorKind,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs the pipeline. Files are the flat-file destinations, written
// before the table; Mirrors are written after the table.
type Engine struct {
	Fetch     func(ctx context.Context, location string) ([]byte, error)
	OpenStore func(ctx context.Context) (TableStore, error)
	Files     []Destination
	Mirrors   []Destination
	Progress  Progress
}

// Run executes job end-to-end. The returned result is never nil.
func (e *Engine) Run(ctx context.Context, job *Job) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.New().String(),
		Job:       job.Name,
		StartedAt: time.Now(),
	}
	e.checkpoint(MsgStart)

	// 1. Extract.
	fetch := e.Fetch
	if fetch == nil {
		fetch = FetchDocument
	}
	doc, err := fetch(ctx, job.Location)
	if err != nil {
		return e.fail(result, StageExtract, fmt.Errorf("fetch %s: %w", job.Location, err))
	}
	raw, err := Extract(doc, job.Mapping)
	if err != nil {
		return e.fail(result, StageExtract, err)
	}
	result.RowsExtracted = len(raw)
	e.checkpoint(MsgExtracted)

	// 2. Rates + transform.
	rates, err := LoadRatesFile(job.RatesPath)
	if err != nil {
		return e.fail(result, StageRates, err)
	}
	records, err := Transform(raw, rates, job.Schema)
	if err != nil {
		return e.fail(result, StageTransform, err)
	}
	e.checkpoint(MsgTransformed)

	// 3. Flat files.
	if err := writeAll(ctx, e.Files, job.Schema, records); err != nil {
		return e.fail(result, StageFiles, err)
	}
	e.checkpoint(MsgFilesSaved)

	// 4. Table. The store is scoped to this run and released on every path.
	if e.OpenStore == nil {
		return e.fail(result, StageTable, SinkError("table:"+job.Table, fmt.Errorf("no table store configured")))
	}
	store, err := e.OpenStore(ctx)
	if err != nil {
		return e.fail(result, StageTable, SinkError("table:"+job.Table, err))
	}
	released := false
	defer func() {
		if !released {
			store.Close()
		}
	}()
	e.checkpoint(MsgConnected)

	table := &TableWriter{Store: store, Table: job.Table}
	written, err := table.Write(ctx, job.Schema, records)
	if err != nil {
		return e.fail(result, StageTable, err)
	}
	result.RowsWritten = written
	if err := writeAll(ctx, e.Mirrors, job.Schema, records); err != nil {
		return e.fail(result, StageTable, err)
	}
	e.checkpoint(MsgTableLoaded)

	// 5. Verification queries.
	queries, err := FixedQueries(store, job.Table, job.Schema, job.MeanCurrency)
	if err != nil {
		return e.fail(result, StageQuery, err)
	}
	result.Queries, err = RunQueries(ctx, store, queries)
	if err != nil {
		return e.fail(result, StageQuery, err)
	}
	e.checkpoint(MsgComplete)

	released = true
	if err := store.Close(); err != nil {
		return e.fail(result, StageQuery, fmt.Errorf("close store: %w", err))
	}
	e.checkpoint(MsgClosed)

	result.Status = StatusSuccess
	result.Duration = time.Since(result.StartedAt)
	return result, nil
}

// RunQueriesOnly reruns the fixed queries against an existing table.
func (e *Engine) RunQueriesOnly(ctx context.Context, job *Job) ([]*QueryResult, error) {
	if e.OpenStore == nil {
		return nil, fmt.Errorf("no table store configured")
	}
	store, err := e.OpenStore(ctx)
	if err != nil {
		return nil, QueryError("connect", err)
	}
	defer store.Close()

	queries, err := FixedQueries(store, job.Table, job.Schema, job.MeanCurrency)
	if err != nil {
		return nil, err
	}
	return RunQueries(ctx, store, queries)
}

func (e *Engine) fail(result *RunResult, stage Stage, err error) (*RunResult, error) {
	result.Status = StatusError
	result.FailedStage = stage
	result.ErrorKind = KindOf(err)
	result.Error = err.Error()
	result.Duration = time.Since(result.StartedAt)
	if e.Progress != nil {
		e.Progress.Failure(stage, err)
	}
	return result, err
}

func (e *Engine) checkpoint(msg string) {
	if e.Progress != nil {
		e.Progress.Checkpoint(msg)
	}
}
