package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bankcap/internal/etl"
)

// Run triggers.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWatch    = "file_watch"
	TriggerMCP      = "mcp"
)

// RunLog is the persisted record of one pipeline run.
type RunLog struct {
	ID            string             `json:"id"`
	Job           string             `json:"job"`
	Table         string             `json:"table"`
	Location      string             `json:"location"`
	Trigger       string             `json:"trigger"`
	StartedAt     time.Time          `json:"startedAt"`
	FinishedAt    time.Time          `json:"finishedAt"`
	Status        string             `json:"status"`
	RowsExtracted int                `json:"rowsExtracted"`
	RowsWritten   int                `json:"rowsWritten"`
	FailedStage   string             `json:"failedStage,omitempty"`
	ErrorKind     string             `json:"errorKind,omitempty"`
	Error         string             `json:"error,omitempty"`
	Queries       []*etl.QueryResult `json:"queries,omitempty"`
}

// NewRunLog builds a log entry from a finished run.
func NewRunLog(job *etl.Job, result *etl.RunResult, trigger string) *RunLog {
	return &RunLog{
		ID:            result.RunID,
		Job:           job.Name,
		Table:         job.Table,
		Location:      job.Location,
		Trigger:       trigger,
		StartedAt:     result.StartedAt,
		FinishedAt:    result.StartedAt.Add(result.Duration),
		Status:        result.Status,
		RowsExtracted: result.RowsExtracted,
		RowsWritten:   result.RowsWritten,
		FailedStage:   string(result.FailedStage),
		ErrorKind:     string(result.ErrorKind),
		Error:         result.Error,
		Queries:       result.Queries,
	}
}

// RunStore implements persistence for run logs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) CreateRunLog(log *RunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Trigger == "" {
		log.Trigger = TriggerManual
	}
	queries, err := json.Marshal(log.Queries)
	if err != nil {
		return fmt.Errorf("encode queries: %w", err)
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO run_logs (id, job, target_table, location, trigger_type, started_at, finished_at,
		 status, rows_extracted, rows_written, failed_stage, error_kind, error, queries_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Job, log.Table, log.Location, log.Trigger, log.StartedAt, log.FinishedAt,
		log.Status, log.RowsExtracted, log.RowsWritten, log.FailedStage, log.ErrorKind, log.Error,
		string(queries),
	)
	return err
}

const runLogColumns = `id, job, target_table, location, trigger_type, started_at, finished_at,
	status, rows_extracted, rows_written, failed_stage, error_kind, error, queries_json`

func (s *RunStore) GetRunLog(id string) (*RunLog, error) {
	row := s.db.conn.QueryRow(`SELECT `+runLogColumns+` FROM run_logs WHERE id = ?`, id)
	l, err := scanRunLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return l, err
}

// ListRunLogs returns the newest runs first. An empty job lists all jobs.
func (s *RunStore) ListRunLogs(job string, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT `+runLogColumns+` FROM run_logs
		 WHERE ? = '' OR job = ? ORDER BY started_at DESC LIMIT ?`,
		job, job, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		l, err := scanRunLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRunLog(sc scanner) (*RunLog, error) {
	var l RunLog
	var queries string
	if err := sc.Scan(
		&l.ID, &l.Job, &l.Table, &l.Location, &l.Trigger, &l.StartedAt, &l.FinishedAt,
		&l.Status, &l.RowsExtracted, &l.RowsWritten, &l.FailedStage, &l.ErrorKind, &l.Error,
		&queries,
	); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(queries), &l.Queries)
	return &l, nil
}
