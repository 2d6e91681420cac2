package sinks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"bankcap/internal/etl"
)

// ── CSV File Sink ───────────────────────────────────────────
// Writes the record set as CSV with a header row in schema order.
// The file is written next to the target and renamed over it, so readers
// never observe a half-written file.

// CSVFile implements etl.Destination for a local CSV file.
type CSVFile struct {
	Path string
}

func (s *CSVFile) Name() string { return "csv:" + s.Path }

func (s *CSVFile) Write(ctx context.Context, schema *etl.Schema, records []etl.EnrichedRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := replaceFile(s.Path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(schema.ColumnNames()); err != nil {
			return err
		}
		row := make([]string, len(schema.Columns))
		for _, rec := range records {
			row[0] = rec.Name
			row[1] = formatFloat(rec.MetricUSD)
			for i, d := range rec.Derived {
				row[i+2] = formatFloat(d)
			}
			if err := cw.Write(row); err != nil {
				return err
			}
			n++
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return 0, etl.SinkError(s.Name(), err)
	}
	return n, nil
}

// ReadCSVFile parses a file written by CSVFile back into records.
// The header must match schema exactly.
func ReadCSVFile(path string, schema *etl.Schema) ([]etl.EnrichedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(schema.Columns)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range schema.ColumnNames() {
		if header[i] != name {
			return nil, fmt.Errorf("column %d: want %q, got %q", i, name, header[i])
		}
	}

	var records []etl.EnrichedRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rec := etl.EnrichedRecord{Name: row[0], Derived: make([]float64, len(row)-2)}
		if rec.MetricUSD, err = strconv.ParseFloat(row[1], 64); err != nil {
			return nil, fmt.Errorf("row %d %s: %w", len(records)+1, header[1], err)
		}
		for i := range rec.Derived {
			if rec.Derived[i], err = strconv.ParseFloat(row[i+2], 64); err != nil {
				return nil, fmt.Errorf("row %d %s: %w", len(records)+1, header[i+2], err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// replaceFile writes path via a temp file in the same directory and an
// atomic rename.
func replaceFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
