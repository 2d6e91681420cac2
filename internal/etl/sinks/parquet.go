package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"bankcap/internal/etl"
)

// ── Parquet File Sink ───────────────────────────────────────
// Writes the record set as a Parquet file with the schema's columns.
// The file is assembled in memory, then swapped in like the CSV sink.

// ParquetFile implements etl.Destination for a local Parquet file.
type ParquetFile struct {
	Path string
}

func (s *ParquetFile) Name() string { return "parquet:" + s.Path }

func (s *ParquetFile) Write(ctx context.Context, schema *etl.Schema, records []etl.EnrichedRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := encodeParquet(schema, records)
	if err != nil {
		return 0, etl.SinkError(s.Name(), err)
	}
	err = replaceFile(s.Path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return 0, etl.SinkError(s.Name(), err)
	}
	return len(records), nil
}

func encodeParquet(schema *etl.Schema, records []etl.EnrichedRecord) ([]byte, error) {
	schemaJSON, err := parquetSchema(schema)
	if err != nil {
		return nil, err
	}

	buf := newMemoryFile()
	pw, err := writer.NewJSONWriter(schemaJSON, buf, 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, rec := range records {
		row := make(map[string]any, len(schema.Columns))
		for j, v := range rec.Values() {
			row[parquetField(j)] = v
		}
		line, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		if err := pw.Write(string(line)); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finish parquet: %w", err)
	}
	return buf.Bytes(), nil
}

type parquetNode struct {
	Tag    string        `json:"Tag"`
	Fields []parquetNode `json:"Fields,omitempty"`
}

// parquetSchema renders the JSON schema definition parquet-go expects.
// In-memory field names are positional (C0, C1, ...) so column names
// with any casing survive unchanged as the external names.
func parquetSchema(schema *etl.Schema) (string, error) {
	root := parquetNode{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for i, col := range schema.Columns {
		typ := "type=DOUBLE"
		if col.Type == etl.TypeText {
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		root.Fields = append(root.Fields, parquetNode{
			Tag: fmt.Sprintf("name=%s, inname=%s, %s, repetitiontype=REQUIRED", col.Name, parquetField(i), typ),
		})
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parquetField(i int) string { return fmt.Sprintf("C%d", i) }

// memoryFile implements source.ParquetFile over a byte buffer.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(string) (source.ParquetFile, error)   { return m, nil }

// Seek reports the current size; the writer only appends.
func (m *memoryFile) Seek(int64, int) (int64, error) { return int64(m.buffer.Len()), nil }

func (m *memoryFile) Read(b []byte) (int, error)  { return m.buffer.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error) { return m.buffer.Write(b) }
func (m *memoryFile) Close() error                { return nil }
func (m *memoryFile) Bytes() []byte               { return m.buffer.Bytes() }
