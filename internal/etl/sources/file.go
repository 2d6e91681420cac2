package sources

import (
	"context"
	"fmt"
	"os"
	"strings"

	"bankcap/internal/etl"
)

// ── File Source ─────────────────────────────────────────────
// Reads a saved copy of the document from disk.

type fileSource struct{}

func init() { etl.RegisterSource(&fileSource{}) }

func (s *fileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "file",
		Label:   "Local file",
		Schemes: []string{"", "file"},
	}
}

func (s *fileSource) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := location
	if i := strings.Index(path, "://"); i > 0 && strings.EqualFold(path[:i], "file") {
		path = path[i+3:]
	}
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}
