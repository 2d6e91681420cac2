package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"bankcap/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Fetches the document with a plain GET. No auth, no retry.

// HTTPTimeout bounds a single document fetch.
const HTTPTimeout = 30 * time.Second

// UserAgent is sent with every request; some wiki mirrors reject the Go default.
var UserAgent = "bankcap/1.0"

type httpSource struct {
	client *http.Client
}

func init() {
	etl.RegisterSource(&httpSource{client: &http.Client{Timeout: HTTPTimeout}})
}

func (s *httpSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "http",
		Label:   "HTTP document",
		Schemes: []string{"http", "https"},
	}
}

func (s *httpSource) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
