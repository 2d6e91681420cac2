package etl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source produces the raw markup document for a location. Fetching is
// plumbing: no caching, auth or retry lives here.
// Implementations live in etl/sources/, one file per source type.

// SourceSpec describes a source type and the location schemes it serves.
type SourceSpec struct {
	Type    string   `json:"type"`
	Label   string   `json:"label"`
	Schemes []string `json:"schemes"` // "" matches plain paths
}

// Source is the interface every document source implements.
type Source interface {
	Spec() SourceSpec
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ResolveSource returns the source serving location's scheme.
func ResolveSource(location string) (Source, error) {
	scheme := locationScheme(location)
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, s := range registry {
		for _, sch := range s.Spec().Schemes {
			if sch == scheme {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("no source for location %q (scheme %q)", location, scheme)
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// FetchDocument resolves the source for location and fetches it.
func FetchDocument(ctx context.Context, location string) ([]byte, error) {
	src, err := ResolveSource(location)
	if err != nil {
		return nil, err
	}
	return src.Fetch(ctx, location)
}

func locationScheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}
