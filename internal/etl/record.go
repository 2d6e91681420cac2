package etl

import (
	"fmt"
	"strings"
)

// ── Record ─────────────────────────────────────────────────
// Records flow through the pipeline in source order:
// RawRecord (extract) → EnrichedRecord (transform) → sinks (load).
// Every sink consumes the same fixed Schema.

// Column types understood by the sinks.
const (
	TypeText   = "text"
	TypeNumber = "number"
)

// Column describes a single output column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number"
}

// ColumnNames configures how output columns are named.
// Derived is a printf template with a single %s for the currency code.
type ColumnNames struct {
	Name    string `json:"name" yaml:"name"`
	Base    string `json:"base" yaml:"base"`
	Derived string `json:"derived" yaml:"derived"`
}

// DefaultColumnNames yields [name, metric_usd, metric_EUR, ...].
var DefaultColumnNames = ColumnNames{
	Name:    "name",
	Base:    "metric_usd",
	Derived: "metric_%s",
}

// Schema is the ordered output schema shared by the transformer and all sinks.
type Schema struct {
	Columns    []Column `json:"columns"`
	Currencies []string `json:"currencies"`
}

// NewSchema builds the output schema for the given target currencies.
// Currency order is kept; codes are upper-cased and must be unique.
func NewSchema(names ColumnNames, currencies []string) (*Schema, error) {
	if names.Name == "" {
		names.Name = DefaultColumnNames.Name
	}
	if names.Base == "" {
		names.Base = DefaultColumnNames.Base
	}
	if names.Derived == "" {
		names.Derived = DefaultColumnNames.Derived
	}
	if strings.Count(names.Derived, "%s") != 1 {
		return nil, fmt.Errorf("derived column template %q must contain exactly one %%s", names.Derived)
	}
	if len(currencies) == 0 {
		return nil, fmt.Errorf("at least one target currency is required")
	}

	s := &Schema{
		Columns: []Column{
			{Name: names.Name, Type: TypeText},
			{Name: names.Base, Type: TypeNumber},
		},
	}
	seen := map[string]bool{strings.ToLower(names.Name): true, strings.ToLower(names.Base): true}
	for _, c := range currencies {
		code := normalizeCode(c)
		if code == "" {
			return nil, fmt.Errorf("empty currency code")
		}
		col := fmt.Sprintf(names.Derived, code)
		if seen[strings.ToLower(col)] {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		seen[strings.ToLower(col)] = true
		s.Currencies = append(s.Currencies, code)
		s.Columns = append(s.Columns, Column{Name: col, Type: TypeNumber})
	}
	return s, nil
}

// ColumnNames returns an ordered list of column names.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// NameColumn is the entity name column.
func (s *Schema) NameColumn() string { return s.Columns[0].Name }

// BaseColumn is the base metric column.
func (s *Schema) BaseColumn() string { return s.Columns[1].Name }

// CurrencyColumn returns the derived column for a currency code.
func (s *Schema) CurrencyColumn(code string) (string, bool) {
	code = normalizeCode(code)
	for i, c := range s.Currencies {
		if c == code {
			return s.Columns[i+2].Name, true
		}
	}
	return "", false
}

// RawRecord is one extracted row: an entity name and its base metric in USD.
type RawRecord struct {
	Name      string  `json:"name"`
	MetricUSD float64 `json:"metricUsd"`
}

// EnrichedRecord is a RawRecord plus one derived metric per schema currency.
// Derived[i] belongs to Schema.Currencies[i].
type EnrichedRecord struct {
	Name      string    `json:"name"`
	MetricUSD float64   `json:"metricUsd"`
	Derived   []float64 `json:"derived"`
}

// Values returns the record in schema column order.
func (r EnrichedRecord) Values() []any {
	vals := make([]any, 0, len(r.Derived)+2)
	vals = append(vals, r.Name, r.MetricUSD)
	for _, d := range r.Derived {
		vals = append(vals, d)
	}
	return vals
}

// Map returns the record keyed by schema column name.
func (r EnrichedRecord) Map(schema *Schema) map[string]any {
	m := make(map[string]any, len(schema.Columns))
	for i, v := range r.Values() {
		if i < len(schema.Columns) {
			m[schema.Columns[i].Name] = v
		}
	}
	return m
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
