package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ── Rate Table ─────────────────────────────────────────────
// A two-column CSV (Currency,Rate) mapping currency codes to a multiplier
// relative to USD. Loaded once per run, read-only afterwards.

// RateTable maps upper-cased currency codes to positive multipliers.
type RateTable map[string]float64

// Rate returns the multiplier for code.
func (t RateTable) Rate(code string) (float64, bool) {
	r, ok := t[normalizeCode(code)]
	return r, ok
}

// Codes returns the currency codes in sorted order.
func (t RateTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// LoadRatesFile opens path and loads it with LoadRates.
func LoadRatesFile(path string) (RateTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rate file: %w", err)
	}
	defer f.Close()
	return LoadRates(f)
}

// LoadRates parses a Currency,Rate CSV. The header row is optional and
// matched case-insensitively. Duplicate codes keep the last value.
func LoadRates(r io.Reader) (RateTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	table := RateTable{}
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newError(CategoryRateTable, KindMalformedRow, err, "line %d", line)
		}
		if line == 1 && isRateHeader(row) {
			continue
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		code, rate, err := parseRateRow(row)
		if err != nil {
			return nil, newError(CategoryRateTable, KindMalformedRow, err, "line %d", line)
		}
		table[code] = rate
	}
	return table, nil
}

func isRateHeader(row []string) bool {
	if len(row) != 2 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(row[0]), "currency") &&
		strings.EqualFold(strings.TrimSpace(row[1]), "rate")
}

func parseRateRow(row []string) (string, float64, error) {
	if len(row) != 2 {
		return "", 0, fmt.Errorf("want 2 fields, got %d", len(row))
	}
	code := normalizeCode(row[0])
	if code == "" {
		return "", 0, fmt.Errorf("empty currency code")
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("rate for %s: %w", code, err)
	}
	if rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
		return "", 0, fmt.Errorf("rate for %s must be positive, got %v", code, rate)
	}
	return code, rate, nil
}
