package etl

import (
	"github.com/shopspring/decimal"
)

// ── Transformer ────────────────────────────────────────────
// Derives one metric per target currency from the base USD metric.
//
// Rounding is half-to-even at two decimal places, computed on the decimal
// forms of the inputs: 0.125 → 0.12, 0.135 → 0.14, 1.005 → 1.00. Binary
// float artefacts of the product (418.50000000000006) never reach the
// rounding step.

// RoundPlaces is the number of decimal places kept for derived metrics.
const RoundPlaces = 2

// Convert returns round_half_even(usd * rate, RoundPlaces).
func Convert(usd, rate float64) float64 {
	v, _ := decimal.NewFromFloat(usd).
		Mul(decimal.NewFromFloat(rate)).
		RoundBank(RoundPlaces).
		Float64()
	return v
}

// CurrencyTransform enriches records for a fixed schema. Rates are resolved
// once, so a missing currency fails before any record is produced.
type CurrencyTransform struct {
	schema *Schema
	rates  []float64
}

// NewCurrencyTransform resolves every schema currency against rates.
func NewCurrencyTransform(rates RateTable, schema *Schema) (*CurrencyTransform, error) {
	t := &CurrencyTransform{schema: schema, rates: make([]float64, len(schema.Currencies))}
	for i, code := range schema.Currencies {
		r, ok := rates.Rate(code)
		if !ok {
			return nil, newError(CategoryTransform, KindUnknownCurrency, nil, "no rate for %s", code)
		}
		t.rates[i] = r
	}
	return t, nil
}

// Apply enriches a single record.
func (t *CurrencyTransform) Apply(r RawRecord) EnrichedRecord {
	out := EnrichedRecord{
		Name:      r.Name,
		MetricUSD: r.MetricUSD,
		Derived:   make([]float64, len(t.rates)),
	}
	for i, rate := range t.rates {
		out.Derived[i] = Convert(r.MetricUSD, rate)
	}
	return out
}

// Transform enriches records in order. It never reorders, drops or
// duplicates records and does not mutate its inputs.
func Transform(records []RawRecord, rates RateTable, schema *Schema) ([]EnrichedRecord, error) {
	t, err := NewCurrencyTransform(rates, schema)
	if err != nil {
		return nil, err
	}
	out := make([]EnrichedRecord, len(records))
	for i, r := range records {
		out[i] = t.Apply(r)
	}
	return out, nil
}
