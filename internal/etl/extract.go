package etl

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// ── Extractor ──────────────────────────────────────────────
// Pulls (name, metric) rows out of the first table in a markup document.
// Cell selection is declarative: every cell is addressed by a CSS selector
// relative to its row, so fixtures can exercise the mapping directly.

// ColumnMapping names the selectors used to locate the table and its cells.
type ColumnMapping struct {
	Table      string `json:"table" yaml:"table"`             // first match is the table
	Row        string `json:"row" yaml:"row"`                 // rows inside the table
	NameCell   string `json:"nameCell" yaml:"name_cell"`      // cell holding the name, relative to the row
	NameText   string `json:"nameText" yaml:"name_text"`      // nested element carrying the name text
	MetricCell string `json:"metricCell" yaml:"metric_cell"` // cell holding the metric, relative to the row
}

// DefaultMapping matches the ranked-banks table layout: rank, then a name
// cell wrapping a flag icon and an anchor, then the market cap.
var DefaultMapping = ColumnMapping{
	Table:      "tbody",
	Row:        "tr",
	NameCell:   "td:nth-of-type(2)",
	NameText:   "a",
	MetricCell: "td:nth-of-type(3)",
}

// WithDefaults fills empty selectors from DefaultMapping. NameText is kept
// as given: empty means the whole name cell text is the name.
func (m ColumnMapping) WithDefaults() ColumnMapping {
	if m.Table == "" {
		m.Table = DefaultMapping.Table
	}
	if m.Row == "" {
		m.Row = DefaultMapping.Row
	}
	if m.NameCell == "" {
		m.NameCell = DefaultMapping.NameCell
	}
	if m.MetricCell == "" {
		m.MetricCell = DefaultMapping.MetricCell
	}
	return m
}

// Extract parses document and returns its data rows in document order.
func Extract(document []byte, mapping ColumnMapping) ([]RawRecord, error) {
	mapping = mapping.WithDefaults()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return nil, newError(CategoryExtraction, KindNoTableFound, err, "parse document")
	}

	table := doc.Find(mapping.Table).First()
	if table.Length() == 0 {
		return nil, newError(CategoryExtraction, KindNoTableFound, nil, "no element matches %q", mapping.Table)
	}

	var (
		records []RawRecord
		rowErr  error
		dataRow int
	)
	table.Find(mapping.Row).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		// Header and separator rows carry no data cells.
		if row.ChildrenFiltered("td").Length() == 0 {
			return true
		}
		dataRow++

		rec, err := extractRow(row, mapping, dataRow)
		if err != nil {
			rowErr = err
			return false
		}
		records = append(records, rec)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	if len(records) == 0 {
		return nil, newError(CategoryExtraction, KindEmptyTable, nil, "table %q has no data rows", mapping.Table)
	}
	return records, nil
}

func extractRow(row *goquery.Selection, m ColumnMapping, n int) (RawRecord, error) {
	nameCell := row.Find(m.NameCell).First()
	if nameCell.Length() == 0 {
		return RawRecord{}, newError(CategoryExtraction, KindMissingCell, nil, "row %d: no name cell %q", n, m.NameCell)
	}
	name := cellName(nameCell, m.NameText)
	if name == "" {
		return RawRecord{}, newError(CategoryExtraction, KindMissingCell, nil, "row %d: empty name", n)
	}

	metricCell := row.Find(m.MetricCell).First()
	if metricCell.Length() == 0 {
		return RawRecord{}, newError(CategoryExtraction, KindMissingCell, nil, "row %d: no metric cell %q", n, m.MetricCell)
	}
	raw := leadingText(metricCell)
	metric, err := ParseMetric(raw)
	if err != nil {
		return RawRecord{}, newError(CategoryExtraction, KindMalformedMetric, err, "row %d (%s): %q", n, name, raw)
	}

	return RawRecord{Name: name, MetricUSD: metric}, nil
}

// cellName returns the text of the first non-empty nested element matching
// sel, falling back to the cell's own text when nothing nested matches.
func cellName(cell *goquery.Selection, sel string) string {
	if sel != "" {
		var name string
		cell.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name = collapseSpace(s.Text())
			return name == ""
		})
		if name != "" {
			return name
		}
	}
	return collapseSpace(cell.Text())
}

// leadingText returns the first non-blank text node directly under the
// cell, so footnote markers and tooltips after the value are ignored.
func leadingText(cell *goquery.Selection) string {
	var text string
	cell.Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) != "#text" {
			return true
		}
		text = strings.TrimSpace(s.Text())
		return text == ""
	})
	if text == "" {
		text = strings.TrimSpace(cell.Text())
	}
	return text
}

// ParseMetric parses a metric cell such as "450.0B" or "1,204.5\n":
// thousands separators are dropped and any trailing non-numeric suffix
// is stripped before parsing. The result must be finite and >= 0.
func ParseMetric(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	if s == "" {
		return 0, fmt.Errorf("no numeric value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("value %v out of range", v)
	}
	return v, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
