package etl_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcap/internal/etl"
)

const banksPage = `<html><body>
<p>Intro text</p>
<table class="wikitable">
<tbody>
<tr><th>Rank</th><th>Bank name</th><th>Market cap<br>(US$ billion)</th></tr>
<tr>
  <td>1</td>
  <td><span class="flagicon"><a href="/wiki/United_States"><img src="flag.png"></a></span> <a href="/wiki/Acme">Acme Bank</a></td>
  <td>450.0
</td>
</tr>
<tr>
  <td>2</td>
  <td><span class="flagicon"><a href="/wiki/China"><img src="flag.png"></a></span> <a href="/wiki/Beta">Beta  Bank</a></td>
  <td>1,300.25<sup>[1]</sup>
</td>
</tr>
</tbody>
</table>
<table><tbody><tr><td>ignored</td><td>x</td><td>1</td></tr></tbody></table>
</body></html>`

// twoColumnMapping addresses a plain two-column table: name, then metric.
var twoColumnMapping = etl.ColumnMapping{
	NameCell:   "td:nth-of-type(1)",
	MetricCell: "td:nth-of-type(2)",
}

func TestExtractDefaultMapping(t *testing.T) {
	records, err := etl.Extract([]byte(banksPage), etl.DefaultMapping)
	require.NoError(t, err)

	assert.Equal(t, []etl.RawRecord{
		{Name: "Acme Bank", MetricUSD: 450.0},
		{Name: "Beta Bank", MetricUSD: 1300.25},
	}, records)
}

func TestExtractIsDeterministic(t *testing.T) {
	first, err := etl.Extract([]byte(banksPage), etl.DefaultMapping)
	require.NoError(t, err)
	second, err := etl.Extract([]byte(banksPage), etl.DefaultMapping)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractSkipsHeaderAndSeparatorRows(t *testing.T) {
	doc := `<table><tbody>
<tr><th>Name</th><th>Cap</th></tr>
<tr><td>Acme Bank</td><td>450.0B</td></tr>
<tr></tr>
<tr><td>Beta Bank</td><td>300.0B</td></tr>
</tbody></table>`

	records, err := etl.Extract([]byte(doc), twoColumnMapping)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Acme Bank", records[0].Name)
	assert.Equal(t, 450.0, records[0].MetricUSD)
	assert.Equal(t, "Beta Bank", records[1].Name)
	assert.Equal(t, 300.0, records[1].MetricUSD)
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		mapping etl.ColumnMapping
		want    error
	}{
		{
			name: "no table",
			doc:  `<html><body><p>nothing here</p></body></html>`,
			want: etl.ErrNoTableFound,
		},
		{
			name:    "header only",
			doc:     `<table><tbody><tr><th>Name</th><th>Cap</th></tr></tbody></table>`,
			mapping: twoColumnMapping,
			want:    etl.ErrEmptyTable,
		},
		{
			name:    "malformed metric",
			doc:     `<table><tbody><tr><td>Acme Bank</td><td>n/a</td></tr></tbody></table>`,
			mapping: twoColumnMapping,
			want:    etl.ErrMalformedMetric,
		},
		{
			name:    "negative metric",
			doc:     `<table><tbody><tr><td>Acme Bank</td><td>-4</td></tr></tbody></table>`,
			mapping: twoColumnMapping,
			want:    etl.ErrMalformedMetric,
		},
		{
			name:    "missing metric cell",
			doc:     `<table><tbody><tr><td>Acme Bank</td></tr></tbody></table>`,
			mapping: twoColumnMapping,
			want:    etl.ErrMissingCell,
		},
		{
			name:    "empty name",
			doc:     `<table><tbody><tr><td> </td><td>1.0</td></tr></tbody></table>`,
			mapping: twoColumnMapping,
			want:    etl.ErrMissingCell,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := etl.Extract([]byte(tt.doc), tt.mapping)
			require.Error(t, err)
			assert.Nil(t, records)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestExtractFailsWholeTableOnOneBadRow(t *testing.T) {
	doc := `<table><tbody>
<tr><td>Acme Bank</td><td>450.0</td></tr>
<tr><td>Beta Bank</td><td>??</td></tr>
</tbody></table>`

	records, err := etl.Extract([]byte(doc), twoColumnMapping)
	require.Error(t, err)
	assert.Nil(t, records)
	assert.Equal(t, etl.KindMalformedMetric, etl.KindOf(err))
	assert.Contains(t, err.Error(), "row 2 (Beta Bank)")
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"450.0", 450.0},
		{"450.0B", 450.0},
		{" 1,204.5\n", 1204.5},
		{"0", 0},
		{"12", 12},
	}
	for _, tt := range tests {
		got, err := etl.ParseMetric(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "B", "abc", "-1", "1.2.3"} {
		_, err := etl.ParseMetric(bad)
		assert.Error(t, err, bad)
	}
}

func TestColumnMappingWithDefaults(t *testing.T) {
	m := etl.ColumnMapping{NameCell: "td.name"}.WithDefaults()
	assert.Equal(t, "tbody", m.Table)
	assert.Equal(t, "tr", m.Row)
	assert.Equal(t, "td.name", m.NameCell)
	assert.Equal(t, "", m.NameText)
	assert.Equal(t, etl.DefaultMapping.MetricCell, m.MetricCell)
}
