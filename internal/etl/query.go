package etl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// ── Query Runner ───────────────────────────────────────────
// A fixed set of read-only queries run against the table sink after a
// load. Statements are built from configuration, never from user input;
// a failure here is a configuration error and is not retried.

// Names of the fixed queries.
const (
	QueryAllRows  = "all_rows"
	QueryTopNames = "top_names"
	// QueryMeanPrefix is followed by the lower-cased currency code, e.g. mean_gbp.
	QueryMeanPrefix = "mean_"
)

// TopNamesLimit is the row limit of the top_names query.
const TopNamesLimit = 5

// Query is a named, fixed statement.
type Query struct {
	Name      string `json:"name"`
	Statement string `json:"statement"`
}

// QueryResult holds every row returned by a query.
type QueryResult struct {
	Name      string   `json:"name"`
	Statement string   `json:"statement"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
}

// FixedQueries returns the verification queries in execution order:
// every row, the mean of the meanCurrency column, and the first five names.
func FixedQueries(quoter Quoter, table string, schema *Schema, meanCurrency string) ([]Query, error) {
	meanCol, ok := schema.CurrencyColumn(meanCurrency)
	if !ok {
		return nil, QueryError(QueryMeanPrefix+meanCurrency, fmt.Errorf("currency %q is not a target currency", meanCurrency))
	}
	t := quoter.QuoteIdent(table)
	return []Query{
		{
			Name:      QueryAllRows,
			Statement: fmt.Sprintf("SELECT * FROM %s", t),
		},
		{
			Name:      QueryMeanPrefix + lowerCode(meanCurrency),
			Statement: fmt.Sprintf("SELECT AVG(%s) FROM %s", quoter.QuoteIdent(meanCol), t),
		},
		{
			Name:      QueryTopNames,
			Statement: fmt.Sprintf("SELECT %s FROM %s LIMIT %d", quoter.QuoteIdent(schema.NameColumn()), t, TopNamesLimit),
		},
	}, nil
}

// RunQuery executes q against store.
func RunQuery(ctx context.Context, store TableStore, q Query) (*QueryResult, error) {
	res, err := store.Query(ctx, q.Statement)
	if err != nil {
		return nil, QueryError(q.Name, err)
	}
	res.Name = q.Name
	res.Statement = q.Statement
	return res, nil
}

// RunQueries executes queries in order and stops at the first failure.
func RunQueries(ctx context.Context, store TableStore, queries []Query) ([]*QueryResult, error) {
	results := make([]*QueryResult, 0, len(queries))
	for _, q := range queries {
		res, err := RunQuery(ctx, store, q)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Strings returns the rows with every value formatted for display.
func (r *QueryResult) Strings() [][]string {
	out := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = FormatValue(v)
		}
	}
	return out
}

// Render prints the statement followed by the result as a text table.
func (r *QueryResult) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "\n %s\n", r.Statement); err != nil {
		return err
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(r.Columns)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(r.Strings())
	tw.Render()
	return nil
}

// FormatValue renders a scanned value; floats use the shortest exact form.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func lowerCode(code string) string {
	return strings.ToLower(normalizeCode(code))
}
