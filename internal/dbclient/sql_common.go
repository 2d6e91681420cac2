package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"bankcap/internal/etl"
)

// insertBatchSize bounds the rows per INSERT statement. It keeps every
// statement well under the placeholder limits of all three drivers.
const insertBatchSize = 100

// dialect holds what differs between the SQL drivers.
type dialect struct {
	quote       func(name string) string
	placeholder func(i int) string // 1-based
	textType    string
	numberType  string
}

func doubleQuote(name string) string {
	return etl.ANSIQuoter{}.QuoteIdent(name)
}

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	driverName string
	dialect    dialect
	db         *sql.DB

	mu sync.Mutex
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driverName, dsn string, d dialect) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	// A run holds one logical connection; keep the pool small.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, dialect: d, db: db}, nil
}

func (c *sqlConnector) Driver() string { return c.driverName }

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) QuoteIdent(name string) string {
	return c.dialect.quote(name)
}

// ── Replace ────────────────────────────────────────────────

// ReplaceTable drops and recreates table inside one transaction, then
// inserts records in order. Any error rolls the whole replacement back.
// MySQL commits DDL implicitly, so there a failed insert can leave an
// empty table behind.
func (c *sqlConnector) ReplaceTable(ctx context.Context, table string, schema *etl.Schema, records []etl.EnrichedRecord) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	qt := c.dialect.quote(table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qt); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, c.createStatement(qt, schema)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	n := 0
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))
		stmt, args := c.insertStatement(qt, schema, records[start:end])
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("insert rows %d-%d: %w", start+1, end, err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += int(affected)
		} else {
			n += end - start
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (c *sqlConnector) createStatement(qt string, schema *etl.Schema) string {
	defs := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		typ := c.dialect.numberType
		if col.Type == etl.TypeText {
			typ = c.dialect.textType
		}
		defs[i] = c.dialect.quote(col.Name) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", qt, strings.Join(defs, ", "))
}

func (c *sqlConnector) insertStatement(qt string, schema *etl.Schema, batch []etl.EnrichedRecord) (string, []any) {
	cols := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		cols[i] = c.dialect.quote(col.Name)
	}

	width := len(schema.Columns)
	groups := make([]string, len(batch))
	args := make([]any, 0, len(batch)*width)
	p := make([]string, width)
	for r, rec := range batch {
		for i := range p {
			p[i] = c.dialect.placeholder(r*width + i + 1)
		}
		groups[r] = "(" + strings.Join(p, ", ") + ")"
		args = append(args, rec.Values()...)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		qt, strings.Join(cols, ", "), strings.Join(groups, ", ")), args
}

// ── Read ───────────────────────────────────────────────────

// Query runs a read statement and returns every row.
func (c *sqlConnector) Query(ctx context.Context, statement string) (*etl.QueryResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	result := &etl.QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, len(cols))
		for j, v := range values {
			row[j] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return result, nil
}

// formatValue converts a database value to a displayable one.
func formatValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}

// Describe returns the columns of table.
func (c *sqlConnector) Describe(ctx context.Context, table string) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	switch c.driverName {
	case DriverSQLite:
		rows, err = c.db.QueryContext(ctx,
			`SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	default:
		rows, err = c.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
			 WHERE TABLE_NAME = %s ORDER BY ORDINAL_POSITION`, c.dialect.placeholder(1)), table)
	}
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	info := &TableInfo{Name: table}
	for rows.Next() {
		var ci ColumnInfo
		if err := rows.Scan(&ci.Name, &ci.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		info.Columns = append(info.Columns, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return info, nil
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
