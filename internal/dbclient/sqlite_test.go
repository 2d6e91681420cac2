package dbclient_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcap/internal/dbclient"
	"bankcap/internal/etl"
)

func openSQLite(t *testing.T) dbclient.Connector {
	t.Helper()
	conn, err := dbclient.Open(context.Background(), dbclient.Params{
		Driver: dbclient.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "banks.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func bankSchema(t *testing.T) *etl.Schema {
	t.Helper()
	schema, err := etl.NewSchema(etl.ColumnNames{
		Name:    "Name",
		Base:    "MC_USD_Billion",
		Derived: "MC_%s_Billion",
	}, []string{"EUR", "GBP", "INR"})
	require.NoError(t, err)
	return schema
}

func bankRecords(n int) []etl.EnrichedRecord {
	out := make([]etl.EnrichedRecord, n)
	for i := range out {
		usd := float64(100 + i)
		out[i] = etl.EnrichedRecord{
			Name:      "Bank " + string(rune('A'+i%26)) + strings.Repeat("x", i/26),
			MetricUSD: usd,
			Derived:   []float64{etl.Convert(usd, 0.93), etl.Convert(usd, 0.8), etl.Convert(usd, 82.5)},
		}
	}
	return out
}

func TestSQLiteReplaceAndQuery(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()
	schema := bankSchema(t)

	n, err := conn.ReplaceTable(ctx, "Largest_banks", schema, bankRecords(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := conn.Query(ctx, `SELECT * FROM "Largest_banks"`)
	require.NoError(t, err)
	assert.Equal(t, schema.ColumnNames(), res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []any{"Bank A", 100.0, 93.0, 80.0, 8250.0}, res.Rows[0])
	assert.Equal(t, "Bank C", res.Rows[2][0])
}

func TestSQLiteReplaceDropsPreviousRows(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()
	schema := bankSchema(t)

	_, err := conn.ReplaceTable(ctx, "Largest_banks", schema, bankRecords(5))
	require.NoError(t, err)
	_, err = conn.ReplaceTable(ctx, "Largest_banks", schema, bankRecords(2))
	require.NoError(t, err)

	res, err := conn.Query(ctx, `SELECT COUNT(*) FROM "Largest_banks"`)
	require.NoError(t, err)
	assert.Equal(t, "2", etl.FormatValue(res.Rows[0][0]))
}

func TestSQLiteReplaceBatchesLargeSets(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()

	n, err := conn.ReplaceTable(ctx, "big", bankSchema(t), bankRecords(250))
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	res, err := conn.Query(ctx, `SELECT "Name" FROM "big" LIMIT 5`)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Bank A"}, {"Bank B"}, {"Bank C"}, {"Bank D"}, {"Bank E"}}, res.Strings())
}

func TestSQLiteReplaceEmptySet(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()

	n, err := conn.ReplaceTable(ctx, "Largest_banks", bankSchema(t), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := conn.Query(ctx, `SELECT * FROM "Largest_banks"`)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestSQLiteDescribe(t *testing.T) {
	conn := openSQLite(t)
	ctx := context.Background()

	_, err := conn.ReplaceTable(ctx, "Largest_banks", bankSchema(t), bankRecords(1))
	require.NoError(t, err)

	info, err := conn.Describe(ctx, "Largest_banks")
	require.NoError(t, err)
	assert.Equal(t, []dbclient.ColumnInfo{
		{Name: "Name", Type: "TEXT"},
		{Name: "MC_USD_Billion", Type: "REAL"},
		{Name: "MC_EUR_Billion", Type: "REAL"},
		{Name: "MC_GBP_Billion", Type: "REAL"},
		{Name: "MC_INR_Billion", Type: "REAL"},
	}, info.Columns)

	_, err = conn.Describe(ctx, "missing")
	assert.Error(t, err)
}

func TestSQLiteQueryError(t *testing.T) {
	conn := openSQLite(t)
	_, err := conn.Query(context.Background(), `SELECT * FROM "nope"`)
	assert.Error(t, err)
}

func TestSQLiteQuoteIdent(t *testing.T) {
	conn := openSQLite(t)
	assert.Equal(t, `"Largest ""banks"""`, conn.QuoteIdent(`Largest "banks"`))
	assert.Equal(t, dbclient.DriverSQLite, conn.Driver())
	assert.NoError(t, conn.TestConnection(context.Background()))
}

func TestOpenRejects(t *testing.T) {
	ctx := context.Background()

	_, err := dbclient.Open(ctx, dbclient.Params{Driver: dbclient.DriverSQLite})
	assert.ErrorContains(t, err, "dsn is required")

	_, err = dbclient.Open(ctx, dbclient.Params{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestConnStrings(t *testing.T) {
	assert.Equal(t,
		"banks.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbclient.SQLiteDSN("banks.db"))
	assert.Equal(t, "file:banks.db?mode=ro", dbclient.SQLiteDSN("file:banks.db?mode=ro"))

	mysqlDSN := dbclient.MySQLDSN("db.local", 0, "etl", "s3cret", "banks")
	assert.True(t, strings.HasPrefix(mysqlDSN, "etl:s3cret@tcp(db.local:3306)/banks?"), mysqlDSN)
	assert.Contains(t, mysqlDSN, "charset=utf8mb4")

	assert.Equal(t,
		"host=db.local port=5432 user=etl password='p w' dbname=banks sslmode=disable",
		dbclient.PostgresDSN("db.local", 0, "etl", "p w", "banks", ""))
	assert.Equal(t,
		"host=db.local port=6543 sslmode=require",
		dbclient.PostgresDSN("db.local", 6543, "", "", "", "require"))

	p := dbclient.Params{Driver: dbclient.DriverPostgres, Host: "db.local", User: "etl", Database: "banks"}
	assert.Equal(t, "host=db.local port=5432 user=etl dbname=banks sslmode=disable", p.ConnString())
	p.DSN = "postgres://override"
	assert.Equal(t, "postgres://override", p.ConnString())

	assert.Empty(t, dbclient.Params{Driver: dbclient.DriverMySQL}.ConnString())
}
