package etl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankcap/internal/dbclient"
	"bankcap/internal/etl"
	"bankcap/internal/etl/sinks"
	"bankcap/internal/progress"
)

const samplePage = `<html><body><table><tbody>
<tr><th>Name</th><th>Market cap</th></tr>
<tr><td>Acme Bank</td><td>450.0B</td></tr>
<tr><td>Beta Bank</td><td>300.0B</td></tr>
</tbody></table></body></html>`

type pipelineFixture struct {
	dir      string
	csvPath  string
	dbPath   string
	job      *etl.Job
	recorder *progress.Recorder
	engine   *etl.Engine
}

func newPipelineFixture(t *testing.T, rates string) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()
	ratesPath := filepath.Join(dir, "exchange_rate.csv")
	require.NoError(t, os.WriteFile(ratesPath, []byte(rates), 0644))

	f := &pipelineFixture{
		dir:      dir,
		csvPath:  filepath.Join(dir, "banks.csv"),
		dbPath:   filepath.Join(dir, "banks.db"),
		recorder: &progress.Recorder{},
	}
	f.job = &etl.Job{
		Name:         "largest_banks",
		Location:     "fixture://banks",
		RatesPath:    ratesPath,
		Mapping:      twoColumnMapping,
		Schema:       sampleSchema(t),
		Table:        "Largest_banks",
		MeanCurrency: "GBP",
	}
	f.engine = &etl.Engine{
		Fetch: func(ctx context.Context, location string) ([]byte, error) {
			return []byte(samplePage), nil
		},
		OpenStore: func(ctx context.Context) (etl.TableStore, error) {
			return dbclient.Open(ctx, dbclient.Params{Driver: dbclient.DriverSQLite, DSN: f.dbPath})
		},
		Files:    []etl.Destination{&sinks.CSVFile{Path: f.csvPath}},
		Progress: f.recorder,
	}
	return f
}

func queryByName(t *testing.T, results []*etl.QueryResult, name string) *etl.QueryResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("query %s not in results", name)
	return nil
}

func TestEngineRunSampleScenario(t *testing.T) {
	f := newPipelineFixture(t, "Currency,Rate\nEUR,0.93\nGBP,0.8\nINR,82.5\n")

	result, err := f.engine.Run(context.Background(), f.job)
	require.NoError(t, err)

	assert.Equal(t, etl.StatusSuccess, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.RowsExtracted)
	assert.Equal(t, 2, result.RowsWritten)
	assert.Empty(t, result.FailedStage)

	assert.Equal(t, []string{
		etl.MsgStart,
		etl.MsgExtracted,
		etl.MsgTransformed,
		etl.MsgFilesSaved,
		etl.MsgConnected,
		etl.MsgTableLoaded,
		etl.MsgComplete,
		etl.MsgClosed,
	}, f.recorder.Messages())

	// Flat file.
	records, err := sinks.ReadCSVFile(f.csvPath, f.job.Schema)
	require.NoError(t, err)
	assert.Equal(t, []etl.EnrichedRecord{
		{Name: "Acme Bank", MetricUSD: 450, Derived: []float64{418.5, 360, 37125}},
		{Name: "Beta Bank", MetricUSD: 300, Derived: []float64{279, 240, 24750}},
	}, records)

	// Queries, in execution order.
	require.Len(t, result.Queries, 3)
	assert.Equal(t, etl.QueryAllRows, result.Queries[0].Name)
	assert.Equal(t, "mean_gbp", result.Queries[1].Name)
	assert.Equal(t, etl.QueryTopNames, result.Queries[2].Name)

	all := queryByName(t, result.Queries, etl.QueryAllRows)
	assert.Equal(t, f.job.Schema.ColumnNames(), all.Columns)
	require.Len(t, all.Rows, 2)
	assert.Equal(t, []string{"Acme Bank", "450", "418.5", "360", "37125"}, all.Strings()[0])

	mean := queryByName(t, result.Queries, "mean_gbp")
	require.Len(t, mean.Rows, 1)
	assert.Equal(t, "300", etl.FormatValue(mean.Rows[0][0]))

	top := queryByName(t, result.Queries, etl.QueryTopNames)
	assert.Equal(t, [][]string{{"Acme Bank"}, {"Beta Bank"}}, top.Strings())
}

func TestEngineRunIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, "EUR,0.93\nGBP,0.8\nINR,82.5\n")
	ctx := context.Background()

	first, err := f.engine.Run(ctx, f.job)
	require.NoError(t, err)
	firstCSV, err := os.ReadFile(f.csvPath)
	require.NoError(t, err)

	second, err := f.engine.Run(ctx, f.job)
	require.NoError(t, err)
	secondCSV, err := os.ReadFile(f.csvPath)
	require.NoError(t, err)

	assert.Equal(t, firstCSV, secondCSV)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t,
		queryByName(t, first.Queries, etl.QueryAllRows).Rows,
		queryByName(t, second.Queries, etl.QueryAllRows).Rows)
	assert.Len(t, queryByName(t, second.Queries, etl.QueryAllRows).Rows, 2)
}

func TestEngineRunUnknownCurrencyWritesNothing(t *testing.T) {
	f := newPipelineFixture(t, "GBP,0.8\nINR,82.5\n")

	result, err := f.engine.Run(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, etl.ErrUnknownCurrency))

	assert.Equal(t, etl.StatusError, result.Status)
	assert.Equal(t, etl.StageTransform, result.FailedStage)
	assert.Equal(t, etl.KindUnknownCurrency, result.ErrorKind)
	assert.Zero(t, result.RowsWritten)

	assert.NoFileExists(t, f.csvPath)
	assert.NoFileExists(t, f.dbPath)

	events := f.recorder.Events()
	require.Len(t, events, 3)
	assert.Equal(t, etl.MsgStart, events[0].Message)
	assert.Equal(t, etl.MsgExtracted, events[1].Message)
	assert.Equal(t, etl.StageTransform, events[2].Stage)
	assert.Contains(t, events[2].Message, "[UnknownCurrency]")
}

func TestEngineRunExtractionFailure(t *testing.T) {
	f := newPipelineFixture(t, "EUR,0.93\nGBP,0.8\nINR,82.5\n")
	f.engine.Fetch = func(ctx context.Context, location string) ([]byte, error) {
		return []byte(`<html><body>no table</body></html>`), nil
	}

	result, err := f.engine.Run(context.Background(), f.job)
	require.Error(t, err)
	assert.Equal(t, etl.StageExtract, result.FailedStage)
	assert.Equal(t, etl.KindNoTableFound, result.ErrorKind)
	assert.Equal(t, []string{etl.MsgStart}, f.recorder.Messages()[:1])
	assert.NoFileExists(t, f.csvPath)
}

func TestEngineRunFetchFailure(t *testing.T) {
	f := newPipelineFixture(t, "EUR,0.93\nGBP,0.8\nINR,82.5\n")
	f.engine.Fetch = func(ctx context.Context, location string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}

	result, err := f.engine.Run(context.Background(), f.job)
	require.Error(t, err)
	assert.Equal(t, etl.StageExtract, result.FailedStage)
	assert.Contains(t, result.Error, "connection refused")
}

// failingStore accepts nothing.
type failingStore struct {
	etl.ANSIQuoter
	closed bool
}

func (s *failingStore) ReplaceTable(context.Context, string, *etl.Schema, []etl.EnrichedRecord) (int, error) {
	return 0, errors.New("disk full")
}

func (s *failingStore) Query(context.Context, string) (*etl.QueryResult, error) {
	return nil, errors.New("no table")
}

func (s *failingStore) Close() error {
	s.closed = true
	return nil
}

func TestEngineRunTableFailureClosesStore(t *testing.T) {
	f := newPipelineFixture(t, "EUR,0.93\nGBP,0.8\nINR,82.5\n")
	store := &failingStore{}
	f.engine.OpenStore = func(ctx context.Context) (etl.TableStore, error) { return store, nil }

	result, err := f.engine.Run(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, etl.ErrWriteFailure))
	assert.Equal(t, etl.StageTable, result.FailedStage)
	assert.Contains(t, err.Error(), "table:Largest_banks")
	assert.True(t, store.closed)

	// The flat file was already replaced; there is no cross-sink rollback.
	assert.FileExists(t, f.csvPath)
	assert.NotContains(t, f.recorder.Messages(), etl.MsgTableLoaded)
}

func TestEngineRunQueriesOnly(t *testing.T) {
	f := newPipelineFixture(t, "EUR,0.93\nGBP,0.8\nINR,82.5\n")
	ctx := context.Background()

	_, err := f.engine.Run(ctx, f.job)
	require.NoError(t, err)

	results, err := f.engine.RunQueriesOnly(ctx, f.job)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "300", etl.FormatValue(results[1].Rows[0][0]))
}

func TestEngineRunQueriesOnlyMissingTable(t *testing.T) {
	f := newPipelineFixture(t, "EUR,0.93\nGBP,0.8\nINR,82.5\n")

	_, err := f.engine.RunQueriesOnly(context.Background(), f.job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, etl.ErrExecutionFailure))
	assert.Contains(t, err.Error(), etl.QueryAllRows)
}
