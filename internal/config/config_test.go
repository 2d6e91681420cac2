package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTempConfig writes content to a config file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bankcap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "largest_banks", cfg.Pipeline.Name)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, "Largest_banks", cfg.Sinks.Database.Table)
	assert.Equal(t, "sqlite", cfg.Sinks.Database.Driver)

	job, err := cfg.Job()
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "MC_USD_Billion", "MC_EUR_Billion", "MC_GBP_Billion", "MC_INR_Billion"}, job.Schema.ColumnNames())
	assert.Equal(t, "GBP", job.MeanCurrency)
	assert.Equal(t, "tbody", job.Mapping.Table)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `pipeline:
  name: nightly
  timeout: 30s
source:
  location: ./page.html
  mapping:
    table: "table.wikitable tbody"
rates:
  path: ./rates.csv
  currencies: [eur, jpy]
columns:
  name: bank
  base: usd
  derived: "%s"
sinks:
  csv:
    path: ./out/banks.csv
  database:
    driver: sqlite
    dsn: ./out/banks.db
    table: banks
queries:
  mean_currency: jpy
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.Timeout)

	job, err := cfg.Job()
	require.NoError(t, err)
	assert.Equal(t, "nightly", job.Name)
	assert.Equal(t, "./page.html", job.Location)
	assert.Equal(t, "table.wikitable tbody", job.Mapping.Table)
	assert.Equal(t, "tr", job.Mapping.Row)
	assert.Equal(t, []string{"bank", "usd", "EUR", "JPY"}, job.Schema.ColumnNames())
	assert.Equal(t, "JPY", job.MeanCurrency)
	assert.Equal(t, "banks", job.Table)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BANKCAP_SOURCE", "file:///tmp/page.html")
	t.Setenv("BANKCAP_DB_DRIVER", "postgres")
	t.Setenv("BANKCAP_DB_DSN", "host=db user=etl dbname=banks sslmode=disable")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/page.html", cfg.Source.Location)
	assert.Equal(t, "postgres", cfg.Sinks.Database.Driver)
	assert.Equal(t, "host=db user=etl dbname=banks sslmode=disable", cfg.Sinks.Database.ConnString())
}

func TestLoadConfigArchiveEnv(t *testing.T) {
	t.Setenv("S3_BUCKET", "bank-archive")
	t.Setenv("AWS_REGION", "eu-west-1")

	path := writeTempConfig(t, "archive:\n  enabled: true\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bank-archive", cfg.Archive.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Archive.Region)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unsupported driver", "sinks:\n  database:\n    driver: oracle\n", "sinks.database.driver 'oracle' is not supported"},
		{"missing table", "sinks:\n  database:\n    table: \"\"\n", "sinks.database.table is required"},
		{"no currencies", "rates:\n  currencies: []\n", "rates.currencies is required"},
		{"mean not a target", "queries:\n  mean_currency: JPY\n", "queries.mean_currency 'JPY' is not in rates.currencies"},
		{"bad template", "columns:\n  derived: MC_Billion\n", "exactly one %s"},
		{"mongo without uri", "sinks:\n  mongo:\n    enabled: true\n", "sinks.mongo.uri is required"},
		{"archive without bucket", "archive:\n  enabled: true\n  region: us-east-1\n", "archive.bucket is required"},
		{"archive bad bucket", "archive:\n  enabled: true\n  region: us-east-1\n  bucket: Bad_Bucket\n", "archive.bucket 'Bad_Bucket' is invalid"},
		{"zero timeout", "pipeline:\n  timeout: 0s\n", "pipeline.timeout must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("S3_BUCKET", "")
			t.Setenv("AWS_REGION", "")
			_, err := LoadConfig(writeTempConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadConfigDiscreteDatabaseParams(t *testing.T) {
	path := writeTempConfig(t, `sinks:
  database:
    driver: mysql
    dsn: ""
    host: db.local
    user: etl
    password: secret
    database: banks
    table: banks
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	dsn := cfg.Sinks.Database.ConnString()
	assert.Contains(t, dsn, "etl:secret@tcp(db.local:3306)/banks")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
