package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bankcap/internal/dbclient"
	"bankcap/internal/etl"
)

type Config struct {
	Pipeline PipelineConfig  `yaml:"pipeline"`
	Source   SourceConfig    `yaml:"source"`
	Rates    RatesConfig     `yaml:"rates"`
	Columns  etl.ColumnNames `yaml:"columns"`
	Sinks    SinksConfig     `yaml:"sinks"`
	Queries  QueriesConfig   `yaml:"queries"`
	Progress ProgressConfig  `yaml:"progress"`
	State    StateConfig     `yaml:"state"`
	Archive  ArchiveConfig   `yaml:"archive"`
	Schedule ScheduleConfig  `yaml:"schedule"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type PipelineConfig struct {
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
}

type SourceConfig struct {
	Location string            `yaml:"location"`
	Mapping  etl.ColumnMapping `yaml:"mapping"`
}

type RatesConfig struct {
	Path       string   `yaml:"path"`
	Currencies []string `yaml:"currencies"`
}

type SinksConfig struct {
	CSV      CSVSinkConfig      `yaml:"csv"`
	Parquet  ParquetSinkConfig  `yaml:"parquet"`
	Database DatabaseSinkConfig `yaml:"database"`
	Mongo    MongoSinkConfig    `yaml:"mongo"`
}

type CSVSinkConfig struct {
	Path string `yaml:"path"`
}

type ParquetSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type DatabaseSinkConfig struct {
	dbclient.Params `yaml:",inline"`
	Table           string `yaml:"table"`
}

type MongoSinkConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type QueriesConfig struct {
	MeanCurrency string `yaml:"mean_currency"`
}

type ProgressConfig struct {
	Path string `yaml:"path"`
}

type StateConfig struct {
	Path string `yaml:"path"`
}

type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ScheduleConfig struct {
	Cron  string   `yaml:"cron"`
	Watch []string `yaml:"watch"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration of the largest-banks job.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			Name:    "largest_banks",
			Timeout: 5 * time.Minute,
		},
		Source: SourceConfig{
			Location: "https://web.archive.org/web/20230908091635/https://en.wikipedia.org/wiki/List_of_largest_banks",
			Mapping:  etl.DefaultMapping,
		},
		Rates: RatesConfig{
			Path:       "./exchange_rate.csv",
			Currencies: []string{"EUR", "GBP", "INR"},
		},
		Columns: etl.ColumnNames{
			Name:    "Name",
			Base:    "MC_USD_Billion",
			Derived: "MC_%s_Billion",
		},
		Sinks: SinksConfig{
			CSV:     CSVSinkConfig{Path: "./Largest_banks_data.csv"},
			Parquet: ParquetSinkConfig{Path: "./Largest_banks_data.parquet"},
			Database: DatabaseSinkConfig{
				Params: dbclient.Params{Driver: dbclient.DriverSQLite, DSN: "Banks.db"},
				Table:  "Largest_banks",
			},
			Mongo: MongoSinkConfig{Database: "bankcap", Collection: "largest_banks"},
		},
		Queries:  QueriesConfig{MeanCurrency: "GBP"},
		Progress: ProgressConfig{Path: "./code_log.txt"},
		State:    StateConfig{Path: "./bankcap_state.db"},
		Archive:  ArchiveConfig{Prefix: "bankcap"},
		Logging:  LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// LoadConfig reads path over the defaults, applies environment overrides
// and validates the result. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("BANKCAP_SOURCE"); v != "" {
		config.Source.Location = strings.TrimSpace(v)
	}
	if v := os.Getenv("BANKCAP_DB_DRIVER"); v != "" {
		config.Sinks.Database.Driver = strings.TrimSpace(v)
	}
	if v := os.Getenv("BANKCAP_DB_DSN"); v != "" {
		config.Sinks.Database.DSN = strings.TrimSpace(v)
	}
	if v := os.Getenv("BANKCAP_MONGO_URI"); v != "" {
		config.Sinks.Mongo.URI = strings.TrimSpace(v)
	}

	if config.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Archive.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Archive.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Archive.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Archive.Bucket = strings.TrimSpace(v)
		}
	}
	config.Archive.Bucket = strings.TrimSpace(config.Archive.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.Pipeline.Name == "" {
		return fmt.Errorf("pipeline.name is required")
	}
	if cfg.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline.timeout must be greater than 0")
	}
	if cfg.Source.Location == "" {
		return fmt.Errorf("source.location is required")
	}
	if cfg.Rates.Path == "" {
		return fmt.Errorf("rates.path is required")
	}
	if len(cfg.Rates.Currencies) == 0 {
		return fmt.Errorf("rates.currencies is required")
	}
	if cfg.Sinks.CSV.Path == "" {
		return fmt.Errorf("sinks.csv.path is required")
	}
	if cfg.Sinks.Parquet.Enabled && cfg.Sinks.Parquet.Path == "" {
		return fmt.Errorf("sinks.parquet.path is required when parquet is enabled")
	}

	switch cfg.Sinks.Database.Driver {
	case dbclient.DriverSQLite, dbclient.DriverMySQL, dbclient.DriverPostgres:
	default:
		return fmt.Errorf("sinks.database.driver '%s' is not supported", cfg.Sinks.Database.Driver)
	}
	if cfg.Sinks.Database.ConnString() == "" {
		return fmt.Errorf("sinks.database.dsn is required")
	}
	if cfg.Sinks.Database.Table == "" {
		return fmt.Errorf("sinks.database.table is required")
	}

	if cfg.Sinks.Mongo.Enabled {
		if cfg.Sinks.Mongo.URI == "" {
			return fmt.Errorf("sinks.mongo.uri is required when mongo is enabled")
		}
		if cfg.Sinks.Mongo.Database == "" || cfg.Sinks.Mongo.Collection == "" {
			return fmt.Errorf("sinks.mongo.database and sinks.mongo.collection are required when mongo is enabled")
		}
	}

	if cfg.Progress.Path == "" {
		return fmt.Errorf("progress.path is required")
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive is enabled")
		}
		if cfg.Archive.Region == "" {
			return fmt.Errorf("archive.region is required when archive is enabled")
		}
		if !isValidS3Bucket(cfg.Archive.Bucket) {
			return fmt.Errorf("archive.bucket '%s' is invalid", cfg.Archive.Bucket)
		}
	}

	// Schema and mean currency are checked by building the job.
	if _, err := cfg.Job(); err != nil {
		return err
	}
	return nil
}

// Job builds the explicit run configuration.
func (c *Config) Job() (*etl.Job, error) {
	schema, err := etl.NewSchema(c.Columns, c.Rates.Currencies)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	mean := strings.ToUpper(strings.TrimSpace(c.Queries.MeanCurrency))
	if mean == "" {
		mean = schema.Currencies[0]
	}
	if _, ok := schema.CurrencyColumn(mean); !ok {
		return nil, fmt.Errorf("queries.mean_currency '%s' is not in rates.currencies", c.Queries.MeanCurrency)
	}
	return &etl.Job{
		Name:         c.Pipeline.Name,
		Location:     c.Source.Location,
		RatesPath:    c.Rates.Path,
		Mapping:      c.Source.Mapping.WithDefaults(),
		Schema:       schema,
		Table:        c.Sinks.Database.Table,
		MeanCurrency: mean,
	}, nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
