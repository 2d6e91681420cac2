package dbclient

import (
	"context"
	"fmt"

	"bankcap/internal/etl"
)

// Supported relational drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// TableInfo describes a table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector is a relational table sink.
type Connector interface {
	etl.TableStore

	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Describe returns the columns of table, in declaration order.
	Describe(ctx context.Context, table string) (*TableInfo, error)

	// Driver returns the driver name the connector was opened with.
	Driver() string
}

// Params are the connection settings of a relational sink. DSN wins over
// the discrete fields when set; for sqlite it is the database file path.
type Params struct {
	Driver   string `yaml:"driver" json:"driver"`
	DSN      string `yaml:"dsn" json:"-"`
	Host     string `yaml:"host" json:"host,omitempty"`
	Port     int    `yaml:"port" json:"port,omitempty"`
	User     string `yaml:"user" json:"user,omitempty"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" json:"database,omitempty"`
	SSLMode  string `yaml:"ssl_mode" json:"sslMode,omitempty"`
}

// ConnString returns the driver-specific connection string.
func (p Params) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	switch p.Driver {
	case DriverMySQL:
		if p.Host == "" {
			return ""
		}
		return MySQLDSN(p.Host, p.Port, p.User, p.Password, p.Database)
	case DriverPostgres:
		if p.Host == "" {
			return ""
		}
		return PostgresDSN(p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
	default:
		return ""
	}
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, p Params) (Connector, error) {
	driver := p.Driver
	dsn := p.ConnString()
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	var (
		c   *sqlConnector
		err error
	)
	switch driver {
	case DriverSQLite, "":
		c, err = newSQLiteConnector(dsn)
	case DriverMySQL:
		c, err = newSQLConnector(DriverMySQL, dsn, mysqlDialect)
	case DriverPostgres:
		c, err = newSQLConnector(DriverPostgres, dsn, postgresDialect)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := c.TestConnection(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect %s: %w", c.driverName, err)
	}
	return c, nil
}
