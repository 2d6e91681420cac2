package dbclient

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	quote:       doubleQuote,
	placeholder: func(int) string { return "?" },
	textType:    "TEXT",
	numberType:  "REAL",
}

// newSQLiteConnector opens a SQLite file in WAL mode with a busy timeout.
// A single connection keeps the replace transaction and later reads on
// the same handle.
func newSQLiteConnector(path string) (*sqlConnector, error) {
	c, err := newSQLConnector(DriverSQLite, SQLiteDSN(path), sqliteDialect)
	if err != nil {
		return nil, err
	}
	c.db.SetMaxOpenConns(1)
	return c, nil
}

// SQLiteDSN appends the pragmas used for every SQLite handle to path.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}
