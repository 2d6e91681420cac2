package dbclient

import (
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	quote: func(name string) string {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	},
	placeholder: func(int) string { return "?" },
	textType:    "TEXT",
	numberType:  "DOUBLE",
}

// MySQLDSN builds a go-sql-driver DSN.
// Format: user:password@tcp(host:port)/dbname?charset=utf8mb4
func MySQLDSN(host string, port int, user, password, database string) string {
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + strconv.Itoa(port)
	cfg.DBName = database
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}
