package dbclient

import (
	"strconv"
	"strings"

	"github.com/lib/pq"
)

var postgresDialect = dialect{
	quote:       pq.QuoteIdentifier,
	placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	textType:    "TEXT",
	numberType:  "DOUBLE PRECISION",
}

// PostgresDSN builds a lib/pq keyword/value connection string. Empty
// fields are left out so the driver falls back to its PG* defaults.
func PostgresDSN(host string, port int, user, password, database, sslMode string) string {
	if port == 0 {
		port = 5432
	}
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{"host=" + pgValue(host), "port=" + strconv.Itoa(port)}
	for _, kv := range [][2]string{{"user", user}, {"password", password}, {"dbname", database}} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+pgValue(kv[1]))
		}
	}
	parts = append(parts, "sslmode="+pgValue(sslMode))
	return strings.Join(parts, " ")
}

// pgValue quotes v when it holds characters that end a bare value.
func pgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
