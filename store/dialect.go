package store

import (
	"fmt"
	"strings"
	"time"
)

// Queries are written once in SQLite syntax; Q adapts them for Postgres.
const sqliteNow = "datetime('now','localtime')"

// Q returns query ready for the connected driver: Postgres gets numbered
// placeholders and NOW().
func (db *DB) Q(query string) string {
	if db.driver != driverPostgres {
		return query
	}
	return Rebind(strings.ReplaceAll(query, sqliteNow, "NOW()"))
}

// Rebind numbers ? placeholders as $1, $2, ...
func Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		fmt.Fprintf(&b, "$%d", n)
	}
	return b.String()
}

// timeArg formats t the way the driver stores timestamps.
func (db *DB) timeArg(t time.Time) any {
	if db.driver == driverSQLite {
		return t.Local().Format(sqliteLayout)
	}
	return t
}

const sqliteLayout = "2006-01-02 15:04:05"

// parseTime reads a scanned created_at/sent_at column. SQLite hands back
// text, Postgres a time.Time.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{sqliteLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999-07:00"} {
			if parsed, err := time.ParseInLocation(layout, t, time.Local); err == nil {
				return parsed
			}
		}
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}
}
