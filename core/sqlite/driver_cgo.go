//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3, selected by the cgo_sqlite
// build tag. The driver import lives in contrib/sqlite-external.
package sqlite

import (
	"net/url"
	"strconv"

	sqliteexternal "github.com/FocuswithJustin/ParashaDeck/contrib/sqlite-external"
)

const (
	driverName    = sqliteexternal.DriverName
	driverType    = sqliteexternal.DriverType
	driverPackage = sqliteexternal.DriverPackage + " (via contrib/sqlite-external)"
)

// buildDSN encodes opts as mattn connection parameters.
func buildDSN(path string, opts Options, memory bool) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10))
	if opts.WAL && !memory {
		q.Set("_journal_mode", "WAL")
	}
	return "file:" + path + "?" + q.Encode()
}
