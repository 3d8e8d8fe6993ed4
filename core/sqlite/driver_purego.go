//go:build !cgo_sqlite

package sqlite

import (
	"fmt"
	"net/url"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)

// buildDSN encodes opts as modernc _pragma parameters, which are applied to
// every pooled connection.
func buildDSN(path string, opts Options, memory bool) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	if opts.WAL && !memory {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}
