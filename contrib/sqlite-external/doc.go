// Package sqliteexternal registers the CGO SQLite driver
// (github.com/mattn/go-sqlite3) used by ParashaDeck's response cache when
// built with the cgo_sqlite tag:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/parasha
//
// The default build uses the pure Go modernc.org/sqlite driver and needs no
// C toolchain. Prefer this package when the cache database is large and the
// build pipeline already has CGO.
package sqliteexternal
