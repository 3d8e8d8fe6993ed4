// Package textstore persists upstream text API responses in SQLite so that
// repeated deck builds survive restarts without refetching. Bodies are
// xz-compressed and keyed by the BLAKE3 hash of the request URL.
package textstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	perrors "github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/sqlite"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
)

// Injectable for tests.
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

const schema = `
CREATE TABLE IF NOT EXISTS responses (
	key        TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	body       BLOB NOT NULL,
	size       INTEGER NOT NULL,
	fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_responses_fetched ON responses(fetched_at);
`

// Store is a persistent response cache.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Stats summarizes the stored responses.
type Stats struct {
	Entries         int64 `json:"entries"`
	CompressedBytes int64 `json:"compressed_bytes"`
	RawBytes        int64 `json:"raw_bytes"`
}

// Open opens or creates the cache database at path. A ttl <= 0 keeps
// entries forever.
func Open(ctx context.Context, path string, ttl time.Duration) (*Store, error) {
	db, err := sqlite.OpenFile(ctx, path, sqlite.DefaultOptions())
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, perrors.Wrap(err, "failed to create schema")
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key returns the cache key for url.
func Key(url string) string {
	h := blake3.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

// Get returns the cached body for url. Expired entries are misses.
func (s *Store) Get(ctx context.Context, url string) ([]byte, bool, error) {
	var (
		compressed []byte
		fetchedAt  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, fetched_at FROM responses WHERE key = ?`, Key(url),
	).Scan(&compressed, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query response cache: %w", err)
	}

	if s.expired(fetchedAt) {
		return nil, false, nil
	}

	body, err := decompress(compressed)
	if err != nil {
		// A corrupt row is dropped and treated as a miss.
		logging.WarnContext(ctx, "discarding corrupt cached response", "url", url, "error", err)
		s.db.ExecContext(ctx, `DELETE FROM responses WHERE key = ?`, Key(url))
		return nil, false, nil
	}
	return body, true, nil
}

// Put stores body for url, replacing any previous entry.
func (s *Store) Put(ctx context.Context, url string, body []byte) error {
	compressed, err := compress(body)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (key, url, body, size, fetched_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			url = excluded.url, body = excluded.body,
			size = excluded.size, fetched_at = excluded.fetched_at`,
		Key(url), url, compressed, len(body), s.now().Unix())
	if err != nil {
		return perrors.Wrap(err, "failed to store response")
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune response cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns entry and byte counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(body)), 0), COALESCE(SUM(size), 0) FROM responses`,
	).Scan(&st.Entries, &st.CompressedBytes, &st.RawBytes)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return st, nil
}

func (s *Store) expired(fetchedAt int64) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().After(time.Unix(fetchedAt, 0).Add(s.ttl))
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xzNewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to compress response: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := xzNewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	return io.ReadAll(r)
}
