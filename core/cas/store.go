// Package cas provides content-addressed storage for generated decks.
// Blobs are stored under their BLAKE3 hash, so identical decks are stored
// once and a hash doubles as a stable download identifier.
package cas

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/zeebo/blake3"

	perrors "github.com/FocuswithJustin/ParashaDeck/core/errors"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when a blob with the given hash does not exist.
var ErrBlobNotFound = fmt.Errorf("blob %w", perrors.ErrNotFound)

// ErrInvalidHash is returned when a hash string is not a 64-character
// lowercase hex string.
var ErrInvalidHash = fmt.Errorf("hash format: %w", perrors.ErrInvalidInput)

var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Meta describes a stored blob. It is kept in a JSON sidecar next to the blob.
type Meta struct {
	Hash        string    `json:"hash"`
	Name        string    `json:"name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
}

// Store provides content-addressed storage for blobs using BLAKE3 hashing.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a new content-addressed store at the given root directory.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "blobs", "blake3"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{root: root, now: time.Now}, nil
}

// Put stores data with its metadata and returns the blob's hash. Storing
// content that already exists keeps the original metadata.
func (s *Store) Put(data []byte, name, contentType string) (*Meta, error) {
	hash := Hash(data)
	blobPath := s.pathForHash(hash)

	if _, err := os.Stat(blobPath); err == nil {
		if meta, err := s.Stat(hash); err == nil {
			return meta, nil
		}
	}

	if err := s.writeAtomic(blobPath, data); err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}

	meta := &Meta{
		Hash:        hash,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Created:     s.now().UTC(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := s.writeAtomic(blobPath+".json", encoded); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	return meta, nil
}

// Get returns the blob with the given hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.pathForHash(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Stat returns the metadata of the blob with the given hash.
func (s *Store) Stat(hash string) (*Meta, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.pathForHash(hash) + ".json")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// Exists checks if a blob with the given hash exists in the store.
func (s *Store) Exists(hash string) bool {
	if !isValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.pathForHash(hash))
	return err == nil
}

// Remove deletes a blob and its metadata. Removing a missing blob is not an
// error.
func (s *Store) Remove(hash string) error {
	if !isValidHash(hash) {
		return ErrInvalidHash
	}
	path := s.pathForHash(hash)
	for _, p := range []string{path, path + ".json"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place.
func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perrors.NewIO("create prefix directory", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return perrors.NewIO("create temp file", dir, err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return perrors.NewIO("write temp file", tempPath, err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return perrors.NewIO("close temp file", tempPath, err)
	}
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return perrors.NewIO("rename", tempPath, err)
	}
	return nil
}

// pathForHash returns <root>/blobs/blake3/<first2>/<hash>.
func (s *Store) pathForHash(hash string) string {
	return filepath.Join(s.root, "blobs", "blake3", hash[:2], hash)
}

func isValidHash(hash string) bool {
	return hashPattern.MatchString(hash)
}

// Hash computes the BLAKE3 hash of data without storing it.
func Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
