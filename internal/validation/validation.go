// Package validation provides input validation and sanitization for values
// that arrive from HTTP requests and command-line flags: deck file names,
// output paths, calendar dates and range lists.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Limits on user-supplied values (CWE-400).
const (
	// MaxDeckSize is the maximum deck size accepted for inspection (64 MB).
	MaxDeckSize = 64 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxRangeListLength bounds a comma-separated range list.
	MaxRangeListLength = 1024
	// MaxBookLength bounds a book name.
	MaxBookLength = 64
	// MaxSlideSize bounds the verses-per-slide setting.
	MaxSlideSize = 50
	// MaxChapterSpan bounds the chapters one range may cover. The longest
	// book, Psalms, has 150.
	MaxChapterSpan = 150

	// MaxWeekOffset bounds how many weeks away from today a reading may be
	// requested.
	MaxWeekOffset = 52
)

// DateLayout is the calendar date format accepted by the service.
const DateLayout = "2006-01-02"

// Common validation errors.
var (
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidBook      = errors.New("invalid book name")
	ErrInvalidRangeList = errors.New("invalid range list")
	ErrOutOfBounds      = errors.New("value out of bounds")
)

// ValidatePath checks a path for length limits and control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateFilename rejects filenames with path separators, control
// characters and reserved names.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	if strings.Contains(filename, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	// Could be mistaken for a command flag.
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// SanitizeFilename turns arbitrary text, such as a parasha name, into a
// safe filename. Separators, whitespace runs and shell-hostile characters
// become underscores.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", ErrInvalidFilename
	}

	var b strings.Builder
	underscore := false
	for _, r := range filename {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r) || strings.ContainsRune(`/\:*?"<>|`, r):
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
			continue
		}
		b.WriteRune(r)
		underscore = false
	}

	filename = strings.TrimRight(b.String(), "_")
	filename = strings.TrimLeft(filename, "-._")
	if len(filename) > MaxFilenameLength {
		filename = strings.ToValidUTF8(filename[:MaxFilenameLength], "")
	}
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// ParseDate parses a YYYY-MM-DD calendar date. An empty string yields the
// zero time, which callers treat as "today".
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
	}
	return t, nil
}

// ValidateBook checks a book name: letters, digits, spaces, hyphens and
// apostrophes only ("1 Samuel", "Song of Songs").
func ValidateBook(book string) error {
	if strings.TrimSpace(book) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBook)
	}
	if len(book) > MaxBookLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidBook, MaxBookLength)
	}
	for _, r := range book {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '-' && r != '\'' {
			return fmt.Errorf("%w: character %q not allowed", ErrInvalidBook, r)
		}
	}
	return nil
}

// ValidateRangeList performs cheap checks on a raw range list before it is
// handed to the parser.
func ValidateRangeList(list string) error {
	if strings.TrimSpace(list) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRangeList)
	}
	if len(list) > MaxRangeListLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidRangeList, MaxRangeListLength)
	}
	for _, r := range list {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidRangeList)
		}
	}
	return nil
}

// ValidateIntRange checks that v lies within [min, max].
func ValidateIntRange(name string, v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrOutOfBounds, name, min, max, v)
	}
	return nil
}

// ValidateChapterSpan checks that the chapters start through end fit in
// one book.
func ValidateChapterSpan(start, end int) error {
	if span := end - start + 1; span > MaxChapterSpan {
		return fmt.Errorf("%w: range spans %d chapters, at most %d allowed", ErrOutOfBounds, span, MaxChapterSpan)
	}
	return nil
}

// FileType represents a detected file type.
type FileType string

const (
	FileTypeODP     FileType = "odp"
	FileTypeZip     FileType = "zip"
	FileTypeXZ      FileType = "xz"
	FileTypeSQLite  FileType = "sqlite"
	FileTypeXML     FileType = "xml"
	FileTypeJSON    FileType = "json"
	FileTypeUnknown FileType = "unknown"
)

// odpMimetype is the uncompressed first entry of every ODF presentation.
const odpMimetype = "mimetypeapplication/vnd.oasis.opendocument.presentation"

// magicBytes defines magic byte signatures for file type detection.
// More specific signatures come first.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeODP, []byte(odpMimetype), 30},
	{FileTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}, 0},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FileTypeSQLite, []byte("SQLite format 3"), 0},
}

// ValidateFileType checks that content matches the type implied by the
// filename's extension and returns the detected type.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileTypeFromMagic(buf)
	expected := detectFileTypeFromExtension(filename)

	switch {
	case detected == expected:
		return detected, nil
	case expected == FileTypeZip && detected == FileTypeODP:
		return FileTypeODP, nil
	case detected == FileTypeUnknown && (expected == FileTypeXML || expected == FileTypeJSON):
		if isLikelyText(buf) {
			return expected, nil
		}
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is binary", expected)
	case detected != FileTypeUnknown && expected != FileTypeUnknown:
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expected, detected)
	case detected == FileTypeUnknown:
		return expected, nil
	}
	return detected, nil
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) &&
			bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

func detectFileTypeFromExtension(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".odp":
		return FileTypeODP
	case ".zip":
		return FileTypeZip
	case ".xz":
		return FileTypeXZ
	case ".sqlite", ".db", ".sqlite3":
		return FileTypeSQLite
	case ".xml":
		return FileTypeXML
	case ".json":
		return FileTypeJSON
	default:
		return FileTypeUnknown
	}
}

// isLikelyText reports whether more than 95% of buf is printable ASCII or
// whitespace. UTF-8 multibyte sequences count as neutral.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 || bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	printable, control := 0, 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 {
			control++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
