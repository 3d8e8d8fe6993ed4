// Package mapping turns the nested chapter blocks returned by a text source
// into a flat, ordered verse sequence.
//
// The requested span is the only source of chapter attribution: block i of a
// response belongs to the i-th chapter of the span, whatever chapter labels
// the response carries. Chapters missing from a response are fetched again
// one at a time and spliced into place.
package mapping

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
)

// CleanFunc normalizes one raw verse string. It must be idempotent and total.
type CleanFunc func(string) string

// Fetcher retrieves the raw text for an expression such as "17:1-17:999"
// within a book.
type Fetcher interface {
	Fetch(ctx context.Context, book, expr string) (*ir.RawChapterData, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, book, expr string) (*ir.RawChapterData, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, book, expr string) (*ir.RawChapterData, error) {
	return f(ctx, book, expr)
}

// Result is a mapped verse sequence plus the diagnostics gathered on the way.
type Result struct {
	Verses []ir.VerseRecord `json:"verses"`

	// Unresolved lists chapters that stayed missing after backfill.
	Unresolved []int `json:"unresolved,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Mapper maps raw chapter data onto verse records.
type Mapper struct {
	clean       CleanFunc
	fetcher     Fetcher
	concurrency int
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithCleaner sets the text cleaner applied to every kept verse.
func WithCleaner(clean CleanFunc) Option {
	return func(m *Mapper) { m.clean = clean }
}

// WithFetcher sets the source used for backfill fetches. Without one,
// missing chapters are reported as unresolved.
func WithFetcher(f Fetcher) Option {
	return func(m *Mapper) { m.fetcher = f }
}

// WithConcurrency bounds the number of backfill fetches in flight.
func WithConcurrency(n int) Option {
	return func(m *Mapper) { m.concurrency = n }
}

// New creates a Mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		clean:       func(s string) string { return s },
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Collect maps the blocks of raw onto the chapters of spec by position and
// keeps the verses inside the span's bounds. It never fetches.
func (m *Mapper) Collect(book string, raw *ir.RawChapterData, spec ir.RangeSpec) ([]ir.VerseRecord, []string) {
	expected := spec.Chapters()
	blocks := raw.BlockCount()

	var verses []ir.VerseRecord
	var warnings []string

	if blocks > len(expected) {
		warnings = append(warnings, fmt.Sprintf("%s %s: ignoring %d chapter blocks beyond the requested span",
			book, spec.Short(), blocks-len(expected)))
		blocks = len(expected)
	}

	for i := range blocks {
		chapter := expected[i]
		if i < len(raw.ChapterNumberHints) {
			if hint := raw.ChapterNumberHints[i]; hint > 0 && hint != chapter {
				warnings = append(warnings, fmt.Sprintf("%s: block %d labelled chapter %d, attributed to chapter %d",
					book, i, hint, chapter))
			}
		}

		start := m.startVerse(raw, i, spec)
		lo, hi := spec.VerseBounds(chapter)
		source := block(raw.Chapters, i)
		target := block(raw.TranslatedChapters, i)

		for j := range max(len(source), len(target)) {
			verse := start + j
			if verse < lo {
				continue
			}
			if verse > hi {
				break
			}
			verses = append(verses, ir.VerseRecord{
				Book:    book,
				Chapter: chapter,
				Verse:   verse,
				Source:  m.clean(at(source, j)),
				Target:  m.clean(at(target, j)),
			})
		}
	}

	return verses, warnings
}

// startVerse picks the verse number of the first entry in block i.
func (m *Mapper) startVerse(raw *ir.RawChapterData, i int, spec ir.RangeSpec) int {
	if i < len(raw.VerseStartHints) {
		if v, ok := parseVerseHint(raw.VerseStartHints[i]); ok {
			return v
		}
	}
	if i == 0 {
		return spec.StartVerse
	}
	return 1
}

// parseVerseHint extracts V from a "C:V" hint.
func parseVerseHint(hint string) (int, bool) {
	_, v, found := strings.Cut(strings.TrimSpace(hint), ":")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Missing returns the chapters of spec that have no verse in verses.
func Missing(verses []ir.VerseRecord, spec ir.RangeSpec) []int {
	produced := make(map[int]bool)
	for _, v := range verses {
		produced[v.Chapter] = true
	}
	var missing []int
	for _, c := range spec.Chapters() {
		if !produced[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// Backfill fetches each chapter of spec absent from verses with its own
// single-chapter request and splices the results in chapter order. Fetch
// failures are recorded in Result.Unresolved; only context cancellation is
// returned as an error.
func (m *Mapper) Backfill(ctx context.Context, book string, verses []ir.VerseRecord, spec ir.RangeSpec) (*Result, error) {
	missing := Missing(verses, spec)
	res := &Result{Verses: Normalize(verses)}
	if len(missing) == 0 {
		return res, nil
	}

	if m.fetcher == nil {
		for _, c := range missing {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s %d: chapter missing and no source to backfill from", book, c))
		}
		res.Unresolved = missing
		return res, nil
	}

	type outcome struct {
		verses   []ir.VerseRecord
		warnings []string
		err      error
	}
	outcomes := make([]outcome, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.concurrency, 1))
	for i, chapter := range missing {
		g.Go(func() error {
			sub := spec.ForChapter(chapter)
			raw, err := m.fetcher.Fetch(gctx, book, sub.String())
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				outcomes[i].err = err
				return nil
			}
			outcomes[i].verses, outcomes[i].warnings = m.Collect(book, raw, sub)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := slices.Clone(verses)
	for i, chapter := range missing {
		o := outcomes[i]
		res.Warnings = append(res.Warnings, o.warnings...)
		switch {
		case o.err != nil:
			res.Unresolved = append(res.Unresolved, chapter)
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s %d: backfill failed: %v", book, chapter, o.err))
		case len(o.verses) == 0:
			res.Unresolved = append(res.Unresolved, chapter)
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s %d: backfill returned no verses", book, chapter))
		}
		logging.Backfill(ctx, book, chapter, len(o.verses), o.err)
		all = append(all, o.verses...)
	}

	res.Verses = Normalize(all)
	return res, nil
}

// Map runs Collect then Backfill for a single-book span. It fails with an
// EmptyResultError when no verse survives.
func (m *Mapper) Map(ctx context.Context, book string, raw *ir.RawChapterData, spec ir.RangeSpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	verses, warnings := m.Collect(book, raw, spec)
	res, err := m.Backfill(ctx, book, verses, spec)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)

	if len(res.Verses) == 0 {
		return nil, &errors.EmptyResultError{Book: book, Range: spec.Short()}
	}
	return res, nil
}

// Normalize sorts verses by reference and drops repeated references,
// keeping the first occurrence. The input is not modified.
func Normalize(verses []ir.VerseRecord) []ir.VerseRecord {
	out := slices.Clone(verses)
	slices.SortStableFunc(out, func(a, b ir.VerseRecord) int {
		return a.Ref().Compare(b.Ref())
	})
	return slices.CompactFunc(out, func(a, b ir.VerseRecord) bool {
		return a.Ref() == b.Ref()
	})
}

func block(blocks [][]string, i int) []string {
	if i < len(blocks) {
		return blocks[i]
	}
	return nil
}

func at(texts []string, j int) string {
	if j < len(texts) {
		return texts[j]
	}
	return ""
}
