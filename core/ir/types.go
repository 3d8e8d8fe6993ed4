package ir

// types.go - request-scoped reading types shared by the mapping, slides and
// resolve packages. Values are built once per request and never mutated.

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
)

// SentinelMax is an upper verse bound larger than any real chapter length.
// It asks the text source for "the rest of the chapter".
const SentinelMax = 999

// DefaultMaxPerSlide is the number of verses placed on one slide when the
// caller does not say otherwise.
const DefaultMaxPerSlide = 5

// Ellipsis is inserted between two verses of a slide that are not
// textually consecutive.
const Ellipsis = "…"

// VerseRef addresses a single verse within a book.
type VerseRef struct {
	Chapter int `json:"chapter"`
	Verse   int `json:"verse"`
}

// Compare orders references by chapter, then verse.
func (r VerseRef) Compare(other VerseRef) int {
	if c := cmp.Compare(r.Chapter, other.Chapter); c != 0 {
		return c
	}
	return cmp.Compare(r.Verse, other.Verse)
}

// Less reports whether r sorts before other.
func (r VerseRef) Less(other VerseRef) bool {
	return r.Compare(other) < 0
}

// Valid reports whether both components are positive.
func (r VerseRef) Valid() bool {
	return r.Chapter >= 1 && r.Verse >= 1
}

// String returns the "C:V" form.
func (r VerseRef) String() string {
	return fmt.Sprintf("%d:%d", r.Chapter, r.Verse)
}

// VerseRecord is one verse of source-language text with its paired
// target-language text.
type VerseRecord struct {
	// Book is the display name of the book, empty when unknown.
	Book string `json:"book,omitempty"`

	Chapter int `json:"chapter"`
	Verse   int `json:"verse"`

	// Source is the primary text (the "text" field of the upstream source).
	Source string `json:"source"`

	// Target is the paired text (the "he" field of the upstream source).
	Target string `json:"target"`
}

// Ref returns the record's address.
func (v VerseRecord) Ref() VerseRef {
	return VerseRef{Chapter: v.Chapter, Verse: v.Verse}
}

// RangeSpec is a normalized verse span. A valid spec satisfies
// (StartChapter, StartVerse) <= (EndChapter, EndVerse) and all fields >= 1.
type RangeSpec struct {
	StartChapter int `json:"start_chapter"`
	StartVerse   int `json:"start_verse"`
	EndChapter   int `json:"end_chapter"`
	EndVerse     int `json:"end_verse"`
}

// Start returns the first address of the span.
func (s RangeSpec) Start() VerseRef {
	return VerseRef{Chapter: s.StartChapter, Verse: s.StartVerse}
}

// End returns the last address of the span.
func (s RangeSpec) End() VerseRef {
	return VerseRef{Chapter: s.EndChapter, Verse: s.EndVerse}
}

// Validate checks the ordering and positivity invariants.
func (s RangeSpec) Validate() error {
	if !s.Start().Valid() || !s.End().Valid() {
		return errors.NewMalformedRange(s.String(), "chapters and verses must be positive")
	}
	if s.End().Less(s.Start()) {
		return errors.NewMalformedRange(s.String(), "range ends before it starts")
	}
	return nil
}

// SameChapter reports whether the span stays within one chapter.
func (s RangeSpec) SameChapter() bool {
	return s.StartChapter == s.EndChapter
}

// Contains reports whether ref falls inside the span.
func (s RangeSpec) Contains(ref VerseRef) bool {
	return ref.Compare(s.Start()) >= 0 && ref.Compare(s.End()) <= 0
}

// Chapters lists every chapter number the span touches, in order.
func (s RangeSpec) Chapters() []int {
	if s.EndChapter < s.StartChapter {
		return nil
	}
	chapters := make([]int, 0, s.EndChapter-s.StartChapter+1)
	for c := s.StartChapter; c <= s.EndChapter; c++ {
		chapters = append(chapters, c)
	}
	return chapters
}

// VerseBounds returns the inclusive verse window kept for chapter c.
// Interior chapters are unbounded above (SentinelMax).
func (s RangeSpec) VerseBounds(chapter int) (lo, hi int) {
	lo, hi = 1, SentinelMax
	if chapter == s.StartChapter {
		lo = s.StartVerse
	}
	if chapter == s.EndChapter {
		hi = s.EndVerse
	}
	return lo, hi
}

// ForChapter narrows the span to a single chapter using the same bounds
// rule as VerseBounds.
func (s RangeSpec) ForChapter(chapter int) RangeSpec {
	lo, hi := s.VerseBounds(chapter)
	return RangeSpec{StartChapter: chapter, StartVerse: lo, EndChapter: chapter, EndVerse: hi}
}

// String returns the canonical "C1:V1-C2:V2" form.
func (s RangeSpec) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartChapter, s.StartVerse, s.EndChapter, s.EndVerse)
}

// Short returns the most compact unambiguous form ("C:V1-V2" within a chapter).
func (s RangeSpec) Short() string {
	if s.SameChapter() {
		if s.StartVerse == s.EndVerse {
			return fmt.Sprintf("%d:%d", s.StartChapter, s.StartVerse)
		}
		return fmt.Sprintf("%d:%d-%d", s.StartChapter, s.StartVerse, s.EndVerse)
	}
	return s.String()
}

// NamedRange is a caller-specified selection: a span within a named book.
type NamedRange struct {
	Book string    `json:"book"`
	Spec RangeSpec `json:"spec"`

	// Raw is the expression the range was parsed from.
	Raw string `json:"raw,omitempty"`
}

// String returns "Book C:V-C:V" using the compact form.
func (n NamedRange) String() string {
	return strings.TrimSpace(n.Book + " " + n.Spec.Short())
}

// Includes reports whether the verse record belongs to this range. A record
// without a book matches on address alone.
func (n NamedRange) Includes(v VerseRecord) bool {
	if v.Book != "" && n.Book != "" && v.Book != n.Book {
		return false
	}
	return n.Spec.Contains(v.Ref())
}

// SlideGroup is the unit of output chunking.
type SlideGroup struct {
	Title  string        `json:"title"`
	Verses []VerseRecord `json:"verses"`

	// GapsBefore lists, in increasing order, the indices within Verses that
	// are preceded by a discontinuity marker.
	GapsBefore []int `json:"gaps_before,omitempty"`
}

// HasGapBefore reports whether verse i is preceded by a discontinuity.
func (g SlideGroup) HasGapBefore(i int) bool {
	for _, idx := range g.GapsBefore {
		if idx == i {
			return true
		}
	}
	return false
}

// SourceText joins the group's source texts, marking gaps with an ellipsis.
func (g SlideGroup) SourceText() string {
	return g.join(func(v VerseRecord) string { return v.Source })
}

// TargetText joins the group's target texts, marking gaps with an ellipsis.
func (g SlideGroup) TargetText() string {
	return g.join(func(v VerseRecord) string { return v.Target })
}

func (g SlideGroup) join(text func(VerseRecord) string) string {
	parts := make([]string, 0, len(g.Verses)+len(g.GapsBefore))
	for i, v := range g.Verses {
		if i > 0 && g.HasGapBefore(i) {
			parts = append(parts, Ellipsis)
		}
		if t := text(v); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// RawChapterData is the nested shape returned by the text source for one
// fetch. Block i of Chapters pairs with block i of TranslatedChapters.
type RawChapterData struct {
	Chapters           [][]string `json:"chapters"`
	TranslatedChapters [][]string `json:"translated_chapters"`

	// ChapterNumberHints are the source's own chapter labels. They may be
	// missing or misaligned and are never used for attribution.
	ChapterNumberHints []int `json:"chapter_number_hints,omitempty"`

	// VerseStartHints give the first verse of each block as "C:V".
	VerseStartHints []string `json:"verse_start_hints,omitempty"`
}

// BlockCount returns the number of positional chapter blocks.
func (d *RawChapterData) BlockCount() int {
	if d == nil {
		return 0
	}
	return max(len(d.Chapters), len(d.TranslatedChapters))
}
