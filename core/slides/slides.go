// Package slides partitions a resolved verse sequence into slide groups.
package slides

import (
	"fmt"
	"slices"
	"strings"

	"github.com/FocuswithJustin/ParashaDeck/core/ir"
)

// Grouper chunks verses into slides of at most MaxPerSlide verses. A change
// of chapter (or book) always starts a new slide.
type Grouper struct {
	// MaxPerSlide bounds the verses per slide. Values <= 0 mean
	// ir.DefaultMaxPerSlide.
	MaxPerSlide int

	// Book is used in titles for verses that carry no book of their own.
	Book string
}

// Group partitions verses into titled slide groups, preserving order.
// ranges are the caller's original selections; when given, each title names
// the part of every range the slide covers.
func (g Grouper) Group(verses []ir.VerseRecord, ranges []ir.NamedRange) []ir.SlideGroup {
	size := g.MaxPerSlide
	if size <= 0 {
		size = ir.DefaultMaxPerSlide
	}

	var groups []ir.SlideGroup
	for _, run := range partition(verses) {
		for chunk := range slices.Chunk(run, size) {
			groups = append(groups, ir.SlideGroup{
				Title:      g.title(chunk, ranges),
				Verses:     slices.Clone(chunk),
				GapsBefore: Annotate(chunk),
			})
		}
	}
	return groups
}

// partition splits verses into maximal runs sharing one book and chapter.
func partition(verses []ir.VerseRecord) [][]ir.VerseRecord {
	var runs [][]ir.VerseRecord
	start := 0
	for i := 1; i <= len(verses); i++ {
		if i == len(verses) || verses[i].Chapter != verses[start].Chapter || verses[i].Book != verses[start].Book {
			if i > start {
				runs = append(runs, verses[start:i])
			}
			start = i
		}
	}
	return runs
}

func (g Grouper) title(chunk []ir.VerseRecord, ranges []ir.NamedRange) string {
	var parts []string
	for _, r := range ranges {
		first, last, ok := covered(chunk, r)
		if !ok {
			continue
		}
		book := r.Book
		if book == "" {
			book = g.bookOf(chunk[0])
		}
		parts = append(parts, FormatTitle(book, first, last))
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}

	return FormatTitle(g.bookOf(chunk[0]), chunk[0].Ref(), chunk[len(chunk)-1].Ref())
}

// covered returns the lowest and highest chunk verse inside r.
func covered(chunk []ir.VerseRecord, r ir.NamedRange) (first, last ir.VerseRef, ok bool) {
	for _, v := range chunk {
		if !r.Includes(v) {
			continue
		}
		ref := v.Ref()
		if !ok || ref.Less(first) {
			first = ref
		}
		if !ok || last.Less(ref) {
			last = ref
		}
		ok = true
	}
	return first, last, ok
}

func (g Grouper) bookOf(v ir.VerseRecord) string {
	if v.Book != "" {
		return v.Book
	}
	return g.Book
}

// FormatTitle renders a slide title for the span first..last:
//
//	Genesis 1:5          single verse
//	Genesis 1:1-5        within one chapter
//	Genesis 1:30 - 2:3   across chapters
func FormatTitle(book string, first, last ir.VerseRef) string {
	var span string
	switch {
	case first == last:
		span = first.String()
	case first.Chapter == last.Chapter:
		span = fmt.Sprintf("%d:%d-%d", first.Chapter, first.Verse, last.Verse)
	default:
		span = fmt.Sprintf("%s - %s", first, last)
	}
	if book == "" {
		return span
	}
	return book + " " + span
}
