package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	perrors "github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
)

// chapterText builds n placeholder verses "c:1".."c:n" with the given prefix.
func chapterText(prefix string, chapter, from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d:%d", prefix, chapter, from+i)
	}
	return out
}

// fakeFetcher serves single chapters from a table of chapter lengths and
// records every expression it is asked for.
type fakeFetcher struct {
	mu      sync.Mutex
	lengths map[int]int
	fail    map[int]bool
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, book, expr string) (*ir.RawChapterData, error) {
	f.mu.Lock()
	f.calls = append(f.calls, expr)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := ir.ParseExpression(expr)
	if err != nil {
		return nil, err
	}
	chapter := e.Spec.StartChapter
	if f.fail[chapter] {
		return nil, fmt.Errorf("upstream unavailable for %s %d", book, chapter)
	}
	n := min(f.lengths[chapter], e.Spec.EndVerse) - e.Spec.StartVerse + 1
	return &ir.RawChapterData{
		Chapters:           [][]string{chapterText("en", chapter, e.Spec.StartVerse, n)},
		TranslatedChapters: [][]string{chapterText("he", chapter, e.Spec.StartVerse, n)},
		VerseStartHints:    []string{fmt.Sprintf("%d:%d", chapter, e.Spec.StartVerse)},
	}, nil
}

func refs(verses []ir.VerseRecord) []string {
	out := make([]string, len(verses))
	for i, v := range verses {
		out[i] = v.Ref().String()
	}
	return out
}

func assertStrictlyIncreasing(t *testing.T, verses []ir.VerseRecord) {
	t.Helper()
	for i := 1; i < len(verses); i++ {
		if !verses[i-1].Ref().Less(verses[i].Ref()) {
			t.Fatalf("verses not strictly increasing at %d: %v then %v", i, verses[i-1].Ref(), verses[i].Ref())
		}
	}
}

func TestCollect_SameChapterOffset(t *testing.T) {
	raw := &ir.RawChapterData{
		Chapters:           [][]string{{"a", "b", "c"}},
		TranslatedChapters: [][]string{{"א", "ב", "ג"}},
	}
	m := New()
	verses, warnings := m.Collect("Genesis", raw, ir.RangeSpec{3, 5, 3, 7})
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	want := []ir.VerseRecord{
		{Book: "Genesis", Chapter: 3, Verse: 5, Source: "a", Target: "א"},
		{Book: "Genesis", Chapter: 3, Verse: 6, Source: "b", Target: "ב"},
		{Book: "Genesis", Chapter: 3, Verse: 7, Source: "c", Target: "ג"},
	}
	if diff := cmp.Diff(want, verses); diff != "" {
		t.Errorf("Collect mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_ExpectedChaptersWin(t *testing.T) {
	raw := &ir.RawChapterData{
		Chapters: [][]string{
			chapterText("en", 16, 1, 50),
			chapterText("en", 17, 1, 21),
			chapterText("en", 18, 1, 32),
		},
		// Labels are stale; attribution must follow the requested span.
		ChapterNumberHints: []int{1, 1, 18},
	}
	verses, warnings := New().Collect("Numbers", raw, ir.RangeSpec{16, 1, 18, 32})

	if len(verses) != 103 {
		t.Fatalf("len = %d, want 103", len(verses))
	}
	if verses[50].Ref() != (ir.VerseRef{Chapter: 17, Verse: 1}) {
		t.Errorf("verse 51 = %v, want 17:1", verses[50].Ref())
	}
	if verses[50].Source != "en17:1" {
		t.Errorf("verse 51 text = %q, want en17:1", verses[50].Source)
	}
	if len(warnings) != 2 {
		t.Errorf("warnings = %v, want one per mislabelled block", warnings)
	}
	assertStrictlyIncreasing(t, verses)
}

func TestCollect_Bounds(t *testing.T) {
	tests := []struct {
		name  string
		raw   *ir.RawChapterData
		spec  ir.RangeSpec
		first string
		last  string
		count int
	}{
		{
			name:  "start hint trims leading verses",
			raw:   &ir.RawChapterData{Chapters: [][]string{chapterText("en", 3, 1, 24)}, VerseStartHints: []string{"3:1"}},
			spec:  ir.RangeSpec{3, 5, 3, 7},
			first: "3:5", last: "3:7", count: 3,
		},
		{
			name:  "sentinel clamps silently",
			raw:   &ir.RawChapterData{Chapters: [][]string{chapterText("en", 17, 1, 21)}},
			spec:  ir.RangeSpec{17, 1, 17, ir.SentinelMax},
			first: "17:1", last: "17:21", count: 21,
		},
		{
			name: "boundary chapters bounded, interior kept whole",
			raw: &ir.RawChapterData{
				Chapters:        [][]string{chapterText("en", 1, 3, 29), chapterText("en", 2, 1, 25), chapterText("en", 3, 1, 24)},
				VerseStartHints: []string{"1:3"},
			},
			spec:  ir.RangeSpec{1, 3, 3, 4},
			first: "1:3", last: "3:4", count: 29 + 25 + 4,
		},
		{
			name:  "later block without hint starts at 1",
			raw:   &ir.RawChapterData{Chapters: [][]string{{"x", "y"}, {"z"}}},
			spec:  ir.RangeSpec{4, 9, 5, 1},
			first: "4:9", last: "5:1", count: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verses, _ := New().Collect("Genesis", tt.raw, tt.spec)
			if len(verses) != tt.count {
				t.Fatalf("len = %d, want %d", len(verses), tt.count)
			}
			got := refs(verses)
			if got[0] != tt.first || got[len(got)-1] != tt.last {
				t.Errorf("range = %s..%s, want %s..%s", got[0], got[len(got)-1], tt.first, tt.last)
			}
			assertStrictlyIncreasing(t, verses)
		})
	}
}

func TestCollect_ExtraBlocksSkipped(t *testing.T) {
	raw := &ir.RawChapterData{Chapters: [][]string{{"a"}, {"b"}, {"c"}}}
	verses, warnings := New().Collect("Genesis", raw, ir.RangeSpec{1, 1, 2, 5})
	if diff := cmp.Diff([]string{"1:1", "2:1"}, refs(verses)); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "ignoring 1") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestCollect_UnevenSides(t *testing.T) {
	raw := &ir.RawChapterData{
		Chapters:           [][]string{{"one", "two"}},
		TranslatedChapters: [][]string{{"אחד"}},
	}
	verses, _ := New().Collect("Genesis", raw, ir.RangeSpec{1, 1, 1, 2})
	if len(verses) != 2 {
		t.Fatalf("len = %d, want 2", len(verses))
	}
	if verses[1].Source != "two" || verses[1].Target != "" {
		t.Errorf("verse 2 = %+v, want empty target", verses[1])
	}
}

func TestCollect_AppliesCleaner(t *testing.T) {
	raw := &ir.RawChapterData{Chapters: [][]string{{"  <b>text</b> "}}, TranslatedChapters: [][]string{{"<i>he</i>"}}}
	strip := func(s string) string {
		s = strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "").Replace(s)
		return strings.TrimSpace(s)
	}
	verses, _ := New(WithCleaner(strip)).Collect("Genesis", raw, ir.RangeSpec{1, 1, 1, 1})
	if verses[0].Source != "text" || verses[0].Target != "he" {
		t.Errorf("cleaned verse = %+v", verses[0])
	}
}

func TestBackfill_RefetchesMissingChapter(t *testing.T) {
	fetcher := &fakeFetcher{lengths: map[int]int{16: 50, 17: 21, 18: 32}, fail: map[int]bool{17: true}}
	m := New(WithFetcher(fetcher))
	spec := ir.RangeSpec{16, 1, 18, 32}

	first, _ := m.Collect("Numbers", &ir.RawChapterData{Chapters: [][]string{chapterText("en", 16, 1, 50)}}, ir.RangeSpec{16, 1, 16, ir.SentinelMax})
	last, _ := m.Collect("Numbers", &ir.RawChapterData{Chapters: [][]string{chapterText("en", 18, 1, 32)}}, ir.RangeSpec{18, 1, 18, 32})

	res, err := m.Backfill(context.Background(), "Numbers", append(first, last...), spec)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	if diff := cmp.Diff([]string{"17:1-17:999"}, fetcher.calls); diff != "" {
		t.Errorf("backfill calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{17}, res.Unresolved); diff != "" {
		t.Errorf("Unresolved mismatch (-want +got):\n%s", diff)
	}
	if len(res.Verses) != 82 {
		t.Errorf("len = %d, want 82", len(res.Verses))
	}
	for _, v := range res.Verses {
		if v.Chapter == 17 {
			t.Fatalf("chapter 17 should be absent, found %v", v.Ref())
		}
	}
	if len(res.Warnings) == 0 {
		t.Error("failed backfill should be reported as a warning")
	}
}

func TestBackfill_SplicesInOrder(t *testing.T) {
	fetcher := &fakeFetcher{lengths: map[int]int{16: 50, 17: 21, 18: 32}}
	m := New(WithFetcher(fetcher))

	raw := &ir.RawChapterData{Chapters: [][]string{chapterText("en", 16, 1, 50)}}
	res, err := m.Map(context.Background(), "Numbers", raw, ir.RangeSpec{16, 1, 18, 32})
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	if len(res.Verses) != 103 {
		t.Fatalf("len = %d, want 103", len(res.Verses))
	}
	if len(res.Unresolved) != 0 {
		t.Errorf("Unresolved = %v, want none", res.Unresolved)
	}
	assertStrictlyIncreasing(t, res.Verses)
	if res.Verses[50].Source != "en17:1" {
		t.Errorf("first backfilled verse = %q, want en17:1", res.Verses[50].Source)
	}
	if len(fetcher.calls) != 2 {
		t.Errorf("calls = %v, want one per missing chapter", fetcher.calls)
	}
}

func TestBackfill_BoundaryChapterKeepsBounds(t *testing.T) {
	fetcher := &fakeFetcher{lengths: map[int]int{4: 26, 5: 32}}
	m := New(WithFetcher(fetcher))

	res, err := m.Map(context.Background(), "Genesis", &ir.RawChapterData{}, ir.RangeSpec{4, 20, 5, 3})
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if diff := cmp.Diff([]string{"4:20-4:999", "5:1-5:3"}, fetcher.calls, sortStrings); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	got := refs(res.Verses)
	if got[0] != "4:20" || got[len(got)-1] != "5:3" || len(got) != 7+3 {
		t.Errorf("refs = %v", got)
	}
}

var sortStrings = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func TestBackfill_NoFetcher(t *testing.T) {
	res, err := New().Backfill(context.Background(), "Genesis", nil, ir.RangeSpec{1, 1, 2, 3})
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2}, res.Unresolved); diff != "" {
		t.Errorf("Unresolved mismatch (-want +got):\n%s", diff)
	}
}

func TestBackfill_Cancelled(t *testing.T) {
	fetcher := &fakeFetcher{lengths: map[int]int{1: 31}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithFetcher(fetcher)).Backfill(ctx, "Genesis", nil, ir.RangeSpec{1, 1, 1, 5})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Backfill error = %v, want context.Canceled", err)
	}
}

func TestMap_Empty(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[int]bool{9: true}}
	_, err := New(WithFetcher(fetcher)).Map(context.Background(), "Exodus", &ir.RawChapterData{}, ir.RangeSpec{9, 1, 9, 5})
	if !errors.Is(err, perrors.ErrEmptyResult) {
		t.Fatalf("Map error = %v, want ErrEmptyResult", err)
	}
	var empty *perrors.EmptyResultError
	if !errors.As(err, &empty) || empty.Book != "Exodus" {
		t.Errorf("error = %#v", err)
	}
}

func TestMap_InvalidSpec(t *testing.T) {
	_, err := New().Map(context.Background(), "Exodus", &ir.RawChapterData{}, ir.RangeSpec{9, 5, 9, 1})
	if !errors.Is(err, perrors.ErrMalformedRange) {
		t.Errorf("Map error = %v, want ErrMalformedRange", err)
	}
}

func TestNormalize(t *testing.T) {
	in := []ir.VerseRecord{
		{Chapter: 2, Verse: 1, Source: "b"},
		{Chapter: 1, Verse: 2, Source: "first"},
		{Chapter: 1, Verse: 1},
		{Chapter: 1, Verse: 2, Source: "second"},
	}
	out := Normalize(in)

	if diff := cmp.Diff([]string{"1:1", "1:2", "2:1"}, refs(out)); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
	if out[1].Source != "first" {
		t.Errorf("duplicate resolution kept %q, want first occurrence", out[1].Source)
	}
	if in[0].Chapter != 2 {
		t.Error("Normalize modified its input")
	}
}

func TestParseVerseHint(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"16:1", 1, true},
		{" 3:5 ", 5, true},
		{"3", 0, false},
		{"3:x", 0, false},
		{"3:0", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseVerseHint(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseVerseHint(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
