package ir

import (
	"encoding/json"
	"errors"
	"testing"

	perrors "github.com/FocuswithJustin/ParashaDeck/core/errors"
)

func TestVerseRefOrdering(t *testing.T) {
	tests := []struct {
		a, b VerseRef
		want int
	}{
		{VerseRef{1, 1}, VerseRef{1, 1}, 0},
		{VerseRef{1, 2}, VerseRef{1, 10}, -1},
		{VerseRef{2, 1}, VerseRef{1, 50}, 1},
		{VerseRef{16, 50}, VerseRef{17, 1}, -1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := tt.a.Less(tt.b); got != (tt.want < 0) {
			t.Errorf("%v.Less(%v) = %v", tt.a, tt.b, got)
		}
	}
}

func TestRangeSpecValidate(t *testing.T) {
	valid := []RangeSpec{{1, 1, 1, 1}, {16, 1, 18, 32}, {3, 5, 3, 7}}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%v) = %v, want nil", s, err)
		}
	}

	invalid := []RangeSpec{{0, 1, 1, 1}, {1, 0, 1, 1}, {2, 1, 1, 5}, {3, 7, 3, 5}}
	for _, s := range invalid {
		if err := s.Validate(); !errors.Is(err, perrors.ErrMalformedRange) {
			t.Errorf("Validate(%v) = %v, want ErrMalformedRange", s, err)
		}
	}
}

func TestRangeSpecBounds(t *testing.T) {
	spec := RangeSpec{16, 5, 18, 32}

	tests := []struct {
		chapter int
		lo, hi  int
	}{
		{16, 5, SentinelMax},
		{17, 1, SentinelMax},
		{18, 1, 32},
	}
	for _, tt := range tests {
		lo, hi := spec.VerseBounds(tt.chapter)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("VerseBounds(%d) = (%d, %d), want (%d, %d)", tt.chapter, lo, hi, tt.lo, tt.hi)
		}
	}

	if got := spec.ForChapter(17).String(); got != "17:1-17:999" {
		t.Errorf("ForChapter(17) = %q, want %q", got, "17:1-17:999")
	}

	single := RangeSpec{3, 5, 3, 7}
	if lo, hi := single.VerseBounds(3); lo != 5 || hi != 7 {
		t.Errorf("VerseBounds(3) = (%d, %d), want (5, 7)", lo, hi)
	}
}

func TestRangeSpecContainsAndChapters(t *testing.T) {
	spec := RangeSpec{16, 5, 18, 32}
	if !spec.Contains(VerseRef{17, 40}) {
		t.Error("interior chapter verse should be contained")
	}
	if spec.Contains(VerseRef{16, 4}) || spec.Contains(VerseRef{18, 33}) {
		t.Error("verses outside the boundary chapters' windows should not be contained")
	}
	if got := spec.Chapters(); len(got) != 3 || got[0] != 16 || got[2] != 18 {
		t.Errorf("Chapters() = %v, want [16 17 18]", got)
	}
}

func TestRangeSpecShort(t *testing.T) {
	tests := []struct {
		spec RangeSpec
		want string
	}{
		{RangeSpec{3, 5, 3, 5}, "3:5"},
		{RangeSpec{3, 5, 3, 7}, "3:5-7"},
		{RangeSpec{16, 1, 18, 32}, "16:1-18:32"},
	}
	for _, tt := range tests {
		if got := tt.spec.Short(); got != tt.want {
			t.Errorf("Short() = %q, want %q", got, tt.want)
		}
	}
}

func TestNamedRangeIncludes(t *testing.T) {
	r := NamedRange{Book: "Genesis", Spec: RangeSpec{1, 1, 1, 5}}
	if !r.Includes(VerseRecord{Book: "Genesis", Chapter: 1, Verse: 3}) {
		t.Error("verse in range should be included")
	}
	if !r.Includes(VerseRecord{Chapter: 1, Verse: 3}) {
		t.Error("verse without a book should match on address")
	}
	if r.Includes(VerseRecord{Book: "Exodus", Chapter: 1, Verse: 3}) {
		t.Error("verse from another book should not be included")
	}
	if got := r.String(); got != "Genesis 1:1-5" {
		t.Errorf("String() = %q, want %q", got, "Genesis 1:1-5")
	}
}

func TestSlideGroupText(t *testing.T) {
	g := SlideGroup{
		Title: "Genesis 1:1-5",
		Verses: []VerseRecord{
			{Chapter: 1, Verse: 1, Source: "In the beginning", Target: "בְּרֵאשִׁית"},
			{Chapter: 1, Verse: 2, Source: "and the earth", Target: "וְהָאָרֶץ"},
			{Chapter: 1, Verse: 5, Source: "and God called", Target: "וַיִּקְרָא"},
		},
		GapsBefore: []int{2},
	}

	if got, want := g.SourceText(), "In the beginning and the earth … and God called"; got != want {
		t.Errorf("SourceText() = %q, want %q", got, want)
	}
	if got, want := g.TargetText(), "בְּרֵאשִׁית וְהָאָרֶץ … וַיִּקְרָא"; got != want {
		t.Errorf("TargetText() = %q, want %q", got, want)
	}
	if g.HasGapBefore(1) || !g.HasGapBefore(2) {
		t.Error("HasGapBefore mismatch")
	}
}

func TestSlideGroupJSON(t *testing.T) {
	g := SlideGroup{Title: "Numbers 16:1-5", Verses: []VerseRecord{{Book: "Numbers", Chapter: 16, Verse: 1, Source: "a", Target: "b"}}}
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	want := `{"title":"Numbers 16:1-5","verses":[{"book":"Numbers","chapter":16,"verse":1,"source":"a","target":"b"}]}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestRawChapterDataBlockCount(t *testing.T) {
	var nilData *RawChapterData
	if nilData.BlockCount() != 0 {
		t.Error("nil data should have zero blocks")
	}
	d := &RawChapterData{Chapters: [][]string{{"a"}}, TranslatedChapters: [][]string{{"a"}, {"b"}}}
	if d.BlockCount() != 2 {
		t.Errorf("BlockCount() = %d, want 2", d.BlockCount())
	}
}
