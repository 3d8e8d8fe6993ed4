package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplit_ThreeChapters(t *testing.T) {
	subs := Split(RangeSpec{16, 1, 18, 32})

	got := make([]string, 0, len(subs))
	for _, s := range subs {
		got = append(got, s.String())
	}
	want := []string{"16:1-16:999", "17:1-17:999", "18:1-18:32"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Split mismatch (-want +got):\n%s", diff)
	}
}

func TestSplit_SameChapter(t *testing.T) {
	spec := RangeSpec{3, 5, 3, 7}
	got := Split(spec)
	if len(got) != 1 || got[0] != spec {
		t.Errorf("Split(%v) = %v, want unchanged", spec, got)
	}
}

func TestSplit_AdjacentChapters(t *testing.T) {
	got := Split(RangeSpec{4, 10, 5, 3})
	want := []RangeSpec{{4, 10, 4, SentinelMax}, {5, 1, 5, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Split mismatch (-want +got):\n%s", diff)
	}
}

// flatten expands specs into addresses, resolving SentinelMax against real
// chapter lengths.
func flatten(specs []RangeSpec, lengths map[int]int) []VerseRef {
	var refs []VerseRef
	for _, s := range specs {
		for c := s.StartChapter; c <= s.EndChapter; c++ {
			lo, hi := s.VerseBounds(c)
			hi = min(hi, lengths[c])
			for v := lo; v <= hi; v++ {
				refs = append(refs, VerseRef{Chapter: c, Verse: v})
			}
		}
	}
	return refs
}

func TestSplit_PartitionsSpan(t *testing.T) {
	lengths := map[int]int{1: 31, 2: 25, 3: 24, 4: 26, 5: 32, 6: 22}
	specs := []RangeSpec{
		{1, 1, 1, 31},
		{1, 5, 2, 3},
		{1, 31, 2, 1},
		{2, 10, 5, 7},
		{1, 1, 6, 22},
		{3, 24, 4, 1},
	}

	for _, spec := range specs {
		t.Run(spec.String(), func(t *testing.T) {
			subs := Split(spec)
			for _, sub := range subs {
				if !sub.SameChapter() {
					t.Errorf("sub-range %v spans chapters", sub)
				}
			}

			want := flatten([]RangeSpec{spec}, lengths)
			got := flatten(subs, lengths)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("split does not partition the span (-want +got):\n%s", diff)
			}

			seen := make(map[VerseRef]bool)
			for _, ref := range got {
				if seen[ref] {
					t.Errorf("verse %v covered twice", ref)
				}
				seen[ref] = true
			}
		})
	}
}

func TestOpenEnded(t *testing.T) {
	if !(RangeSpec{17, 1, 17, SentinelMax}).OpenEnded() {
		t.Error("sentinel upper bound should be open-ended")
	}
	if (RangeSpec{18, 1, 18, 32}).OpenEnded() {
		t.Error("explicit upper bound should not be open-ended")
	}
}
