package ir

// Split breaks spec into sub-ranges that each stay within one chapter:
// the remainder of the first chapter, every interior chapter in full, and
// the head of the last chapter. Open upper bounds use SentinelMax. A spec
// that already stays within one chapter is returned unchanged.
func Split(spec RangeSpec) []RangeSpec {
	if spec.SameChapter() || spec.EndChapter < spec.StartChapter {
		return []RangeSpec{spec}
	}

	subs := make([]RangeSpec, 0, spec.EndChapter-spec.StartChapter+1)
	subs = append(subs, RangeSpec{
		StartChapter: spec.StartChapter,
		StartVerse:   spec.StartVerse,
		EndChapter:   spec.StartChapter,
		EndVerse:     SentinelMax,
	})
	for c := spec.StartChapter + 1; c < spec.EndChapter; c++ {
		subs = append(subs, RangeSpec{StartChapter: c, StartVerse: 1, EndChapter: c, EndVerse: SentinelMax})
	}
	subs = append(subs, RangeSpec{
		StartChapter: spec.EndChapter,
		StartVerse:   1,
		EndChapter:   spec.EndChapter,
		EndVerse:     spec.EndVerse,
	})
	return subs
}

// OpenEnded reports whether the spec asks for the rest of its end chapter.
func (s RangeSpec) OpenEnded() bool {
	return s.EndVerse >= SentinelMax
}
