// Package ir provides the request-scoped representation of a scripture reading:
// verse addresses, verse ranges, verse records and slide groups.
//
// # Core Types
//
//   - VerseRef: a (chapter, verse) address, ordered lexicographically
//   - RangeSpec: a normalized span between two VerseRefs
//   - NamedRange: a RangeSpec bound to a book and the text it was parsed from
//   - VerseRecord: one verse of source text paired with its translation
//   - SlideGroup: a bounded run of same-chapter verses with a display title
//   - RawChapterData: the nested chapter/verse shape returned by the text source
//
// # Range Expressions
//
// ParseExpression accepts three grammars, tried in priority order:
//
//	16:1-18:32   chapter-qualified, cross-chapter
//	3:5-7        chapter-qualified, same chapter
//	1-12         flat offsets into an already-resolved verse list
//
// Split breaks a multi-chapter RangeSpec into per-chapter sub-ranges whose upper
// bound is SentinelMax when the whole remainder of a chapter is wanted.
//
// # Example
//
//	refs, err := ir.ParseReference("Numbers 16:1-18:32")
//	if err != nil {
//	    return err
//	}
//	for _, sub := range ir.Split(refs[0].Spec) {
//	    fmt.Println(sub) // 16:1-16:999, 17:1-17:999, 18:1-18:32
//	}
package ir
