package ir

import (
	"strings"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
)

// SelectSpans picks verses by 1-based flat offsets, in span order. Spans are
// clamped to the length of verses; a span starting past the end selects
// nothing. An empty overall selection is an EmptyResultError.
func SelectSpans(verses []VerseRecord, spans []FlatSpan) ([]VerseRecord, error) {
	var selected []VerseRecord
	labels := make([]string, 0, len(spans))
	for _, span := range spans {
		labels = append(labels, span.String())
		if span.Start < 1 || span.Start > len(verses) {
			continue
		}
		end := min(span.End, len(verses))
		selected = append(selected, verses[span.Start-1:end]...)
	}

	if len(selected) == 0 {
		return nil, &errors.EmptyResultError{Range: strings.Join(labels, ",")}
	}
	return selected, nil
}

// ParseSpans parses a comma-separated list of flat offsets such as
// "1-5,12-20". Chapter-qualified entries are rejected.
func ParseSpans(list string) ([]FlatSpan, error) {
	exprs, err := ParseList(list)
	if err != nil {
		return nil, err
	}
	spans := make([]FlatSpan, 0, len(exprs))
	for _, e := range exprs {
		if e.Grammar != GrammarFlat {
			return nil, errors.NewMalformedRange(e.Raw, "expected flat offsets such as 1-5")
		}
		spans = append(spans, e.Span)
	}
	return spans, nil
}
