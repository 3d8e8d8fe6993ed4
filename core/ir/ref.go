package ir

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
)

// Grammar identifies which range syntax an expression was written in.
type Grammar int

const (
	// GrammarCrossChapter is "C1:V1-C2:V2".
	GrammarCrossChapter Grammar = iota + 1
	// GrammarSameChapter is "C:V1-V2".
	GrammarSameChapter
	// GrammarFlat is "N1-N2", 1-based offsets into a resolved verse list.
	GrammarFlat
)

func (g Grammar) String() string {
	switch g {
	case GrammarCrossChapter:
		return "cross-chapter"
	case GrammarSameChapter:
		return "same-chapter"
	case GrammarFlat:
		return "flat"
	}
	return "unknown"
}

// ChapterQualified reports whether the grammar carries chapter numbers.
func (g Grammar) ChapterQualified() bool {
	return g == GrammarCrossChapter || g == GrammarSameChapter
}

// FlatSpan is an inclusive 1-based window into an already-resolved verse list.
type FlatSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (f FlatSpan) String() string {
	return fmt.Sprintf("%d-%d", f.Start, f.End)
}

// Expression is the tagged result of parsing one range expression.
// Spec is set for chapter-qualified grammars, Span for GrammarFlat.
type Expression struct {
	Raw     string    `json:"raw"`
	Grammar Grammar   `json:"grammar"`
	Spec    RangeSpec `json:"spec,omitzero"`
	Span    FlatSpan  `json:"span,omitzero"`
}

// rangeGrammar is the participle grammar shared by all three range forms.
// Which optional parts are present decides the Grammar.
// Examples: "16:1-18:32", "3:5-7", "1-12"
//
//nolint:govet // participle grammar tags are not standard struct tags
type rangeGrammar struct {
	Start      int  `@Int`
	StartVerse *int `( ":" @Int )?`
	End        int  `"-" @Int`
	EndVerse   *int `( ":" @Int )?`
}

// rangeLexer defines the lexer for range expressions.
var rangeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// rangeParser is the participle parser for range expressions.
var rangeParser = participle.MustBuild[rangeGrammar](
	participle.Lexer(rangeLexer),
	participle.Elide("Whitespace"),
)

// dashReplacer folds typographic dashes into the ASCII range separator.
var dashReplacer = strings.NewReplacer("–", "-", "—", "-", "‒", "-", "−", "-")

// ParseExpression parses a single range expression.
// Supported formats, in priority order:
//   - "16:1-18:32" (chapter-qualified, cross-chapter)
//   - "3:5-7" (chapter-qualified, same chapter)
//   - "1-12" (flat offsets)
func ParseExpression(expr string) (Expression, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return Expression{}, errors.NewMalformedRange(expr, "empty expression")
	}

	parsed, err := rangeParser.ParseString("", dashReplacer.Replace(raw))
	if err != nil {
		return Expression{}, &errors.MalformedRangeError{Expr: raw, Err: err}
	}

	return classify(raw, parsed)
}

// classify maps the optional parts present in a parse to exactly one grammar.
func classify(raw string, p *rangeGrammar) (Expression, error) {
	switch {
	case p.StartVerse != nil && p.EndVerse != nil:
		spec := RangeSpec{StartChapter: p.Start, StartVerse: *p.StartVerse, EndChapter: p.End, EndVerse: *p.EndVerse}
		if err := spec.Validate(); err != nil {
			return Expression{}, errors.NewMalformedRange(raw, rangeReason(spec))
		}
		return Expression{Raw: raw, Grammar: GrammarCrossChapter, Spec: spec}, nil

	case p.StartVerse != nil:
		spec := RangeSpec{StartChapter: p.Start, StartVerse: *p.StartVerse, EndChapter: p.Start, EndVerse: p.End}
		if err := spec.Validate(); err != nil {
			return Expression{}, errors.NewMalformedRange(raw, rangeReason(spec))
		}
		return Expression{Raw: raw, Grammar: GrammarSameChapter, Spec: spec}, nil

	case p.EndVerse != nil:
		return Expression{}, errors.NewMalformedRange(raw, "end is chapter-qualified but start is not")

	default:
		if p.Start < 1 || p.End < 1 {
			return Expression{}, errors.NewMalformedRange(raw, "offsets must be positive")
		}
		if p.End < p.Start {
			return Expression{}, errors.NewMalformedRange(raw, "range ends before it starts")
		}
		return Expression{Raw: raw, Grammar: GrammarFlat, Span: FlatSpan{Start: p.Start, End: p.End}}, nil
	}
}

func rangeReason(spec RangeSpec) string {
	if !spec.Start().Valid() || !spec.End().Valid() {
		return "chapters and verses must be positive"
	}
	return "range ends before it starts"
}

// ParseList parses a comma-separated list of range expressions. Every entry
// is parsed independently; a list that mixes flat offsets with
// chapter-qualified ranges is rejected with a MixedGrammarError.
func ParseList(list string) ([]Expression, error) {
	if strings.TrimSpace(list) == "" {
		return nil, errors.NewMalformedRange(list, "empty expression")
	}

	parts := strings.Split(list, ",")
	exprs := make([]Expression, 0, len(parts))
	var flat, qualified []string
	for _, part := range parts {
		e, err := ParseExpression(part)
		if err != nil {
			return nil, err
		}
		if e.Grammar == GrammarFlat {
			flat = append(flat, e.Raw)
		} else {
			qualified = append(qualified, e.Raw)
		}
		exprs = append(exprs, e)
	}

	if len(flat) > 0 && len(qualified) > 0 {
		return nil, &errors.MixedGrammarError{Flat: flat, Qualified: qualified}
	}
	return exprs, nil
}

// ParseReference parses a book-qualified reference such as
// "Numbers 16:1-18:32" or "Genesis 1:1-5, 2:10-12" into named ranges,
// preserving their order. Flat offsets are rejected because a named range
// needs chapter attribution.
func ParseReference(ref string) ([]NamedRange, error) {
	book, exprList := splitBook(ref)
	if book == "" {
		return nil, errors.NewMalformedRange(ref, "missing book name")
	}
	if exprList == "" {
		return nil, errors.NewMalformedRange(ref, "missing chapter and verse")
	}
	if strings.ContainsRune(book, ':') {
		return nil, errors.NewMalformedRange(ref, "unexpected text between book name and verses")
	}

	exprs, err := ParseList(exprList)
	if err != nil {
		return nil, err
	}
	return bindBook(ref, book, exprs)
}

// ParseRanges parses a list of separately supplied expressions that all refer
// to the same book, e.g. ["1:1-5", "2:10-12"].
func ParseRanges(book string, exprs []string) ([]NamedRange, error) {
	book = strings.TrimSpace(book)
	if book == "" {
		return nil, errors.NewMalformedRange(strings.Join(exprs, ", "), "missing book name")
	}
	parsed, err := ParseList(strings.Join(exprs, ","))
	if err != nil {
		return nil, err
	}
	return bindBook(strings.Join(exprs, ", "), book, parsed)
}

func bindBook(ref, book string, exprs []Expression) ([]NamedRange, error) {
	ranges := make([]NamedRange, 0, len(exprs))
	for _, e := range exprs {
		if !e.Grammar.ChapterQualified() {
			return nil, errors.NewMalformedRange(ref, "flat offsets need an already-resolved reading")
		}
		ranges = append(ranges, NamedRange{Book: book, Spec: e.Spec, Raw: e.Raw})
	}
	return ranges, nil
}

// splitBook separates the book name from the trailing expression list. The
// expression list is the longest run of trailing whitespace-separated tokens
// that begin with a digit, so "1 Samuel 3:1-5" keeps "1 Samuel" as the book.
// A spaced dash between digits is closed up first: "1:1 - 5" is "1:1-5".
func splitBook(ref string) (book, exprs string) {
	tokens := joinDashes(strings.Fields(ref))
	if len(tokens) == 1 && startsWithDigit(tokens[0]) {
		return "", tokens[0]
	}
	cut := len(tokens)
	for cut > 1 && startsWithDigit(tokens[cut-1]) {
		cut--
	}
	if cut == len(tokens) {
		return strings.Join(tokens, " "), ""
	}
	return strings.Join(tokens[:cut], " "), strings.Join(tokens[cut:], " ")
}

func joinDashes(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if n := len(out); n > 0 {
			prev := out[n-1]
			if strings.HasPrefix(t, "-") && endsWithDigit(prev) ||
				strings.HasSuffix(prev, "-") && endsWithDigit(prev[:len(prev)-1]) && startsWithDigit(t) {
				out[n-1] = prev + t
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func endsWithDigit(s string) bool {
	return s != "" && '0' <= s[len(s)-1] && s[len(s)-1] <= '9'
}

func startsWithDigit(s string) bool {
	for _, r := range s {
		return unicode.IsDigit(r)
	}
	return false
}
