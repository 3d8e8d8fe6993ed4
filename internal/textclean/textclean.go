// Package textclean turns the HTML-bearing verse strings returned by the
// text API into plain display text.
package textclean

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// wordJoiner is inserted after a literal '<' or '&' that would otherwise
// read as markup, so cleaned text never parses differently a second time.
const wordJoiner = "\u2060"

// maxReferenceLen covers the longest named character reference.
const maxReferenceLen = 40

// Clean strips footnotes and markup from raw, unescapes entities, drops
// stray footnote asterisks, collapses ",," and whitespace runs and returns
// the trimmed NFC-normalized result. Markup is read once: text that only
// looks like markup after unescaping is kept. Clean(Clean(s)) == Clean(s).
func Clean(raw string) string {
	text := raw
	if strings.ContainsAny(raw, "<&") {
		text = extractText(raw)
	}

	text = strings.ReplaceAll(text, "*", "")
	for strings.Contains(text, ",,") {
		text = strings.ReplaceAll(text, ",,", ",")
	}
	text = collapseSpace(text)
	return neutralize(norm.NFC.String(text))
}

// extractText tokenizes s and returns its unescaped text content with
// footnotes, comments and tags removed.
func extractText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder

	// skip names the open footnote element; depth counts its nesting.
	var skip string
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if depth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			z.NextIsNotRawText()
			name, hasAttr := z.TagName()
			tag := string(name)
			switch {
			case depth > 0:
				if tag == skip {
					depth++
				}
			case isFootnote(z, atom.Lookup(name), hasAttr):
				skip, depth = tag, 1
			case tag == "br":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if depth > 0 && string(name) == skip {
				depth--
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if depth == 0 && string(name) == "br" {
				b.WriteByte(' ')
			}
		}
	}
}

// isFootnote matches <sup class="footnote-marker"> and <i class="footnote">.
// It consumes the current tag's attributes.
func isFootnote(z *html.Tokenizer, a atom.Atom, hasAttr bool) bool {
	var class string
	switch a {
	case atom.Sup:
		class = "footnote-marker"
	case atom.I:
		class = "footnote"
	default:
		return false
	}
	for more := hasAttr; more; {
		var key, val []byte
		key, val, more = z.TagAttr()
		if string(key) != "class" {
			continue
		}
		for _, c := range strings.Fields(string(val)) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// neutralize follows every '<' that would open a tag or comment, and every
// '&' that would start a character reference, with a word joiner.
func neutralize(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte(c)
		if (c == '<' && opensTag(s[i+1:])) || (c == '&' && opensReference(s[i:])) {
			b.WriteString(wordJoiner)
		}
	}
	return b.String()
}

// opensTag mirrors the tokenizer: '<' followed by a letter, '/', '!' or '?'
// is not text.
func opensTag(rest string) bool {
	if rest == "" {
		return false
	}
	c := rest[0]
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c == '/' || c == '!' || c == '?'
}

// opensReference reports whether s, which starts with '&', begins with a
// character reference that unescaping would replace.
func opensReference(s string) bool {
	end := len(s)
	if i := strings.IndexByte(s[1:], '&'); i >= 0 {
		end = i + 1
	}
	w := s[:min(end, maxReferenceLen)]
	return html.UnescapeString(w) != w
}
