package sefaria

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
)

// textResponse is the subset of /api/texts used here. Text and He are a
// string for a single verse, a flat array for one chapter and a nested
// array for several.
type textResponse struct {
	Ref      string `json:"ref"`
	Book     string `json:"book"`
	Text     any    `json:"text"`
	He       any    `json:"he"`
	Sections []any  `json:"sections"`
	Error    string `json:"error"`
}

func decodeText(reqURL string, body []byte) (*ir.RawChapterData, error) {
	var resp textResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewParse("json", reqURL, err.Error())
	}
	if resp.Error != "" {
		return nil, &errors.UpstreamError{URL: reqURL, Message: resp.Error}
	}

	raw := &ir.RawChapterData{
		Chapters:           normalize(resp.Text),
		TranslatedChapters: normalize(resp.He),
	}
	chapter, verse := sectionStart(resp.Sections)
	if chapter > 0 {
		for i := range raw.BlockCount() {
			raw.ChapterNumberHints = append(raw.ChapterNumberHints, chapter+i)
			start := 1
			if i == 0 {
				start = verse
			}
			raw.VerseStartHints = append(raw.VerseStartHints, fmt.Sprintf("%d:%d", chapter+i, start))
		}
	}
	return raw, nil
}

// normalize coerces a text field into positional chapter blocks.
func normalize(v any) [][]string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return [][]string{{x}}
	case []any:
		nested := false
		for _, e := range x {
			if _, ok := e.([]any); ok {
				nested = true
				break
			}
		}
		if !nested {
			return [][]string{coerceAll(x)}
		}
		blocks := make([][]string, len(x))
		for i, e := range x {
			switch b := e.(type) {
			case []any:
				blocks[i] = coerceAll(b)
			case nil:
				blocks[i] = []string{}
			default:
				blocks[i] = []string{coerce(b)}
			}
		}
		return blocks
	default:
		return [][]string{{coerce(x)}}
	}
}

func coerceAll(xs []any) []string {
	out := make([]string, len(xs))
	for i, e := range xs {
		out[i] = coerce(e)
	}
	return out
}

// coerce turns one verse entry into a string. Some texts split a verse
// into segments; those are joined.
func coerce(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := coerce(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(x)
	}
}

// sectionStart reads the first chapter and verse from "sections". A
// chapter-only reference starts at verse 1.
func sectionStart(sections []any) (chapter, verse int) {
	if len(sections) == 0 {
		return 0, 0
	}
	chapter = toInt(sections[0])
	verse = 1
	if len(sections) > 1 {
		if v := toInt(sections[1]); v > 0 {
			verse = v
		}
	}
	return chapter, verse
}

func toInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
