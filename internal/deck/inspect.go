package deck

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/xml"
)

// maxPartSize bounds a single decompressed package part.
const maxPartSize = 32 << 20

// Slide is one page of an inspected deck.
type Slide struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
}

// Summary describes a deck read back from disk.
type Summary struct {
	Title  string  `json:"title,omitempty"`
	Count  int     `json:"count"`
	Slides []Slide `json:"slides"`
}

// Inspect reads an .odp package and lists its slides.
func Inspect(r io.ReaderAt, size int64) (*Summary, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.NewParse("odp", "", err.Error())
	}
	if len(zr.File) == 0 || zr.File[0].Name != "mimetype" {
		return nil, errors.NewParse("odp", "mimetype", "missing leading mimetype entry")
	}
	mt, err := readPart(zr.File[0])
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(mt)) != MediaType {
		return nil, errors.NewUnsupported("media type", string(mt))
	}

	content, err := openPart(zr, "content.xml")
	if err != nil {
		return nil, err
	}
	doc, err := xml.Parse(content)
	if err != nil {
		return nil, errors.NewParse("xml", "content.xml", err.Error())
	}

	count, err := doc.Count("count(//*[local-name()='page'])")
	if err != nil {
		return nil, err
	}
	pages, err := doc.XPath("//*[local-name()='page']")
	if err != nil {
		return nil, err
	}

	summary := &Summary{Count: count, Slides: make([]Slide, 0, len(pages))}
	for _, page := range pages {
		slide := Slide{Name: page.Attr("draw:name")}
		frames, err := page.XPath("./*[local-name()='frame']")
		if err != nil {
			return nil, err
		}
		for _, f := range frames {
			text := strings.TrimSpace(f.Text())
			switch f.Attr("draw:name") {
			case FrameTitle:
				slide.Title = text
			case FrameSource:
				slide.Source = text
			case FrameTarget:
				slide.Target = text
			}
		}
		summary.Slides = append(summary.Slides, slide)
	}

	if meta, err := openPart(zr, "meta.xml"); err == nil {
		if md, err := xml.Parse(meta); err == nil {
			if t, _ := md.XPathFirst("//*[local-name()='title']"); t != nil {
				summary.Title = strings.TrimSpace(t.Text())
			}
		}
	}
	return summary, nil
}

func openPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return readPart(f)
		}
	}
	return nil, errors.NewNotFound("package part", name)
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if len(data) > maxPartSize {
		return nil, errors.NewValidation(f.Name, "part too large")
	}
	return data, nil
}
