// Package deck writes slide groups as an OpenDocument Presentation and
// reads generated decks back.
//
// Each slide carries a centred title and two text frames side by side:
// the source text on the left and the right-to-left target text on the
// right. The page is 13.333in x 7.5in (16:9).
package deck

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/core/xml"
	"github.com/FocuswithJustin/ParashaDeck/internal/validation"
)

// MediaType is the mimetype entry of an .odp package.
const MediaType = "application/vnd.oasis.opendocument.presentation"

// Extension is the file extension of generated decks.
const Extension = ".odp"

// Frame names written on every verse slide.
const (
	FrameTitle  = "Title"
	FrameSource = "Source"
	FrameTarget = "Target"
)

// Style selects fonts and sizes (in points).
type Style struct {
	TitleFont  string
	TitleSize  float64
	SourceFont string
	SourceSize float64
	TargetFont string
	TargetSize float64
}

// DefaultStyle returns the stock fonts.
func DefaultStyle() Style {
	return Style{
		TitleFont:  "Sylfaen",
		TitleSize:  28,
		SourceFont: "Sylfaen",
		SourceSize: 20,
		TargetFont: "Times New Roman",
		TargetSize: 30,
	}
}

// withDefaults fills zero fields from DefaultStyle.
func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.TitleFont == "" {
		s.TitleFont = d.TitleFont
	}
	if s.TitleSize <= 0 {
		s.TitleSize = d.TitleSize
	}
	if s.SourceFont == "" {
		s.SourceFont = d.SourceFont
	}
	if s.SourceSize <= 0 {
		s.SourceSize = d.SourceSize
	}
	if s.TargetFont == "" {
		s.TargetFont = d.TargetFont
	}
	if s.TargetSize <= 0 {
		s.TargetSize = d.TargetSize
	}
	return s
}

// Deck is a presentation ready to be written.
type Deck struct {
	// Title and Subtitle fill an optional cover slide; an empty Title
	// omits it.
	Title    string
	Subtitle string

	Groups []ir.SlideGroup
	Style  Style

	// Created is recorded in meta.xml when set.
	Created time.Time
}

// SlideCount returns the number of slides Write produces.
func (d *Deck) SlideCount() int {
	n := len(d.Groups)
	if d.Title != "" {
		n++
	}
	return n
}

// FileName returns a safe download name for a deck titled title.
func FileName(title string) string {
	name, err := validation.SanitizeFilename(title)
	if err != nil || name == "" {
		name = "parasha"
	}
	if limit := validation.MaxFilenameLength - len(Extension); len(name) > limit {
		name = strings.ToValidUTF8(name[:limit], "")
	}
	return name + Extension
}

// Bytes renders the deck into memory.
func (d *Deck) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the deck as an .odp package.
func (d *Deck) Write(w io.Writer) error {
	zw := zip.NewWriter(w)

	// mimetype must be first and uncompressed, with no extra field, so
	// the media type sits at a fixed offset.
	mw, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return fmt.Errorf("failed to create mimetype entry: %w", err)
	}
	if _, err := io.WriteString(mw, MediaType); err != nil {
		return fmt.Errorf("failed to write mimetype entry: %w", err)
	}

	style := d.Style.withDefaults()
	parts := []struct {
		name string
		body string
	}{
		{"META-INF/manifest.xml", manifestXML},
		{"meta.xml", d.metaXML()},
		{"styles.xml", stylesXML},
		{"content.xml", d.contentXML(style)},
	}
	for _, p := range parts {
		pw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish deck: %w", err)
	}
	return nil
}

const manifestXML = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
  <manifest:file-entry manifest:full-path="/" manifest:media-type="` + MediaType + `"/>
  <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
  <manifest:file-entry manifest:full-path="styles.xml" manifest:media-type="text/xml"/>
  <manifest:file-entry manifest:full-path="meta.xml" manifest:media-type="text/xml"/>
</manifest:manifest>`

const stylesXML = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-styles xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
  xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"
  xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"
  xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0" office:version="1.2">
  <office:automatic-styles>
    <style:page-layout style:name="PM1">
      <style:page-layout-properties fo:margin-top="0in" fo:margin-bottom="0in" fo:margin-left="0in" fo:margin-right="0in" fo:page-width="13.333in" fo:page-height="7.5in" style:print-orientation="landscape"/>
    </style:page-layout>
  </office:automatic-styles>
  <office:master-styles>
    <style:master-page style:name="Default" style:page-layout-name="PM1"/>
  </office:master-styles>
</office:document-styles>`

func (d *Deck) metaXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<office:document-meta xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
  xmlns:dc="http://purl.org/dc/elements/1.1/"
  xmlns:meta="urn:oasis:names:tc:opendocument:xmlns:meta:1.0" office:version="1.2">
  <office:meta>
    <meta:generator>ParashaDeck</meta:generator>
`)
	if d.Title != "" {
		fmt.Fprintf(&b, "    <dc:title>%s</dc:title>\n", xml.EscapeText(d.Title))
	}
	if d.Subtitle != "" {
		fmt.Fprintf(&b, "    <dc:subject>%s</dc:subject>\n", xml.EscapeText(d.Subtitle))
	}
	if !d.Created.IsZero() {
		fmt.Fprintf(&b, "    <meta:creation-date>%s</meta:creation-date>\n", d.Created.UTC().Format("2006-01-02T15:04:05"))
	}
	b.WriteString(`  </office:meta>
</office:document-meta>`)
	return b.String()
}

// frame is a positioned text box in inches.
type frame struct {
	name                string
	x, y, width, height float64
}

var (
	titleFrame  = frame{FrameTitle, 0.5, 0.4, 12.333, 0.75}
	sourceFrame = frame{FrameSource, 0.5, 1.2, 6.0, 5.8}
	targetFrame = frame{FrameTarget, 6.833, 1.2, 6.0, 5.8}
)

func (d *Deck) contentXML(s Style) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
  xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"
  xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"
  xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"
  xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"
  xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"
  xmlns:presentation="urn:oasis:names:tc:opendocument:xmlns:presentation:1.0" office:version="1.2">
`)
	writeFontDecls(&b, s)
	writeAutomaticStyles(&b, s)

	b.WriteString("<office:body>\n<office:presentation>\n")
	n := 0
	if d.Title != "" {
		n++
		writeCover(&b, n, d.Title, d.Subtitle)
	}
	for _, g := range d.Groups {
		n++
		writeSlide(&b, n, g)
	}
	b.WriteString("</office:presentation>\n</office:body>\n</office:document-content>")
	return b.String()
}

func writeFontDecls(b *strings.Builder, s Style) {
	b.WriteString("<office:font-face-decls>\n")
	seen := map[string]bool{}
	for _, f := range []string{s.TitleFont, s.SourceFont, s.TargetFont} {
		if seen[f] {
			continue
		}
		seen[f] = true
		name := xml.EscapeAttr(f)
		fmt.Fprintf(b, `  <style:font-face style:name="%s" svg:font-family="&apos;%s&apos;"/>`+"\n", name, name)
	}
	b.WriteString("</office:font-face-decls>\n")
}

// Paragraph styles: P1 title, P2 source, P3 target. gr1 is the borderless
// frame style shared by all boxes.
func writeAutomaticStyles(b *strings.Builder, s Style) {
	b.WriteString(`<office:automatic-styles>
  <style:style style:name="dp1" style:family="drawing-page"/>
  <style:style style:name="gr1" style:family="graphic">
    <style:graphic-properties draw:stroke="none" draw:fill="none" draw:auto-grow-height="false" fo:wrap-option="wrap"/>
  </style:style>
`)
	fmt.Fprintf(b, `  <style:style style:name="P1" style:family="paragraph">
    <style:paragraph-properties fo:text-align="center"/>
    <style:text-properties style:font-name="%[1]s" fo:font-size="%[2]spt" fo:font-weight="bold"/>
  </style:style>
`, xml.EscapeAttr(s.TitleFont), pt(s.TitleSize))
	fmt.Fprintf(b, `  <style:style style:name="P2" style:family="paragraph">
    <style:paragraph-properties fo:text-align="start" style:writing-mode="lr-tb"/>
    <style:text-properties style:font-name="%[1]s" fo:font-size="%[2]spt"/>
  </style:style>
`, xml.EscapeAttr(s.SourceFont), pt(s.SourceSize))
	fmt.Fprintf(b, `  <style:style style:name="P3" style:family="paragraph">
    <style:paragraph-properties fo:text-align="end" style:writing-mode="rl-tb"/>
    <style:text-properties style:font-name="%[1]s" fo:font-size="%[2]spt" fo:font-weight="bold" style:font-name-complex="%[1]s" style:font-size-complex="%[2]spt" style:font-weight-complex="bold"/>
  </style:style>
`, xml.EscapeAttr(s.TargetFont), pt(s.TargetSize))
	b.WriteString("</office:automatic-styles>\n")
}

func writeCover(b *strings.Builder, n int, title, subtitle string) {
	openPage(b, n)
	writeFrame(b, frame{FrameTitle, 0.5, 2.5, 12.333, 1.2}, "P1", title)
	if subtitle != "" {
		writeFrame(b, frame{"Subtitle", 0.5, 3.9, 12.333, 1.0}, "P1", subtitle)
	}
	b.WriteString("</draw:page>\n")
}

func writeSlide(b *strings.Builder, n int, g ir.SlideGroup) {
	openPage(b, n)
	writeFrame(b, titleFrame, "P1", g.Title)
	writeFrame(b, sourceFrame, "P2", g.SourceText())
	writeFrame(b, targetFrame, "P3", g.TargetText())
	b.WriteString("</draw:page>\n")
}

func openPage(b *strings.Builder, n int) {
	fmt.Fprintf(b, `<draw:page draw:name="Slide%d" draw:style-name="dp1" draw:master-page-name="Default">`+"\n", n)
}

func writeFrame(b *strings.Builder, f frame, paragraphStyle, text string) {
	fmt.Fprintf(b, `  <draw:frame draw:name="%s" draw:style-name="gr1" svg:x="%sin" svg:y="%sin" svg:width="%sin" svg:height="%sin">`+"\n",
		f.name, inch(f.x), inch(f.y), inch(f.width), inch(f.height))
	fmt.Fprintf(b, `    <draw:text-box><text:p text:style-name="%s">%s</text:p></draw:text-box>`+"\n",
		paragraphStyle, xml.EscapeText(text))
	b.WriteString("  </draw:frame>\n")
}

func inch(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func pt(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
