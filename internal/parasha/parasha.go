// Package parasha assembles a weekly reading: it finds the portion on the
// calendar (or takes an explicit reference), resolves its verses and groups
// them into slides ready for a deck.
package parasha

import (
	"context"
	"strings"
	"time"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/core/mapping"
	"github.com/FocuswithJustin/ParashaDeck/core/resolve"
	"github.com/FocuswithJustin/ParashaDeck/core/slides"
	"github.com/FocuswithJustin/ParashaDeck/internal/deck"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
	"github.com/FocuswithJustin/ParashaDeck/internal/sefaria"
	"github.com/FocuswithJustin/ParashaDeck/internal/validation"
)

// DefaultPreviewVerses is the number of verses shown by Preview when the
// caller asks for none.
const DefaultPreviewVerses = 3

// Calendar looks up the weekly portion for a date.
type Calendar interface {
	Calendar(ctx context.Context, date time.Time) (*sefaria.CalendarEntry, error)
}

// Config wires a Service.
type Config struct {
	Calendar Calendar
	Fetcher  resolve.Fetcher

	// Clean is applied to every verse text; nil keeps texts verbatim.
	Clean mapping.CleanFunc

	Concurrency int
	Split       bool
	MaxPerSlide int
	Style       deck.Style

	// Cover adds a title slide to generated decks.
	Cover bool

	Now func() time.Time
}

// Service builds readings and decks.
type Service struct {
	calendar    Calendar
	resolver    *resolve.Resolver
	maxPerSlide int
	style       deck.Style
	cover       bool
	now         func() time.Time
}

// New creates a Service.
func New(cfg Config) *Service {
	opts := []resolve.Option{resolve.WithSplitting(cfg.Split)}
	if cfg.Concurrency > 0 {
		opts = append(opts, resolve.WithConcurrency(cfg.Concurrency))
	}
	if cfg.Clean != nil {
		opts = append(opts, resolve.WithCleaner(cfg.Clean))
	}
	s := &Service{
		calendar:    cfg.Calendar,
		resolver:    resolve.New(cfg.Fetcher, opts...),
		maxPerSlide: cfg.MaxPerSlide,
		style:       cfg.Style,
		cover:       cfg.Cover,
		now:         cfg.Now,
	}
	if s.maxPerSlide <= 0 {
		s.maxPerSlide = ir.DefaultMaxPerSlide
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Request selects a reading.
type Request struct {
	// WeekOffset moves the calendar lookup by whole weeks from Date.
	WeekOffset int `json:"week,omitempty"`

	// Date anchors the calendar lookup; zero means today.
	Date time.Time `json:"date,omitempty"`

	// Ref is a book-qualified reference such as "Numbers 16:1-18:32". When
	// set, the calendar is not consulted.
	Ref string `json:"ref,omitempty"`

	// Verses narrows the reading. Flat offsets ("1-5,12-20") index the
	// resolved verse sequence; chapter-qualified ranges ("16:1-5") replace
	// the reading's ranges within the same book.
	Verses string `json:"verses,omitempty"`

	MaxPerSlide int `json:"max,omitempty"`
}

// Validate checks request bounds.
func (r Request) Validate() error {
	if err := validation.ValidateIntRange("week", r.WeekOffset, -validation.MaxWeekOffset, validation.MaxWeekOffset); err != nil {
		return errors.NewValidation("week", err.Error())
	}
	if r.MaxPerSlide != 0 {
		if err := validation.ValidateIntRange("max", r.MaxPerSlide, 1, validation.MaxSlideSize); err != nil {
			return errors.NewValidation("max", err.Error())
		}
	}
	if strings.TrimSpace(r.Verses) != "" {
		if err := validation.ValidateRangeList(r.Verses); err != nil {
			return errors.NewValidation("verses", err.Error())
		}
	}
	if len(r.Ref) > validation.MaxRangeListLength+validation.MaxBookLength {
		return errors.NewValidation("ref", "reference too long")
	}
	return nil
}

// Reading is a resolved selection ready for slides.
type Reading struct {
	// Entry is the calendar entry, nil for explicit references.
	Entry *sefaria.CalendarEntry `json:"entry,omitempty"`

	Book   string          `json:"book"`
	Ref    string          `json:"ref"`
	Ranges []ir.NamedRange `json:"ranges"`
	Result *mapping.Result `json:"result"`
	Groups []ir.SlideGroup `json:"groups"`
}

// Title names the reading: the portion name when known, else the reference.
func (r *Reading) Title() string {
	if r.Entry != nil && r.Entry.Title != "" {
		return r.Entry.Title
	}
	return r.Ref
}

// Build resolves req into a Reading.
func (s *Service) Build(ctx context.Context, req Request) (*Reading, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	reading := &Reading{Ref: strings.TrimSpace(req.Ref)}
	if reading.Ref == "" {
		if s.calendar == nil {
			return nil, errors.NewValidation("ref", "a reference is required without a calendar")
		}
		date := req.Date
		if date.IsZero() {
			date = s.now()
		}
		date = date.AddDate(0, 0, 7*req.WeekOffset)
		entry, err := s.calendar.Calendar(ctx, date)
		if err != nil {
			return nil, errors.Wrapf(err, "calendar lookup for %s", date.Format(validation.DateLayout))
		}
		reading.Entry = entry
		reading.Ref = entry.Ref
	}

	ranges, err := ir.ParseReference(reading.Ref)
	if err != nil {
		return nil, err
	}
	reading.Book = ranges[0].Book

	var spans []ir.FlatSpan
	if v := strings.TrimSpace(req.Verses); v != "" {
		exprs, err := ir.ParseList(v)
		if err != nil {
			return nil, err
		}
		if exprs[0].Grammar.ChapterQualified() {
			parts := make([]string, len(exprs))
			for i, e := range exprs {
				parts[i] = e.Raw
			}
			if ranges, err = ir.ParseRanges(reading.Book, parts); err != nil {
				return nil, err
			}
		} else {
			for _, e := range exprs {
				spans = append(spans, e.Span)
			}
		}
	}
	if err := checkRanges(ranges); err != nil {
		return nil, err
	}
	reading.Ranges = ranges

	res, err := s.resolver.ResolveAll(ctx, ranges)
	if err != nil {
		return nil, err
	}
	if spans != nil {
		if res.Verses, err = ir.SelectSpans(res.Verses, spans); err != nil {
			return nil, err
		}
	}
	reading.Result = res

	size := req.MaxPerSlide
	if size <= 0 {
		size = s.maxPerSlide
	}
	g := slides.Grouper{MaxPerSlide: size, Book: reading.Book}
	reading.Groups = g.Group(res.Verses, ranges)

	logging.InfoContext(ctx, "reading built",
		"ref", reading.Ref,
		"verses", len(res.Verses),
		"slides", len(reading.Groups),
		"unresolved", len(res.Unresolved),
	)
	return reading, nil
}

// checkRanges rejects book names and chapter spans no real reading has,
// before anything is fetched.
func checkRanges(ranges []ir.NamedRange) error {
	for _, r := range ranges {
		if err := validation.ValidateBook(r.Book); err != nil {
			return errors.NewValidation("ref", err.Error())
		}
		if err := validation.ValidateChapterSpan(r.Spec.StartChapter, r.Spec.EndChapter); err != nil {
			return errors.NewValidation("ref", err.Error())
		}
	}
	return nil
}

// Deck lays out reading as a presentation.
func (s *Service) Deck(reading *Reading) *deck.Deck {
	d := &deck.Deck{
		Groups:  reading.Groups,
		Style:   s.style,
		Created: s.now(),
	}
	if s.cover {
		d.Title = reading.Title()
		d.Subtitle = reading.Ref
		if reading.Entry != nil && reading.Entry.HebrewTitle != "" {
			d.Subtitle = reading.Entry.HebrewTitle + " · " + reading.Ref
		}
	}
	return d
}

// FileName is the download name for the reading's deck.
func (s *Service) FileName(reading *Reading) string {
	name := reading.Title()
	if reading.Entry != nil && !reading.Entry.Date.IsZero() {
		name += " " + reading.Entry.Date.Format(validation.DateLayout)
	}
	return deck.FileName(name)
}

// Preview is the opening of a reading.
type Preview struct {
	Verses []ir.VerseRecord `json:"verses"`
	Source string           `json:"source"`
	Target string           `json:"target"`
}

// Preview returns the first n verses with their texts joined. n <= 0
// selects DefaultPreviewVerses.
func (s *Service) Preview(reading *Reading, n int) Preview {
	if n <= 0 {
		n = DefaultPreviewVerses
	}
	var verses []ir.VerseRecord
	if reading.Result != nil {
		verses = reading.Result.Verses[:min(n, len(reading.Result.Verses))]
	}
	p := Preview{Verses: verses}
	src := make([]string, 0, len(verses))
	tgt := make([]string, 0, len(verses))
	for _, v := range verses {
		if v.Source != "" {
			src = append(src, v.Source)
		}
		if v.Target != "" {
			tgt = append(tgt, v.Target)
		}
	}
	p.Source = strings.Join(src, " ")
	p.Target = strings.Join(tgt, " ")
	return p
}
