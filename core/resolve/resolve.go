// Package resolve runs the verse resolution pipeline: split a named range
// into per-chapter requests, fetch them concurrently, map the responses to
// verses, backfill missing chapters and group the result into slides.
package resolve

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/core/mapping"
	"github.com/FocuswithJustin/ParashaDeck/core/slides"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
)

// Fetcher is the text source consulted for every sub-range.
type Fetcher = mapping.Fetcher

// DefaultConcurrency is the number of fetches a Resolver keeps in flight
// unless configured otherwise.
const DefaultConcurrency = 4

// Resolver turns named ranges into verse sequences.
type Resolver struct {
	fetcher     Fetcher
	clean       mapping.CleanFunc
	concurrency int
	split       bool
	mapper      *mapping.Mapper
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCleaner sets the text cleaner applied to every verse.
func WithCleaner(clean mapping.CleanFunc) Option {
	return func(r *Resolver) { r.clean = clean }
}

// WithConcurrency bounds the fetches in flight for one range.
func WithConcurrency(n int) Option {
	return func(r *Resolver) { r.concurrency = n }
}

// WithSplitting controls whether multi-chapter ranges are fetched one
// chapter at a time. It is on by default.
func WithSplitting(split bool) Option {
	return func(r *Resolver) { r.split = split }
}

// New creates a Resolver reading from fetcher.
func New(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		split:       true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.concurrency = max(r.concurrency, 1)

	mopts := []mapping.Option{
		mapping.WithFetcher(fetcher),
		mapping.WithConcurrency(r.concurrency),
	}
	if r.clean != nil {
		mopts = append(mopts, mapping.WithCleaner(r.clean))
	}
	r.mapper = mapping.New(mopts...)
	return r
}

// Resolve fetches and maps a single named range. Failed sub-fetches become
// gaps that are backfilled; chapters that stay missing are listed in
// Result.Unresolved. An EmptyResultError is returned when nothing resolves.
func (r *Resolver) Resolve(ctx context.Context, nr ir.NamedRange) (*mapping.Result, error) {
	spec := nr.Spec
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	subs := []ir.RangeSpec{spec}
	if r.split {
		subs = ir.Split(spec)
	}

	type fetched struct {
		raw *ir.RawChapterData
		err error
	}
	results := make([]fetched, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			raw, err := r.fetcher.Fetch(gctx, nr.Book, sub.String())
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = fetched{raw: raw, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var verses []ir.VerseRecord
	var warnings []string
	for i, sub := range subs {
		if err := results[i].err; err != nil {
			logging.WarnContext(ctx, "sub-fetch failed", "book", nr.Book, "expr", sub.String(), "error", err)
			warnings = append(warnings, fmt.Sprintf("%s %s: fetch failed: %v", nr.Book, sub.Short(), err))
			continue
		}
		v, w := r.mapper.Collect(nr.Book, results[i].raw, sub)
		verses = append(verses, v...)
		warnings = append(warnings, w...)
	}

	res, err := r.mapper.Backfill(ctx, nr.Book, verses, spec)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)

	if len(res.Verses) == 0 {
		return nil, &errors.EmptyResultError{Book: nr.Book, Range: spec.Short()}
	}
	return res, nil
}

// ResolveAll resolves each range in order and concatenates the verses.
// Overlapping ranges are not de-duplicated: a verse selected twice appears
// twice.
func (r *Resolver) ResolveAll(ctx context.Context, ranges []ir.NamedRange) (*mapping.Result, error) {
	if len(ranges) == 0 {
		return nil, errors.NewValidation("ranges", "at least one range is required")
	}

	out := &mapping.Result{}
	for _, nr := range ranges {
		res, err := r.Resolve(ctx, nr)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", nr, err)
		}
		out.Verses = append(out.Verses, res.Verses...)
		out.Unresolved = append(out.Unresolved, res.Unresolved...)
		out.Warnings = append(out.Warnings, res.Warnings...)
	}
	return out, nil
}

// Slides resolves ranges and groups the verses into slides of at most
// maxPerSlide verses, titled after the ranges.
func (r *Resolver) Slides(ctx context.Context, ranges []ir.NamedRange, maxPerSlide int) ([]ir.SlideGroup, *mapping.Result, error) {
	res, err := r.ResolveAll(ctx, ranges)
	if err != nil {
		return nil, nil, err
	}
	g := slides.Grouper{MaxPerSlide: maxPerSlide, Book: ranges[0].Book}
	return g.Group(res.Verses, ranges), res, nil
}
