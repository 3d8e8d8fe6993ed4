// Command parasha builds bilingual slide decks of the weekly Torah portion.
// It can write decks to disk, print readings, inspect generated decks and
// serve everything over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/ParashaDeck/core/cas"
	corecache "github.com/FocuswithJustin/ParashaDeck/core/cache"
	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/core/sqlite"
	"github.com/FocuswithJustin/ParashaDeck/internal/api"
	"github.com/FocuswithJustin/ParashaDeck/internal/config"
	"github.com/FocuswithJustin/ParashaDeck/internal/deck"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
	"github.com/FocuswithJustin/ParashaDeck/internal/parasha"
	"github.com/FocuswithJustin/ParashaDeck/internal/sefaria"
	"github.com/FocuswithJustin/ParashaDeck/internal/textclean"
	"github.com/FocuswithJustin/ParashaDeck/internal/textstore"
	"github.com/FocuswithJustin/ParashaDeck/internal/validation"
)

const version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Configuration file (.yaml, .yml or .toml)" default:"parasha.yaml" type:"path" env:"PARASHA_CONFIG"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (json, text)"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Generate GenerateCmd `cmd:"" help:"Generate a slide deck (.odp)"`
	Resolve  ResolveCmd  `cmd:"" help:"Print a reading grouped into slides"`
	Preview  PreviewCmd  `cmd:"" help:"Print the opening verses of a reading"`
	Inspect  InspectCmd  `cmd:"" help:"Summarize a generated deck"`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server"`
	Cache    CacheGroup  `cmd:"" help:"Persistent response cache maintenance"`
	Settings ConfigGroup `cmd:"" name:"config" help:"Configuration files"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// ReadingFlags select a reading.
type ReadingFlags struct {
	Week   int    `short:"w" help:"Weeks from the anchor date (negative for past weeks)"`
	Date   string `help:"Anchor date (YYYY-MM-DD), default today"`
	Ref    string `short:"r" help:"Explicit reference, e.g. \"Numbers 16:1-18:32\""`
	Verses string `short:"v" help:"Verse selection: offsets (1-5,12-20) or chapter ranges (16:1-5)"`
	Max    int    `short:"m" help:"Verses per slide (default from config)"`
}

func (f ReadingFlags) request() (parasha.Request, error) {
	return api.ReadingParams{
		Week:   f.Week,
		Date:   f.Date,
		Ref:    f.Ref,
		Verses: f.Verses,
		Max:    f.Max,
	}.Request()
}

// runtime carries the loaded configuration and the resources opened for
// a command.
type runtime struct {
	cfg   *config.Config
	out   io.Writer
	store *textstore.Store
}

func newRuntime(g Globals, out io.Writer) (*runtime, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Logging.Format = g.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	logging.InitLogger(level, format)
	logging.SetOutput(os.Stderr)

	return &runtime{cfg: cfg, out: out}, nil
}

// service wires the upstream client, its caches and the reading service.
func (rt *runtime) service(ctx context.Context, cover bool) (*parasha.Service, error) {
	cfg := rt.cfg
	if cfg.Cache.DBPath != "" && rt.store == nil {
		store, err := textstore.Open(ctx, cfg.Cache.DBPath, cfg.PersistentTTL())
		if err != nil {
			return nil, fmt.Errorf("opening response cache: %w", err)
		}
		rt.store = store
	}

	client := sefaria.New(sefaria.Config{
		BaseURL:           cfg.Sefaria.BaseURL,
		VersionTitle:      cfg.Sefaria.VersionTitle,
		Diaspora:          cfg.Sefaria.Diaspora,
		Timeout:           cfg.SefariaTimeout(),
		RequestsPerSecond: cfg.Sefaria.RequestsPerSecond,
		Burst:             cfg.Sefaria.Burst,
		TextCache: corecache.NewTextCache(corecache.Config{
			MaxSize: cfg.Cache.MaxEntries,
			TTL:     cfg.CacheTTL(),
		}, cfg.Cache.MaxBytes),
		Store:       rt.store,
		CalendarTTL: cfg.CacheTTL(),
	})

	return parasha.New(parasha.Config{
		Calendar:    client,
		Fetcher:     client,
		Clean:       textclean.Clean,
		Concurrency: cfg.Resolve.Concurrency,
		Split:       cfg.Resolve.Split,
		MaxPerSlide: cfg.Deck.MaxPerSlide,
		Style: deck.Style{
			TitleFont:  cfg.Deck.TitleFont,
			TitleSize:  cfg.Deck.TitleSize,
			SourceFont: cfg.Deck.SourceFont,
			SourceSize: cfg.Deck.SourceSize,
			TargetFont: cfg.Deck.TargetFont,
			TargetSize: cfg.Deck.TargetSize,
		},
		Cover: cover || cfg.Deck.Cover,
	}), nil
}

func (rt *runtime) Close() error {
	if rt.store == nil {
		return nil
	}
	return rt.store.Close()
}

func (rt *runtime) build(ctx context.Context, flags ReadingFlags, cover bool) (*parasha.Service, *parasha.Reading, error) {
	req, err := flags.request()
	if err != nil {
		return nil, nil, err
	}
	svc, err := rt.service(ctx, cover)
	if err != nil {
		return nil, nil, err
	}
	reading, err := svc.Build(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range reading.Result.Warnings {
		logging.Warn("resolution warning", "warning", w)
	}
	if len(reading.Result.Unresolved) > 0 {
		logging.Warn("chapters left unresolved", "chapters", reading.Result.Unresolved)
	}
	return svc, reading, nil
}

// GenerateCmd writes a deck to disk.
type GenerateCmd struct {
	ReadingFlags `embed:""`

	Out   string `short:"o" help:"Output file or directory (default: current directory)" type:"path"`
	Cover bool   `help:"Add a title slide"`
}

func (c *GenerateCmd) Run(ctx context.Context, rt *runtime) error {
	svc, reading, err := rt.build(ctx, c.ReadingFlags, c.Cover)
	if err != nil {
		return err
	}

	path := outputPath(c.Out, svc.FileName(reading))
	if err := validation.ValidatePath(path); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	d := svc.Deck(reading)
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write deck: %w", err)
	}

	fmt.Fprintf(rt.out, "Wrote %s (%d slides, %d verses)\n", path, d.SlideCount(), len(reading.Result.Verses))
	return nil
}

// outputPath places name in out when out is empty or a directory.
func outputPath(out, name string) string {
	if out == "" {
		return name
	}
	if strings.HasSuffix(out, string(filepath.Separator)) {
		return filepath.Join(out, name)
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}

// ResolveCmd prints the slides of a reading.
type ResolveCmd struct {
	ReadingFlags `embed:""`

	JSON bool `help:"Print JSON instead of text"`
}

func (c *ResolveCmd) Run(ctx context.Context, rt *runtime) error {
	_, reading, err := rt.build(ctx, c.ReadingFlags, false)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(rt.out, reading)
	}

	fmt.Fprintf(rt.out, "%s (%s)\n", reading.Title(), reading.Ref)
	for _, g := range reading.Groups {
		fmt.Fprintf(rt.out, "\n== %s\n", g.Title)
		for i, v := range g.Verses {
			if g.HasGapBefore(i) {
				fmt.Fprintf(rt.out, "   %s\n", ir.Ellipsis)
			}
			fmt.Fprintf(rt.out, "%3d:%-3d %s\n", v.Chapter, v.Verse, v.Source)
			if v.Target != "" {
				fmt.Fprintf(rt.out, "        %s\n", v.Target)
			}
		}
	}
	return nil
}

// PreviewCmd prints the opening verses of a reading.
type PreviewCmd struct {
	ReadingFlags `embed:""`

	Count int `short:"n" help:"Number of verses (default from config)"`
}

func (c *PreviewCmd) Run(ctx context.Context, rt *runtime) error {
	svc, reading, err := rt.build(ctx, c.ReadingFlags, false)
	if err != nil {
		return err
	}
	n := c.Count
	if n <= 0 {
		n = rt.cfg.Deck.PreviewVerses
	}
	p := svc.Preview(reading, n)

	fmt.Fprintln(rt.out, reading.Title())
	if e := reading.Entry; e != nil {
		if e.HebrewTitle != "" {
			fmt.Fprintln(rt.out, e.HebrewTitle)
		}
		dates := []string{}
		if !e.Date.IsZero() {
			dates = append(dates, e.Date.Format(validation.DateLayout))
		}
		if e.HebrewDate != "" {
			dates = append(dates, e.HebrewDate)
		}
		if len(dates) > 0 {
			fmt.Fprintln(rt.out, strings.Join(dates, " · "))
		}
	}
	fmt.Fprintf(rt.out, "%s\n\n%s\n\n%s\n", reading.Ref, p.Source, p.Target)
	return nil
}

// InspectCmd summarizes a deck file.
type InspectCmd struct {
	Path string `arg:"" help:"Deck to inspect" type:"existingfile"`
	JSON bool   `help:"Print JSON instead of text"`
}

func (c *InspectCmd) Run(rt *runtime) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() > validation.MaxDeckSize {
		return fmt.Errorf("%s is larger than %d bytes", c.Path, validation.MaxDeckSize)
	}
	if ft, err := validation.ValidateFileType(f, c.Path); err != nil || ft != validation.FileTypeODP {
		return fmt.Errorf("%s is not an OpenDocument presentation", c.Path)
	}

	summary, err := deck.Inspect(f, info.Size())
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(rt.out, summary)
	}

	if summary.Title != "" {
		fmt.Fprintln(rt.out, summary.Title)
	}
	fmt.Fprintf(rt.out, "%d slides\n", summary.Count)
	for i, s := range summary.Slides {
		fmt.Fprintf(rt.out, "%3d  %s\n", i+1, s.Title)
	}
	return nil
}

// ServeCmd runs the HTTP server until interrupted.
type ServeCmd struct {
	Port  int  `help:"Override the configured port"`
	Cover bool `help:"Add a title slide to generated decks"`
}

func (c *ServeCmd) Run(ctx context.Context, rt *runtime) error {
	svc, err := rt.service(ctx, c.Cover)
	if err != nil {
		return err
	}
	store, err := cas.NewStore(rt.cfg.Store.Dir)
	if err != nil {
		return err
	}

	sc := rt.cfg.Server
	port := sc.Port
	if c.Port != 0 {
		port = c.Port
	}
	srv := api.New(api.Config{
		Port:              port,
		Version:           version,
		RateLimitRequests: sc.RateLimitRequests,
		RateLimitBurst:    sc.RateLimitBurst,
		AllowedOrigins:    sc.AllowedOrigins,
		Auth:              api.AuthConfig{Enabled: sc.APIKey != "", APIKey: sc.APIKey},
		WriteTimeout:      rt.cfg.WriteTimeout(),
		JobTTL:            rt.cfg.JobTTL(),
		PreviewVerses:     rt.cfg.Deck.PreviewVerses,
	}, svc, store)
	return srv.Start(ctx)
}

// CacheGroup maintains the persistent response cache.
type CacheGroup struct {
	Stats CacheStatsCmd `cmd:"" help:"Show cache size"`
	Prune CachePruneCmd `cmd:"" help:"Delete expired responses"`
}

func openCache(ctx context.Context, rt *runtime) (*textstore.Store, error) {
	if rt.cfg.Cache.DBPath == "" {
		return nil, fmt.Errorf("the persistent cache is disabled (cache.db_path is empty)")
	}
	return textstore.Open(ctx, rt.cfg.Cache.DBPath, rt.cfg.PersistentTTL())
}

type CacheStatsCmd struct{}

func (c *CacheStatsCmd) Run(ctx context.Context, rt *runtime) error {
	store, err := openCache(ctx, rt)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	info := sqlite.GetInfo()
	fmt.Fprintf(rt.out, "%s (%s driver)\n%d responses, %d bytes stored, %d bytes uncompressed\n",
		rt.cfg.Cache.DBPath, info.DriverName, stats.Entries, stats.CompressedBytes, stats.RawBytes)
	return nil
}

type CachePruneCmd struct{}

func (c *CachePruneCmd) Run(ctx context.Context, rt *runtime) error {
	store, err := openCache(ctx, rt)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "Removed %d expired responses\n", n)
	return nil
}

// ConfigGroup manages configuration files.
type ConfigGroup struct {
	Init ConfigInitCmd `cmd:"" help:"Write a default configuration file"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
}

type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" help:"Destination (.yaml or .toml)" default:"parasha.yaml" type:"path"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run(rt *runtime) error {
	if _, err := os.Stat(c.Path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", c.Path)
	}
	if err := config.Default().Save(c.Path); err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "Wrote %s\n", c.Path)
	return nil
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(rt *runtime) error {
	shown := *rt.cfg
	if shown.Server.APIKey != "" {
		shown.Server.APIKey = "********"
	}
	enc := yaml.NewEncoder(rt.out)
	enc.SetIndent(2)
	if err := enc.Encode(&shown); err != nil {
		return err
	}
	return enc.Close()
}

type VersionCmd struct{}

func (c *VersionCmd) Run(rt *runtime) error {
	fmt.Fprintf(rt.out, "parasha version %s (sqlite: %s)\n", version, sqlite.GetInfo().DriverName)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("parasha"),
		kong.Description("ParashaDeck - weekly Torah portion slide decks"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	rt, err := newRuntime(cli.Globals, os.Stdout)
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(rt)
	stop()
	if cerr := rt.Close(); err == nil {
		err = cerr
	}
	kctx.FatalIfErrorf(err)
}
