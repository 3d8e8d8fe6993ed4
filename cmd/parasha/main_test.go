package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/go-cmp/cmp"

	"github.com/FocuswithJustin/ParashaDeck/core/ir"
	"github.com/FocuswithJustin/ParashaDeck/internal/config"
	"github.com/FocuswithJustin/ParashaDeck/internal/deck"
	"github.com/FocuswithJustin/ParashaDeck/internal/parasha"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("parasha"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	if err != nil {
		t.Fatalf("kong.New() error: %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v) error: %v", args, err)
	}
	return &cli, kctx
}

func TestParseCommands(t *testing.T) {
	tests := []struct {
		args    []string
		command string
	}{
		{[]string{"generate"}, "generate"},
		{[]string{"resolve", "--json"}, "resolve"},
		{[]string{"preview", "-n", "5"}, "preview"},
		{[]string{"inspect", "main_test.go"}, "inspect <path>"},
		{[]string{"serve", "--port", "9000"}, "serve"},
		{[]string{"cache", "stats"}, "cache stats"},
		{[]string{"cache", "prune"}, "cache prune"},
		{[]string{"config", "init"}, "config init"},
		{[]string{"config", "show"}, "config show"},
		{[]string{"version"}, "version"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			_, kctx := parse(t, tt.args...)
			if got := kctx.Command(); got != tt.command {
				t.Errorf("Command() = %q, want %q", got, tt.command)
			}
		})
	}
}

func TestParseReadingFlags(t *testing.T) {
	cli, _ := parse(t, "generate", "--week=-2", "--date", "2026-10-19", "-r", "Numbers 16:1-17:2", "-v", "1-5", "-m", "3", "--cover")

	want := ReadingFlags{Week: -2, Date: "2026-10-19", Ref: "Numbers 16:1-17:2", Verses: "1-5", Max: 3}
	if diff := cmp.Diff(want, cli.Generate.ReadingFlags); diff != "" {
		t.Errorf("ReadingFlags mismatch (-want +got):\n%s", diff)
	}
	if !cli.Generate.Cover {
		t.Error("--cover not set")
	}
}

func TestReadingFlagsRequest(t *testing.T) {
	req, err := ReadingFlags{Week: 1, Date: "2026-10-19", Max: 4}.request()
	if err != nil {
		t.Fatalf("request() error: %v", err)
	}
	want := parasha.Request{
		WeekOffset:  1,
		Date:        time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		MaxPerSlide: 4,
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	if _, err := (ReadingFlags{Date: "19/10/2026"}).request(); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		out  string
		want string
	}{
		{"", "Korach.odp"},
		{dir, filepath.Join(dir, "Korach.odp")},
		{"decks" + string(filepath.Separator), filepath.Join("decks", "Korach.odp")},
		{filepath.Join(dir, "custom.odp"), filepath.Join(dir, "custom.odp")},
	}
	for _, tt := range tests {
		if got := outputPath(tt.out, "Korach.odp"); got != tt.want {
			t.Errorf("outputPath(%q) = %q, want %q", tt.out, got, tt.want)
		}
	}
}

func TestNewRuntime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parasha.yaml")
	cfg := config.Default()
	cfg.Deck.MaxPerSlide = 7
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rt, err := newRuntime(Globals{Config: path, LogLevel: "debug"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newRuntime() error: %v", err)
	}
	defer rt.Close()
	if rt.cfg.Deck.MaxPerSlide != 7 || rt.cfg.Logging.Level != "debug" {
		t.Errorf("unexpected config %+v", rt.cfg)
	}

	if _, err := newRuntime(Globals{Config: path, LogLevel: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("expected an invalid log level to be rejected")
	}
}

func TestConfigInit(t *testing.T) {
	var out bytes.Buffer
	rt := &runtime{cfg: config.Default(), out: &out}
	path := filepath.Join(t.TempDir(), "parasha.toml")

	cmd := &ConfigInitCmd{Path: path}
	if err := cmd.Run(rt); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
	if err := cmd.Run(rt); err == nil {
		t.Error("expected an error when the file exists")
	}
	cmd.Force = true
	if err := cmd.Run(rt); err != nil {
		t.Errorf("--force should overwrite: %v", err)
	}
}

func TestConfigShowMasksKey(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Default()
	cfg.Server.APIKey = "0123456789abcdef-secret"
	rt := &runtime{cfg: cfg, out: &out}

	if err := (&ConfigShowCmd{}).Run(rt); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if strings.Contains(out.String(), "secret") {
		t.Error("API key printed in clear")
	}
	if cfg.Server.APIKey == "********" {
		t.Error("masking modified the loaded configuration")
	}
}

func writeDeck(t *testing.T, d *deck.Deck) string {
	t.Helper()
	data, err := d.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "Korach.odp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInspect(t *testing.T) {
	d := &deck.Deck{
		Title: "Korach",
		Groups: []ir.SlideGroup{
			{Title: "Numbers 16:1-2", Verses: []ir.VerseRecord{
				{Book: "Numbers", Chapter: 16, Verse: 1, Source: "Now Korah...", Target: "וַיִּקַּח קֹרַח"},
				{Book: "Numbers", Chapter: 16, Verse: 2, Source: "to rise up", Target: "וַיָּקֻמוּ"},
			}},
			{Title: "Numbers 17:1", Verses: []ir.VerseRecord{
				{Book: "Numbers", Chapter: 17, Verse: 1, Source: "The LORD spoke", Target: "וַיְדַבֵּר"},
			}},
		},
	}
	path := writeDeck(t, d)

	var out bytes.Buffer
	rt := &runtime{cfg: config.Default(), out: &out}
	if err := (&InspectCmd{Path: path}).Run(rt); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	text := out.String()
	for _, want := range []string{"3 slides", "Numbers 16:1-2", "Numbers 17:1"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	if err := (&InspectCmd{Path: path, JSON: true}).Run(rt); err != nil {
		t.Fatalf("Run(--json) error: %v", err)
	}
	var summary deck.Summary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if summary.Count != d.SlideCount() {
		t.Errorf("Count = %d, want %d", summary.Count, d.SlideCount())
	}
}

func TestInspectRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.odp")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := &runtime{cfg: config.Default(), out: &bytes.Buffer{}}
	if err := (&InspectCmd{Path: path}).Run(rt); err == nil {
		t.Error("expected a non-deck file to be rejected")
	}
}

func TestCacheCommandsRequireDB(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.DBPath = ""
	rt := &runtime{cfg: cfg, out: &bytes.Buffer{}}
	if err := (&CacheStatsCmd{}).Run(context.Background(), rt); err == nil {
		t.Error("expected an error with the persistent cache disabled")
	}
}

func TestCacheStatsAndPrune(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.DBPath = filepath.Join(t.TempDir(), "cache", "responses.db")
	var out bytes.Buffer
	rt := &runtime{cfg: cfg, out: &out}
	ctx := context.Background()

	if err := (&CacheStatsCmd{}).Run(ctx, rt); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out.String(), "0 responses") {
		t.Errorf("unexpected stats output %q", out.String())
	}
	out.Reset()
	if err := (&CachePruneCmd{}).Run(ctx, rt); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(out.String(), "Removed 0") {
		t.Errorf("unexpected prune output %q", out.String())
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if err := (&VersionCmd{}).Run(&runtime{out: &out}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "parasha version "+version) {
		t.Errorf("unexpected output %q", out.String())
	}
}
