// Command tfa lists, diffs and extracts Trove file archives.
//
// Usage:
//
//	tfa [flags] list
//	tfa [flags] diff
//	tfa [flags] extract [-mode changes|selected|all] [-select dir]...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/tfa"
	"github.com/meigma/tfa/internal/debounce"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type config struct {
	tfa.Config
	manifest string
	workers  int
	zlib     bool
	verbose  bool
	command  string
	args     []string
}

// locationFlag collects repeated -location label=path values.
type locationFlag []tfa.Location

func (l *locationFlag) String() string {
	parts := make([]string, len(*l))
	for i, loc := range *l {
		parts[i] = loc.Label + "=" + loc.Path
	}
	return strings.Join(parts, ",")
}

func (l *locationFlag) Set(v string) error {
	label, path, ok := strings.Cut(v, "=")
	if !ok {
		label, path = "", v
	}
	if path == "" {
		return errors.New("empty location path")
	}
	*l = append(*l, tfa.Location{Label: label, Path: path})
	return nil
}

// listFlag collects repeated string values.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []tfa.Option{tfa.WithLogger(logger), tfa.WithWorkers(cfg.workers)}
	if cfg.manifest != "" {
		opts = append(opts, tfa.WithManifestPath(cfg.manifest))
	}
	if cfg.zlib {
		opts = append(opts, tfa.WithCodec(tfa.CodecZlib))
	}
	engine, err := cfg.NewEngine(opts...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	switch cfg.command {
	case "list":
		return runList(ctx, engine, stdout, stderr)
	case "diff":
		return runDiff(ctx, engine, stdout, stderr)
	case "extract":
		return runExtract(ctx, cfg, engine, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cfg.command)
		return exitUsage
	}
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	var cfg config
	var locations locationFlag

	fs := flag.NewFlagSet("tfa", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Source, "src", "", "archive root (defaults to the first existing -location)")
	fs.StringVar(&cfg.Destination, "dest", "", "extracted tree to compare with and write to")
	fs.StringVar(&cfg.Snapshots, "snapshots", "", "directory for versioned old/new copies (advanced mode)")
	fs.Var(&locations, "location", "candidate archive root as label=path (repeatable)")
	fs.BoolVar(&cfg.Advanced, "advanced", false, "keep old/new snapshots when extracting changes")
	fs.BoolVar(&cfg.Performance, "performance", false, "skip indexes and archives recorded in the hash manifest")
	fs.StringVar(&cfg.manifest, "manifest", "", "hash manifest path (default <src>/hashes.json)")
	fs.IntVar(&cfg.workers, "workers", 0, "parallel comparisons per archive (0 uses GOMAXPROCS)")
	fs.BoolVar(&cfg.zlib, "zlib", false, "payloads are zlib framed instead of raw deflate")
	fs.BoolVar(&cfg.verbose, "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: tfa [flags] list|diff|extract [extract flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.Locations = locations

	if fs.NArg() == 0 {
		fs.Usage()
		return cfg, errors.New("missing command")
	}
	cfg.command = fs.Arg(0)
	cfg.args = fs.Args()[1:]
	if cfg.Destination == "" {
		return cfg, errors.New("-dest is required")
	}
	return cfg, nil
}

func scan(ctx context.Context, engine *tfa.Engine, stderr io.Writer) (*tfa.Scan, error) {
	p := newProgress(stderr)
	defer p.done()
	return engine.Scan(ctx, tfa.ScanWithProgress(p.report))
}

func runList(ctx context.Context, engine *tfa.Engine, stdout, stderr io.Writer) int {
	s, err := scan(ctx, engine, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	for _, sum := range s.Prioritized() {
		dir := sum.Index.Dir
		if dir == "" {
			dir = "."
		}
		state := fmt.Sprintf("%d changed", sum.Changed)
		if sum.Skipped {
			state = "skipped"
		}
		fmt.Fprintf(stdout, "%-12s %10s  %s\n", state, humanize.Bytes(s.IndexSize(sum.Index)), dir)
	}
	return reportScan(s, stdout)
}

func runDiff(ctx context.Context, engine *tfa.Engine, stdout, stderr io.Writer) int {
	s, err := scan(ctx, engine, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	for _, e := range s.Changed {
		marker := "M"
		if e.Status() == tfa.StatusAdded {
			marker = "A"
		}
		fmt.Fprintf(stdout, "%s %10s  %s\n", marker, humanize.Bytes(uint64(e.Size)), e.Path)
	}
	fmt.Fprintf(stdout, "%d changed files, %s\n", len(s.Changed), humanize.Bytes(s.ChangedSize()))
	return reportScan(s, stdout)
}

func runExtract(ctx context.Context, cfg config, engine *tfa.Engine, stdout, stderr io.Writer) int {
	var (
		modeName string
		dirs     listFlag
	)
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&modeName, "mode", "changes", "changes, selected or all")
	fs.Var(&dirs, "select", "directory to extract (repeatable; defaults to directories with changes)")
	if err := fs.Parse(cfg.args); err != nil {
		return exitUsage
	}
	mode, err := tfa.ParseMode(modeName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	extractOpts, err := cfg.ExtractOptions()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	s, err := scan(ctx, engine, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	sel := s.SelectChanged()
	if len(dirs) > 0 {
		sel, err = s.SelectDirs(dirs...)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
	}

	p := newProgress(stderr)
	extractOpts = append(extractOpts, tfa.ExtractWithProgress(p.report))
	res, err := engine.Extract(ctx, s, mode, sel, extractOpts...)
	p.done()
	if err != nil {
		fmt.Fprintln(stderr, err)
		if res == nil {
			return exitFailure
		}
	}

	fmt.Fprintf(stdout, "%s: wrote %d files (%s)", mode, res.Written, humanize.Bytes(res.Bytes))
	if res.Unwritten > 0 {
		fmt.Fprintf(stdout, ", %d changes not written (enable -advanced to write them)", res.Unwritten)
	}
	fmt.Fprintln(stdout)
	if res.SnapshotDir != "" {
		fmt.Fprintf(stdout, "snapshot: %s\n", res.SnapshotDir)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(stdout, "failed: %v\n", f)
	}
	if res.ManifestErr != nil {
		fmt.Fprintf(stdout, "manifest not saved: %v\n", res.ManifestErr)
	}
	if err != nil || !res.OK() {
		return exitFailure
	}
	return exitOK
}

func reportScan(s *tfa.Scan, stdout io.Writer) int {
	for _, f := range s.Failures {
		fmt.Fprintf(stdout, "failed: %v\n", f)
	}
	if len(s.Failures) > 0 {
		return exitFailure
	}
	return exitOK
}

// progress renders the latest event on one terminal line, at most once per
// refresh interval.
type progress struct {
	w        io.Writer
	debounce *debounce.Debouncer

	mu      sync.Mutex
	printed bool
}

const refreshInterval = 100 * time.Millisecond

func newProgress(w io.Writer) *progress {
	return &progress{w: w, debounce: debounce.New(refreshInterval, debounce.WithMaxWait(refreshInterval))}
}

func (p *progress) report(ev tfa.ProgressEvent) {
	p.debounce.Call(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.printed = true
		if ev.FilesTotal == 0 {
			fmt.Fprintf(p.w, "\r\033[K%s %d %s", ev.Stage, ev.FilesDone, ev.Path)
			return
		}
		fmt.Fprintf(p.w, "\r\033[K%s %3.0f%% %s", ev.Stage, ev.Fraction()*100, ev.Path)
	})
}

func (p *progress) done() {
	p.debounce.Flush()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.w)
	}
}
