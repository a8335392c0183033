// Command taxgest extracts structured records from tax return PDFs on the
// command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dgallion1/taxgest/internal/config"
	"github.com/dgallion1/taxgest/internal/export"
	"github.com/dgallion1/taxgest/internal/extract"
	"github.com/dgallion1/taxgest/internal/pdfsplit"
	"github.com/dgallion1/taxgest/internal/pipeline"
	"github.com/dgallion1/taxgest/internal/store"
	"github.com/dgallion1/taxgest/internal/taxreturn"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type options struct {
	yearOnly bool
	pages    bool
	xlsxDir  string
	save     bool
	year     int
	force    bool
	parallel int
	preview  int
	logLevel string
}

type pageView struct {
	Page    int    `json:"page"`
	Preview string `json:"preview"`
}

// result is the per-file output, emitted in argument order.
type result struct {
	File      string                `json:"file"`
	Year      int                   `json:"year,omitempty"`
	PageCount int                   `json:"page_count,omitempty"`
	Pages     []pageView            `json:"pages,omitempty"`
	Path      pipeline.Path         `json:"path,omitempty"`
	Record    *taxreturn.Record     `json:"record,omitempty"`
	Job       *pipeline.JobSnapshot `json:"job,omitempty"`
	Workbook  string                `json:"workbook,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	fs := pflag.NewFlagSet("taxgest", pflag.ContinueOnError)
	fs.BoolVar(&opts.yearOnly, "year-only", false, "Only detect the tax year from page 1")
	fs.BoolVar(&opts.pages, "pages", false, "Print page count and a text preview per page; no model calls")
	fs.StringVar(&opts.xlsxDir, "xlsx", "", "Write an XLSX workbook per file into this directory")
	fs.BoolVar(&opts.save, "save", false, "Store each record in the record store under its tax year")
	fs.IntVar(&opts.year, "year", 0, "Tax year to store under, overriding the document (with --save)")
	fs.BoolVar(&opts.force, "force", false, "Replace a stored record even when the content is unchanged (with --save)")
	fs.IntVar(&opts.parallel, "parallel", 2, "Documents processed at once")
	fs.IntVar(&opts.preview, "preview", 80, "Preview length in characters (with --pages)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: taxgest [flags] return.pdf [return.pdf ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	files := fs.Args()
	if len(files) == 0 {
		fs.Usage()
		return 2
	}
	if opts.parallel <= 0 {
		opts.parallel = 1
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := &runner{opts: opts, log: log, splitter: pdfsplit.New(log)}
	if !opts.pages {
		if cfg.AnthropicAPIKey == "" {
			fmt.Fprintln(os.Stderr, "ANTHROPIC_API_KEY is required")
			return 2
		}
		claude := extract.NewClaudeClient(extract.ClaudeConfig{
			APIKey:          cfg.AnthropicAPIKey,
			Model:           cfg.AnthropicModel,
			BaseURL:         cfg.AnthropicBaseURL,
			MaxTokens:       cfg.AnthropicMaxTokens,
			Timeout:         cfg.LLMTimeout,
			RatePerMinute:   cfg.LLMRatePerMinute,
			BreakerFailures: cfg.LLMBreakerFailures,
		}, log)
		defer claude.Close()
		r.extractor = pipeline.NewExtractor(pipeline.ExtractorConfig{
			Capability:        claude,
			Splitter:          r.splitter,
			ClassifyThreshold: cfg.ClassifyThreshold,
			MaxPagesPerCall:   cfg.MaxPagesPerCall,
		}, log)
	}
	if opts.save && !opts.pages && !opts.yearOnly {
		st, err := store.Open(cfg.StorePath, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, "record store:", err)
			return 1
		}
		r.worker = pipeline.NewWorker(r.extractor, st, log)
		r.store = st
	}

	// Documents are independent: one failure never cancels the others.
	results := make([]result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallel)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			results[i] = r.processFile(gctx, file)
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var out any = results
	if len(results) == 1 {
		out = results[0]
	}
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, "write output:", err)
		return 1
	}

	for _, res := range results {
		if res.Error != "" {
			return 1
		}
	}
	return 0
}

type runner struct {
	opts      options
	log       *slog.Logger
	splitter  *pdfsplit.Splitter
	extractor *pipeline.Extractor
	worker    *pipeline.Worker
	store     *store.Store
}

func (r *runner) processFile(ctx context.Context, file string) result {
	res := result{File: file}
	log := r.log.With("file", file)

	data, err := os.ReadFile(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	switch {
	case r.opts.pages:
		err = r.describePages(data, &res)
	case r.opts.yearOnly:
		year, ok := r.extractor.DetectYear(ctx, data)
		if !ok {
			err = pipeline.ErrYearUnknown
		}
		res.Year = year
	case r.worker != nil:
		err = r.saveRecord(ctx, file, data, &res)
	default:
		err = r.extractRecord(ctx, data, &res)
	}
	if err != nil {
		log.Error("processing failed", "error", err)
		res.Error = err.Error()
		return res
	}

	if res.Record != nil && r.opts.xlsxDir != "" {
		path, err := r.writeWorkbook(file, *res.Record)
		if err != nil {
			log.Error("workbook export failed", "error", err)
			res.Error = err.Error()
			return res
		}
		res.Workbook = path
	}
	return res
}

func (r *runner) describePages(data []byte, res *result) error {
	count, err := r.splitter.PageCount(data)
	if err != nil {
		return err
	}
	res.PageCount = count
	texts, err := pdfsplit.PageTexts(data)
	if err != nil {
		// The text layer is optional; scanned returns have none.
		r.log.Warn("text layer unavailable", "error", err)
		return nil
	}
	for _, pt := range texts {
		res.Pages = append(res.Pages, pageView{Page: pt.Page, Preview: pt.Preview(r.opts.preview)})
	}
	return nil
}

func (r *runner) extractRecord(ctx context.Context, data []byte, res *result) error {
	out, err := r.extractor.Process(ctx, data, nil)
	if err != nil {
		return err
	}
	res.Path = out.Plan.Path
	res.Year = out.Record.Year
	res.Record = &out.Record
	return nil
}

// saveRecord runs the same job pipeline the server uses, so year resolution
// and duplicate detection behave identically.
func (r *runner) saveRecord(ctx context.Context, file string, data []byte, res *result) error {
	job := pipeline.NewJob(filepath.Base(file), data, r.opts.year, r.opts.force)
	r.worker.Process(ctx, job)
	snap := job.Snapshot()
	res.Job = &snap
	res.Year = snap.Year
	res.Path = snap.Progress.Path

	switch snap.Status {
	case pipeline.StatusCompleted, pipeline.StatusDupSkipped:
		if e, ok := r.store.Get(snap.Year); ok {
			res.Record = &e.Record
		}
		return nil
	default:
		return fmt.Errorf("job %s in %s: %s", snap.Status, snap.Phase, strings.Join(snap.Progress.Errors, "; "))
	}
}

func (r *runner) writeWorkbook(file string, rec taxreturn.Record) (string, error) {
	data, err := export.Workbook(rec)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.opts.xlsxDir, 0o755); err != nil {
		return "", fmt.Errorf("create xlsx dir: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)) + ".xlsx"
	path := filepath.Join(r.opts.xlsxDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	return path, nil
}
