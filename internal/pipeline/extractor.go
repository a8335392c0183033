package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/dgallion1/taxgest/internal/chunker"
	"github.com/dgallion1/taxgest/internal/classify"
	"github.com/dgallion1/taxgest/internal/extract"
	"github.com/dgallion1/taxgest/internal/metrics"
	"github.com/dgallion1/taxgest/internal/pdfsplit"
	"github.com/dgallion1/taxgest/internal/taxreturn"
)

// DefaultMaxPagesPerCall bounds the pages sent in one extraction call.
const DefaultMaxPagesPerCall = 40

// Path names how a document's pages were chosen for extraction.
type Path string

const (
	// PathDirect: small document, split whole without classification.
	PathDirect Path = "direct"
	// PathSelected: classified, selected pages fit in one call.
	PathSelected Path = "selected"
	// PathChunked: classified, selected pages windowed across calls.
	PathChunked Path = "chunked"
	// PathFallback: classification or selection yielded nothing usable;
	// the leading pages of the original document are extracted instead.
	PathFallback Path = "fallback"
)

// Plan is the set of chunks chosen for one document.
type Plan struct {
	Path      Path
	PageCount int
	// Pages lists the original page numbers covered, in chunk order.
	Pages  []int
	Chunks [][]byte
	// Reason explains a fallback.
	Reason string
}

// Observer receives progress from a document run. Either field may be nil.
type Observer struct {
	Planned   func(p Plan)
	ChunkDone func(index, total int)
}

type ExtractorConfig struct {
	Capability        extract.Capability
	Splitter          *pdfsplit.Splitter
	Selector          classify.Selector
	ClassifyThreshold int
	MaxPagesPerCall   int
}

// Extractor runs the classify, select, chunk and extract stages for a
// document. It holds no per-document state and is safe for concurrent use
// when its capability is.
type Extractor struct {
	capability      extract.Capability
	splitter        *pdfsplit.Splitter
	classifier      *classify.Classifier
	selector        classify.Selector
	maxPagesPerCall int
	log             *slog.Logger
}

func NewExtractor(cfg ExtractorConfig, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Splitter == nil {
		cfg.Splitter = pdfsplit.New(log)
	}
	if cfg.Selector == nil {
		cfg.Selector = classify.NewRuleSelector(classify.DefaultRules())
	}
	if cfg.MaxPagesPerCall <= 0 {
		cfg.MaxPagesPerCall = DefaultMaxPagesPerCall
	}
	return &Extractor{
		capability:      cfg.Capability,
		splitter:        cfg.Splitter,
		classifier:      classify.NewClassifier(cfg.Capability, cfg.Splitter, cfg.ClassifyThreshold, log),
		selector:        cfg.Selector,
		maxPagesPerCall: cfg.MaxPagesPerCall,
		log:             log,
	}
}

// Plan decides which pages of pdf are extracted and builds the chunk
// documents. Classification and selection failures are recovered here by
// falling back to the first pages of the original; PDF errors are returned.
func (e *Extractor) Plan(ctx context.Context, pdf []byte) (Plan, error) {
	count, err := e.splitter.PageCount(pdf)
	if err != nil {
		return Plan{}, err
	}

	if count <= e.classifier.Threshold() {
		chunks, err := e.splitter.SplitIntoChunks(pdf, e.maxPagesPerCall)
		if err != nil {
			return Plan{}, fmt.Errorf("split document: %w", err)
		}
		return Plan{
			Path:      PathDirect,
			PageCount: count,
			Pages:     chunker.PageRange(1, count),
			Chunks:    chunks,
		}, nil
	}

	classes, err := e.classifier.Classify(ctx, pdf)
	if err != nil {
		if ctx.Err() != nil {
			return Plan{}, ctx.Err()
		}
		e.log.Warn("classification failed, extracting leading pages", "error", err, "pages", count)
		return e.fallback(pdf, count, fmt.Sprintf("classification: %s", err))
	}

	selected, err := e.selector.Select(classes)
	if err != nil {
		e.log.Warn("page selection failed, extracting leading pages", "error", err)
		return e.fallback(pdf, count, fmt.Sprintf("selection: %s", err))
	}
	if len(selected) == 0 {
		e.log.Warn("page selection empty, extracting leading pages", "classified", len(classes))
		return e.fallback(pdf, count, "selection: no substantive pages")
	}
	if err := checkSelection(selected, count); err != nil {
		e.log.Warn("page selection invalid, extracting leading pages", "error", err)
		return e.fallback(pdf, count, fmt.Sprintf("selection: %s", err))
	}

	if len(selected) <= e.maxPagesPerCall {
		chunk, err := e.splitter.ExtractPages(pdf, selected)
		if err != nil {
			return Plan{}, fmt.Errorf("extract selected pages: %w", err)
		}
		return Plan{
			Path:      PathSelected,
			PageCount: count,
			Pages:     selected,
			Chunks:    [][]byte{chunk},
		}, nil
	}

	windows := chunker.Windows(selected, e.maxPagesPerCall)
	chunks := make([][]byte, 0, len(windows))
	for _, w := range windows {
		chunk, err := e.splitter.ExtractPages(pdf, w.Pages)
		if err != nil {
			return Plan{}, fmt.Errorf("extract window %d: %w", w.Index, err)
		}
		chunks = append(chunks, chunk)
	}
	return Plan{
		Path:      PathChunked,
		PageCount: count,
		Pages:     selected,
		Chunks:    chunks,
	}, nil
}

// checkSelection requires pages to be strictly ascending and within
// 1..count.
func checkSelection(pages []int, count int) error {
	prev := 0
	for _, p := range pages {
		if p < 1 || p > count {
			return fmt.Errorf("page %d outside 1..%d", p, count)
		}
		if p <= prev {
			return fmt.Errorf("page %d not ascending after %d", p, prev)
		}
		prev = p
	}
	return nil
}

func (e *Extractor) fallback(pdf []byte, count int, reason string) (Plan, error) {
	pages := chunker.FirstPages(count, e.maxPagesPerCall)
	chunk := pdf
	if len(pages) < count {
		var err error
		chunk, err = e.splitter.ExtractPages(pdf, pages)
		if err != nil {
			return Plan{}, fmt.Errorf("extract leading pages: %w", err)
		}
	}
	return Plan{
		Path:      PathFallback,
		PageCount: count,
		Pages:     pages,
		Chunks:    [][]byte{chunk},
		Reason:    reason,
	}, nil
}

// Extract plans pdf and extracts one partial record per chunk, in chunk
// order. Calls are sequential and the first failure aborts the document.
func (e *Extractor) Extract(ctx context.Context, pdf []byte, obs *Observer) ([]taxreturn.Record, Plan, error) {
	plan, err := e.Plan(ctx, pdf)
	if err != nil {
		return nil, Plan{}, err
	}
	if obs != nil && obs.Planned != nil {
		obs.Planned(plan)
	}
	e.log.Info("extraction planned",
		"path", plan.Path,
		"pages", plan.PageCount,
		"selected", len(plan.Pages),
		"chunks", len(plan.Chunks),
	)

	partials := make([]taxreturn.Record, 0, len(plan.Chunks))
	for i, chunk := range plan.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, plan, err
		}
		rec, err := extract.ExtractRecord(ctx, e.capability, chunk)
		if err != nil {
			e.log.Error("chunk extraction failed", "chunk", i, "chunks", len(plan.Chunks), "error", err)
			return nil, plan, fmt.Errorf("chunk %d of %d: %w", i+1, len(plan.Chunks), err)
		}
		partials = append(partials, rec)
		if obs != nil && obs.ChunkDone != nil {
			obs.ChunkDone(i, len(plan.Chunks))
		}
	}
	return partials, plan, nil
}

// Result is the outcome of a full document run.
type Result struct {
	Record taxreturn.Record
	Plan   Plan
}

// Process extracts pdf and merges the partials into one record.
func (e *Extractor) Process(ctx context.Context, pdf []byte, obs *Observer) (Result, error) {
	partials, plan, err := e.Extract(ctx, pdf, obs)
	var rec taxreturn.Record
	if err == nil {
		rec, err = taxreturn.Merge(partials)
	}
	path := string(plan.Path)
	if path == "" {
		path = "unplanned"
	}
	metrics.ObserveDocument(path, len(plan.Chunks), err)
	if err != nil {
		return Result{Plan: plan}, err
	}
	return Result{Record: rec, Plan: plan}, nil
}

var yearRe = regexp.MustCompile(`(19|20)\d{2}`)

// DetectYear asks for the tax year using page 1 only. It never fails: any
// error, or a response without a year, reports false.
func (e *Extractor) DetectYear(ctx context.Context, pdf []byte) (int, bool) {
	first, err := e.splitter.ExtractPages(pdf, []int{1})
	if err != nil {
		e.log.Debug("year detection: first page unavailable", "error", err)
		return 0, false
	}
	text, err := e.capability.Complete(ctx, extract.Request{
		Purpose:  extract.PurposeYear,
		Document: first,
		Prompt:   extract.YearPrompt,
	})
	if err != nil {
		e.log.Debug("year detection call failed", "error", err)
		return 0, false
	}
	m := yearRe.FindString(text)
	if m == "" {
		return 0, false
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return year, true
}
