package pdfsplit

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/dgallion1/taxgest/internal/chunker"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrMalformedDocument means the bytes do not parse as a PDF.
	ErrMalformedDocument = errors.New("malformed pdf document")
	// ErrPageIndexOutOfRange means a requested page is < 1 or > page count.
	ErrPageIndexOutOfRange = errors.New("page index out of range")
)

var disableConfigDir sync.Once

// Splitter counts, extracts and re-chunks PDF pages. It holds no
// per-document state and is safe for concurrent use.
type Splitter struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Splitter {
	if log == nil {
		log = slog.Default()
	}
	// pdfcpu otherwise writes a config tree under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)
	return &Splitter{log: log}
}

// newConf returns a fresh configuration per call; pdfcpu mutates it.
func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// PageCount returns the number of pages in the document.
func (s *Splitter) PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty input", ErrMalformedDocument)
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), newConf())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("%w: page count: %w", ErrMalformedDocument, err)
	}
	return ctx.PageCount, nil
}

// ExtractPages builds a new document holding exactly the given pages in the
// given order. Pages are 1-indexed.
func (s *Splitter) ExtractPages(data []byte, pages []int) ([]byte, error) {
	total, err := s.PageCount(data)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages requested", ErrPageIndexOutOfRange)
	}

	selection := make([]string, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > total {
			return nil, fmt.Errorf("%w: page %d of %d", ErrPageIndexOutOfRange, p, total)
		}
		selection = append(selection, strconv.Itoa(p))
	}

	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(data), &out, selection, newConf()); err != nil {
		return nil, fmt.Errorf("collect pages: %w", err)
	}
	s.log.Debug("extracted pages", "requested", len(pages), "source_pages", total, "bytes", out.Len())
	return out.Bytes(), nil
}

// SplitIntoChunks partitions the document into contiguous windows of at
// most maxPages pages. A document that already fits is returned as-is
// without being rebuilt.
func (s *Splitter) SplitIntoChunks(data []byte, maxPages int) ([][]byte, error) {
	if maxPages <= 0 {
		return nil, fmt.Errorf("max pages per chunk must be positive, got %d", maxPages)
	}
	total, err := s.PageCount(data)
	if err != nil {
		return nil, err
	}
	if total <= maxPages {
		return [][]byte{data}, nil
	}

	windows := chunker.Windows(chunker.PageRange(1, total), maxPages)
	out := make([][]byte, 0, len(windows))
	for _, w := range windows {
		b, err := s.ExtractPages(data, w.Pages)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", w.Index, err)
		}
		out = append(out, b)
	}
	return out, nil
}
