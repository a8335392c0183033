// Package classify labels the pages of a tax return package by form type and
// selects the pages worth sending to structured extraction.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/taxgest/internal/extract"
)

var (
	// ErrClassificationCallFailed means the capability errored or returned
	// no text.
	ErrClassificationCallFailed = errors.New("classification call failed")
	// ErrClassificationParse means the response held no usable JSON array.
	ErrClassificationParse = errors.New("classification response unparseable")
)

// DefaultThreshold is the page count at or below which documents are not
// classified.
const DefaultThreshold = 20

// FormType is an open set: values outside the constants below are carried
// through unchanged.
type FormType string

const (
	FederalForm        FormType = "federal_form"
	FederalSchedule    FormType = "federal_schedule"
	K1Summary          FormType = "k1_summary"
	K1Detail           FormType = "k1_detail"
	StateReturn        FormType = "state_return"
	StateSchedule      FormType = "state_schedule"
	Worksheet          FormType = "worksheet"
	SourceDocument     FormType = "source_document"
	CoverLetter        FormType = "cover_letter"
	DirectDeposit      FormType = "direct_deposit"
	CarryoverSummary   FormType = "carryover_summary"
	EfileAuthorization FormType = "efile_authorization"
	CryptoDetail       FormType = "crypto_detail"
	Other              FormType = "other"
)

type PageClassification struct {
	Page int      `json:"page"`
	Type FormType `json:"type"`
}

// PageCounter is the part of the PDF splitter the classifier needs.
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

type Classifier struct {
	capability extract.Capability
	pages      PageCounter
	threshold  int
	log        *slog.Logger
}

// NewClassifier returns a classifier. A non-positive threshold selects
// DefaultThreshold.
func NewClassifier(capability extract.Capability, pages PageCounter, threshold int, log *slog.Logger) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{
		capability: capability,
		pages:      pages,
		threshold:  threshold,
		log:        log,
	}
}

// Threshold returns the page count at or below which Classify makes no call.
func (c *Classifier) Threshold() int {
	return c.threshold
}

// Classify labels every page of pdf. Documents at or below the threshold get
// one Other label per page without a capability call.
func (c *Classifier) Classify(ctx context.Context, pdf []byte) ([]PageClassification, error) {
	count, err := c.pages.PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if count <= c.threshold {
		out := make([]PageClassification, count)
		for i := range out {
			out[i] = PageClassification{Page: i + 1, Type: Other}
		}
		return out, nil
	}

	text, err := c.capability.Complete(ctx, extract.Request{
		Purpose:  extract.PurposeClassify,
		Document: pdf,
		Prompt:   extract.ClassificationPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassificationCallFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrClassificationCallFailed)
	}

	classes, err := ParseClassifications(text, count)
	if err != nil {
		return nil, err
	}
	c.log.Debug("pages classified", "pages", count, "labels", len(classes))
	return classes, nil
}

// ParseClassifications reads the first JSON array in text. Entries outside
// 1..pageCount and repeated pages are dropped; the first label for a page
// wins. A non-positive pageCount disables the range check.
func ParseClassifications(text string, pageCount int) ([]PageClassification, error) {
	raw, ok := extract.FindJSON(text, '[')
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrClassificationParse)
	}
	var entries []PageClassification
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassificationParse, err)
	}

	seen := make(map[int]struct{}, len(entries))
	out := make([]PageClassification, 0, len(entries))
	for _, e := range entries {
		if e.Page < 1 || (pageCount > 0 && e.Page > pageCount) {
			continue
		}
		if _, dup := seen[e.Page]; dup {
			continue
		}
		seen[e.Page] = struct{}{}
		e.Type = FormType(strings.TrimSpace(string(e.Type)))
		out = append(out, e)
	}
	return out, nil
}
