package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dgallion1/taxgest/internal/extract"
	"github.com/dgallion1/taxgest/internal/pdfsplit"
	"github.com/dgallion1/taxgest/internal/pdfsplit/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingCapability struct {
	calls atomic.Int32
	text  string
	err   error
	last  extract.Request
}

func (c *countingCapability) Complete(ctx context.Context, req extract.Request) (string, error) {
	c.calls.Add(1)
	c.last = req
	return c.text, c.err
}

func allPagesJSON(n int, typ FormType) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"page": %d, "type": %q}`, i+1, typ)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestClassify_AtOrBelowThresholdMakesNoCall(t *testing.T) {
	for _, n := range []int{1, 5, 20} {
		t.Run(fmt.Sprintf("%d pages", n), func(t *testing.T) {
			capability := &countingCapability{err: errors.New("must not be called")}
			c := NewClassifier(capability, pdfsplit.New(testLog), 20, testLog)

			got, err := c.Classify(context.Background(), pdftest.New(n))
			require.NoError(t, err)
			require.Len(t, got, n)
			for i, pc := range got {
				assert.Equal(t, PageClassification{Page: i + 1, Type: Other}, pc)
			}
			assert.Equal(t, int32(0), capability.calls.Load())
		})
	}
}

func TestClassify_AboveThresholdCallsOnce(t *testing.T) {
	capability := &countingCapability{text: "Here are the pages:\n" + allPagesJSON(21, FederalForm)}
	c := NewClassifier(capability, pdfsplit.New(testLog), 20, testLog)

	got, err := c.Classify(context.Background(), pdftest.New(21))
	require.NoError(t, err)
	assert.Len(t, got, 21)
	assert.Equal(t, int32(1), capability.calls.Load())
	assert.Equal(t, extract.PurposeClassify, capability.last.Purpose)
	assert.Equal(t, extract.ClassificationPrompt, capability.last.Prompt)
	assert.Nil(t, capability.last.Schema)
}

func TestClassify_UnknownTypesPassThrough(t *testing.T) {
	capability := &countingCapability{text: `[{"page":1,"type":"federal_form"},{"page":2,"type":"mystery_form"}]`}
	c := NewClassifier(capability, pdfsplit.New(testLog), 1, testLog)

	got, err := c.Classify(context.Background(), pdftest.New(2))
	require.NoError(t, err)
	assert.Equal(t, []PageClassification{{1, FederalForm}, {2, FormType("mystery_form")}}, got)
}

func TestClassify_CallFailures(t *testing.T) {
	tests := []struct {
		name string
		cap  *countingCapability
	}{
		{"capability error", &countingCapability{err: errors.New("timeout")}},
		{"empty text", &countingCapability{text: "  \n"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClassifier(tc.cap, pdfsplit.New(testLog), 2, testLog)
			_, err := c.Classify(context.Background(), pdftest.New(3))
			require.ErrorIs(t, err, ErrClassificationCallFailed)
		})
	}
}

func TestClassify_ParseFailures(t *testing.T) {
	for _, text := range []string{
		"I can't classify this document.",
		`[{"page": "one", "type": "other"}]`,
		`[{"page": 1, "type": "other"}`,
	} {
		capability := &countingCapability{text: text}
		c := NewClassifier(capability, pdfsplit.New(testLog), 2, testLog)
		_, err := c.Classify(context.Background(), pdftest.New(3))
		assert.ErrorIs(t, err, ErrClassificationParse, text)
	}
}

func TestClassify_MalformedDocument(t *testing.T) {
	capability := &countingCapability{}
	c := NewClassifier(capability, pdfsplit.New(testLog), 20, testLog)
	_, err := c.Classify(context.Background(), []byte("not a pdf"))
	require.ErrorIs(t, err, pdfsplit.ErrMalformedDocument)
	assert.Equal(t, int32(0), capability.calls.Load())
}

func TestNewClassifier_DefaultThreshold(t *testing.T) {
	c := NewClassifier(&countingCapability{}, pdfsplit.New(testLog), 0, nil)
	assert.Equal(t, DefaultThreshold, c.Threshold())
}

func TestParseClassifications_DropsOutOfRangeAndDuplicates(t *testing.T) {
	got, err := ParseClassifications(`[
		{"page": 0, "type": "other"},
		{"page": 1, "type": "cover_letter"},
		{"page": 2, "type": "federal_form"},
		{"page": 2, "type": "worksheet"},
		{"page": 9, "type": "state_return"}
	]`, 3)
	require.NoError(t, err)
	assert.Equal(t, []PageClassification{{1, CoverLetter}, {2, FederalForm}}, got)
}
