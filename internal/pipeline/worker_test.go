package pipeline

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/taxgest/internal/config"
	"github.com/dgallion1/taxgest/internal/extract"
	"github.com/dgallion1/taxgest/internal/pdfsplit/pdftest"
	"github.com/dgallion1/taxgest/internal/store"
	"github.com/dgallion1/taxgest/internal/taxreturn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "returns.json"), testLog)
	require.NoError(t, err)
	return st
}

func fixedExtraction(body string) *scriptedCapability {
	return &scriptedCapability{
		extract: func(call int, req extract.Request) (string, error) { return body, nil },
	}
}

func runJob(t *testing.T, capability extract.Capability, st *store.Store, job *Job) JobSnapshot {
	t.Helper()
	w := NewWorker(newTestExtractor(capability, nil), st, testLog)
	w.Process(context.Background(), job)
	return job.Snapshot()
}

func TestWorker_StoresUnderExtractedYear(t *testing.T) {
	st := newTestStore(t)
	doc := pdftest.New(3)
	job := NewJob("2023.pdf", doc, 0, false)

	snap := runJob(t, fixedExtraction(`{"year": 2023, "name": "Jordan Smith"}`), st, job)

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2023, snap.Year)
	assert.Equal(t, PathDirect, snap.Progress.Path)
	assert.Equal(t, 1, snap.Progress.ChunksProcessed)
	assert.Nil(t, job.FileData(), "upload released after processing")

	e, ok := st.Get(2023)
	require.True(t, ok)
	assert.Equal(t, "Jordan Smith", e.Record.Name)
	assert.Equal(t, ContentHashHex(doc), e.ContentHash)
	assert.Equal(t, "2023.pdf", e.Filename)
}

func TestWorker_RequestedYearOverridesRecord(t *testing.T) {
	st := newTestStore(t)
	job := NewJob("r.pdf", pdftest.New(2), 2021, false)

	snap := runJob(t, fixedExtraction(`{"year": 2023}`), st, job)

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2021, snap.Year)
	e, ok := st.Get(2021)
	require.True(t, ok)
	assert.Equal(t, 2021, e.Record.Year)
	_, ok = st.Get(2023)
	assert.False(t, ok)
}

func TestWorker_DetectsYearWhenRecordHasNone(t *testing.T) {
	st := newTestStore(t)
	capability := fixedExtraction(`{"name": "Jordan Smith"}`)
	capability.year = func(req extract.Request) (string, error) { return "Tax year 2022", nil }

	snap := runJob(t, capability, st, NewJob("r.pdf", pdftest.New(2), 0, false))

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2022, snap.Year)
	require.Len(t, capability.calls(extract.PurposeYear), 1)
	e, ok := st.Get(2022)
	require.True(t, ok)
	assert.Equal(t, 2022, e.Record.Year)
}

func TestWorker_UnknownYearFails(t *testing.T) {
	st := newTestStore(t)
	capability := fixedExtraction(`{"name": "Jordan Smith"}`)
	capability.year = func(req extract.Request) (string, error) { return "I could not find a year.", nil }

	snap := runJob(t, capability, st, NewJob("r.pdf", pdftest.New(2), 0, false))

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "resolving_year", snap.Phase)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], ErrYearUnknown.Error())
	assert.Empty(t, st.List())
}

func TestWorker_DuplicateRequestedYearSkipsExtraction(t *testing.T) {
	st := newTestStore(t)
	doc := pdftest.New(2)
	require.NoError(t, st.Put(2023, store.Entry{
		Record:      taxreturn.Record{Year: 2023, Name: "original"},
		ContentHash: ContentHashHex(doc),
	}))
	capability := fixedExtraction(`{"year": 2023, "name": "replacement"}`)

	snap := runJob(t, capability, st, NewJob("r.pdf", doc, 2023, false))

	assert.Equal(t, StatusDupSkipped, snap.Status)
	assert.Equal(t, 2023, snap.Year)
	assert.Empty(t, capability.calls(extract.PurposeExtract))
	e, _ := st.Get(2023)
	assert.Equal(t, "original", e.Record.Name)
}

func TestWorker_DuplicateResolvedYearSkipsStore(t *testing.T) {
	st := newTestStore(t)
	doc := pdftest.New(2)
	require.NoError(t, st.Put(2023, store.Entry{
		Record:      taxreturn.Record{Year: 2023, Name: "original"},
		ContentHash: ContentHashHex(doc),
	}))

	snap := runJob(t, fixedExtraction(`{"year": 2023, "name": "replacement"}`), st, NewJob("r.pdf", doc, 0, false))

	assert.Equal(t, StatusDupSkipped, snap.Status)
	e, _ := st.Get(2023)
	assert.Equal(t, "original", e.Record.Name)
}

func TestWorker_ForceReplacesDuplicate(t *testing.T) {
	st := newTestStore(t)
	doc := pdftest.New(2)
	require.NoError(t, st.Put(2023, store.Entry{
		Record:      taxreturn.Record{Year: 2023, Name: "original"},
		ContentHash: ContentHashHex(doc),
	}))

	snap := runJob(t, fixedExtraction(`{"year": 2023, "name": "replacement"}`), st, NewJob("r.pdf", doc, 2023, true))

	assert.Equal(t, StatusCompleted, snap.Status)
	e, _ := st.Get(2023)
	assert.Equal(t, "replacement", e.Record.Name)
}

func TestWorker_DifferentContentSameYearReplaces(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Put(2023, store.Entry{
		Record:      taxreturn.Record{Year: 2023, Name: "original"},
		ContentHash: "other-hash",
	}))

	snap := runJob(t, fixedExtraction(`{"year": 2023, "name": "amended"}`), st, NewJob("r.pdf", pdftest.New(2), 0, false))

	assert.Equal(t, StatusCompleted, snap.Status)
	e, _ := st.Get(2023)
	assert.Equal(t, "amended", e.Record.Name)
}

func TestWorker_ExtractionFailure(t *testing.T) {
	st := newTestStore(t)
	capability := &scriptedCapability{
		extract: func(call int, req extract.Request) (string, error) { return "", errors.New("upstream down") },
	}

	snap := runJob(t, capability, st, NewJob("r.pdf", pdftest.New(2), 0, false))

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "extracting", snap.Phase)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], "upstream down")
	assert.False(t, snap.Retryable)
	assert.Empty(t, st.List())
}

func TestWorker_TransientFailureIsRetryable(t *testing.T) {
	capability := &scriptedCapability{
		extract: func(call int, req extract.Request) (string, error) {
			return "", &extract.RetryableError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
		},
	}

	snap := runJob(t, capability, newTestStore(t), NewJob("r.pdf", pdftest.New(2), 0, false))

	assert.Equal(t, StatusFailed, snap.Status)
	assert.True(t, snap.Retryable)
}

func TestWorker_MalformedDocumentFailsInPlanning(t *testing.T) {
	st := newTestStore(t)
	capability := fixedExtraction(`{"year": 2023}`)

	snap := runJob(t, capability, st, NewJob("r.pdf", []byte("not a pdf"), 0, false))

	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "planning", snap.Phase)
	assert.Empty(t, capability.calls(extract.PurposeExtract))
}

func TestOrchestrator_ProcessesSubmittedJob(t *testing.T) {
	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour}
	st := newTestStore(t)
	o := NewOrchestrator(cfg, newTestExtractor(fixedExtraction(`{"year": 2024}`), nil), st, testLog)
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("r.pdf", pdftest.New(2), 0, false)
	require.NoError(t, o.Submit(job))
	assert.Same(t, job, o.GetJob(job.ID))

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := o.Store().Get(2024)
	assert.True(t, ok)
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, newTestExtractor(fixedExtraction(`{}`), nil), newTestStore(t), testLog)

	require.NoError(t, o.Submit(NewJob("a.pdf", pdftest.New(1), 0, false)))
	assert.Equal(t, 1, o.QueueDepth())

	second := NewJob("b.pdf", pdftest.New(1), 0, false)
	require.Error(t, o.Submit(second))
	snap := second.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "queue_full", snap.Phase)
	assert.NotNil(t, o.GetJob(second.ID))
}
