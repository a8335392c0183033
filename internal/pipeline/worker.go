package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/taxgest/internal/extract"
	"github.com/dgallion1/taxgest/internal/metrics"
	"github.com/dgallion1/taxgest/internal/store"
)

// ErrYearUnknown is returned when no tax year could be resolved for a
// finished record.
var ErrYearUnknown = errors.New("tax year could not be determined")

// Worker processes a single return job.
type Worker struct {
	extractor *Extractor
	store     *store.Store
	log       *slog.Logger
}

func NewWorker(extractor *Extractor, st *store.Store, log *slog.Logger) *Worker {
	return &Worker{
		extractor: extractor,
		store:     st,
		log:       log,
	}
}

// Process runs the full ingest pipeline for a job and leaves it in a
// terminal status.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	defer func() {
		job.releaseFileData()
		metrics.Jobs.WithLabelValues(string(job.Snapshot().Status)).Inc()
	}()

	data := job.FileData()

	// Phase 0: Dedup against an explicitly requested year before spending
	// any model calls.
	if job.RequestedYear != 0 && w.isDuplicate(job, job.RequestedYear) {
		log.Info("duplicate return, skipping", "year", job.RequestedYear)
		job.SetYear(job.RequestedYear)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 1: Plan and extract.
	job.SetStatus(StatusPlanning, "planning")
	obs := &Observer{
		Planned: func(p Plan) {
			job.SetPlan(p)
			job.SetStatus(StatusExtracting, "extracting")
		},
		ChunkDone: func(index, total int) {
			job.IncrChunksProcessed()
			log.Debug("chunk extracted", "chunk", index, "chunks", total)
		},
	}
	res, err := w.extractor.Process(ctx, data, obs)
	if err != nil {
		retryable := extract.IsRetryable(err)
		log.Error("extraction failed", "error", err, "retryable", retryable)
		job.AddError(err.Error())
		if retryable {
			job.markRetryable()
		}
		job.SetStatus(StatusFailed, job.Snapshot().Phase)
		return
	}
	log.Info("extraction complete", "path", res.Plan.Path, "chunks", len(res.Plan.Chunks))

	// Phase 2: Resolve the year the record is stored under.
	job.SetStatus(StatusResolving, "resolving_year")
	year, err := w.resolveYear(ctx, job, res, data)
	if err != nil {
		log.Error("year resolution failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "resolving_year")
		return
	}
	job.SetYear(year)
	log = log.With("year", year)

	if job.RequestedYear == 0 && w.isDuplicate(job, year) {
		log.Info("duplicate return, skipping")
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 3: Store.
	job.SetStatus(StatusStoring, "storing")
	rec := res.Record
	rec.Year = year
	err = w.store.Put(year, store.Entry{
		Record:      rec,
		ContentHash: job.ContentHash,
		Filename:    job.Filename,
	})
	if err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}

	log.Info("return stored")
	job.SetStatus(StatusCompleted, "done")
}

func (w *Worker) isDuplicate(job *Job, year int) bool {
	return !job.Force && w.store.HasContent(year, job.ContentHash)
}

// resolveYear prefers the caller's year, then the extracted one, then a
// first-page detection call.
func (w *Worker) resolveYear(ctx context.Context, job *Job, res Result, data []byte) (int, error) {
	if job.RequestedYear != 0 {
		return job.RequestedYear, nil
	}
	if res.Record.Year != 0 {
		return res.Record.Year, nil
	}
	if year, ok := w.extractor.DetectYear(ctx, data); ok {
		return year, nil
	}
	return 0, ErrYearUnknown
}
