package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an extraction job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusPlanning   JobStatus = "planning"
	StatusExtracting JobStatus = "extracting"
	StatusResolving  JobStatus = "resolving_year"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single uploaded return.
type Job struct {
	mu sync.Mutex

	ID       string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	// RequestedYear overrides the year found in the document when non-zero.
	RequestedYear int  `json:"requested_year,omitempty"`
	Force         bool `json:"force"`
	Year          int  `json:"year,omitempty"`

	Progress Progress `json:"progress"`

	// Retryable marks a failure caused by a transient upstream error; the
	// same upload may succeed if resubmitted.
	Retryable bool `json:"retryable,omitempty"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	errors   []string
}

// NewJob returns a queued job holding data. A requestedYear of zero means
// the year is taken from the document.
func NewJob(filename string, data []byte, requestedYear int, force bool) *Job {
	now := time.Now()
	return &Job{
		ID:            uuid.NewString(),
		Status:        StatusQueued,
		Phase:         "queued",
		Filename:      filename,
		RequestedYear: requestedYear,
		Force:         force,
		ContentHash:   ContentHashHex(data),
		CreatedAt:     now,
		UpdatedAt:     now,
		fileData:      data,
	}
}

// Progress tracks processing progress.
type Progress struct {
	Path            Path     `json:"path,omitempty"`
	PageCount       int      `json:"page_count"`
	SelectedPages   int      `json:"selected_pages"`
	TotalChunks     int      `json:"total_chunks"`
	ChunksProcessed int      `json:"chunks_processed"`
	Errors          []string `json:"errors"`
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.updatedAt()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) updatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// IncrChunksProcessed atomically increments chunks processed.
func (j *Job) IncrChunksProcessed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksProcessed++
	j.UpdatedAt = time.Now()
}

// SetPlan records how the document was chunked.
func (j *Job) SetPlan(p Plan) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Path = p.Path
	j.Progress.PageCount = p.PageCount
	j.Progress.SelectedPages = len(p.Pages)
	j.Progress.TotalChunks = len(p.Chunks)
	j.UpdatedAt = time.Now()
}

// SetYear records the year the result was stored under.
func (j *Job) SetYear(year int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Year = year
	j.UpdatedAt = time.Now()
}

func (j *Job) markRetryable() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Retryable = true
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseFileData drops the upload once the job is finished with it.
func (j *Job) releaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID            string    `json:"job_id"`
	Status        JobStatus `json:"status"`
	Phase         string    `json:"phase"`
	Filename      string    `json:"filename"`
	RequestedYear int       `json:"requested_year,omitempty"`
	Year          int       `json:"year,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
	Progress      Progress  `json:"progress"`
	Retryable     bool      `json:"retryable,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:            j.ID,
		Status:        j.Status,
		Phase:         j.Phase,
		Filename:      j.Filename,
		RequestedYear: j.RequestedYear,
		Year:          j.Year,
		ContentHash:   j.ContentHash,
		Progress:      p,
		Retryable:     j.Retryable,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
