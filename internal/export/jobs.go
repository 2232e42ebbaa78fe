package export

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wesm/contractlens/internal/query"
)

// Job is one running export.
type Job struct {
	ID        string
	Request   query.Request
	Estimate  Estimate
	StartedAt time.Time

	cancelled atomic.Bool
	rows      atomic.Int64
}

// Cancel asks the streamer to stop at the next batch boundary.
func (j *Job) Cancel() { j.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

// Rows returns how many data rows have been written so far.
func (j *Job) Rows() int64 { return j.rows.Load() }

func (j *Job) addRows(n int) int64 { return j.rows.Add(int64(n)) }

// Status is a point-in-time view of a job.
type Status struct {
	ID            string    `json:"id"`
	RowsEmitted   int64     `json:"rows_emitted"`
	EstimatedRows int64     `json:"estimated_rows"`
	Cancelled     bool      `json:"cancelled"`
	StartedAt     time.Time `json:"started_at"`
}

// Status snapshots the job's progress.
func (j *Job) Status() Status {
	return Status{
		ID:            j.ID,
		RowsEmitted:   j.Rows(),
		EstimatedRows: j.Estimate.RowCount,
		Cancelled:     j.Cancelled(),
		StartedAt:     j.StartedAt,
	}
}

// Jobs is the registry of running exports. A job stays registered only
// while its stream runs; the caller removes it when the stream ends for
// any reason.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobs returns an empty registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*Job)}
}

// Start registers a new job for req.
func (r *Jobs) Start(req query.Request, est Estimate) *Job {
	j := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Estimate:  est,
		StartedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	return j
}

// Get returns the job with id.
func (r *Jobs) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Cancel flags the job with id for cancellation. It reports whether the
// job was found.
func (r *Jobs) Cancel(id string) bool {
	j, ok := r.Get(id)
	if ok {
		j.Cancel()
	}
	return ok
}

// Remove drops the job with id from the registry.
func (r *Jobs) Remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// List returns the status of every running job.
func (r *Jobs) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Status())
	}
	return out
}
