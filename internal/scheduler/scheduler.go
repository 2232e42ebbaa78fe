// Package scheduler runs background maintenance jobs, such as snapshot
// reloads, on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wesm/contractlens/internal/config"
	"github.com/wesm/contractlens/internal/query"
)

// SnapshotReloadJob is the job name used for the snapshot refresh.
const SnapshotReloadJob = "snapshot-reload"

// JobFunc is the callback invoked when a scheduled job fires.
type JobFunc func(ctx context.Context) error

// Reloader swaps in a newer snapshot version when one has been published.
// *snapshot.Store implements it.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// JobStatus represents the state of a scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based background jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // name -> cron entry ID
	funcs     map[string]JobFunc      // name -> callback
	schedules map[string]string       // name -> cron expression
	running   map[string]bool         // name -> currently running
	lastRun   map[string]time.Time    // name -> last successful run
	lastErr   map[string]error        // name -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running job goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

// New creates an empty Scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithParser(newParser())),
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		funcs:     make(map[string]JobFunc),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func newParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddJob schedules fn under name using the given cron expression, replacing
// any job already registered under that name.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.schedules, name)
		delete(s.funcs, name)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[name] {
			s.mu.Unlock()
			return
		}
		s.running[name] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runJob(name)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[name] = entryID
	s.funcs[name] = fn
	s.schedules[name] = cronExpr
	s.logger.Info("scheduled job",
		"job", name,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddSnapshotReload schedules the snapshot refresh from cfg. It reports
// false without error when the refresh schedule is empty.
func (s *Scheduler) AddSnapshotReload(cfg *config.Config, store Reloader) (bool, error) {
	if cfg.Snapshot.RefreshSchedule == "" {
		return false, nil
	}
	if err := s.AddJob(SnapshotReloadJob, cfg.Snapshot.RefreshSchedule, ReloadSnapshot(store, s.logger)); err != nil {
		return false, fmt.Errorf("snapshot refresh: %w", err)
	}
	return true, nil
}

// ReloadSnapshot returns a job that reloads store and records the outcome
// in the snapshot reload metric.
func ReloadSnapshot(store Reloader, logger *slog.Logger) JobFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		swapped, err := store.Reload(ctx)
		switch {
		case err != nil:
			query.SnapshotReloads.WithLabelValues("error").Inc()
			return fmt.Errorf("reload snapshot: %w", err)
		case swapped:
			query.SnapshotReloads.WithLabelValues("swapped").Inc()
		default:
			query.SnapshotReloads.WithLabelValues("unchanged").Inc()
			logger.Debug("snapshot unchanged")
		}
		return nil
	}
}

// RemoveJob removes the schedule for a job.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		delete(s.schedules, name)
		delete(s.funcs, name)
		s.logger.Info("removed schedule", "job", name)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler, cancels running jobs, and returns a context
// that is done when all of them have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runJob executes a job (called by cron or Trigger).
// The caller must have already called wg.Add(1) and set running[name] = true.
func (s *Scheduler) runJob(name string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	s.mu.RLock()
	fn := s.funcs[name]
	s.mu.RUnlock()
	if fn == nil {
		return
	}

	s.logger.Debug("starting scheduled job", "job", name)
	start := time.Now()

	err := fn(s.ctx)

	s.mu.Lock()
	if err != nil {
		s.lastErr[name] = err
		s.logger.Error("scheduled job failed",
			"job", name,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[name] = time.Now()
		s.lastErr[name] = nil
		s.logger.Debug("scheduled job completed",
			"job", name,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled returns true if a job has been registered under name.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[name]
	return exists
}

// Trigger runs a job immediately, outside of its schedule. It fails if the
// job is unknown, already running, or the scheduler has been stopped.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[name]; !exists {
		return fmt.Errorf("job %s is not scheduled", name)
	}
	if s.running[name] {
		return fmt.Errorf("job %s already running", name)
	}

	s.running[name] = true
	s.wg.Add(1)
	go s.runJob(name)
	return nil
}

// Status returns the current status of all scheduled jobs.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []JobStatus
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := JobStatus{
			Name:     name,
			Running:  s.running[name],
			LastRun:  s.lastRun[name],
			NextRun:  entry.Next,
			Schedule: s.schedules[name],
		}
		if err := s.lastErr[name]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := newParser().Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
