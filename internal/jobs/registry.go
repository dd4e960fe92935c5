package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/types"
)

// ErrJobNotFound is returned for unknown or already removed job IDs
var ErrJobNotFound = types.NewAppError(types.ErrJobNotFound, "job not found", nil)

const (
	DefaultGracePeriod   = 30 * time.Second
	DefaultMaxAge        = time.Hour
	DefaultSweepInterval = time.Minute
	DefaultHistoryLimit  = 200
)

// Options configures a Registry. Zero values select the defaults.
type Options struct {
	// GracePeriod is how long a finished job stays queryable
	GracePeriod time.Duration
	// MaxAge removes finished jobs that completed longer ago than this
	MaxAge        time.Duration
	SweepInterval time.Duration
	HistoryLimit  int
	// History persists finished jobs; nil keeps history in memory only
	History HistoryStore
	// Observer is called with a snapshot after every change
	Observer func(Job)
}

// Work is the body of a background job. It reports progress through update
// and returns the produced file names.
type Work func(ctx context.Context, update func(Patch)) ([]string, error)

type entry struct {
	job  Job
	done chan struct{}
}

// Registry holds all live jobs and the history of finished ones. It is safe
// for concurrent use; every read returns a copy.
type Registry struct {
	opts Options

	mu      sync.Mutex
	jobs    map[string]*entry
	history []HistoryEntry
	timers  map[string]*time.Timer

	// saveMu orders history writes so a stale snapshot never overwrites a newer one
	saveMu sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
	now    func() time.Time
}

// NewRegistry creates a registry and loads persisted history
func NewRegistry(opts Options) *Registry {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	r := &Registry{
		opts:   opts,
		jobs:   make(map[string]*entry),
		timers: make(map[string]*time.Timer),
		now:    time.Now,
	}
	if opts.History != nil {
		entries, err := opts.History.Load()
		if err != nil {
			logger.Warn("failed to load job history", logger.Err(err))
		}
		if len(entries) > opts.HistoryLimit {
			entries = entries[:opts.HistoryLimit]
		}
		r.history = entries
	}
	return r
}

// Create registers a pending job and returns its ID
func (r *Registry) Create(kind string, payload Payload) string {
	now := r.now()
	j := Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.jobs[j.ID] = &entry{job: j, done: make(chan struct{})}
	r.mu.Unlock()

	logger.Info("job created",
		logger.String("job", j.ID),
		logger.String("kind", kind),
		logger.String("file", payload.FileName))
	r.notify(j)
	return j.ID
}

// Get returns a copy of the job
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job.clone(), true
}

// Update applies a patch. Unknown and finished jobs are left untouched and
// false is returned. A pending job becomes processing; progress never
// moves backwards.
func (r *Registry) Update(id string, p Patch) bool {
	r.mu.Lock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		r.mu.Unlock()
		return false
	}
	j := &e.job
	if j.Status == StatusPending {
		j.Status = StatusProcessing
	}
	if p.Progress != nil {
		pct := clampPercent(*p.Progress)
		if pct > j.Progress {
			j.Progress = pct
		}
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.TotalPages != nil {
		j.TotalPages = *p.TotalPages
	}
	j.UpdatedAt = r.now()
	snap := j.clone()
	r.mu.Unlock()

	r.notify(snap)
	return true
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Complete moves a job to a terminal status exactly once. Completed jobs get
// progress 100 and the result; failed jobs keep their progress and record
// the error. The job is removed after the grace period.
func (r *Registry) Complete(id string, status Status, result []string, err error) bool {
	if !status.Terminal() {
		logger.Warn("ignoring non-terminal completion", logger.String("job", id), logger.String("status", string(status)))
		return false
	}

	r.mu.Lock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.Terminal() {
		r.mu.Unlock()
		return false
	}
	now := r.now()
	j := &e.job
	j.Status = status
	j.UpdatedAt = now
	j.CompletedAt = &now
	if status == StatusCompleted {
		j.Progress = 100
		j.Result = append([]string(nil), result...)
	} else {
		if err == nil {
			err = errors.New("job failed")
		}
		j.Error = err.Error()
		var reasoner Reasoner
		if errors.As(err, &reasoner) && reasoner.Reason() != "" {
			j.Error = reasoner.Reason()
		}
		j.ErrorKind = string(types.CodeOf(err))
		var details ErrorDetails
		if errors.As(err, &details) {
			j.ErrorKind = details.ErrorKind()
			code := details.ExitStatus()
			j.ExitCode = &code
		}
	}
	close(e.done)
	snap := j.clone()

	r.history = append([]HistoryEntry{historyEntry(snap)}, r.history...)
	if len(r.history) > r.opts.HistoryLimit {
		r.history = r.history[:r.opts.HistoryLimit]
	}
	r.timers[id] = time.AfterFunc(r.opts.GracePeriod, func() { r.remove(id) })
	r.mu.Unlock()

	fields := []logger.Field{
		logger.String("job", id),
		logger.String("status", string(status)),
		logger.Duration("elapsed", snap.Elapsed(now)),
	}
	if status == StatusCompleted {
		logger.Info("job finished", append(fields, logger.Strings("files", snap.Result))...)
	} else {
		logger.Error("job failed", err, fields...)
	}

	r.saveHistory()
	r.notify(snap)
	return true
}

// RunInBackground runs work on its own goroutine and completes the job with
// its outcome. A panic in work fails the job instead of crashing the server.
func (r *Registry) RunInBackground(ctx context.Context, id string, work Work) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Update(id, Patch{})

		result, err := r.runSafely(ctx, id, work)
		if err != nil {
			r.Complete(id, StatusFailed, nil, err)
			return
		}
		r.Complete(id, StatusCompleted, result, nil)
	}()
}

func (r *Registry) runSafely(ctx context.Context, id string, work Work) (result []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("job panicked", fmt.Errorf("%v", p),
				logger.String("job", id),
				logger.String("stack", string(debug.Stack())))
			result, err = nil, types.NewAppError(types.ErrInternal, fmt.Sprintf("internal error: %v", p), nil)
		}
	}()
	return work(ctx, func(p Patch) { r.Update(id, p) })
}

// Wait blocks until the job finishes or ctx is done and returns the final
// snapshot
func (r *Registry) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.job.clone(), nil
}

// Active returns all jobs still held by the registry, oldest first
func (r *Registry) Active() []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job.clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// History returns finished jobs, newest first
func (r *Registry) History() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HistoryEntry, len(r.history))
	for i, h := range r.history {
		h.FileList = append([]string(nil), h.FileList...)
		out[i] = h
	}
	return out
}

// Start launches the sweeper that enforces MaxAge
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// saveHistory persists the current history. The snapshot is taken under
// saveMu so concurrent completions write in order and the last write wins.
func (r *Registry) saveHistory() {
	if r.opts.History == nil {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	history := append([]HistoryEntry(nil), r.history...)
	r.mu.Unlock()

	if err := r.opts.History.Save(history); err != nil {
		logger.Warn("failed to save job history", logger.Err(err))
	}
}

// Sweep removes finished jobs that completed more than MaxAge ago and
// returns how many were removed. Running jobs are never swept.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.opts.MaxAge)
	var stale []string
	r.mu.Lock()
	for id, e := range r.jobs {
		if !e.job.Status.Terminal() || e.job.CompletedAt == nil {
			continue
		}
		if e.job.CompletedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.remove(id)
	}
	return len(stale)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	if t, found := r.timers[id]; found {
		t.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	if ok {
		logger.Debug("job removed", logger.String("job", id))
	}
}

// Close stops the sweeper and pending removals and waits for background work
func (r *Registry) Close() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) notify(j Job) {
	if r.opts.Observer != nil {
		r.opts.Observer(j)
	}
}
