// Package cron runs named maintenance jobs on fixed intervals.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

// Job is a background task. Timeout bounds one run; zero means Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Fn       func(ctx context.Context) error
}

type jobState struct {
	job Job

	mu        sync.Mutex
	status    Status
	lastErr   string
	lastRunAt *time.Time
	nextRunAt time.Time
}

// Snapshot is the observable state of one job.
type Snapshot struct {
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
}

type Scheduler struct {
	mu   sync.RWMutex
	jobs map[string]*jobState
	log  *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{jobs: make(map[string]*jobState), log: log}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &jobState{job: job, status: StatusIdle, nextRunAt: time.Now().Add(job.Interval)}
}

// Start runs every job on its interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, js := range s.jobs {
		go s.loop(ctx, js)
	}
}

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	t := time.NewTicker(js.job.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.execute(ctx, js)
		}
	}
}

// RunNow runs the named job synchronously. A job already in flight is not
// started twice.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	return s.execute(ctx, js)
}

func (s *Scheduler) execute(ctx context.Context, js *jobState) error {
	js.mu.Lock()
	if js.status == StatusRunning {
		js.mu.Unlock()
		return nil
	}
	js.status = StatusRunning
	js.mu.Unlock()

	timeout := js.job.Timeout
	if timeout <= 0 {
		timeout = js.job.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := js.job.Fn(runCtx)

	js.mu.Lock()
	js.lastRunAt = &started
	js.nextRunAt = time.Now().Add(js.job.Interval)
	if err != nil {
		js.status, js.lastErr = StatusFailed, err.Error()
	} else {
		js.status, js.lastErr = StatusOK, ""
	}
	js.mu.Unlock()

	if err != nil {
		s.log.Warn("job failed", zap.String("job", js.job.Name), zap.Error(err))
	} else {
		s.log.Debug("job done", zap.String("job", js.job.Name), zap.Duration("took", time.Since(started)))
	}
	return err
}

// Snapshot lists every job ordered by name.
func (s *Scheduler) Snapshot() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.jobs))
	for _, js := range s.jobs {
		js.mu.Lock()
		out = append(out, Snapshot{
			Name:      js.job.Name,
			Status:    js.status,
			Error:     js.lastErr,
			LastRunAt: js.lastRunAt,
			NextRunAt: js.nextRunAt,
		})
		js.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
