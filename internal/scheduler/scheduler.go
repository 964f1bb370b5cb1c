package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrJobRunning is returned by RunNow while a run of the same job is active
var ErrJobRunning = errors.New("job is already running")

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks. Runs of one job never overlap, whether
// started by a tick or by RunNow.
type Scheduler struct {
	cron       *cron.Cron
	mu         sync.Mutex
	jobs       map[string]cron.EntryID
	running    map[string]*sync.Mutex // survives AddJob replacing an entry
	timezone   *time.Location
	jobTimeout time.Duration
	logger     logrus.FieldLogger
}

// New creates a new scheduler in the given timezone. Each job run is
// bounded by jobTimeout.
func New(timezone string, jobTimeout time.Duration, logger logrus.FieldLogger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:       c,
		jobs:       make(map[string]cron.EntryID),
		running:    make(map[string]*sync.Mutex),
		timezone:   loc,
		jobTimeout: jobTimeout,
		logger:     logger.WithField("component", "scheduler"),
	}, nil
}

// AddJob adds a job with a cron schedule.
// schedule format: "*/5 * * * *" or a descriptor such as "@every 5m"
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	logger := s.logger.WithField("job", name)
	running := s.guard(name)

	entryID, err := s.cron.AddFunc(schedule, func() {
		if !running.TryLock() {
			logger.Info("Skipping scheduled run, previous run still active")
			return
		}
		defer running.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		logger.Debug("Starting job")
		start := time.Now()

		if err := job(ctx); err != nil {
			logger.WithError(err).Warn("Job failed")
		} else {
			logger.WithField("duration", time.Since(start).Round(time.Millisecond)).Debug("Job completed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.mu.Unlock()

	logger.WithField("schedule", schedule).Info("Added job")
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.WithField("job", name).Info("Removed job")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler")
	return s.cron.Stop()
}

// guard returns the lock held while the named job runs
func (s *Scheduler) guard(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.running[name]
	if !ok {
		m = &sync.Mutex{}
		s.running[name] = m
	}
	return m
}

// RunNow immediately executes a job with the scheduler's timeout. It returns
// ErrJobRunning without running job if a run of name is still active.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	running := s.guard(name)
	if !running.TryLock() {
		return fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	defer running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	s.logger.WithField("job", name).Debug("Running job now")
	return job(ctx)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
