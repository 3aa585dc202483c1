// Package scheduler runs publishing jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/blacktop/autopost/internal/logutil"
	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single scheduled run.
const DefaultJobTimeout = 30 * time.Minute

// Job is one scheduled task.
type Job func(ctx context.Context) error

// Scheduler runs named jobs. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron     *cron.Cron
	timezone *time.Location
	timeout  time.Duration

	mu   sync.Mutex
	jobs map[string]cron.EntryID
	ctx  context.Context
}

// New creates a scheduler in the given IANA timezone ("" means UTC).
func New(timezone string) (*Scheduler, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		if loc, err = time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
		}
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	return &Scheduler{
		cron:     c,
		timezone: loc,
		timeout:  DefaultJobTimeout,
		jobs:     make(map[string]cron.EntryID),
		ctx:      context.Background(),
	}, nil
}

// AddJob schedules job with a standard five-field spec, e.g. "0 7 * * *".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(name, job); err != nil {
			logutil.Errorf("[scheduler] job %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	logutil.Infof("[scheduler] added job: %s (schedule: %s, tz: %s)", name, schedule, s.timezone)
	return nil
}

// RemoveJob removes a scheduled job.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Start runs the scheduler until Stop. Jobs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	logutil.Infof("[scheduler] starting with %d job(s)", len(s.ListJobs()))
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	logutil.Infof("[scheduler] stopping")
	return s.cron.Stop()
}

// RunNow executes job immediately with the job timeout applied.
func (s *Scheduler) RunNow(name string, job Job) error {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	logutil.Infof("[scheduler] running job: %s", name)
	start := time.Now()
	if err := job(ctx); err != nil {
		return err
	}
	logutil.Infof("[scheduler] job %s completed in %v", name, time.Since(start).Round(time.Millisecond))
	return nil
}

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ListJobs returns the scheduled jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		infos = append(infos, JobInfo{Name: name, NextRun: entry.Next, LastRun: entry.Prev})
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// cronLogger routes cron's internal messages to logutil.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logutil.Leveled().Debug("[cron] "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logutil.Leveled().Error("[cron] "+msg, append(keysAndValues, "err", err)...)
}
