package join

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dclake/internal/domain"
)

// ScheduledJoin is one registered cron entry.
type ScheduledJoin struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
}

// Scheduler runs joins that carry a cron schedule. Each trigger runs the
// join (and, with AutoProcess, its missing upstream joins) with overwrite
// enabled. Runs never overlap since the service shares one engine session.
type Scheduler struct {
	cron    *cron.Cron
	svc     *Service
	project string
	opts    RunOptions
	logger  *slog.Logger

	run     sync.Mutex
	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	specs   map[string]string
}

// NewScheduler creates a scheduler for the named project. opts supplies
// AutoProcess and SampleSize for every triggered run.
func NewScheduler(svc *Service, projectName string, opts RunOptions, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:     svc,
		project: projectName,
		opts:    opts,
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}
}

// Start registers the project's scheduled joins and starts the cron loop.
// Triggered runs use ctx; cancelling it aborts runs in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("join scheduler started", "joins", len(s.Entries()))
	return nil
}

// Stop halts the cron loop and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("join scheduler stopped")
}

// Reload replaces all cron entries with the project's current schedules.
// Joins with an invalid expression are logged and skipped.
func (s *Scheduler) Reload(ctx context.Context) error {
	p, err := s.svc.catalog.ResolveProject(ctx, s.project)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = make(map[string]cron.EntryID)
	s.specs = make(map[string]string)

	for _, def := range p.Joins {
		if def.Schedule == "" {
			continue
		}
		name := def.Name
		id, err := s.cron.AddFunc(def.Schedule, func() {
			if _, err := s.Trigger(s.runContext(), name); err != nil {
				s.logger.Warn("scheduled join failed", "join", name, "error", err)
			}
		})
		if err != nil {
			s.logger.Warn("invalid join schedule", "join", name, "schedule", def.Schedule, "error", err)
			continue
		}
		s.entries[name] = id
		s.specs[name] = def.Schedule
		s.logger.Info("scheduled join", "join", name, "schedule", def.Schedule)
	}
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Entries lists registered joins sorted by name with their next run time.
// Next is zero until the scheduler has started.
func (s *Scheduler) Entries() []ScheduledJoin {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledJoin, 0, len(s.entries))
	for name, id := range s.entries {
		out = append(out, ScheduledJoin{Name: name, Schedule: s.specs[name], Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trigger runs one join now, waiting for any other triggered run to finish.
// A report with errors is returned together with a non-nil error.
func (s *Scheduler) Trigger(ctx context.Context, name string) (*domain.JoinBatchReport, error) {
	s.run.Lock()
	defer s.run.Unlock()

	opts := s.opts
	opts.Join = name
	opts.Overwrite = true
	opts.DryRun = false
	report, err := s.svc.RunProject(ctx, s.project, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("scheduled join finished", "join", name, "status", report.Status)
	if len(report.Errors) > 0 {
		e := report.Errors[0]
		return report, fmt.Errorf("scheduled run of %s: join %s failed: %s", name, e.Name, e.Message)
	}
	return report, nil
}
