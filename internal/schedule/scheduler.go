// Package schedule runs recurring scans from cron expressions. Each firing
// submits a scan to the job manager; a schedule whose previous scan is still
// running skips the firing.
package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
)

// Submitter queues scans. *jobs.Manager implements it.
type Submitter interface {
	Submit(req jobs.Request) (*jobs.ScanJob, error)
}

// Scheduler manages scheduled scans.
type Scheduler struct {
	submitter Submitter
	cron      *cron.Cron
	logger    *logging.Logger
	entries   map[string]*entry
	mu        sync.RWMutex
	running   bool
}

type entry struct {
	config  config.ScheduleConfig
	cronID  cron.EntryID
	lastRun time.Time
	lastJob *jobs.ScanJob
	runs    int
	skipped int
}

// Info describes a scheduled scan.
type Info struct {
	Name       string    `json:"name"`
	Cron       string    `json:"cron"`
	Targets    string    `json:"targets"`
	Profile    string    `json:"profile,omitempty"`
	Enabled    bool      `json:"enabled"`
	NextRun    time.Time `json:"next_run,omitempty"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastScanID string    `json:"last_scan_id,omitempty"`
	Runs       int       `json:"runs"`
	Skipped    int       `json:"skipped"`
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler creates a new scheduler.
func NewScheduler(submitter Submitter, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("schedule")
	cl := cronLogger{logger: logger}

	return &Scheduler{
		submitter: submitter,
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger:    logger,
		entries:   make(map[string]*entry),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "schedules", len(s.entries))
	return nil
}

// Stop stops the scheduler. Scans already submitted keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Add registers a schedule. Disabled schedules are kept but never fire.
func (s *Scheduler) Add(cfg config.ScheduleConfig) error {
	if cfg.Name == "" {
		return errors.ErrConfigInvalid("name", cfg.Name)
	}
	if _, err := cron.ParseStandard(cfg.Cron); err != nil {
		return &errors.ConfigError{Code: errors.CodeValidation, Message: "invalid cron expression",
			Field: "cron", Value: cfg.Cron, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[cfg.Name]; exists {
		return errors.NewConfigFieldError(errors.CodeValidation, "schedule already exists", "name", cfg.Name)
	}

	e := &entry{config: cfg}
	s.entries[cfg.Name] = e
	if cfg.Enabled {
		if err := s.activate(e); err != nil {
			delete(s.entries, cfg.Name)
			return err
		}
	}

	s.logger.Info("Added schedule", "name", cfg.Name, "cron", cfg.Cron, "enabled", cfg.Enabled)
	return nil
}

// activate adds an entry to cron. Callers hold s.mu.
func (s *Scheduler) activate(e *entry) error {
	name := e.config.Name
	id, err := s.cron.AddFunc(e.config.Cron, func() {
		s.fire(name)
	})
	if err != nil {
		return errors.WrapConfigError(errors.CodeValidation, "failed to add cron job", err)
	}
	e.cronID = id
	return nil
}

// Remove deletes a schedule.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return errors.ErrScheduleNotFound(name)
	}
	if e.cronID != 0 {
		s.cron.Remove(e.cronID)
	}
	delete(s.entries, name)

	s.logger.Info("Removed schedule", "name", name)
	return nil
}

// Enable makes a schedule fire again.
func (s *Scheduler) Enable(name string) error {
	return s.setEnabled(name, true)
}

// Disable stops a schedule from firing without removing it.
func (s *Scheduler) Disable(name string) error {
	return s.setEnabled(name, false)
}

func (s *Scheduler) setEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return errors.ErrScheduleNotFound(name)
	}
	if e.config.Enabled == enabled {
		return nil
	}

	if enabled {
		if err := s.activate(e); err != nil {
			return err
		}
	} else {
		s.cron.Remove(e.cronID)
		e.cronID = 0
	}
	e.config.Enabled = enabled
	return nil
}

// RunNow submits a schedule's scan immediately, regardless of whether it is
// enabled. It fails if the previous scan of the schedule is still running.
func (s *Scheduler) RunNow(name string) (*jobs.ScanJob, error) {
	return s.submit(name)
}

func (s *Scheduler) fire(name string) {
	job, err := s.submit(name)
	if err != nil {
		s.logger.Warn("Scheduled scan not submitted", "name", name, "error", err)
		return
	}
	s.logger.Info("Scheduled scan submitted", "name", name, "scan_id", job.ID())
}

func (s *Scheduler) submit(name string) (*jobs.ScanJob, error) {
	s.mu.Lock()
	e, exists := s.entries[name]
	if !exists {
		s.mu.Unlock()
		return nil, errors.ErrScheduleNotFound(name)
	}
	if e.lastJob != nil && !e.lastJob.Done() {
		e.skipped++
		s.mu.Unlock()
		return nil, errors.NewScanError(errors.CodeQueueFull,
			fmt.Sprintf("previous scan %s of schedule %q is still running", e.lastJob.ID(), name))
	}
	cfg := e.config
	s.mu.Unlock()

	job, err := s.submitter.Submit(jobs.Request{
		Name:     cfg.Name,
		Source:   jobs.SourceSchedule,
		Targets:  cfg.Targets,
		Services: cfg.Services,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// The schedule may have been removed meanwhile; the scan still runs.
	if e, ok := s.entries[name]; ok {
		e.lastJob = job
		e.lastRun = time.Now()
		e.runs++
	}
	s.mu.Unlock()
	return job, nil
}

// Jobs returns every schedule sorted by name.
func (s *Scheduler) Jobs() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Info, 0, len(s.entries))
	for _, e := range s.entries {
		info := Info{
			Name:    e.config.Name,
			Cron:    e.config.Cron,
			Targets: e.config.Targets,
			Profile: e.config.Profile,
			Enabled: e.config.Enabled,
			LastRun: e.lastRun,
			Runs:    e.runs,
			Skipped: e.skipped,
		}
		if e.lastJob != nil {
			info.LastScanID = e.lastJob.ID()
		}
		if e.config.Enabled {
			info.NextRun = s.cron.Entry(e.cronID).Next
			if info.NextRun.IsZero() {
				// Not started yet; compute from the expression.
				if sched, err := cron.ParseStandard(e.config.Cron); err == nil {
					info.NextRun = sched.Next(time.Now())
				}
			}
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
