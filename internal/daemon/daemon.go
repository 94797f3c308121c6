// Package daemon runs the long-lived pingscan service: the scan job manager,
// cron schedules, the HTTP API and Prometheus metrics, until its context is
// cancelled.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/pingscan/internal/api"
	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/metrics"
	"github.com/anstrom/pingscan/internal/probe"
	"github.com/anstrom/pingscan/internal/profiles"
	"github.com/anstrom/pingscan/internal/schedule"
)

const systemMetricsInterval = 15 * time.Second

// File permission constants.
const (
	DefaultDirPermissions  = 0o750
	DefaultFilePermissions = 0o600
)

// Daemon represents the serve process.
type Daemon struct {
	config    *config.Config
	logger    *logging.Logger
	metrics   *metrics.PrometheusMetrics
	manager   *jobs.Manager
	scheduler *schedule.Scheduler
	profiles  *profiles.Manager
	apiServer *api.Server
	pidFile   string
	startTime time.Time
}

// New wires the components of the service. Nothing runs until Run.
func New(cfg *config.Config, registry probe.Registry, logger *logging.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	catalog, err := profiles.FromConfig(cfg.Profiles)
	if err != nil {
		return nil, err
	}

	pm := metrics.NewPrometheusMetrics()
	manager := jobs.NewManager(jobs.Config{
		Pool: jobs.PoolConfig{
			Size:            cfg.API.MaxConcurrentScans,
			QueueSize:       cfg.API.QueueSize,
			ShutdownTimeout: cfg.API.ShutdownTimeout,
		},
		Workers:      cfg.Scanning.Workers,
		Timeout:      cfg.Scanning.Timeout,
		MaxAddresses: cfg.Scanning.MaxAddresses,
		Retention:    cfg.API.Retention,
	}, registry, logger, pm)

	scheduler := schedule.NewScheduler(manager, logger)
	for i, sc := range cfg.Schedules {
		sc, err := resolveSchedule(cfg, catalog, sc)
		if err != nil {
			return nil, errors.WrapConfigError(errors.CodeConfiguration,
				fmt.Sprintf("schedules[%d]", i), err)
		}
		if err := scheduler.Add(sc); err != nil {
			return nil, err
		}
	}

	d := &Daemon{
		config:    cfg,
		logger:    logger.WithComponent("daemon"),
		metrics:   pm,
		manager:   manager,
		scheduler: scheduler,
		profiles:  catalog,
		pidFile:   cfg.Daemon.PIDFile,
		startTime: time.Now(),
	}

	if cfg.IsAPIEnabled() {
		server, err := api.New(cfg, api.Deps{
			Manager:   manager,
			Scheduler: scheduler,
			Profiles:  catalog,
			Metrics:   pm,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		d.apiServer = server
	}

	return d, nil
}

// Run serves until ctx is done, then stops the schedules and every running
// scan before returning.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.createPIDFile(); err != nil {
		return err
	}
	defer d.removePIDFile()

	g, ctx := errgroup.WithContext(ctx)

	d.manager.Start(ctx)
	if err := d.scheduler.Start(); err != nil {
		_ = d.manager.Shutdown()
		return err
	}

	g.Go(func() error {
		d.metrics.StartPeriodicUpdates(ctx, systemMetricsInterval)
		return nil
	})
	if d.apiServer != nil {
		g.Go(func() error {
			return d.apiServer.Start(ctx)
		})
	}
	g.Go(func() error {
		d.healthLoop(ctx)
		return nil
	})
	g.Go(func() error {
		d.watchSignals(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		d.scheduler.Stop()
		if err := d.manager.Shutdown(); err != nil {
			d.logger.Warn("Scans did not stop in time", "error", err)
		}
		return nil
	})

	d.logger.Info("pingscan serving",
		"pid", os.Getpid(),
		"api", d.apiServer != nil,
		"address", d.config.GetAPIAddress(),
		"schedules", len(d.config.Schedules),
		"workers", d.config.Scanning.Workers)

	err := g.Wait()
	d.logger.Info("pingscan stopped", "uptime", time.Since(d.startTime).Round(time.Second).String())
	return err
}

// Manager returns the scan job manager.
func (d *Daemon) Manager() *jobs.Manager {
	return d.manager
}

// Profiles returns the scan profile catalog.
func (d *Daemon) Profiles() *profiles.Manager {
	return d.profiles
}

// resolveSchedule fills a schedule's services and timeout from its profile,
// or its services from scanning.services when it names neither.
func resolveSchedule(cfg *config.Config, catalog *profiles.Manager, sc config.ScheduleConfig) (config.ScheduleConfig, error) {
	if sc.Profile == "" {
		if len(sc.Services) == 0 {
			sc.Services = cfg.Scanning.Services
		}
		return sc, nil
	}

	p, err := catalog.Get(sc.Profile)
	if err != nil {
		return sc, err
	}
	sc.Services = p.Services
	if sc.Timeout == 0 {
		sc.Timeout = p.Timeout
	}
	return sc, nil
}

// Addr returns the API listen address, or "" without an API server.
func (d *Daemon) Addr() string {
	if d.apiServer == nil {
		return ""
	}
	return d.apiServer.Addr()
}

// createPIDFile writes the PID file, refusing to start when it names a live
// process.
func (d *Daemon) createPIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.pidFile), DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}
	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Debug("Created PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// checkExistingPID removes a stale or unreadable PID file.
func (d *Daemon) checkExistingPID() error {
	data, err := os.ReadFile(d.pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && isProcessRunning(pid) {
		return fmt.Errorf("pingscan already running with PID %d", pid)
	}

	_ = os.Remove(d.pidFile)
	return nil
}

func (d *Daemon) removePIDFile() {
	if d.pidFile == "" {
		return
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("Failed to remove PID file", "path", d.pidFile, "error", err)
	}
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// watchSignals dumps the engine status on SIGUSR1. Termination signals are
// handled by the caller's context.
func (d *Daemon) watchSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			d.dumpStatus()
		}
	}
}

func (d *Daemon) healthLoop(ctx context.Context) {
	interval := d.config.Daemon.HealthCheckInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.performHealthCheck()
		}
	}
}

// performHealthCheck warns about probes in flight far beyond their timeout,
// usually a prober that ignores cancellation.
func (d *Daemon) performHealthCheck() {
	stats := d.manager.Stats()
	if stalled, _ := stats["stalled"].(int); stalled > 0 {
		d.logger.Warn("Probes stalled past their timeout",
			"stalled", stalled,
			"running", stats["running"],
			"queued", stats["queued"])
	}
}

// dumpStatus logs the engine and runtime status.
func (d *Daemon) dumpStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	d.logger.Info("Status",
		"pid", os.Getpid(),
		"uptime", time.Since(d.startTime).Round(time.Second).String(),
		"engine", d.manager.Stats(),
		"schedules", len(d.scheduler.Jobs()),
		"api", d.Addr(),
		"goroutines", runtime.NumGoroutine(),
		"alloc_kb", m.Alloc/1024,
		"sys_kb", m.Sys/1024,
		"num_gc", m.NumGC)
}
