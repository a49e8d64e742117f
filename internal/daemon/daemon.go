package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"tonearm/internal/config"
	"tonearm/internal/deps"
	"tonearm/internal/history"
	"tonearm/internal/logging"
	"tonearm/internal/notifications"
	"tonearm/internal/pipeline"
	"tonearm/internal/preflight"
)

// terminateProcess delivers SIGTERM to the daemon's own process. Tests swap
// it out to observe shutdown requests without killing the test binary.
var terminateProcess = func() {
	_ = unix.Kill(os.Getpid(), unix.SIGTERM)
}

// Daemon coordinates the analysis pipeline, the run journal, and the HTTP
// surface, and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *history.Store
	pipe     *pipeline.Pipeline
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	ActiveRuns    int
	Active        []RunSnapshot
	ModelsDir     string
	OutputDir     string
	HistoryDBPath string
	LockFilePath  string
	Dependencies  []deps.Status
}

// RunSnapshot is a point-in-time view of one in-flight run.
type RunSnapshot struct {
	ID        string
	AudioPath string
	Phase     string
	Fraction  float64
	StartedAt time.Time
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger, pipe *pipeline.Pipeline) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || pipe == nil {
		return nil, errors.New("daemon requires config, store, logger, and pipeline")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		pipe:     pipe,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		active:   make(map[string]*activeRun),
	}, nil
}

// Start acquires the daemon lock, closes out runs interrupted by a previous
// shutdown, reports environment problems without refusing to come up, and
// brings up the HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tonearm daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if interrupted, err := d.store.FailInterrupted(d.ctx); err != nil {
		d.logger.Warn("failed to close interrupted runs", logging.Error(err))
	} else if interrupted > 0 {
		d.logger.Info("closed interrupted runs", logging.Int64("runs", interrupted))
	}
	if pruned, err := d.store.Prune(d.ctx, d.cfg.Pipeline.HistoryLimit); err != nil {
		d.logger.Warn("history prune failed", logging.Error(err))
	} else if pruned > 0 {
		d.logger.Debug("history pruned", logging.Int64("removed", pruned))
	}

	for _, result := range preflight.Failed(preflight.RunAll(d.cfg)) {
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
	for _, status := range deps.MissingRequired(deps.Check(d.cfg)) {
		d.logger.Warn("required tool unavailable",
			logging.String("tool", status.Name),
			logging.String("detail", status.Detail))
	}

	d.startedAt = time.Now()
	d.running.Store(true)

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.abortStart()
		return fmt.Errorf("create api server: %w", err)
	}
	if srv == nil {
		d.logger.Warn("api server disabled, no bind address configured")
	} else if err := srv.start(d.ctx); err != nil {
		d.abortStart()
		return err
	} else {
		d.api = srv
	}

	d.logger.Info("tonearm daemon started",
		logging.String("lock", d.lockPath),
		logging.String("stages", strings.Join(d.pipe.Stages(), ",")),
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

// abortStart rolls back a partially started daemon.
func (d *Daemon) abortStart() {
	d.running.Store(false)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Stop cancels active runs, waits for their outcomes to be journaled, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}
	d.waitForRuns()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tonearm daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"))
}

// waitForRuns blocks until every run pump has journaled its outcome, bounded
// by the configured shutdown grace.
func (d *Daemon) waitForRuns() {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGrace()):
		d.logger.Warn("shutdown grace expired with runs still draining",
			logging.Int("active", d.ActiveRuns()))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ActiveRuns reports how many runs are currently in flight.
func (d *Daemon) ActiveRuns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// activeSnapshots collects the in-flight runs with their latest observed
// progress, oldest first.
func (d *Daemon) activeSnapshots() []RunSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snaps := make([]RunSnapshot, 0, len(d.active))
	for _, run := range d.active {
		snaps = append(snaps, RunSnapshot{
			ID:        run.id,
			AudioPath: run.audioPath,
			Phase:     run.phase,
			Fraction:  run.fraction,
			StartedAt: run.startedAt,
		})
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

// APIAddr reports the bound address of the HTTP listener. It is empty when
// the server is disabled or the daemon is stopped. Useful when the configured
// bind uses port 0.
func (d *Daemon) APIAddr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	active := d.activeSnapshots()
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		ActiveRuns:    len(active),
		Active:        active,
		ModelsDir:     d.cfg.Paths.ModelsDir,
		OutputDir:     d.cfg.Paths.OutputDir,
		HistoryDBPath: d.cfg.HistoryDBPath(),
		LockFilePath:  d.lockPath,
		Dependencies:  deps.Check(d.cfg),
	}
}

// RequestShutdown schedules process termination after the configured delay so
// the shutdown response can reach the client first.
func (d *Daemon) RequestShutdown() {
	delay := d.cfg.ShutdownDelay()
	d.logger.Info("shutdown requested",
		logging.Duration("delay", delay),
		logging.String(logging.FieldEventType, "shutdown_request"))
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		terminateProcess()
	}()
}
