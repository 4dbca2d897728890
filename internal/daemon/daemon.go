package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scingest/internal/config"
	"scingest/internal/logging"
	"scingest/internal/metrics"
	"scingest/internal/watcher"
)

// Supervisor is the loop the daemon hosts. *watcher.DatasetWatcher satisfies it.
type Supervisor interface {
	Run(ctx context.Context) error
	Stop()
	Status() watcher.Status
}

// Daemon hosts one beamtime supervisor and enforces single-instance
// execution per ledger file.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor Supervisor
	metrics    *metrics.Recorder
	api        *apiServer
	closers    []func() error

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	runErr error
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	LockFilePath   string         `json:"lock_file"`
	MetricsAddress string         `json:"metrics_address,omitempty"`
	Watcher        watcher.Status `json:"watcher"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMetrics exposes r on the metrics listener.
func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Daemon) { d.metrics = r }
}

// WithCloser registers a release hook run after the supervisor exits.
func WithCloser(fn func() error) Option {
	return func(d *Daemon) {
		if fn != nil {
			d.closers = append(d.closers, fn)
		}
	}
}

// New constructs a daemon around supervisor.
func New(cfg *config.Config, supervisor Supervisor, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || supervisor == nil {
		return nil, errors.New("daemon requires config and supervisor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		supervisor: supervisor,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the ledger lock, opens the metrics listener and runs the
// supervisor in the background.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another scingest instance is already ingesting into %s", d.cfg.Beamtime.LedgerFile)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	d.logger.Info("scingest daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldBeamtime, d.cfg.Beamtime.ID),
		logging.String(logging.FieldEventType, "daemon_started"),
	)

	go func() {
		defer close(d.done)
		err := d.supervisor.Run(runCtx)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
	}()
	return nil
}

// Done is closed once the supervisor has returned. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Err returns the error the supervisor stopped with, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop stops the supervisor, waits for it to return and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.supervisor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	<-d.done
	d.api.stop()
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil {
			d.logger.Debug("release daemon resource", logging.Error(err))
		}
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldImpact, "a restart may report the ledger as locked"),
		)
	}
	d.running.Store(false)
	d.logger.Info("scingest daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns a snapshot of the daemon and its supervisor.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Watcher:      d.supervisor.Status(),
	}
	if d.api != nil {
		status.MetricsAddress = d.api.address()
	}
	return status
}
