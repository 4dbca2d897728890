package watcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scingest/internal/config"
	"scingest/internal/fswatch"
	"scingest/internal/ingest"
	"scingest/internal/ledger"
	"scingest/internal/logging"
	"scingest/internal/metrics"
	"scingest/internal/services"
)

const component = "dataset-watcher"

// State is the supervisor's position in its loop.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateDebouncing State = "debouncing"
	StateIngesting  State = "ingesting"
	StatePolling    State = "polling"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
)

// States lists every state in loop order.
var States = []State{StateIdle, StateStarting, StateDebouncing, StateIngesting, StatePolling, StateStopping, StateStopped}

func stateNames() []string {
	out := make([]string, len(States))
	for i, s := range States {
		out[i] = string(s)
	}
	return out
}

// ScanIngester processes one scan.
type ScanIngester interface {
	IngestScan(ctx context.Context, scan string) (ingest.Result, error)
}

// Status is a snapshot of the supervisor.
type Status struct {
	Beamtime   string    `json:"beamtime"`
	IndexFile  string    `json:"index_file"`
	LedgerFile string    `json:"ledger_file"`
	State      State     `json:"state"`
	Watching   bool      `json:"watching"`
	Waiting    int       `json:"waiting"`
	Ingested   int       `json:"ingested"`
	Partial    int       `json:"partial"`
	Passes     int       `json:"passes"`
	LastPass   time.Time `json:"last_pass,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// DatasetWatcher is the per-beamtime supervisor.
type DatasetWatcher struct {
	beamtime    string
	indexFile   string
	ledgerFile  string
	debounce    time.Duration
	pollTimeout time.Duration
	grace       time.Duration

	fs       fswatch.Watcher
	ingester ScanIngester
	sleep    func(time.Duration)
	logger   *slog.Logger
	metrics  *metrics.Recorder

	running atomic.Bool
	stopped atomic.Bool
	// handles and rearm are owned by the Run goroutine.
	handles map[fswatch.Handle]string
	rearm   bool

	mu     sync.Mutex
	status Status
}

// Option customizes a DatasetWatcher.
type Option func(*DatasetWatcher)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *DatasetWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(w *DatasetWatcher) { w.metrics = r }
}

// WithSleep replaces the debounce sleep (tests).
func WithSleep(fn func(time.Duration)) Option {
	return func(w *DatasetWatcher) {
		if fn != nil {
			w.sleep = fn
		}
	}
}

// WithPollTimeout overrides the poll bound from config.
func WithPollTimeout(d time.Duration) Option {
	return func(w *DatasetWatcher) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// WithDebounce overrides the debounce delay from config.
func WithDebounce(d time.Duration) Option {
	return func(w *DatasetWatcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// New builds a supervisor for the beamtime described by cfg.
func New(cfg *config.Config, fs fswatch.Watcher, ingester ScanIngester, opts ...Option) *DatasetWatcher {
	w := &DatasetWatcher{
		beamtime:    cfg.Beamtime.ID,
		indexFile:   filepath.Clean(cfg.Beamtime.IndexFile),
		ledgerFile:  cfg.Beamtime.LedgerFile,
		debounce:    cfg.DebounceDelay(),
		pollTimeout: cfg.PollTimeout(),
		grace:       cfg.StopGrace(),
		fs:          fs,
		ingester:    ingester,
		sleep:       time.Sleep,
		logger:      logging.NewNop(),
		handles:     make(map[fswatch.Handle]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pollTimeout <= 0 {
		w.pollTimeout = time.Second
	}
	w.logger = logging.NewComponentLogger(w.logger, component).With(logging.String(logging.FieldBeamtime, w.beamtime))
	w.status = Status{
		Beamtime:   w.beamtime,
		IndexFile:  w.indexFile,
		LedgerFile: w.ledgerFile,
		State:      StateIdle,
	}
	return w
}

// Run executes the loop until Stop is called, ctx ends, or an index or
// ledger failure occurs. Watches are released on every exit path. A Stop
// that lands before Run starts is honoured.
func (w *DatasetWatcher) Run(ctx context.Context) (err error) {
	ctx = services.WithBeamtime(ctx, w.beamtime)
	w.running.Store(!w.stopped.Load())
	defer func() {
		w.running.Store(false)
		w.setState(StateStopping)
		w.release()
		if err != nil {
			w.recordError(err)
			logging.ErrorWithContext(w.logger, "dataset watcher stopped on error", "watcher_failed",
				logging.Error(err),
				logging.String("error_kind", services.Kind(err)),
				logging.String(logging.FieldErrorHint, "fix the index or ledger file and restart scingest"),
			)
		}
		w.setState(StateStopped)
		w.logger.Info("dataset watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
	}()

	if !w.active(ctx) {
		w.logger.Info("stop requested before start", logging.String(logging.FieldEventType, "watcher_start_skipped"))
		return nil
	}

	w.setState(StateStarting)
	w.logger.Info("dataset watcher starting",
		logging.String(logging.FieldEventType, "watcher_starting"),
		logging.String("index", w.indexFile),
		logging.String("ledger", w.ledgerFile),
		logging.Duration("debounce", w.debounce),
	)
	w.addWatch(w.indexFile)

	if err := w.pass(ctx); err != nil {
		return err
	}

	for w.active(ctx) {
		w.setState(StatePolling)
		if w.rearm && w.rewatch() {
			// the index was replaced; its content may be new
			if err := w.pass(ctx); err != nil {
				return err
			}
			continue
		}

		events, err := w.fs.Poll(w.pollTimeout)
		if err != nil {
			if fswatch.IsClosed(err) {
				return nil
			}
			logging.WarnWithContext(w.logger, "event poll failed", "poll_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "index changes may be noticed late"),
			)
			w.sleep(w.pollTimeout)
			continue
		}
		if !w.qualifying(events) {
			continue
		}
		if err := w.pass(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop latches the stop request, waits the grace period and releases the
// watch. It does not wait for Run to return. A scan already being submitted
// finishes; later scans are left for the next run.
func (w *DatasetWatcher) Stop() {
	if w.stopped.Swap(true) {
		return
	}
	w.running.Store(false)
	time.Sleep(w.grace)
	if err := w.fs.Close(); err != nil {
		w.logger.Debug("watch backend close", logging.Error(err))
	}
}

// Running reports whether the loop has not been told to stop.
func (w *DatasetWatcher) Running() bool { return w.running.Load() }

// Status returns a snapshot.
func (w *DatasetWatcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *DatasetWatcher) active(ctx context.Context) bool {
	if ctx.Err() != nil || w.stopped.Load() {
		w.running.Store(false)
		return false
	}
	return w.running.Load()
}

// qualifying reports whether events contain a close-write of the index file.
// Lost events (queue overflow) also count since the index may have changed.
func (w *DatasetWatcher) qualifying(events []fswatch.Event) bool {
	found := false
	for _, ev := range events {
		if ev.Op.Has(fswatch.OpOverflow) {
			w.logger.Warn("watch queue overflowed; rereading index",
				logging.String(logging.FieldEventType, "watch_overflow"),
				logging.String(logging.FieldImpact, "none, the index is reread in full"),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_queued_events if this repeats"),
			)
			found = true
			continue
		}
		path, ok := w.handles[ev.Handle]
		if !ok {
			continue
		}
		w.logger.Debug("watch event",
			logging.String("path", path),
			logging.String("name", ev.Name),
			logging.String("op", ev.Op.String()),
		)
		if ev.Op.Has(fswatch.OpIgnored) {
			delete(w.handles, ev.Handle)
			w.setWatching(false)
			w.rearm = path == w.indexFile
			w.logger.Info("index watch dropped",
				logging.String(logging.FieldEventType, "watch_dropped"),
				logging.String("op", ev.Op.String()),
			)
			continue
		}
		if !ev.Op.Has(fswatch.OpCloseWrite) {
			continue
		}
		full := path
		if ev.Name != "" {
			full = filepath.Join(path, ev.Name)
		}
		if filepath.Clean(full) == w.indexFile {
			found = true
		}
	}
	return found
}

// pass recomputes the waiting set and ingests it. Only fatal errors are
// returned; an authentication failure ends the pass early.
func (w *DatasetWatcher) pass(ctx context.Context) error {
	index, err := ledger.ReadIndex(w.indexFile)
	if err != nil {
		return err
	}
	done, err := ledger.Load(w.ledgerFile)
	if err != nil {
		return err
	}
	waiting := ledger.Diff(index, done)
	w.setWaiting(len(waiting))
	if len(waiting) == 0 {
		return nil
	}

	passID := uuid.NewString()
	ctx = services.WithPassID(ctx, passID)
	logger := logging.WithContext(ctx, w.logger)
	logger.Info("scans waiting",
		logging.String(logging.FieldEventType, "scans_waiting"),
		logging.Int("waiting", len(waiting)),
		logging.Int("ingested", len(done)),
		logging.Any("scans", waiting),
	)

	if w.debounce > 0 {
		w.setState(StateDebouncing)
		w.sleep(w.debounce)
	}

	// Submissions run on a context that shutdown does not cancel; only the
	// loop below observes stop.
	ingestCtx := context.WithoutCancel(ctx)
	w.setState(StateIngesting)
	result := "completed"
	for i, scan := range waiting {
		if !w.active(ctx) {
			logger.Info("stop requested; remaining scans left for next run",
				logging.String(logging.FieldEventType, "pass_interrupted"),
				logging.Int("remaining", len(waiting)-i),
			)
			result = "aborted"
			break
		}
		res, err := w.ingester.IngestScan(ingestCtx, scan)
		if err != nil {
			if services.IsFatal(err) {
				w.metrics.ObservePass("aborted")
				return err
			}
			w.recordError(err)
			if errors.Is(err, services.ErrAuthentication) {
				logger.Warn("pass aborted; scans stay queued until the next index change",
					logging.String(logging.FieldEventType, "pass_aborted"),
					logging.String(logging.FieldScan, scan),
					logging.Int("remaining", len(waiting)-i),
					logging.String(logging.FieldImpact, "no scans submitted until login succeeds"),
					logging.String(logging.FieldErrorHint, "check catalog credentials"),
				)
				result = "aborted"
				break
			}
			continue
		}
		w.recordIngested(res)
	}

	w.finishPass()
	w.metrics.ObservePass(result)
	return nil
}

func (w *DatasetWatcher) addWatch(path string) bool {
	h, err := w.fs.Watch(path)
	if err != nil {
		wrapped := services.Wrap(services.ErrWatchSetup, component, "watch", path, err)
		w.recordError(wrapped)
		logging.WarnWithContext(w.logger, "cannot watch index file", "watch_failed",
			logging.String("path", path),
			logging.Error(wrapped),
			logging.String(logging.FieldImpact, "new scans are not noticed until the watch succeeds"),
			logging.String(logging.FieldErrorHint, "check that the index file exists and is readable"),
		)
		return false
	}
	w.handles[h] = path
	w.setWatching(true)
	w.logger.Debug("watch added", logging.String("path", path), logging.Int("handle", int(h)))
	return true
}

// rewatch re-subscribes to the index after the backend dropped the watch.
// Failures are silent; the file may not have been recreated yet.
func (w *DatasetWatcher) rewatch() bool {
	h, err := w.fs.Watch(w.indexFile)
	if err != nil {
		return false
	}
	w.handles[h] = w.indexFile
	w.rearm = false
	w.setWatching(true)
	w.logger.Info("index watch restored", logging.String(logging.FieldEventType, "watch_restored"))
	return true
}

func (w *DatasetWatcher) release() {
	for h, path := range w.handles {
		if err := w.fs.Unwatch(h); err != nil {
			w.logger.Debug("unwatch", logging.String("path", path), logging.Error(err))
		}
		delete(w.handles, h)
		w.logger.Debug("watch removed", logging.String("path", path), logging.Int("handle", int(h)))
	}
	w.setWatching(false)
	if err := w.fs.Close(); err != nil {
		w.logger.Debug("watch backend close", logging.Error(err))
	}
}

func (w *DatasetWatcher) setState(s State) {
	w.mu.Lock()
	w.status.State = s
	w.mu.Unlock()
	w.metrics.SetState(string(s), stateNames())
}

func (w *DatasetWatcher) setWaiting(n int) {
	w.mu.Lock()
	w.status.Waiting = n
	w.mu.Unlock()
	w.metrics.SetWaiting(n)
}

func (w *DatasetWatcher) setWatching(v bool) {
	w.mu.Lock()
	w.status.Watching = v
	w.mu.Unlock()
}

func (w *DatasetWatcher) recordIngested(res ingest.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Ingested++
	if res.Partial() {
		w.status.Partial++
	}
	if w.status.Waiting > 0 {
		w.status.Waiting--
	}
}

func (w *DatasetWatcher) recordError(err error) {
	w.mu.Lock()
	w.status.LastError = err.Error()
	w.mu.Unlock()
}

func (w *DatasetWatcher) finishPass() {
	w.mu.Lock()
	w.status.Passes++
	w.status.LastPass = time.Now()
	waiting := w.status.Waiting
	w.mu.Unlock()
	w.metrics.SetWaiting(waiting)
}
