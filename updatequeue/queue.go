package updatequeue

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// UpdateFunc performs the actual fetch-and-merge for one unit: it talks to
// the backing source and fills the unit's ResultColumns, KeyToResultRow and
// FoundRows. Returning an error (or panicking) marks the unit failed; the
// failure is captured on the unit and never terminates a worker.
type UpdateFunc[K Key] func(unit *UpdateUnit[K]) error

// Option configures an UpdateQueue.
type Option func(*queueOptions)

type queueOptions struct {
	logger  *slog.Logger
	metrics *Metrics
}

// WithLogger sets the queue's logger. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *queueOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the Metrics instance units created for this queue should
// be accounted against. Defaults to a fresh Metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *queueOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// UpdateQueue provides asynchronous and synchronous refresh support for a
// cache dictionary.
//
// Its lifecycle is a one-way state machine: running (accepting pushes,
// workers active), stopping (closed to producers, workers draining the
// remaining units), finished (all workers joined). StopAndWait drives the
// transitions and is idempotent.
type UpdateQueue[K Key] struct {
	name       string
	cfg        Configuration
	updateFunc UpdateFunc[K]
	logger     *slog.Logger
	metrics    *Metrics

	units  chan *UpdateUnit[K]
	stopCh chan struct{}
	wg     sync.WaitGroup

	// submitMu serializes pushes against the channel close in StopAndWait.
	submitMu sync.RWMutex
	closed   atomic.Bool
	finished atomic.Bool
}

// New creates an UpdateQueue and starts its workers.
//
// name identifies the owning dictionary in logs. Note that cfg.Capacity is
// taken as given, including zero; use DefaultConfiguration as a base when in
// doubt.
func New[K Key](name string, cfg Configuration, updateFunc UpdateFunc[K], opts ...Option) (*UpdateQueue[K], error) {
	if updateFunc == nil {
		return nil, fmt.Errorf("updatequeue: update function is nil")
	}

	o := queueOptions{
		logger:  slog.New(slog.DiscardHandler),
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.withDefaults()

	q := &UpdateQueue[K]{
		name:       name,
		cfg:        cfg,
		updateFunc: updateFunc,
		logger:     o.logger.With("dictionary", name),
		metrics:    o.metrics,
		units:      make(chan *UpdateUnit[K], cfg.Capacity),
		stopCh:     make(chan struct{}),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.updateWorker()
	}

	q.logger.Debug("update queue started",
		"capacity", cfg.Capacity,
		"workers", cfg.Workers,
	)

	return q, nil
}

// Configuration returns the configuration the queue was built with.
func (q *UpdateQueue[K]) Configuration() Configuration {
	return q.cfg
}

// Metrics returns the Metrics instance new units for this queue should be
// accounted against.
func (q *UpdateQueue[K]) Metrics() *Metrics {
	return q.metrics
}

// IsFinished reports whether StopAndWait has completed.
func (q *UpdateQueue[K]) IsFinished() bool {
	return q.finished.Load()
}

// TryPush attempts a bounded-wait enqueue of unit.
//
// It returns nil once the unit is enqueued; this does not imply completion.
// It returns ErrPushTimeout when no queue space became available within the
// configured push timeout, and ErrQueueClosed when shutdown has begun — the
// two cases are distinct so callers can decide whether to retry.
//
// A unit must be pushed at most once.
func (q *UpdateQueue[K]) TryPush(unit *UpdateUnit[K]) error {
	q.submitMu.RLock()
	defer q.submitMu.RUnlock()

	if q.closed.Load() {
		return ErrQueueClosed
	}

	timer := time.NewTimer(q.cfg.PushTimeout)
	defer timer.Stop()

	select {
	case q.units <- unit:
		return nil
	case <-q.stopCh:
		return ErrQueueClosed
	case <-timer.C:
		return fmt.Errorf("%w after %s (capacity %d)", ErrPushTimeout, q.cfg.PushTimeout, q.cfg.Capacity)
	}
}

// WaitForUpdateFinish blocks until unit is done, the configured wait timeout
// elapses, or the queue shuts down.
//
// On completion, a failure captured from the update function is re-raised
// wrapped in ErrFetchFailed; otherwise the unit's ResultColumns and
// KeyToResultRow are safe to read.
func (q *UpdateQueue[K]) WaitForUpdateFinish(unit *UpdateUnit[K]) error {
	timer := time.NewTimer(q.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case <-unit.done:
		return unitOutcome(unit)
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrWaitTimeout, q.cfg.WaitTimeout)
	case <-q.stopCh:
		// The unit may have been drained and completed concurrently with
		// shutdown; prefer reporting its real outcome.
		select {
		case <-unit.done:
			return unitOutcome(unit)
		default:
			return ErrQueueClosed
		}
	}
}

func unitOutcome[K Key](unit *UpdateUnit[K]) error {
	if err := unit.err; err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return nil
}

// StopAndWait closes the queue to new pushes, wakes all blocked pushers and
// waiters, lets the workers drain the remaining units and joins them.
// Idempotent: calls after the first return immediately.
func (q *UpdateQueue[K]) StopAndWait() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}

	// Pushers hold submitMu for reading while selecting on the send, so the
	// write lock below is not acquirable until every blocked pusher has
	// observed stopCh and left. stopCh must close before the lock is taken.
	close(q.stopCh)

	// No pusher is selecting on the send once the write lock is held, so
	// closing the units channel cannot race a send.
	q.submitMu.Lock()
	close(q.units)
	q.submitMu.Unlock()

	q.wg.Wait()
	q.finished.Store(true)

	q.logger.Debug("update queue stopped")
}

// updateWorker pops units until the queue is closed and drained.
func (q *UpdateQueue[K]) updateWorker() {
	defer q.wg.Done()

	for unit := range q.units {
		q.processUnit(unit)
	}
}

// processUnit runs the update function on unit exactly once and publishes
// completion. Failures are contained here: one bad batch must not stop the
// pool.
func (q *UpdateQueue[K]) processUnit(unit *UpdateUnit[K]) {
	err := q.runUpdate(unit)
	if err != nil {
		q.logger.Error("dictionary update failed",
			"keys", len(unit.requestedKeys),
			"error", err,
		)
	}
	unit.finish(err)
}

func (q *UpdateQueue[K]) runUpdate(unit *UpdateUnit[K]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update panicked: %v", r)
		}
	}()
	return q.updateFunc(unit)
}
