package dictionary

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/status-im/dict-cache/config"
	"github.com/status-im/dict-cache/dictkey"
)

// UpdateFunc is the user-supplied callback a worker invokes for each unit.
// Its error (or panic) is captured onto the unit and never propagates into
// the worker loop.
type UpdateFunc[K dictkey.Key] func(*UpdateUnit[K]) error

// UpdateQueue coalesces caller threads onto a bounded FIFO served by a fixed
// worker pool. Pushes block up to the push timeout; waits up to the query
// wait timeout.
type UpdateQueue[K dictkey.Key] struct {
	name             string
	pushTimeout      time.Duration
	queryWaitTimeout time.Duration

	units    chan *UpdateUnit[K]
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	update UpdateFunc[K]
	logger *zap.Logger
}

// NewUpdateQueue validates the configuration, starts the worker pool and
// returns the queue
func NewUpdateQueue[K dictkey.Key](name string, cfg config.UpdateQueueConfig, update UpdateFunc[K], logger *zap.Logger) (*UpdateQueue[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &UpdateQueue[K]{
		name:             name,
		pushTimeout:      time.Duration(cfg.PushTimeoutMS) * time.Millisecond,
		queryWaitTimeout: time.Duration(cfg.QueryWaitTimeoutMS) * time.Millisecond,
		units:            make(chan *UpdateUnit[K], cfg.MaxUpdateQueueSize),
		stopCh:           make(chan struct{}),
		update:           update,
		logger:           logger,
	}
	for i := 0; i < cfg.MaxThreadsForUpdates; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Debug("update queue started",
		zap.String("dictionary", name),
		zap.Int("workers", cfg.MaxThreadsForUpdates),
		zap.Int("queue_size", cfg.MaxUpdateQueueSize))
	return q, nil
}

// Len returns the number of units waiting in the queue
func (q *UpdateQueue[K]) Len() int {
	return len(q.units)
}

// TryPush blocks up to the push timeout for a queue slot. On success the unit
// is owned by the queue until a worker signals it.
func (q *UpdateQueue[K]) TryPush(unit *UpdateUnit[K]) error {
	select {
	case <-q.stopCh:
		unit.finish(UnitCancelled, ErrCancelled)
		return ErrCancelled
	default:
	}

	timer := time.NewTimer(q.pushTimeout)
	defer timer.Stop()

	select {
	case <-q.stopCh:
		unit.finish(UnitCancelled, ErrCancelled)
		return ErrCancelled
	case q.units <- unit:
		// A worker may already have taken the unit; never move its state back.
		unit.state.CompareAndSwap(int32(UnitCreated), int32(UnitEnqueued))
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: cannot push to update queue of dictionary %s within %v", ErrQueueFull, q.name, q.pushTimeout)
	}
}

// WaitForFinish blocks up to the query wait timeout for the unit to be
// signalled, rethrowing any error the worker stored on it
func (q *UpdateQueue[K]) WaitForFinish(unit *UpdateUnit[K]) error {
	timer := time.NewTimer(q.queryWaitTimeout)
	defer timer.Stop()

	select {
	case <-unit.Done():
		return unit.Err()
	case <-timer.C:
		return fmt.Errorf("%w: dictionary %s, timeout %v", ErrUpdateTimeout, q.name, q.queryWaitTimeout)
	}
}

// StopAndWait closes the queue, waits for the workers to exit and cancels
// every unit still pending. Idempotent.
func (q *UpdateQueue[K]) StopAndWait() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
		for {
			select {
			case unit := <-q.units:
				unit.finish(UnitCancelled, ErrCancelled)
			default:
				q.logger.Debug("update queue stopped", zap.String("dictionary", q.name))
				return
			}
		}
	})
}

// worker pops units one at a time and runs the update callback, capturing its
// outcome onto the unit
func (q *UpdateQueue[K]) worker(id int) {
	defer q.wg.Done()
	for {
		// Stop wins over pending work so StopAndWait can cancel the rest of
		// the queue deterministically.
		select {
		case <-q.stopCh:
			return
		default:
		}
		select {
		case <-q.stopCh:
			return
		case unit := <-q.units:
			unit.state.Store(int32(UnitInProgress))
			err := q.safeUpdate(unit)
			if err != nil {
				q.logger.Warn("update failed",
					zap.String("dictionary", q.name),
					zap.Int("worker_id", id),
					zap.Error(err))
				unit.finish(UnitFailed, err)
			} else {
				unit.finish(UnitDone, nil)
			}
		}
	}
}

// safeUpdate shields the worker loop from panics in the update callback
func (q *UpdateQueue[K]) safeUpdate(unit *UpdateUnit[K]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UpdateFailedError{Dictionary: q.name, Err: fmt.Errorf("update panicked: %v", r)}
		}
	}()
	return q.update(unit)
}
