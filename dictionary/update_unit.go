package dictionary

import (
	"sync"
	"sync/atomic"

	"github.com/status-im/dict-cache/dictkey"
	"github.com/status-im/dict-cache/schema"
)

// UnitState tracks one update unit through its lifecycle. Transitions are
// one-way: Created → Enqueued → InProgress → Done|Failed, or Cancelled.
type UnitState int32

const (
	UnitCreated UnitState = iota
	UnitEnqueued
	UnitInProgress
	UnitDone
	UnitFailed
	UnitCancelled
)

func (s UnitState) String() string {
	switch s {
	case UnitCreated:
		return "created"
	case UnitEnqueued:
		return "enqueued"
	case UnitInProgress:
		return "in_progress"
	case UnitDone:
		return "done"
	case UnitFailed:
		return "failed"
	case UnitCancelled:
		return "cancelled"
	}
	return "unknown"
}

// UpdateUnit is one in-flight fetch request: the keys to resolve, the fetch
// request they belong to, the worker's outputs, and the completion signal.
// The signal is the happens-before edge between worker and producer: once the
// done channel closes, the producer reads the outputs without extra locking.
type UpdateUnit[K dictkey.Key] struct {
	// Keys are the missing-or-expired keys this unit must resolve.
	Keys []K

	// KeyColumns and KeyRows carry the caller's key columns and the selected
	// row indices for complex-key dictionaries; nil for simple keys.
	KeyColumns []schema.Column
	KeyRows    []int

	// Request is the fetch request of the originating call.
	Request *schema.FetchRequest

	// FetchedColumns accumulates the attribute columns the worker read from
	// the source, filtered by the request's fill mask.
	FetchedColumns []schema.Column

	// FoundKeys maps each key the source returned to its row offset in
	// FetchedColumns.
	FoundKeys map[K]int

	state atomic.Int32
	err   error
	done  chan struct{}
	once  sync.Once
}

// newUpdateUnit builds a unit for the given keys and request
func newUpdateUnit[K dictkey.Key](keys []K, request *schema.FetchRequest) *UpdateUnit[K] {
	return &UpdateUnit[K]{
		Keys:           keys,
		Request:        request,
		FetchedColumns: request.MakeResultColumns(),
		FoundKeys:      make(map[K]int),
		done:           make(chan struct{}),
	}
}

// State returns the unit's current lifecycle state
func (u *UpdateUnit[K]) State() UnitState {
	return UnitState(u.state.Load())
}

// Err returns the error captured by the worker. Valid only after Done fires.
func (u *UpdateUnit[K]) Err() error {
	return u.err
}

// Done exposes the completion signal
func (u *UpdateUnit[K]) Done() <-chan struct{} {
	return u.done
}

// finish signals the unit exactly once with the final state and error
func (u *UpdateUnit[K]) finish(state UnitState, err error) {
	u.once.Do(func() {
		u.err = err
		u.state.Store(int32(state))
		close(u.done)
	})
}
