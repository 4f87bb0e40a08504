package dictionary

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/status-im/dict-cache/source"
)

// update is the worker body behind the queue: it reads the unit's keys from
// the external source and inserts every returned block into storage. It
// declines the whole attempt while a previous failure still has a scheduled
// retry time.
func (d *Dictionary[K]) update(unit *UpdateUnit[K]) error {
	now := time.Now()
	if retryAt := d.backoffEndTime(); !retryAt.IsZero() && !now.After(retryAt) {
		return &BackoffError{Dictionary: d.name, RetryAt: retryAt}
	}

	d.metrics.RecordKeysRequested(len(unit.Keys))
	start := time.Now()

	found, err := d.runUpdate(unit, now)
	if err != nil {
		d.recordUpdateFailure(now, err)
		d.metrics.RecordUpdateError()
		failed := &UpdateFailedError{Dictionary: d.name, Err: err}
		d.publishUpdateEvent(unit, found, failed, time.Since(start))
		return failed
	}

	d.clearFailureState()
	d.metrics.RecordUpdateResult(found, len(unit.Keys)-found, time.Since(start))
	d.publishUpdateEvent(unit, found, nil, time.Since(start))
	return nil
}

// publishUpdateEvent tells subscribers which keys the unit resolved and how
// the attempt ended
func (d *Dictionary[K]) publishUpdateEvent(unit *UpdateUnit[K], found int, err error, duration time.Duration) {
	event := UpdateEvent{Found: found, Err: err, Duration: duration}
	if ids, ok := any(unit.Keys).([]uint64); ok {
		event.IDs = ids
	} else {
		event.TupleKeys = any(unit.Keys).([]string)
	}
	d.notifier.publish(event)
}

// runUpdate opens the source stream and scans its blocks into storage and
// into the unit's output columns. The source mutex is taken before the
// storage write lock, never the other way around.
func (d *Dictionary[K]) runUpdate(unit *UpdateUnit[K], now time.Time) (int, error) {
	d.sourceMu.Lock()
	src, err := d.getSourceAndUpdateIfNeeded()
	if err != nil {
		d.sourceMu.Unlock()
		return 0, err
	}
	stream, err := d.openStream(src, unit)
	d.sourceMu.Unlock()
	if err != nil {
		return 0, err
	}

	lockStart := time.Now()
	d.rw.Lock()
	d.metrics.RecordLockWait("write", time.Since(lockStart))
	defer d.rw.Unlock()

	keyCount := d.sch.KeyCount()
	found := 0
	for {
		block, err := stream.Next()
		if err != nil {
			return found, err
		}
		if block == nil {
			break
		}
		if len(block.Columns) != keyCount+len(d.sch.Attributes) {
			return found, fmt.Errorf("source block has %d columns, expected %d key and %d attribute columns",
				len(block.Columns), keyCount, len(d.sch.Attributes))
		}

		keyColumns := block.Columns[:keyCount]
		attributeColumns := block.Columns[keyCount:]

		keys, err := d.extractor.Extract(keyColumns, nil)
		if err != nil {
			return found, err
		}
		if err := d.store.Insert(keys, attributeColumns, now); err != nil {
			return found, err
		}

		for attrIdx := range unit.FetchedColumns {
			if unit.Request.ShouldFill(attrIdx) {
				unit.FetchedColumns[attrIdx] = append(unit.FetchedColumns[attrIdx], attributeColumns[attrIdx]...)
			}
		}
		for i, key := range keys {
			unit.FoundKeys[key] = found + i
		}
		found += len(keys)
	}

	// Keys the source omitted become negative entries so they are not asked
	// for again until expiration.
	var missed []K
	for _, key := range unit.Keys {
		if _, ok := unit.FoundKeys[key]; !ok {
			missed = append(missed, key)
		}
	}
	if len(missed) > 0 {
		d.store.InsertDefaults(missed, now)
	}
	return found, nil
}

// openStream picks the load call matching the key kind fixed at construction
func (d *Dictionary[K]) openStream(src source.Source, unit *UpdateUnit[K]) (source.Stream, error) {
	if ids, ok := any(unit.Keys).([]uint64); ok {
		return src.LoadIDs(d.ctx, ids)
	}
	return src.LoadKeys(d.ctx, unit.KeyColumns, unit.KeyRows)
}

// recordUpdateFailure bumps the consecutive error count and schedules the
// next allowed attempt. Mutated only while holding the storage write lock.
func (d *Dictionary[K]) recordUpdateFailure(now time.Time, err error) {
	lockStart := time.Now()
	d.rw.Lock()
	d.metrics.RecordLockWait("write", time.Since(lockStart))
	d.errorCount++
	d.lastErr = &UpdateFailedError{Dictionary: d.name, Err: err}
	retryAt := now.Add(d.nextBackoff(d.errorCount))
	d.backoffEnd.Store(retryAt.UnixNano())
	errorCount := d.errorCount
	d.rw.Unlock()

	d.logger.Warn("could not update cache dictionary",
		zap.Int("error_count", errorCount),
		zap.Time("next_update_at", retryAt),
		zap.Error(err))
}

// clearFailureState resets the backoff triple after a clean update
func (d *Dictionary[K]) clearFailureState() {
	lockStart := time.Now()
	d.rw.Lock()
	d.metrics.RecordLockWait("write", time.Since(lockStart))
	d.errorCount = 0
	d.lastErr = nil
	d.backoffEnd.Store(0)
	d.rw.Unlock()
}
