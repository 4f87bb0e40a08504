package dictionary

import (
	"fmt"
	"time"

	"github.com/status-im/dict-cache/dictkey"
	"github.com/status-im/dict-cache/schema"
	"github.com/status-im/dict-cache/source"
)

// blockStream iterates a snapshot of the cached keys in bounded chunks,
// resolving the requested columns through the normal read path
type blockStream[K dictkey.Key] struct {
	dict         *Dictionary[K]
	keys         []K
	columnNames  []string
	maxBlockSize int
	pos          int
}

// BlockInputStream implements Interface. The key snapshot is taken once; the
// stream observes refreshes that land while iterating.
func (d *Dictionary[K]) BlockInputStream(columnNames []string, maxBlockSize int) (source.Stream, error) {
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("max block size must be positive, got %d", maxBlockSize)
	}
	// Validate the column names up front.
	if _, err := schema.NewFetchRequest(d.sch, columnNames); err != nil {
		return nil, err
	}

	lockStart := time.Now()
	d.rw.RLock()
	d.metrics.RecordLockWait("read", time.Since(lockStart))
	keys := d.store.CachedKeys(time.Now())
	d.rw.RUnlock()

	return &blockStream[K]{
		dict:         d,
		keys:         keys,
		columnNames:  columnNames,
		maxBlockSize: maxBlockSize,
	}, nil
}

// Next implements source.Stream
func (s *blockStream[K]) Next() (*source.Block, error) {
	if s.pos >= len(s.keys) {
		return nil, nil
	}
	end := s.pos + s.maxBlockSize
	if end > len(s.keys) {
		end = len(s.keys)
	}
	chunk := s.keys[s.pos:end]
	s.pos = end

	keyColumns, err := s.keyColumns(chunk)
	if err != nil {
		return nil, err
	}
	attributeColumns, err := s.dict.GetColumns(s.columnNames, keyColumns, nil)
	if err != nil {
		return nil, err
	}
	return &source.Block{Columns: append(keyColumns, attributeColumns...)}, nil
}

// keyColumns rebuilds typed key columns from the stored key representation
func (s *blockStream[K]) keyColumns(chunk []K) ([]schema.Column, error) {
	if ids, ok := any(chunk).([]uint64); ok {
		column := make(schema.Column, len(ids))
		for i, id := range ids {
			column[i] = id
		}
		return []schema.Column{column}, nil
	}

	keyTypes := s.dict.sch.KeyTypes()
	columns := make([]schema.Column, len(keyTypes))
	for i := range columns {
		columns[i] = make(schema.Column, len(chunk))
	}
	encoded := any(chunk).([]string)
	for row, key := range encoded {
		values, err := dictkey.DecodeComplex(key, keyTypes)
		if err != nil {
			return nil, fmt.Errorf("decode cached key: %w", err)
		}
		for c, v := range values {
			columns[c][row] = v
		}
	}
	return columns, nil
}
