package storage

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/status-im/dict-cache/dictkey"
	"github.com/status-im/dict-cache/schema"
)

// maxProbes bounds the quadratic probe sequence. A key that cannot be placed
// within the window evicts the probed cell with the earliest deadline, which
// keeps eviction deterministic for a given operation trace and seed.
const maxProbes = 32

type cell[K dictkey.Key] struct {
	used      bool
	isDefault bool
	key       K
	deadline  time.Time
	values    []any
}

// Memory is the in-memory storage layout: a fixed-size cell table addressed
// by key hash with quadratic probing. An existing fresh cell for the same key
// is overwritten in place.
type Memory[K dictkey.Key] struct {
	cfg    Config
	sch    *schema.Schema
	cells  []cell[K]
	mask   uint64
	probes int
	size   int
	bytes  uint64
	rnd    *rand.Rand
}

// NewMemory creates a cell-table store with capacity rounded up to the next
// power of two of sizeInCells
func NewMemory[K dictkey.Key](sch *schema.Schema, sizeInCells int, cfg Config) (*Memory[K], error) {
	if sizeInCells <= 0 {
		return nil, fmt.Errorf("size_in_cells must be positive, got %d", sizeInCells)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := 1
	for n < sizeInCells {
		n <<= 1
	}
	probes := maxProbes
	if n < probes {
		probes = n
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Memory[K]{
		cfg:    cfg,
		sch:    sch,
		cells:  make([]cell[K], n),
		mask:   uint64(n - 1),
		probes: probes,
		rnd:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Fetch implements Storage. Rows are appended in the order of the supplied
// keys, so the result advertises key order.
func (m *Memory[K]) Fetch(keys []K, request *schema.FetchRequest, now time.Time) FetchResult[K] {
	result := FetchResult[K]{
		Columns:      request.MakeResultColumns(),
		FreshIndex:   make(map[K]int),
		ExpiredIndex: make(map[K]int),
		InKeyOrder:   true,
	}

	row := 0
	for keyRow, key := range keys {
		idx, found := m.find(key)
		if !found {
			result.NeedUpdate = append(result.NeedUpdate, keyRow)
			continue
		}
		c := &m.cells[idx]
		switch {
		case !now.After(c.deadline):
			result.FreshIndex[key] = row
		case !now.After(c.deadline.Add(m.cfg.StrictMaxLifetime)):
			result.ExpiredIndex[key] = row
			result.NeedUpdate = append(result.NeedUpdate, keyRow)
		default:
			// Beyond the strict lifetime the entry is invalid.
			result.NeedUpdate = append(result.NeedUpdate, keyRow)
			continue
		}
		for i := range result.Columns {
			result.Columns[i] = append(result.Columns[i], c.values[i])
		}
		result.DefaultMask = append(result.DefaultMask, c.isDefault)
		row++
	}
	return result
}

// Insert implements Storage
func (m *Memory[K]) Insert(keys []K, columns []schema.Column, now time.Time) error {
	if len(columns) != len(m.sch.Attributes) {
		return fmt.Errorf("expected %d attribute columns, got %d", len(m.sch.Attributes), len(columns))
	}
	for row, key := range keys {
		values := make([]any, len(columns))
		for i, col := range columns {
			if row >= len(col) {
				return fmt.Errorf("attribute column %d has %d rows, need row %d", i, len(col), row)
			}
			values[i] = col[row]
		}
		m.place(key, values, false, now)
	}
	return nil
}

// InsertDefaults implements Storage
func (m *Memory[K]) InsertDefaults(keys []K, now time.Time) {
	for _, key := range keys {
		m.place(key, m.sch.NullRow(), true, now)
	}
}

// Size implements Storage
func (m *Memory[K]) Size() int { return m.size }

// MaxSize implements Storage
func (m *Memory[K]) MaxSize() int { return len(m.cells) }

// BytesAllocated implements Storage
func (m *Memory[K]) BytesAllocated() uint64 { return m.bytes }

// CachedKeys implements Storage
func (m *Memory[K]) CachedKeys(now time.Time) []K {
	var keys []K
	for i := range m.cells {
		c := &m.cells[i]
		if c.used && !c.isDefault && !now.After(c.deadline) {
			keys = append(keys, c.key)
		}
	}
	return keys
}

// Close implements Storage
func (m *Memory[K]) Close() error { return nil }

// find locates the cell holding key, probing the same sequence place uses
func (m *Memory[K]) find(key K) (int, bool) {
	h := dictkey.Hash(key)
	for i := 0; i < m.probes; i++ {
		idx := int((h + uint64(i*(i+1)/2)) & m.mask)
		c := &m.cells[idx]
		if !c.used {
			return 0, false
		}
		if c.key == key {
			return idx, true
		}
	}
	return 0, false
}

// place writes an entry into an empty probed cell, overwrites the same key in
// place, or evicts the probed cell with the earliest deadline
func (m *Memory[K]) place(key K, values []any, isDefault bool, now time.Time) {
	h := dictkey.Hash(key)
	target := -1
	oldest := -1
	for i := 0; i < m.probes; i++ {
		idx := int((h + uint64(i*(i+1)/2)) & m.mask)
		c := &m.cells[idx]
		if !c.used {
			target = idx
			break
		}
		if c.key == key {
			target = idx
			break
		}
		if oldest < 0 || c.deadline.Before(m.cells[oldest].deadline) {
			oldest = idx
		}
	}
	if target < 0 {
		target = oldest
	}

	c := &m.cells[target]
	if c.used {
		m.bytes -= rowBytes(c.values)
	} else {
		c.used = true
		m.size++
	}
	c.key = key
	c.values = values
	c.isDefault = isDefault
	c.deadline = m.deadline(now)
	m.bytes += rowBytes(values)
}

// deadline draws a uniform instant from the configured lifetime band to smear
// expiration storms
func (m *Memory[K]) deadline(now time.Time) time.Time {
	band := m.cfg.MaxLifetime - m.cfg.MinLifetime
	jitter := time.Duration(0)
	if band > 0 {
		jitter = time.Duration(m.rnd.Int63n(int64(band) + 1))
	}
	return now.Add(m.cfg.MinLifetime + jitter)
}

func rowBytes(values []any) uint64 {
	total := uint64(64)
	for _, v := range values {
		if s, ok := v.(string); ok {
			total += uint64(len(s))
		} else {
			total += 8
		}
	}
	return total
}
