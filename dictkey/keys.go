// Package dictkey materialises flat key sequences from dictionary key
// columns. Simple dictionaries address rows by a uint64 identifier; complex
// dictionaries by a byte-string formed from the serialised key tuple. The key
// kind is fixed at dictionary construction, never switched at run time.
package dictkey

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/status-im/dict-cache/schema"
)

// Key is the storage key representation
type Key interface {
	~uint64 | ~string
}

// Hash returns the bucket hash of a key. The in-memory cell table uses it for
// probing; the SSD layout appends to its current partition and does not hash.
func Hash[K Key](key K) uint64 {
	switch v := any(key).(type) {
	case uint64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		return xxhash.Sum64(b[:])
	case string:
		return xxhash.Sum64String(v)
	}
	return 0
}

// Extractor materialises one key per selected row of a set of key columns
type Extractor[K Key] interface {
	// Extract returns the keys for the given rows. A nil rows slice selects
	// every row of the columns.
	Extract(keyColumns []schema.Column, rows []int) ([]K, error)
}

// SimpleExtractor extracts uint64 identifiers from a single key column
type SimpleExtractor struct{}

func (SimpleExtractor) Extract(keyColumns []schema.Column, rows []int) ([]uint64, error) {
	if len(keyColumns) != 1 {
		return nil, fmt.Errorf("simple key dictionary expects 1 key column, got %d", len(keyColumns))
	}
	col := keyColumns[0]
	if rows == nil {
		keys := make([]uint64, len(col))
		for i, v := range col {
			id, ok := v.(uint64)
			if !ok {
				return nil, fmt.Errorf("key row %d: %v (%T) is not a uint64 identifier", i, v, v)
			}
			keys[i] = id
		}
		return keys, nil
	}
	keys := make([]uint64, len(rows))
	for i, row := range rows {
		if row >= len(col) {
			return nil, fmt.Errorf("key row %d out of range (%d rows)", row, len(col))
		}
		id, ok := col[row].(uint64)
		if !ok {
			return nil, fmt.Errorf("key row %d: %v (%T) is not a uint64 identifier", row, col[row], col[row])
		}
		keys[i] = id
	}
	return keys, nil
}

// ComplexExtractor serialises typed key tuples into byte strings. The
// resulting Go strings own their backing bytes, so key lifetime follows
// whoever holds the slice (for update units, the unit itself).
type ComplexExtractor struct {
	Types []schema.AttributeType
}

// NewComplexExtractor builds an extractor for the schema's key columns
func NewComplexExtractor(s *schema.Schema) ComplexExtractor {
	return ComplexExtractor{Types: s.KeyTypes()}
}

func (e ComplexExtractor) Extract(keyColumns []schema.Column, rows []int) ([]string, error) {
	if len(keyColumns) != len(e.Types) {
		return nil, fmt.Errorf("complex key dictionary expects %d key columns, got %d", len(e.Types), len(keyColumns))
	}
	rowCount := 0
	if len(keyColumns) > 0 {
		rowCount = len(keyColumns[0])
	}
	if rows == nil {
		rows = make([]int, rowCount)
		for i := range rows {
			rows[i] = i
		}
	}

	keys := make([]string, len(rows))
	var buf bytes.Buffer
	for i, row := range rows {
		buf.Reset()
		for c, col := range keyColumns {
			if row >= len(col) {
				return nil, fmt.Errorf("key row %d out of range (%d rows)", row, len(col))
			}
			if err := schema.EncodeValue(&buf, e.Types[c], col[row]); err != nil {
				return nil, fmt.Errorf("key row %d column %d: %w", row, c, err)
			}
		}
		keys[i] = buf.String()
	}
	return keys, nil
}

// DecodeComplex splits a serialised complex key back into its typed column
// values. Used when iterating cached keys back out as blocks.
func DecodeComplex(key string, types []schema.AttributeType) ([]any, error) {
	r := bytes.NewReader([]byte(key))
	values := make([]any, len(types))
	for i, t := range types {
		v, err := schema.DecodeValue(r, t)
		if err != nil {
			return nil, fmt.Errorf("key column %d: %w", i, err)
		}
		values[i] = v
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after decoding key tuple", r.Len())
	}
	return values, nil
}
