// Package storage holds the bounded, TTL-indexed key→attribute-row stores the
// cache dictionary reads through. Implementations are not goroutine-safe on
// their own: the dictionary serialises every call under its reader-writer
// lock, apart from the final Close.
package storage

import (
	"fmt"
	"time"

	"github.com/status-im/dict-cache/dictkey"
	"github.com/status-im/dict-cache/schema"
)

// FetchResult is the outcome of a batched storage lookup.
// Result columns contain one row per key found fresh or usable-expired;
// the two indexes map keys to row offsets within those columns.
type FetchResult[K dictkey.Key] struct {
	// Columns holds materialised attribute columns, full schema arity.
	Columns []schema.Column

	// FreshIndex maps each fresh key to its row offset in Columns.
	FreshIndex map[K]int

	// ExpiredIndex maps each usable-expired key to its row offset in Columns.
	ExpiredIndex map[K]int

	// DefaultMask marks rows that hold a negative entry: the source did not
	// return the key and the null row was cached in its place.
	DefaultMask []bool

	// NeedUpdate lists the input row indices of keys that are missing or
	// expired, in input order. These are the keys an update must resolve.
	NeedUpdate []int

	// InKeyOrder is true when Columns rows follow the order of the supplied
	// keys, letting callers skip reordering when no update is needed.
	InKeyOrder bool
}

// HasDefaultRows reports whether any fetched row is a negative entry
func (r *FetchResult[K]) HasDefaultRows() bool {
	for _, d := range r.DefaultMask {
		if d {
			return true
		}
	}
	return false
}

// Storage is the contract between the cache dictionary and a concrete store.
// All methods are called under the dictionary's write lock except the size
// and key accessors, which run under the read lock, and Close, which runs
// without the lock once the update queue has stopped.
type Storage[K dictkey.Key] interface {
	// Fetch classifies the supplied keys as of now and materialises rows for
	// every fresh or usable-expired key.
	Fetch(keys []K, request *schema.FetchRequest, now time.Time) FetchResult[K]

	// Insert stores one attribute row per key, assigning each entry a random
	// deadline within the configured lifetime band. The batch is atomic with
	// respect to Fetch because both run under the external write lock.
	Insert(keys []K, columns []schema.Column, now time.Time) error

	// InsertDefaults records negative entries for keys the source omitted so
	// they are not re-requested until expiration.
	InsertDefaults(keys []K, now time.Time)

	// Size returns the number of stored entries.
	Size() int

	// MaxSize returns the configured capacity.
	MaxSize() int

	// BytesAllocated estimates the memory and disk footprint.
	BytesAllocated() uint64

	// CachedKeys returns the keys of all fresh, non-default entries.
	CachedKeys(now time.Time) []K

	// Close releases any resources held by the store.
	Close() error
}

// Config bounds entry lifetimes for both storage layouts.
// Each inserted entry gets a deadline drawn uniformly from
// [now+MinLifetime, now+MaxLifetime]; beyond deadline+StrictMaxLifetime the
// entry is invalid and treated as missing.
type Config struct {
	MinLifetime       time.Duration
	MaxLifetime       time.Duration
	StrictMaxLifetime time.Duration

	// Seed fixes the deadline jitter sequence. Zero seeds from the clock.
	Seed int64
}

func (c *Config) validate() error {
	if c.MaxLifetime <= 0 {
		return fmt.Errorf("lifetime max must be positive")
	}
	if c.MinLifetime < 0 || c.MinLifetime > c.MaxLifetime {
		return fmt.Errorf("lifetime min %v must be within [0, %v]", c.MinLifetime, c.MaxLifetime)
	}
	if c.StrictMaxLifetime == 0 {
		c.StrictMaxLifetime = c.MaxLifetime
	}
	if c.StrictMaxLifetime < c.MaxLifetime {
		return fmt.Errorf("strict max lifetime %v must not undercut lifetime max %v", c.StrictMaxLifetime, c.MaxLifetime)
	}
	return nil
}
