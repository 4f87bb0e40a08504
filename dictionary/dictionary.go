// Package dictionary implements a read-through caching dictionary: callers
// request attributes for batches of keys, fresh values are served from
// storage, and missing or expired keys are resolved through a bounded update
// queue against the external source.
package dictionary

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/status-im/dict-cache/config"
	"github.com/status-im/dict-cache/dictkey"
	"github.com/status-im/dict-cache/metrics"
	"github.com/status-im/dict-cache/schema"
	"github.com/status-im/dict-cache/source"
	"github.com/status-im/dict-cache/storage"
)

// Interface is the caller-facing surface of a cache dictionary, independent
// of the key kind chosen at construction
type Interface interface {
	Name() string

	// GetColumns returns one column per requested attribute, aligned 1:1 with
	// the input key rows. defaultColumns supplies per-row defaults aligned
	// with attributeNames; nil entries fall back to schema null values.
	GetColumns(attributeNames []string, keyColumns []schema.Column, defaultColumns []schema.Column) ([]schema.Column, error)

	// GetColumn is the single-attribute convenience over GetColumns.
	GetColumn(attributeName string, keyColumns []schema.Column, defaultColumn schema.Column) (schema.Column, error)

	// HasKeys reports per input row whether the key exists.
	HasKeys(keyColumns []schema.Column) ([]bool, error)

	// Hierarchy operations; simple-key dictionaries only.
	ToParent(ids []uint64) ([]uint64, error)
	IsInVectorVector(childIDs, ancestorIDs []uint64) ([]bool, error)
	IsInVectorConstant(childIDs []uint64, ancestorID uint64) ([]bool, error)
	IsInConstantVector(childID uint64, ancestorIDs []uint64) ([]bool, error)

	// BlockInputStream iterates all currently cached keys with the named
	// columns in blocks of at most maxBlockSize rows.
	BlockInputStream(columnNames []string, maxBlockSize int) (source.Stream, error)

	// Introspection.
	ElementCount() int
	BytesAllocated() uint64
	LoadFactor() float64
	LastError() error
	HitRate() float64

	// UpdateEvents exposes the notifier that fires after every completed
	// source update, successful or failed.
	UpdateEvents() *UpdateNotifier

	// Close stops the update queue and releases storage resources.
	Close()
}

// BackoffConfig shapes the bounded exponential backoff applied after source
// failures: Base * 2^min(errorCount-1, ExponentCap) + U[0, Jitter].
type BackoffConfig struct {
	Base        time.Duration
	ExponentCap int
	Jitter      time.Duration
}

// DefaultBackoffConfig returns the production backoff shape
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:        5 * time.Second,
		ExponentCap: 6,
		Jitter:      5 * time.Second,
	}
}

// Option customises dictionary construction
type Option func(*options)

type options struct {
	logger  *zap.Logger
	backoff BackoffConfig
	seed    int64
}

// WithLogger sets the dictionary logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBackoff overrides the failure backoff shape
func WithBackoff(cfg BackoffConfig) Option {
	return func(o *options) { o.backoff = cfg }
}

// WithSeed fixes the backoff jitter sequence
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// Dictionary is the generic cache dictionary core. K is fixed at
// construction: uint64 for simple layouts, string for complex-key layouts.
type Dictionary[K dictkey.Key] struct {
	name      string
	sch       *schema.Schema
	extractor dictkey.Extractor[K]

	provider source.Provider
	store    storage.Storage[K]
	queue    *UpdateQueue[K]

	allowReadExpired bool
	backoffCfg       BackoffConfig

	// rw protects the storage and the error/backoff triple. Fetch runs under
	// the write lock because storage may record access state.
	rw sync.RWMutex

	// sourceMu serialises access to the source handle. Acquired before rw in
	// the worker, never the other way around.
	sourceMu sync.Mutex

	errorCount int
	lastErr    error
	backoffEnd atomic.Int64 // unix nanos; 0 means no backoff

	hits    atomic.Uint64
	queries atomic.Uint64

	hierIndex int
	hierAttr  *schema.Attribute

	rndMu sync.Mutex
	rnd   *rand.Rand

	metrics  *metrics.Writer
	notifier *UpdateNotifier
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a dictionary over the given storage and source provider. The
// extractor fixes the key kind and must match K.
func New[K dictkey.Key](
	name string,
	sch *schema.Schema,
	extractor dictkey.Extractor[K],
	provider source.Provider,
	store storage.Storage[K],
	queueCfg config.UpdateQueueConfig,
	allowReadExpired bool,
	opts ...Option,
) (*Dictionary[K], error) {
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	o := options{logger: zap.NewNop(), backoff: DefaultBackoffConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	src, err := provider.Get()
	if err != nil {
		return nil, fmt.Errorf("obtain source for dictionary %s: %w", name, err)
	}
	if !src.SupportsSelectiveLoad() {
		return nil, fmt.Errorf("%w: source of dictionary %s cannot load selectively", ErrUnsupported, name)
	}

	d := &Dictionary[K]{
		name:             name,
		sch:              sch,
		extractor:        extractor,
		provider:         provider,
		store:            store,
		allowReadExpired: allowReadExpired,
		backoffCfg:       o.backoff,
		hierIndex:        -1,
		rnd:              rand.New(rand.NewSource(seed)),
		metrics:          metrics.NewWriter(name),
		notifier:         newUpdateNotifier(),
		logger:           o.logger.With(zap.String("dictionary", name)),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if idx, attr := sch.HierarchicalAttribute(); attr != nil {
		if attr.Type != schema.TypeUInt64 {
			return nil, fmt.Errorf("%w: attribute %q", ErrTypeMismatch, attr.Name)
		}
		d.hierIndex, d.hierAttr = idx, attr
	}

	queue, err := NewUpdateQueue[K](name, queueCfg, d.update, d.logger)
	if err != nil {
		return nil, err
	}
	d.queue = queue
	return d, nil
}

// Name returns the dictionary name
func (d *Dictionary[K]) Name() string { return d.name }

// Schema returns the dictionary structure
func (d *Dictionary[K]) Schema() *schema.Schema { return d.sch }

// UpdateEvents implements Interface
func (d *Dictionary[K]) UpdateEvents() *UpdateNotifier { return d.notifier }

// Close implements Interface
func (d *Dictionary[K]) Close() {
	d.cancel()
	d.queue.StopAndWait()
	if err := d.store.Close(); err != nil {
		d.logger.Warn("closing storage failed", zap.Error(err))
	}
}

// ElementCount implements Interface
func (d *Dictionary[K]) ElementCount() int {
	start := time.Now()
	d.rw.RLock()
	d.metrics.RecordLockWait("read", time.Since(start))
	defer d.rw.RUnlock()
	return d.store.Size()
}

// BytesAllocated implements Interface
func (d *Dictionary[K]) BytesAllocated() uint64 {
	start := time.Now()
	d.rw.RLock()
	d.metrics.RecordLockWait("read", time.Since(start))
	defer d.rw.RUnlock()
	return d.store.BytesAllocated()
}

// LoadFactor implements Interface
func (d *Dictionary[K]) LoadFactor() float64 {
	start := time.Now()
	d.rw.RLock()
	d.metrics.RecordLockWait("read", time.Since(start))
	defer d.rw.RUnlock()
	return float64(d.store.Size()) / float64(d.store.MaxSize())
}

// LastError implements Interface
func (d *Dictionary[K]) LastError() error {
	start := time.Now()
	d.rw.RLock()
	d.metrics.RecordLockWait("read", time.Since(start))
	defer d.rw.RUnlock()
	return d.lastErr
}

// HitRate implements Interface
func (d *Dictionary[K]) HitRate() float64 {
	queries := d.queries.Load()
	if queries == 0 {
		return 0
	}
	return float64(d.hits.Load()) / float64(queries)
}

// QueueLen returns the number of pending update units
func (d *Dictionary[K]) QueueLen() int {
	return d.queue.Len()
}

// Source returns the current source handle
func (d *Dictionary[K]) Source() (source.Source, error) {
	d.sourceMu.Lock()
	defer d.sourceMu.Unlock()
	return d.provider.Get()
}

// getSourceAndUpdateIfNeeded returns the possibly-refreshed source handle.
// Callers must hold sourceMu.
func (d *Dictionary[K]) getSourceAndUpdateIfNeeded() (source.Source, error) {
	return d.provider.Get()
}

// backoffEndTime reads the scheduled next-attempt time, zero when none
func (d *Dictionary[K]) backoffEndTime() time.Time {
	nanos := d.backoffEnd.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// nextBackoff computes the delay for the given consecutive failure count
func (d *Dictionary[K]) nextBackoff(errorCount int) time.Duration {
	exp := errorCount - 1
	if exp > d.backoffCfg.ExponentCap {
		exp = d.backoffCfg.ExponentCap
	}
	if exp < 0 {
		exp = 0
	}
	delay := d.backoffCfg.Base << uint(exp)
	if d.backoffCfg.Jitter > 0 {
		d.rndMu.Lock()
		delay += time.Duration(d.rnd.Int63n(int64(d.backoffCfg.Jitter)))
		d.rndMu.Unlock()
	}
	return delay
}

// NewFromConfig builds a dictionary from a parsed layout configuration,
// choosing the key kind and storage the way the layout names it
func NewFromConfig(cfg config.DictionaryConfig, sch *schema.Schema, provider source.Provider, opts ...Option) (Interface, error) {
	if cfg.StrictMaxLifetimeSeconds == 0 {
		cfg.StrictMaxLifetimeSeconds = cfg.Lifetime.MaxSec
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	storageCfg := storage.Config{
		MinLifetime:       time.Duration(cfg.Lifetime.MinSec) * time.Second,
		MaxLifetime:       time.Duration(cfg.Lifetime.MaxSec) * time.Second,
		StrictMaxLifetime: time.Duration(cfg.StrictMaxLifetimeSeconds) * time.Second,
	}

	simpleLayout := cfg.Layout == config.LayoutCache || cfg.Layout == config.LayoutSSDCache
	if simpleLayout && !sch.Simple() {
		return nil, fmt.Errorf("%w: complex key structure is not supported for dictionary of layout %q", ErrUnsupported, cfg.Layout)
	}
	if !simpleLayout && sch.Simple() {
		return nil, fmt.Errorf("%w: id structure is not supported for dictionary of layout %q", ErrUnsupported, cfg.Layout)
	}

	switch cfg.Layout {
	case config.LayoutCache:
		store, err := storage.NewMemory[uint64](sch, cfg.SizeInCells, storageCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		return New[uint64](cfg.Name, sch, dictkey.SimpleExtractor{}, provider, store, cfg.UpdateQueue, cfg.AllowReadExpiredKeys, opts...)
	case config.LayoutComplexKeyCache:
		store, err := storage.NewMemory[string](sch, cfg.SizeInCells, storageCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		return New[string](cfg.Name, sch, dictkey.NewComplexExtractor(sch), provider, store, cfg.UpdateQueue, cfg.AllowReadExpiredKeys, opts...)
	case config.LayoutSSDCache:
		store, err := storage.NewSSD[uint64](sch, ssdConfig(cfg, storageCfg))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		return New[uint64](cfg.Name, sch, dictkey.SimpleExtractor{}, provider, store, cfg.UpdateQueue, cfg.AllowReadExpiredKeys, opts...)
	case config.LayoutComplexKeySSDCache:
		store, err := storage.NewSSD[string](sch, ssdConfig(cfg, storageCfg))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		return New[string](cfg.Name, sch, dictkey.NewComplexExtractor(sch), provider, store, cfg.UpdateQueue, cfg.AllowReadExpiredKeys, opts...)
	}
	return nil, fmt.Errorf("%w: unknown layout %q", config.ErrInvalidConfig, cfg.Layout)
}

func ssdConfig(cfg config.DictionaryConfig, storageCfg storage.Config) storage.SSDConfig {
	return storage.SSDConfig{
		Config:          storageCfg,
		Path:            cfg.SSD.Path,
		BlockSize:       cfg.SSD.BlockSize,
		FileSize:        cfg.SSD.FileSize,
		ReadBufferSize:  cfg.SSD.ReadBufferSize,
		WriteBufferSize: cfg.SSD.WriteBufferSize,
		MaxPartitions:   cfg.SSD.MaxPartitionsCount,
		MaxStoredKeys:   cfg.SSD.MaxStoredKeys,
	}
}
