package dictionary

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/status-im/dict-cache/metrics"
)

// StatsReporter periodically publishes a dictionary's size and load-factor
// gauges and logs when source updates keep failing. The daemon runs one per
// dictionary.
type StatsReporter struct {
	dict     Interface
	interval time.Duration
	metrics  *metrics.Writer
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsReporter builds a reporter for the given dictionary
func NewStatsReporter(dict Interface, interval time.Duration, logger *zap.Logger) *StatsReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsReporter{
		dict:     dict,
		interval: interval,
		metrics:  metrics.NewWriter(dict.Name()),
		logger:   logger.With(zap.String("dictionary", dict.Name())),
	}
}

// Start publishes once immediately and then on every interval tick, until
// the context ends or Stop is called
func (r *StatsReporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.publish()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.publish()
			}
		}
	}()
}

func (r *StatsReporter) publish() {
	r.metrics.RecordCacheSize(r.dict.ElementCount(), r.dict.LoadFactor())

	if err := r.dict.LastError(); err != nil {
		r.logger.Warn("dictionary updates are failing",
			zap.Float64("hit_rate", r.dict.HitRate()),
			zap.Error(err))
	}
}

// Stop halts the reporting loop and waits for it to exit. Safe to call more
// than once.
func (r *StatsReporter) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.wg.Wait()
	}
}
