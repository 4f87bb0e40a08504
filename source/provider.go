package source

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Provider hands out the current source handle. The dictionary calls Get
// under its source mutex before every update, so a provider may rebuild the
// handle without racing in-flight streams.
type Provider interface {
	Get() (Source, error)
}

// StaticProvider always returns the same source
type StaticProvider struct {
	src Source
}

// NewStaticProvider wraps a fixed source handle
func NewStaticProvider(src Source) *StaticProvider {
	return &StaticProvider{src: src}
}

// Get implements Provider
func (p *StaticProvider) Get() (Source, error) {
	return p.src, nil
}

// Factory builds a fresh source handle
type Factory func() (Source, error)

// RefreshingProvider rebuilds the source handle once its refresh interval has
// elapsed, so credential or endpoint rotation is picked up without restarting
// the dictionary.
type RefreshingProvider struct {
	factory  Factory
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	current Source
	builtAt time.Time
}

// NewRefreshingProvider creates a provider that rebuilds the handle after
// every interval. A zero interval keeps the first handle forever.
func NewRefreshingProvider(factory Factory, interval time.Duration, logger *zap.Logger) *RefreshingProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshingProvider{factory: factory, interval: interval, logger: logger}
}

// Get implements Provider
func (p *RefreshingProvider) Get() (Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.current != nil && (p.interval <= 0 || now.Sub(p.builtAt) < p.interval) {
		return p.current, nil
	}

	src, err := p.factory()
	if err != nil {
		if p.current != nil {
			// Keep serving the stale handle; the next Get retries the build.
			p.logger.Warn("source rebuild failed, keeping previous handle", zap.Error(err))
			return p.current, nil
		}
		return nil, err
	}
	p.logger.Debug("source handle rebuilt")
	p.current = src
	p.builtAt = now
	return src, nil
}
