package dictionary

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/dict-cache/metrics"
)

func TestStatsReporter_PublishesGauges(t *testing.T) {
	src := newFakeSource(map[uint64][]any{
		1: {"a", uint64(0)},
		2: {"b", uint64(0)},
	})
	dict := newTestDictionary(t, src, defaultDictParams())

	_, err := dict.GetColumns([]string{"name"}, idColumn(1, 2), nil)
	require.NoError(t, err)

	reporter := NewStatsReporter(dict, time.Hour, nil)
	reporter.Start(context.Background())
	defer reporter.Stop()

	// The first publish happens on Start, before the first tick.
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.CacheSizeGauge.WithLabelValues(dict.Name())) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Greater(t, testutil.ToFloat64(metrics.LoadFactorGauge.WithLabelValues(dict.Name())), 0.0)
}

func TestStatsReporter_StopHaltsLoop(t *testing.T) {
	dict := newTestDictionary(t, newFakeSource(nil), defaultDictParams())

	reporter := NewStatsReporter(dict, 10*time.Millisecond, nil)
	reporter.Start(context.Background())
	reporter.Stop()
	reporter.Stop() // safe to call again

	// A second Start after Stop is allowed.
	reporter.Start(context.Background())
	reporter.Stop()
}

func TestStatsReporter_DoubleStartIsIgnored(t *testing.T) {
	dict := newTestDictionary(t, newFakeSource(nil), defaultDictParams())

	reporter := NewStatsReporter(dict, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter.Start(ctx)
	reporter.Start(ctx)
	reporter.Stop()
}
