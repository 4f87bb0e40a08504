package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/dict-cache/schema"
)

type nopSource struct{ id int }

func (nopSource) SupportsSelectiveLoad() bool { return true }
func (nopSource) LoadIDs(context.Context, []uint64) (Stream, error) {
	return NewBlocksStream(), nil
}
func (nopSource) LoadKeys(context.Context, []schema.Column, []int) (Stream, error) {
	return NewBlocksStream(), nil
}

func TestStaticProvider(t *testing.T) {
	src := nopSource{id: 1}
	provider := NewStaticProvider(src)

	got, err := provider.Get()
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestRefreshingProvider_RebuildsAfterInterval(t *testing.T) {
	builds := 0
	provider := NewRefreshingProvider(func() (Source, error) {
		builds++
		return nopSource{id: builds}, nil
	}, 50*time.Millisecond, nil)

	first, err := provider.Get()
	require.NoError(t, err)
	second, err := provider.Get()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, builds)

	time.Sleep(60 * time.Millisecond)
	third, err := provider.Get()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, builds)
}

func TestRefreshingProvider_ZeroIntervalKeepsHandle(t *testing.T) {
	builds := 0
	provider := NewRefreshingProvider(func() (Source, error) {
		builds++
		return nopSource{id: builds}, nil
	}, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := provider.Get()
		require.NoError(t, err)
	}
	assert.Equal(t, 1, builds)
}

func TestRefreshingProvider_KeepsStaleHandleOnRebuildFailure(t *testing.T) {
	builds := 0
	provider := NewRefreshingProvider(func() (Source, error) {
		builds++
		if builds > 1 {
			return nil, errors.New("endpoint unreachable")
		}
		return nopSource{id: builds}, nil
	}, 10*time.Millisecond, nil)

	first, err := provider.Get()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	second, err := provider.Get()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The first Get has no handle to fall back to.
	failing := NewRefreshingProvider(func() (Source, error) {
		return nil, errors.New("down")
	}, 0, nil)
	_, err = failing.Get()
	assert.Error(t, err)
}

func TestBlocksStream(t *testing.T) {
	b1 := &Block{Columns: []schema.Column{{uint64(1)}}}
	b2 := &Block{Columns: []schema.Column{{uint64(2)}}}
	stream := NewBlocksStream(b1, b2)

	got, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, b1, got)
	assert.Equal(t, 1, got.Rows())

	got, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, b2, got)

	got, err = stream.Next()
	require.NoError(t, err)
	assert.Nil(t, got)
}
