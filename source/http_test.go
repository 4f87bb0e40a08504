package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/dict-cache/schema"
)

func httpTestSchema() *schema.Schema {
	return &schema.Schema{
		Keys: []schema.KeyAttribute{{Name: "id", Type: schema.TypeUInt64}},
		Attributes: []schema.Attribute{
			{Name: "name", Type: schema.TypeString, NullValue: ""},
			{Name: "price", Type: schema.TypeFloat64, NullValue: float64(0)},
		},
	}
}

func drain(t *testing.T, stream Stream) []*Block {
	t.Helper()
	var blocks []*Block
	for {
		block, err := stream.Next()
		require.NoError(t, err)
		if block == nil {
			return blocks
		}
		blocks = append(blocks, block)
	}
}

func TestHTTPSource_LoadIDs(t *testing.T) {
	var gotBody httpRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"blocks": []map[string]any{
				{"columns": []any{
					[]any{1, 2},
					[]any{"a", "b"},
					[]any{1.5, 2.5},
				}},
			},
		})
	}))
	defer server.Close()

	src, err := NewHTTPSource(httpTestSchema(), DefaultHTTPConfig(server.URL), nil)
	require.NoError(t, err)
	assert.True(t, src.SupportsSelectiveLoad())

	stream, err := src.LoadIDs(context.Background(), []uint64{1, 2})
	require.NoError(t, err)

	blocks := drain(t, stream)
	require.Len(t, blocks, 1)
	assert.Equal(t, []uint64{1, 2}, gotBody.IDs)
	assert.Equal(t, schema.Column{uint64(1), uint64(2)}, blocks[0].Columns[0])
	assert.Equal(t, schema.Column{"a", "b"}, blocks[0].Columns[1])
	assert.Equal(t, schema.Column{1.5, 2.5}, blocks[0].Columns[2])
}

func TestHTTPSource_LoadKeys(t *testing.T) {
	sch := &schema.Schema{
		Keys: []schema.KeyAttribute{
			{Name: "id", Type: schema.TypeUInt64},
			{Name: "region", Type: schema.TypeString},
		},
		Attributes: []schema.Attribute{{Name: "name", Type: schema.TypeString, NullValue: ""}},
	}

	var gotBody httpRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"blocks": []map[string]any{
				{"columns": []any{
					[]any{1},
					[]any{"eu"},
					[]any{"alpha"},
				}},
			},
		})
	}))
	defer server.Close()

	src, err := NewHTTPSource(sch, DefaultHTTPConfig(server.URL), nil)
	require.NoError(t, err)

	keyColumns := []schema.Column{
		{uint64(1), uint64(2)},
		{"eu", "us"},
	}
	stream, err := src.LoadKeys(context.Background(), keyColumns, []int{0})
	require.NoError(t, err)

	blocks := drain(t, stream)
	require.Len(t, blocks, 1)
	require.Len(t, gotBody.Keys, 1)
	assert.Equal(t, schema.Column{uint64(1)}, blocks[0].Columns[0])
	assert.Equal(t, schema.Column{"eu"}, blocks[0].Columns[1])
	assert.Equal(t, schema.Column{"alpha"}, blocks[0].Columns[2])
}

func TestHTTPSource_RetriesTransientFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"blocks": []map[string]any{
				{"columns": []any{[]any{1}, []any{"a"}, []any{1.0}}},
			},
		})
	}))
	defer server.Close()

	cfg := DefaultHTTPConfig(server.URL)
	cfg.MaxRetries = 2
	src, err := NewHTTPSource(httpTestSchema(), cfg, nil)
	require.NoError(t, err)

	stream, err := src.LoadIDs(context.Background(), []uint64{1})
	require.NoError(t, err)
	require.Len(t, drain(t, stream), 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestHTTPSource_ColumnArityMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"blocks": []map[string]any{
				{"columns": []any{[]any{1}, []any{"a"}}},
			},
		})
	}))
	defer server.Close()

	src, err := NewHTTPSource(httpTestSchema(), DefaultHTTPConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = src.LoadIDs(context.Background(), []uint64{1})
	assert.Error(t, err)
}

func TestHTTPSource_RequiresURL(t *testing.T) {
	_, err := NewHTTPSource(httpTestSchema(), HTTPConfig{}, nil)
	assert.Error(t, err)
}
