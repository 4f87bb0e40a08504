package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/dict-cache/schema"
)

func testSSDConfig(t *testing.T) SSDConfig {
	t.Helper()
	return SSDConfig{
		Config:          testConfig(),
		Path:            t.TempDir(),
		BlockSize:       512,
		FileSize:        512 * 1024,
		ReadBufferSize:  512 * 4,
		WriteBufferSize: 512,
		MaxPartitions:   2,
		MaxStoredKeys:   4,
	}
}

func TestSSD_InsertFetchRoundTrip(t *testing.T) {
	sch := testSchema()
	st, err := NewSSD[uint64](sch, testSSDConfig(t))
	require.NoError(t, err)
	defer st.Close()

	t0 := time.Now()
	require.NoError(t, st.Insert(
		[]uint64{1, 2},
		[]schema.Column{{"a", "b"}, {1.5, 2.5}},
		t0,
	))

	res := st.Fetch([]uint64{2, 1, 3}, fullRequest(t, sch), t0)
	assert.False(t, res.InKeyOrder)
	require.Len(t, res.FreshIndex, 2)
	assert.Equal(t, []int{2}, res.NeedUpdate)

	assert.Equal(t, "a", res.Columns[0][res.FreshIndex[1]])
	assert.Equal(t, 1.5, res.Columns[1][res.FreshIndex[1]])
	assert.Equal(t, "b", res.Columns[0][res.FreshIndex[2]])
}

func TestSSD_RewriteTakesNewestValue(t *testing.T) {
	sch := testSchema()
	st, err := NewSSD[uint64](sch, testSSDConfig(t))
	require.NoError(t, err)
	defer st.Close()

	t0 := time.Now()
	require.NoError(t, st.Insert([]uint64{1}, []schema.Column{{"old"}, {1.0}}, t0))
	require.NoError(t, st.Insert([]uint64{1}, []schema.Column{{"new"}, {2.0}}, t0))

	res := st.Fetch([]uint64{1}, fullRequest(t, sch), t0)
	require.Len(t, res.FreshIndex, 1)
	assert.Equal(t, "new", res.Columns[0][res.FreshIndex[1]])
}

func TestSSD_PartitionRotationBoundsSize(t *testing.T) {
	sch := testSchema()
	cfg := testSSDConfig(t)
	st, err := NewSSD[uint64](sch, cfg)
	require.NoError(t, err)
	defer st.Close()

	t0 := time.Now()
	for i := uint64(0); i < 40; i++ {
		require.NoError(t, st.Insert([]uint64{i}, []schema.Column{{"v"}, {0.0}}, t0))
		assert.LessOrEqual(t, st.Size(), st.MaxSize())
	}
	assert.Equal(t, cfg.MaxPartitions*cfg.MaxStoredKeys, st.MaxSize())

	// The most recent keys must survive rotation.
	res := st.Fetch([]uint64{39}, fullRequest(t, sch), t0)
	require.Len(t, res.FreshIndex, 1)
	assert.Equal(t, "v", res.Columns[0][res.FreshIndex[39]])
}

func TestSSD_ExpirationClasses(t *testing.T) {
	sch := testSchema()
	cfg := testSSDConfig(t)
	st, err := NewSSD[uint64](sch, cfg)
	require.NoError(t, err)
	defer st.Close()

	t0 := time.Now()
	require.NoError(t, st.Insert([]uint64{1}, []schema.Column{{"a"}, {1.0}}, t0))

	res := st.Fetch([]uint64{1}, fullRequest(t, sch), t0.Add(cfg.MaxLifetime+time.Millisecond))
	assert.Len(t, res.ExpiredIndex, 1)
	assert.Equal(t, []int{0}, res.NeedUpdate)

	res = st.Fetch([]uint64{1}, fullRequest(t, sch), t0.Add(cfg.MaxLifetime+cfg.StrictMaxLifetime+time.Millisecond))
	assert.Empty(t, res.FreshIndex)
	assert.Empty(t, res.ExpiredIndex)
}

func TestSSD_NegativeEntries(t *testing.T) {
	sch := testSchema()
	st, err := NewSSD[uint64](sch, testSSDConfig(t))
	require.NoError(t, err)
	defer st.Close()

	t0 := time.Now()
	st.InsertDefaults([]uint64{9}, t0)

	res := st.Fetch([]uint64{9}, fullRequest(t, sch), t0)
	require.Len(t, res.FreshIndex, 1)
	assert.True(t, res.HasDefaultRows())
	assert.Empty(t, st.CachedKeys(t0))
}

func TestSSD_BytesAllocated(t *testing.T) {
	sch := testSchema()
	st, err := NewSSD[uint64](sch, testSSDConfig(t))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Insert([]uint64{1}, []schema.Column{{"abcdef"}, {1.0}}, time.Now()))
	assert.Greater(t, st.BytesAllocated(), uint64(0))
}

func TestSSD_RejectsInvalidConfig(t *testing.T) {
	sch := testSchema()

	bad := testSSDConfig(t)
	bad.Path = ""
	_, err := NewSSD[uint64](sch, bad)
	assert.Error(t, err)

	bad = testSSDConfig(t)
	bad.FileSize = 1000 // not a multiple of block size
	_, err = NewSSD[uint64](sch, bad)
	assert.Error(t, err)

	bad = testSSDConfig(t)
	bad.WriteBufferSize = 100
	_, err = NewSSD[uint64](sch, bad)
	assert.Error(t, err)

	bad = testSSDConfig(t)
	bad.MaxPartitions = 0
	_, err = NewSSD[uint64](sch, bad)
	assert.Error(t, err)
}

func TestSSD_ComplexKeys(t *testing.T) {
	sch := &schema.Schema{
		Keys: []schema.KeyAttribute{
			{Name: "id", Type: schema.TypeUInt64},
			{Name: "region", Type: schema.TypeString},
		},
		Attributes: []schema.Attribute{{Name: "name", Type: schema.TypeString, NullValue: ""}},
	}
	cfg := testSSDConfig(t)
	st, err := NewSSD[string](sch, cfg)
	require.NoError(t, err)
	defer st.Close()

	req, err := schema.NewFetchRequest(sch, []string{"name"})
	require.NoError(t, err)

	t0 := time.Now()
	require.NoError(t, st.Insert([]string{"k1", "k2"}, []schema.Column{{"a", "b"}}, t0))

	res := st.Fetch([]string{"k2", "missing"}, req, t0)
	require.Len(t, res.FreshIndex, 1)
	assert.Equal(t, "b", res.Columns[0][res.FreshIndex["k2"]])
}
