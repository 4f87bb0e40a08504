package dictionary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/dict-cache/dictkey"
	"github.com/status-im/dict-cache/schema"
	"github.com/status-im/dict-cache/source"
	"github.com/status-im/dict-cache/storage"
)

// hierarchySource maps each id to (name, parent) with parent 0 as the root
func hierarchySource() *fakeSource {
	return newFakeSource(map[uint64][]any{
		1: {"leaf", uint64(2)},
		2: {"mid", uint64(3)},
		3: {"root", uint64(0)},
		7: {"loop-a", uint64(8)},
		8: {"loop-b", uint64(7)},
	})
}

func TestToParent(t *testing.T) {
	dict := newTestDictionary(t, hierarchySource(), defaultDictParams())

	parents, err := dict.ToParent([]uint64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 0}, parents)
}

func TestIsInVectorConstant(t *testing.T) {
	dict := newTestDictionary(t, hierarchySource(), defaultDictParams())

	out, err := dict.IsInVectorConstant([]uint64{1, 2}, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, out)

	out, err = dict.IsInVectorConstant([]uint64{1}, 99)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, out)

	// A child equal to the target ancestor is a member of its own ancestry.
	out, err = dict.IsInVectorConstant([]uint64{3}, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, out)
}

func TestIsInVectorVector(t *testing.T) {
	dict := newTestDictionary(t, hierarchySource(), defaultDictParams())

	out, err := dict.IsInVectorVector([]uint64{1, 1}, []uint64{3, 99})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, out)

	_, err = dict.IsInVectorVector([]uint64{1}, []uint64{1, 2})
	assert.Error(t, err)
}

func TestIsInConstantVector(t *testing.T) {
	dict := newTestDictionary(t, hierarchySource(), defaultDictParams())

	out, err := dict.IsInConstantVector(1, []uint64{2, 3, 99})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, out)
}

func TestIsIn_CyclicHierarchyTerminates(t *testing.T) {
	dict := newTestDictionary(t, hierarchySource(), defaultDictParams())

	// 7 and 8 are each other's parents; the walk must detect the cycle
	// instead of iterating forever.
	out, err := dict.IsInVectorConstant([]uint64{7}, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0])
}

func TestHierarchy_UnsupportedForComplexKeys(t *testing.T) {
	sch := &schema.Schema{
		Keys: []schema.KeyAttribute{
			{Name: "id", Type: schema.TypeUInt64},
			{Name: "region", Type: schema.TypeString},
		},
		Attributes: []schema.Attribute{
			{Name: "parent", Type: schema.TypeUInt64, NullValue: uint64(0), Hierarchical: true},
		},
	}
	store, err := storage.NewMemory[string](sch, 16, storage.Config{
		MinLifetime: time.Second,
		MaxLifetime: time.Second,
	})
	require.NoError(t, err)

	dict, err := New[string]("complex", sch, dictkey.NewComplexExtractor(sch),
		source.NewStaticProvider(newFakeSource(nil)), store, defaultDictParams().queue, false)
	require.NoError(t, err)
	defer dict.Close()

	_, err = dict.ToParent([]uint64{1})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = dict.IsInVectorConstant([]uint64{1}, 2)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestHierarchy_RequiresDeclaredAttribute(t *testing.T) {
	sch := &schema.Schema{
		Keys:       []schema.KeyAttribute{{Name: "id", Type: schema.TypeUInt64}},
		Attributes: []schema.Attribute{{Name: "name", Type: schema.TypeString, NullValue: ""}},
	}
	store, err := storage.NewMemory[uint64](sch, 16, storage.Config{
		MinLifetime: time.Second,
		MaxLifetime: time.Second,
	})
	require.NoError(t, err)

	dict, err := New[uint64]("flat", sch, dictkey.SimpleExtractor{},
		source.NewStaticProvider(newFakeSource(nil)), store, defaultDictParams().queue, false)
	require.NoError(t, err)
	defer dict.Close()

	_, err = dict.ToParent([]uint64{1})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestNew_RejectsNonIntegerHierarchicalAttribute(t *testing.T) {
	sch := &schema.Schema{
		Keys: []schema.KeyAttribute{{Name: "id", Type: schema.TypeUInt64}},
		Attributes: []schema.Attribute{
			{Name: "parent_name", Type: schema.TypeString, NullValue: "", Hierarchical: true},
		},
	}
	store, err := storage.NewMemory[uint64](sch, 16, storage.Config{
		MinLifetime: time.Second,
		MaxLifetime: time.Second,
	})
	require.NoError(t, err)

	_, err = New[uint64]("bad", sch, dictkey.SimpleExtractor{},
		source.NewStaticProvider(newFakeSource(nil)), store, defaultDictParams().queue, false)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
