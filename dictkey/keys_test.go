package dictkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-im/dict-cache/schema"
)

func TestSimpleExtractor(t *testing.T) {
	col := schema.Column{uint64(10), uint64(20), uint64(30)}

	keys, err := SimpleExtractor{}.Extract([]schema.Column{col}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20, 30}, keys)

	keys, err = SimpleExtractor{}.Extract([]schema.Column{col}, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint64{30, 10}, keys)
}

func TestSimpleExtractor_Errors(t *testing.T) {
	_, err := SimpleExtractor{}.Extract([]schema.Column{{}, {}}, nil)
	assert.Error(t, err)

	_, err = SimpleExtractor{}.Extract([]schema.Column{{"not an id"}}, nil)
	assert.Error(t, err)

	_, err = SimpleExtractor{}.Extract([]schema.Column{{uint64(1)}}, []int{5})
	assert.Error(t, err)
}

func complexSchema() *schema.Schema {
	return &schema.Schema{
		Keys: []schema.KeyAttribute{
			{Name: "id", Type: schema.TypeUInt64},
			{Name: "region", Type: schema.TypeString},
		},
		Attributes: []schema.Attribute{{Name: "name", Type: schema.TypeString}},
	}
}

func TestComplexExtractor_RoundTrip(t *testing.T) {
	sch := complexSchema()
	extractor := NewComplexExtractor(sch)

	keyColumns := []schema.Column{
		{uint64(1), uint64(2), uint64(1)},
		{"eu", "us", "us"},
	}
	keys, err := extractor.Extract(keyColumns, nil)
	require.NoError(t, err)
	require.Len(t, keys, 3)

	// Distinct tuples serialise to distinct keys
	assert.NotEqual(t, keys[0], keys[1])
	assert.NotEqual(t, keys[0], keys[2])

	values, err := DecodeComplex(keys[2], sch.KeyTypes())
	require.NoError(t, err)
	assert.Equal(t, []any{uint64(1), "us"}, values)
}

func TestComplexExtractor_RowSelection(t *testing.T) {
	sch := complexSchema()
	extractor := NewComplexExtractor(sch)

	keyColumns := []schema.Column{
		{uint64(1), uint64(2)},
		{"eu", "us"},
	}
	all, err := extractor.Extract(keyColumns, nil)
	require.NoError(t, err)

	selected, err := extractor.Extract(keyColumns, []int{1})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, all[1], selected[0])
}

func TestHash_Stability(t *testing.T) {
	assert.Equal(t, Hash(uint64(7)), Hash(uint64(7)))
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash(uint64(7)), Hash(uint64(8)))
}

func TestDecodeComplex_TrailingBytes(t *testing.T) {
	sch := complexSchema()
	extractor := NewComplexExtractor(sch)

	keys, err := extractor.Extract([]schema.Column{{uint64(1)}, {"eu"}}, nil)
	require.NoError(t, err)

	_, err = DecodeComplex(keys[0]+"x", sch.KeyTypes())
	assert.Error(t, err)
}
