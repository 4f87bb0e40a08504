// Package source defines the narrow contract the cache dictionary consumes
// from an external key→attributes source, plus the built-in HTTP
// implementation.
package source

//go:generate mockgen -destination=mocks/source.go -package=mocks . Source,Stream

import (
	"context"

	"github.com/status-im/dict-cache/schema"
)

// Block is one batch of rows produced by a source stream. The first k columns
// are the schema's key columns; the remainder are attribute columns in schema
// order.
type Block struct {
	Columns []schema.Column
}

// Rows returns the number of rows in the block
func (b *Block) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return len(b.Columns[0])
}

// Stream yields typed blocks until exhausted. Next returns (nil, nil) at the
// end of the stream.
type Stream interface {
	Next() (*Block, error)
}

// Source is the pluggable external key→attributes source
type Source interface {
	// SupportsSelectiveLoad reports whether the source can fetch exactly a
	// supplied set of keys rather than a full dump. Cache dictionaries
	// require it.
	SupportsSelectiveLoad() bool

	// LoadIDs opens a stream over the rows of the given simple keys.
	LoadIDs(ctx context.Context, ids []uint64) (Stream, error)

	// LoadKeys opens a stream over the rows selected by the given rows of the
	// complex key columns.
	LoadKeys(ctx context.Context, keyColumns []schema.Column, rows []int) (Stream, error)
}

// BlocksStream is a Stream over a fixed, already materialised block list
type BlocksStream struct {
	blocks []*Block
	pos    int
}

// NewBlocksStream wraps pre-built blocks in a Stream
func NewBlocksStream(blocks ...*Block) *BlocksStream {
	return &BlocksStream{blocks: blocks}
}

// Next implements Stream
func (s *BlocksStream) Next() (*Block, error) {
	if s.pos >= len(s.blocks) {
		return nil, nil
	}
	b := s.blocks[s.pos]
	s.pos++
	return b, nil
}
