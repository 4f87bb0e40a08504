package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/status-im/dict-cache/dictkey"
	"github.com/status-im/dict-cache/schema"
)

// SSDConfig configures the disk-backed storage layout
type SSDConfig struct {
	Config

	// Path is the directory holding the partition files.
	Path string

	// BlockSize is the I/O granularity. File and buffer sizes must be
	// multiples of it.
	BlockSize int

	// FileSize bounds each partition file.
	FileSize int64

	ReadBufferSize  int
	WriteBufferSize int

	// MaxPartitions bounds the number of partition files; the oldest is
	// rotated out when a new one is needed beyond this count.
	MaxPartitions int

	// MaxStoredKeys bounds the in-memory key directory of one partition.
	MaxStoredKeys int
}

func (c *SSDConfig) validate() error {
	if err := c.Config.validate(); err != nil {
		return err
	}
	if c.Path == "" {
		return fmt.Errorf("ssd storage path must not be empty")
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive")
	}
	if c.FileSize <= 0 || c.FileSize%int64(c.BlockSize) != 0 {
		return fmt.Errorf("file_size must be a positive multiple of block_size")
	}
	if c.ReadBufferSize <= 0 || c.ReadBufferSize%c.BlockSize != 0 {
		return fmt.Errorf("read_buffer_size must be a positive multiple of block_size")
	}
	if c.WriteBufferSize <= 0 || c.WriteBufferSize%c.BlockSize != 0 {
		return fmt.Errorf("write_buffer_size must be a positive multiple of block_size")
	}
	if c.MaxPartitions <= 0 {
		return fmt.Errorf("max_partitions_count must be positive")
	}
	if c.MaxStoredKeys <= 0 {
		return fmt.Errorf("max_stored_keys must be positive")
	}
	return nil
}

type dirEntry struct {
	offset    int64
	length    int32
	deadline  time.Time
	isDefault bool
}

type partition[K dictkey.Key] struct {
	file  *os.File
	w     *bufio.Writer
	index map[K]dirEntry
	size  int64
}

// SSD is the disk-backed storage layout: keys are appended to up to
// MaxPartitions log files with a bounded in-memory directory per partition.
// The oldest partition is dropped when the set is full. Fetch reads rows
// grouped by partition to batch file access, so results do not follow key
// order and the dictionary reorders them.
type SSD[K dictkey.Key] struct {
	cfg     SSDConfig
	sch     *schema.Schema
	parts   []*partition[K]
	nextSeq int
	rnd     *rand.Rand
}

// NewSSD creates the directory and the first partition file
func NewSSD[K dictkey.Key](sch *schema.Schema, cfg SSDConfig) (*SSD[K], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create ssd cache directory: %w", err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &SSD[K]{cfg: cfg, sch: sch, rnd: rand.New(rand.NewSource(seed))}
	if err := s.addPartition(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SSD[K]) addPartition() error {
	name := filepath.Join(s.cfg.Path, fmt.Sprintf("partition_%06d.bin", s.nextSeq))
	s.nextSeq++
	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open partition file: %w", err)
	}
	p := &partition[K]{
		file:  f,
		w:     bufio.NewWriterSize(f, s.cfg.WriteBufferSize),
		index: make(map[K]dirEntry),
	}
	s.parts = append(s.parts, p)
	if len(s.parts) > s.cfg.MaxPartitions {
		oldest := s.parts[0]
		s.parts = s.parts[1:]
		name := oldest.file.Name()
		oldest.file.Close()
		os.Remove(name)
	}
	return nil
}

func (s *SSD[K]) current() *partition[K] {
	return s.parts[len(s.parts)-1]
}

// Fetch implements Storage
func (s *SSD[K]) Fetch(keys []K, request *schema.FetchRequest, now time.Time) FetchResult[K] {
	result := FetchResult[K]{
		Columns:      request.MakeResultColumns(),
		FreshIndex:   make(map[K]int),
		ExpiredIndex: make(map[K]int),
		InKeyOrder:   false,
	}

	type hit struct {
		key   K
		entry dirEntry
		fresh bool
	}
	// Newest partition wins when a key was rewritten across rotations.
	hitsByPart := make(map[*partition[K]][]hit)
	seen := make(map[K]struct{}, len(keys))
	for keyRow, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		var (
			entry dirEntry
			part  *partition[K]
		)
		for i := len(s.parts) - 1; i >= 0; i-- {
			if e, ok := s.parts[i].index[key]; ok {
				entry, part = e, s.parts[i]
				break
			}
		}
		if part == nil {
			result.NeedUpdate = append(result.NeedUpdate, keyRow)
			continue
		}
		switch {
		case !now.After(entry.deadline):
			hitsByPart[part] = append(hitsByPart[part], hit{key: key, entry: entry, fresh: true})
		case !now.After(entry.deadline.Add(s.cfg.StrictMaxLifetime)):
			hitsByPart[part] = append(hitsByPart[part], hit{key: key, entry: entry, fresh: false})
			result.NeedUpdate = append(result.NeedUpdate, keyRow)
		default:
			result.NeedUpdate = append(result.NeedUpdate, keyRow)
		}
	}

	row := 0
	for _, part := range s.parts {
		for _, h := range hitsByPart[part] {
			values, err := s.readRow(part, h.entry)
			if err != nil {
				// An unreadable row is treated as missing; the update path
				// will rewrite it.
				delete(part.index, h.key)
				continue
			}
			for i := range result.Columns {
				result.Columns[i] = append(result.Columns[i], values[i])
			}
			result.DefaultMask = append(result.DefaultMask, h.entry.isDefault)
			if h.fresh {
				result.FreshIndex[h.key] = row
			} else {
				result.ExpiredIndex[h.key] = row
			}
			row++
		}
	}
	return result
}

func (s *SSD[K]) readRow(p *partition[K], entry dirEntry) ([]any, error) {
	raw := make([]byte, entry.length)
	if _, err := p.file.ReadAt(raw, entry.offset); err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)
	values := make([]any, len(s.sch.Attributes))
	for i := range s.sch.Attributes {
		v, err := schema.DecodeValue(r, s.sch.Attributes[i].Type)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// Insert implements Storage
func (s *SSD[K]) Insert(keys []K, columns []schema.Column, now time.Time) error {
	if len(columns) != len(s.sch.Attributes) {
		return fmt.Errorf("expected %d attribute columns, got %d", len(s.sch.Attributes), len(columns))
	}
	var buf bytes.Buffer
	for row, key := range keys {
		buf.Reset()
		for i, col := range columns {
			if row >= len(col) {
				return fmt.Errorf("attribute column %d has %d rows, need row %d", i, len(col), row)
			}
			if err := schema.EncodeValue(&buf, s.sch.Attributes[i].Type, col[row]); err != nil {
				return fmt.Errorf("encode row for storage: %w", err)
			}
		}
		if err := s.appendRow(key, buf.Bytes(), false, now); err != nil {
			return err
		}
	}
	return s.current().w.Flush()
}

// InsertDefaults implements Storage
func (s *SSD[K]) InsertDefaults(keys []K, now time.Time) {
	var buf bytes.Buffer
	nullRow := s.sch.NullRow()
	for _, key := range keys {
		buf.Reset()
		for i := range s.sch.Attributes {
			if err := schema.EncodeValue(&buf, s.sch.Attributes[i].Type, nullRow[i]); err != nil {
				return
			}
		}
		if s.appendRow(key, buf.Bytes(), true, now) != nil {
			return
		}
	}
	s.current().w.Flush()
}

func (s *SSD[K]) appendRow(key K, encoded []byte, isDefault bool, now time.Time) error {
	p := s.current()
	if p.size+int64(len(encoded)) > s.cfg.FileSize || len(p.index) >= s.cfg.MaxStoredKeys {
		if err := p.w.Flush(); err != nil {
			return err
		}
		if err := s.addPartition(); err != nil {
			return err
		}
		p = s.current()
	}
	if _, err := p.w.Write(encoded); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	p.index[key] = dirEntry{
		offset:    p.size,
		length:    int32(len(encoded)),
		deadline:  s.deadline(now),
		isDefault: isDefault,
	}
	p.size += int64(len(encoded))
	return nil
}

func (s *SSD[K]) deadline(now time.Time) time.Time {
	band := s.cfg.MaxLifetime - s.cfg.MinLifetime
	jitter := time.Duration(0)
	if band > 0 {
		jitter = time.Duration(s.rnd.Int63n(int64(band) + 1))
	}
	return now.Add(s.cfg.MinLifetime + jitter)
}

// Size implements Storage
func (s *SSD[K]) Size() int {
	total := 0
	for _, p := range s.parts {
		total += len(p.index)
	}
	return total
}

// MaxSize implements Storage
func (s *SSD[K]) MaxSize() int {
	return s.cfg.MaxPartitions * s.cfg.MaxStoredKeys
}

// BytesAllocated implements Storage
func (s *SSD[K]) BytesAllocated() uint64 {
	var total uint64
	for _, p := range s.parts {
		total += uint64(p.size)
		total += uint64(len(p.index)) * 48
	}
	return total
}

// CachedKeys implements Storage
func (s *SSD[K]) CachedKeys(now time.Time) []K {
	var keys []K
	seen := make(map[K]struct{})
	for i := len(s.parts) - 1; i >= 0; i-- {
		for key, entry := range s.parts[i].index {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if !entry.isDefault && !now.After(entry.deadline) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// Close implements Storage
func (s *SSD[K]) Close() error {
	var firstErr error
	for _, p := range s.parts {
		if err := p.w.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := p.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.parts = nil
	return firstErr
}
