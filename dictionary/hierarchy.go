package dictionary

import (
	"fmt"

	"github.com/status-im/dict-cache/schema"
)

// maxHierarchyDepth bounds the iterative parent walk; rows still undecided
// after this many levels are treated as cyclic.
const maxHierarchyDepth = 16

// ToParent implements Interface: it resolves the hierarchical attribute for
// the given ids through the normal read path
func (d *Dictionary[K]) ToParent(ids []uint64) ([]uint64, error) {
	if err := d.checkHierarchyAccess(); err != nil {
		return nil, err
	}

	keyColumn := make(schema.Column, len(ids))
	for i, id := range ids {
		keyColumn[i] = id
	}
	column, err := d.GetColumn(d.hierAttr.Name, []schema.Column{keyColumn}, nil)
	if err != nil {
		return nil, err
	}

	parents := make([]uint64, len(column))
	for i, v := range column {
		parent, ok := v.(uint64)
		if !ok {
			return nil, fmt.Errorf("%w: attribute %q", ErrTypeMismatch, d.hierAttr.Name)
		}
		parents[i] = parent
	}
	return parents, nil
}

// IsInVectorVector implements Interface
func (d *Dictionary[K]) IsInVectorVector(childIDs, ancestorIDs []uint64) ([]bool, error) {
	if len(childIDs) != len(ancestorIDs) {
		return nil, fmt.Errorf("child and ancestor id counts differ: %d vs %d", len(childIDs), len(ancestorIDs))
	}
	return d.isInImpl(childIDs, func(row int) uint64 { return ancestorIDs[row] })
}

// IsInVectorConstant implements Interface
func (d *Dictionary[K]) IsInVectorConstant(childIDs []uint64, ancestorID uint64) ([]bool, error) {
	return d.isInImpl(childIDs, func(int) uint64 { return ancestorID })
}

// IsInConstantVector implements Interface. Special case with a single child:
// its ancestor chain is walked once, then every row is a membership check.
func (d *Dictionary[K]) IsInConstantVector(childID uint64, ancestorIDs []uint64) ([]bool, error) {
	if err := d.checkHierarchyAccess(); err != nil {
		return nil, err
	}
	nullValue := d.hierNullValue()

	ancestors := map[uint64]struct{}{childID: {}}
	current := childID
	for depth := 0; depth < maxHierarchyDepth; depth++ {
		parents, err := d.ToParent([]uint64{current})
		if err != nil {
			return nil, err
		}
		parent := parents[0]
		if parent == nullValue {
			break
		}
		if _, seen := ancestors[parent]; seen {
			break
		}
		ancestors[parent] = struct{}{}
		current = parent
	}

	out := make([]bool, len(ancestorIDs))
	for i, id := range ancestorIDs {
		_, out[i] = ancestors[id]
	}
	return out, nil
}

// isInImpl transforms each row's current node to its parent until the target
// ancestor or the null value is reached, or a loop is detected
func (d *Dictionary[K]) isInImpl(childIDs []uint64, ancestorAt func(int) uint64) ([]bool, error) {
	if err := d.checkHierarchyAccess(); err != nil {
		return nil, err
	}
	nullValue := d.hierNullValue()

	out := make([]bool, len(childIDs))
	decided := make([]bool, len(childIDs))
	current := append([]uint64(nil), childIDs...)
	seen := make([]map[uint64]struct{}, len(childIDs))

	for depth := 0; depth < maxHierarchyDepth; depth++ {
		var undecided []int
		for i := range childIDs {
			if decided[i] {
				continue
			}
			node := current[i]
			switch {
			case node == nullValue:
				decided[i] = true
			case node == ancestorAt(i):
				out[i] = true
				decided[i] = true
			default:
				if seen[i] == nil {
					seen[i] = make(map[uint64]struct{})
				}
				if _, loop := seen[i][node]; loop {
					out[i] = true
					decided[i] = true
					continue
				}
				seen[i][node] = struct{}{}
				undecided = append(undecided, i)
			}
		}
		if len(undecided) == 0 {
			break
		}

		ids := make([]uint64, len(undecided))
		for j, i := range undecided {
			ids[j] = current[i]
		}
		parents, err := d.ToParent(ids)
		if err != nil {
			return nil, err
		}
		for j, i := range undecided {
			current[i] = parents[j]
		}
	}
	for i := range out {
		if !decided[i] {
			out[i] = true
		}
	}
	return out, nil
}

func (d *Dictionary[K]) checkHierarchyAccess() error {
	if !d.simpleKey() {
		return fmt.Errorf("%w: hierarchy is not supported for complex key dictionary %s", ErrUnsupported, d.name)
	}
	if d.hierAttr == nil {
		return fmt.Errorf("%w: dictionary %s declares no hierarchical attribute", ErrUnsupported, d.name)
	}
	return nil
}

func (d *Dictionary[K]) hierNullValue() uint64 {
	if v, ok := d.hierAttr.Null().(uint64); ok {
		return v
	}
	return 0
}
