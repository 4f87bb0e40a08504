package schema

import "fmt"

// FetchRequest describes which attributes a single dictionary call wants.
// Storage implementations may materialise more columns than requested when
// that is cheaper; the fill mask tells aggregation which result columns
// actually need to be produced.
type FetchRequest struct {
	schema    *Schema
	requested []int  // schema attribute index per requested name, caller order
	fill      []bool // per schema attribute index
}

// NewFetchRequest builds a request for the named attributes.
// An empty name list produces an existence-only request (used by HasKeys).
func NewFetchRequest(s *Schema, attributeNames []string) (*FetchRequest, error) {
	req := &FetchRequest{
		schema:    s,
		requested: make([]int, 0, len(attributeNames)),
		fill:      make([]bool, len(s.Attributes)),
	}
	for _, name := range attributeNames {
		idx, ok := s.AttributeIndex(name)
		if !ok {
			return nil, fmt.Errorf("no attribute %q in dictionary schema", name)
		}
		req.requested = append(req.requested, idx)
		req.fill[idx] = true
	}
	return req, nil
}

// Empty reports whether the request asks for no attributes at all
func (r *FetchRequest) Empty() bool {
	return len(r.requested) == 0
}

// Schema returns the schema the request was built against
func (r *FetchRequest) Schema() *Schema {
	return r.schema
}

// AttributeCount returns the schema attribute arity
func (r *FetchRequest) AttributeCount() int {
	return len(r.fill)
}

// RequestedIndexes returns the schema attribute index of each requested
// attribute, in caller order
func (r *FetchRequest) RequestedIndexes() []int {
	return r.requested
}

// ShouldFill reports whether the result column at the given schema attribute
// index must be produced
func (r *FetchRequest) ShouldFill(attributeIndex int) bool {
	return r.fill[attributeIndex]
}

// ContainsAttribute reports whether the named attribute was requested
func (r *FetchRequest) ContainsAttribute(name string) bool {
	idx, ok := r.schema.AttributeIndex(name)
	return ok && r.fill[idx]
}

// MakeResultColumns builds empty result columns, one per schema attribute.
// Columns for attributes the request does not fill stay empty.
func (r *FetchRequest) MakeResultColumns() []Column {
	cols := make([]Column, len(r.fill))
	for i := range cols {
		cols[i] = Column{}
	}
	return cols
}

// FilterRequested drops columns the caller did not ask for and returns the
// remaining columns in the order the attributes were requested
func (r *FetchRequest) FilterRequested(columns []Column) []Column {
	out := make([]Column, len(r.requested))
	for i, idx := range r.requested {
		out[i] = columns[idx]
	}
	return out
}
