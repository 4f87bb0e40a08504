package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AttributeType enumerates the closed set of value types a dictionary
// attribute or key column can have.
type AttributeType int

const (
	TypeInt8 AttributeType = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeFloat32
	TypeFloat64
	TypeBool
	TypeString
	TypeFixedString
	TypeDecimal
	TypeUUID
)

var typeNames = map[AttributeType]string{
	TypeInt8:        "int8",
	TypeInt16:       "int16",
	TypeInt32:       "int32",
	TypeInt64:       "int64",
	TypeUInt8:       "uint8",
	TypeUInt16:      "uint16",
	TypeUInt32:      "uint32",
	TypeUInt64:      "uint64",
	TypeFloat32:     "float32",
	TypeFloat64:     "float64",
	TypeBool:        "bool",
	TypeString:      "string",
	TypeFixedString: "fixed_string",
	TypeDecimal:     "decimal",
	TypeUUID:        "uuid",
}

func (t AttributeType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// ParseAttributeType converts a configuration type name into an AttributeType
func ParseAttributeType(name string) (AttributeType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == lower {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute type %q", name)
}

// ZeroValue returns the zero value of the given type, used when an attribute
// declares no explicit null value
func ZeroValue(t AttributeType) any {
	switch t {
	case TypeInt8:
		return int8(0)
	case TypeInt16:
		return int16(0)
	case TypeInt32:
		return int32(0)
	case TypeInt64:
		return int64(0)
	case TypeUInt8:
		return uint8(0)
	case TypeUInt16:
		return uint16(0)
	case TypeUInt32:
		return uint32(0)
	case TypeUInt64:
		return uint64(0)
	case TypeFloat32:
		return float32(0)
	case TypeFloat64:
		return float64(0)
	case TypeBool:
		return false
	case TypeString, TypeFixedString:
		return ""
	case TypeDecimal:
		return int64(0)
	case TypeUUID:
		return uuid.Nil
	}
	return nil
}

// Attribute describes one named, typed field of the value row associated with a key
type Attribute struct {
	Name string
	Type AttributeType

	// NullValue is the schema-level fallback used when neither storage nor the
	// source yields a value and the caller supplied no default column.
	// A nil NullValue means the type's zero value.
	NullValue any

	// Hierarchical marks the attribute that holds the parent identifier for
	// hierarchy traversal. Must be of type uint64.
	Hierarchical bool

	// FixedLength is the byte length of TypeFixedString values.
	FixedLength int

	// Scale is the decimal scale of TypeDecimal values (stored unscaled as int64).
	Scale int
}

// Null returns the attribute's effective null value
func (a *Attribute) Null() any {
	if a.NullValue != nil {
		return a.NullValue
	}
	return ZeroValue(a.Type)
}

// KeyAttribute describes one column of the dictionary key
type KeyAttribute struct {
	Name string
	Type AttributeType
}

// Schema declares the key layout and the attribute rows of a dictionary
type Schema struct {
	Keys       []KeyAttribute
	Attributes []Attribute
}

// Simple reports whether the schema uses a single uint64 identifier key
func (s *Schema) Simple() bool {
	return len(s.Keys) == 1 && s.Keys[0].Type == TypeUInt64
}

// KeyCount returns the number of key columns
func (s *Schema) KeyCount() int {
	return len(s.Keys)
}

// KeyTypes returns the types of the key columns in schema order
func (s *Schema) KeyTypes() []AttributeType {
	types := make([]AttributeType, len(s.Keys))
	for i, k := range s.Keys {
		types[i] = k.Type
	}
	return types
}

// AttributeIndex returns the position of the named attribute
func (s *Schema) AttributeIndex(name string) (int, bool) {
	for i := range s.Attributes {
		if s.Attributes[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// HierarchicalAttribute returns the hierarchical attribute, if declared
func (s *Schema) HierarchicalAttribute() (int, *Attribute) {
	for i := range s.Attributes {
		if s.Attributes[i].Hierarchical {
			return i, &s.Attributes[i]
		}
	}
	return -1, nil
}

// NullRow returns a full attribute row of null values
func (s *Schema) NullRow() []any {
	row := make([]any, len(s.Attributes))
	for i := range s.Attributes {
		row[i] = s.Attributes[i].Null()
	}
	return row
}

// Validate checks structural soundness of the schema
func (s *Schema) Validate() error {
	if len(s.Keys) == 0 {
		return fmt.Errorf("schema must declare at least one key column")
	}
	if len(s.Attributes) == 0 {
		return fmt.Errorf("schema must declare at least one attribute")
	}
	seen := make(map[string]struct{}, len(s.Attributes))
	for i := range s.Attributes {
		name := s.Attributes[i].Name
		if name == "" {
			return fmt.Errorf("attribute %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate attribute name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Column is a positional vector of key or attribute values
type Column []any
