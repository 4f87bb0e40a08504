package config

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/status-im/dict-cache/schema"
)

// BuildSchema turns the declared structure into a schema.Schema
func (c *SchemaConfig) BuildSchema() (*schema.Schema, error) {
	sch := &schema.Schema{}
	for _, k := range c.Keys {
		t, err := schema.ParseAttributeType(k.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrInvalidConfig, k.Name, err)
		}
		sch.Keys = append(sch.Keys, schema.KeyAttribute{Name: k.Name, Type: t})
	}
	for _, a := range c.Attributes {
		t, err := schema.ParseAttributeType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q: %v", ErrInvalidConfig, a.Name, err)
		}
		null, err := coerceValue(t, a.NullValue)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q null value: %v", ErrInvalidConfig, a.Name, err)
		}
		sch.Attributes = append(sch.Attributes, schema.Attribute{
			Name:         a.Name,
			Type:         t,
			NullValue:    null,
			Hierarchical: a.Hierarchical,
			FixedLength:  a.FixedLength,
			Scale:        a.Scale,
		})
	}
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return sch, nil
}

// coerceValue converts a yaml scalar into the declared attribute type
func coerceValue(t schema.AttributeType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.TypeString, schema.TypeFixedString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case schema.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case schema.TypeUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected uuid string, got %T", v)
		}
		return uuid.Parse(s)
	}

	n, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	switch t {
	case schema.TypeInt8:
		return int8(n), nil
	case schema.TypeInt16:
		return int16(n), nil
	case schema.TypeInt32:
		return int32(n), nil
	case schema.TypeInt64, schema.TypeDecimal:
		return int64(n), nil
	case schema.TypeUInt8:
		return uint8(n), nil
	case schema.TypeUInt16:
		return uint16(n), nil
	case schema.TypeUInt32:
		return uint32(n), nil
	case schema.TypeUInt64:
		return uint64(n), nil
	case schema.TypeFloat32:
		return float32(n), nil
	case schema.TypeFloat64:
		return n, nil
	}
	return nil, fmt.Errorf("cannot coerce value of type %s", t)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
