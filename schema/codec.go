package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// EncodeValue appends the binary representation of a single typed value.
// The layout is fixed-width little-endian for numeric types, a length-prefixed
// byte run for strings, and 16 raw bytes for UUIDs. Complex keys and the SSD
// row format both use this encoding, so it must stay stable.
func EncodeValue(buf *bytes.Buffer, t AttributeType, v any) error {
	switch t {
	case TypeInt8:
		x, ok := v.(int8)
		if !ok {
			return typeError(t, v)
		}
		buf.WriteByte(byte(x))
	case TypeInt16:
		x, ok := v.(int16)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, uint64(uint16(x)), 2)
	case TypeInt32:
		x, ok := v.(int32)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, uint64(uint32(x)), 4)
	case TypeInt64:
		x, ok := v.(int64)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, uint64(x), 8)
	case TypeUInt8:
		x, ok := v.(uint8)
		if !ok {
			return typeError(t, v)
		}
		buf.WriteByte(x)
	case TypeUInt16:
		x, ok := v.(uint16)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, uint64(x), 2)
	case TypeUInt32:
		x, ok := v.(uint32)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, uint64(x), 4)
	case TypeUInt64:
		x, ok := v.(uint64)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, x, 8)
	case TypeFloat32:
		x, ok := v.(float32)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, uint64(math.Float32bits(x)), 4)
	case TypeFloat64:
		x, ok := v.(float64)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, math.Float64bits(x), 8)
	case TypeBool:
		x, ok := v.(bool)
		if !ok {
			return typeError(t, v)
		}
		if x {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case TypeString, TypeFixedString:
		x, ok := v.(string)
		if !ok {
			return typeError(t, v)
		}
		var lenBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(lenBuf[:], uint64(len(x)))
		buf.Write(lenBuf[:n])
		buf.WriteString(x)
	case TypeDecimal:
		x, ok := v.(int64)
		if !ok {
			return typeError(t, v)
		}
		writeUint(buf, uint64(x), 8)
	case TypeUUID:
		x, ok := v.(uuid.UUID)
		if !ok {
			return typeError(t, v)
		}
		buf.Write(x[:])
	default:
		return fmt.Errorf("cannot encode value of type %s", t)
	}
	return nil
}

// DecodeValue reads one typed value previously written by EncodeValue
func DecodeValue(r *bytes.Reader, t AttributeType) (any, error) {
	switch t {
	case TypeInt8:
		b, err := r.ReadByte()
		return int8(b), err
	case TypeInt16:
		u, err := readUint(r, 2)
		return int16(u), err
	case TypeInt32:
		u, err := readUint(r, 4)
		return int32(u), err
	case TypeInt64:
		u, err := readUint(r, 8)
		return int64(u), err
	case TypeUInt8:
		b, err := r.ReadByte()
		return b, err
	case TypeUInt16:
		u, err := readUint(r, 2)
		return uint16(u), err
	case TypeUInt32:
		u, err := readUint(r, 4)
		return uint32(u), err
	case TypeUInt64:
		return readUint(r, 8)
	case TypeFloat32:
		u, err := readUint(r, 4)
		return math.Float32frombits(uint32(u)), err
	case TypeFloat64:
		u, err := readUint(r, 8)
		return math.Float64frombits(u), err
	case TypeBool:
		b, err := r.ReadByte()
		return b != 0, err
	case TypeString, TypeFixedString:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := r.Read(raw); err != nil && n > 0 {
			return nil, err
		}
		return string(raw), nil
	case TypeDecimal:
		u, err := readUint(r, 8)
		return int64(u), err
	case TypeUUID:
		var id uuid.UUID
		if _, err := r.Read(id[:]); err != nil {
			return nil, err
		}
		return id, nil
	}
	return nil, fmt.Errorf("cannot decode value of type %s", t)
}

func writeUint(buf *bytes.Buffer, v uint64, size int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:size])
}

func readUint(r *bytes.Reader, size int) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:size]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func typeError(t AttributeType, v any) error {
	return fmt.Errorf("value %v (%T) does not match attribute type %s", v, v, t)
}
