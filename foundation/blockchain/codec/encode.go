package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encode produces the canonical binary form of the record. Missing fields
// are written as their zero value so every record of a schema has the same
// set of fields on the wire.
func (s *Schema) Encode(rec Record) ([]byte, error) {
	return s.append(nil, rec)
}

// MustEncode is like Encode but panics on a record that does not match the
// schema. It is used for records built by this module from typed values.
func (s *Schema) MustEncode(rec Record) []byte {
	b, err := s.Encode(rec)
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to encode %s: %v", s.ID, err))
	}
	return b
}

func (s *Schema) append(b []byte, rec Record) ([]byte, error) {
	for _, f := range s.fields {
		v, exists := rec[f.Name]
		if !exists || v == nil {
			v = zero(f)
		}

		var err error
		if f.Type == TypeArray {
			items, ok := v.([]any)
			if !ok {
				return nil, typeErr(s, f, v)
			}
			for _, item := range items {
				if b, err = s.appendValue(b, f, f.Items, item); err != nil {
					return nil, err
				}
			}
			continue
		}

		if b, err = s.appendValue(b, f, f.Type, v); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func (s *Schema) appendValue(b []byte, f Field, dt DataType, v any) ([]byte, error) {
	switch dt {
	case TypeUint32:
		n, ok := v.(uint32)
		if !ok {
			return nil, typeErr(s, f, v)
		}
		b = protowire.AppendTag(b, f.Number, protowire.VarintType)
		return protowire.AppendVarint(b, uint64(n)), nil

	case TypeUint64:
		n, ok := v.(uint64)
		if !ok {
			return nil, typeErr(s, f, v)
		}
		b = protowire.AppendTag(b, f.Number, protowire.VarintType)
		return protowire.AppendVarint(b, n), nil

	case TypeBool:
		t, ok := v.(bool)
		if !ok {
			return nil, typeErr(s, f, v)
		}
		b = protowire.AppendTag(b, f.Number, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(t)), nil

	case TypeBytes:
		data, ok := v.([]byte)
		if !ok {
			return nil, typeErr(s, f, v)
		}
		b = protowire.AppendTag(b, f.Number, protowire.BytesType)
		return protowire.AppendBytes(b, data), nil

	case TypeString:
		str, ok := v.(string)
		if !ok {
			return nil, typeErr(s, f, v)
		}
		b = protowire.AppendTag(b, f.Number, protowire.BytesType)
		return protowire.AppendString(b, str), nil

	case TypeObject:
		sub, ok := v.(Record)
		if !ok {
			return nil, typeErr(s, f, v)
		}
		data, err := f.Schema.append(nil, sub)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, f.Number, protowire.BytesType)
		return protowire.AppendBytes(b, data), nil
	}

	return nil, fmt.Errorf("encode %s.%s: unsupported type %s", s.ID, f.Name, dt)
}

func typeErr(s *Schema, f Field, v any) error {
	return fmt.Errorf("encode %s.%s: expected %s, got %T", s.ID, f.Name, f.Type, v)
}
