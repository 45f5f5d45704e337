package codec

import (
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Decode parses the canonical binary form of a record. Fields must appear
// in ascending field number order, only array fields may repeat, and
// varints must use their shortest form. A fresh record is returned and
// nothing is produced on failure.
func (s *Schema) Decode(b []byte) (Record, error) {
	rec := s.Zero()

	var last protowire.Number
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, &DecodeError{Schema: s.ID, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		idx, exists := s.byNumber[num]
		if !exists {
			return nil, decodeErr(s, "", "unknown field number %d", num)
		}
		f := s.fields[idx]

		switch {
		case num < last:
			return nil, decodeErr(s, f.Name, "field out of order")
		case num == last && f.Type != TypeArray:
			return nil, decodeErr(s, f.Name, "field repeated")
		}
		last = num

		dt := f.Type
		if dt == TypeArray {
			dt = f.Items
		}

		if typ != dt.wireType() {
			return nil, decodeErr(s, f.Name, "wire type %d does not match %s", typ, dt)
		}

		v, n, err := s.consumeValue(b, f, dt)
		if err != nil {
			return nil, err
		}
		b = b[n:]

		if f.Type == TypeArray {
			rec[f.Name] = append(rec[f.Name].([]any), v)
			continue
		}
		rec[f.Name] = v
	}

	return rec, nil
}

func (s *Schema) consumeValue(b []byte, f Field, dt DataType) (any, int, error) {
	switch dt {
	case TypeUint32, TypeUint64, TypeBool:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, 0, &DecodeError{Schema: s.ID, Field: f.Name, Err: protowire.ParseError(n)}
		}
		if protowire.SizeVarint(v) != n {
			return nil, 0, decodeErr(s, f.Name, "non canonical varint")
		}

		switch dt {
		case TypeUint32:
			if v > math.MaxUint32 {
				return nil, 0, decodeErr(s, f.Name, "value %d overflows uint32", v)
			}
			return uint32(v), n, nil

		case TypeBool:
			if v > 1 {
				return nil, 0, decodeErr(s, f.Name, "invalid boolean %d", v)
			}
			return v == 1, n, nil
		}
		return v, n, nil
	}

	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, &DecodeError{Schema: s.ID, Field: f.Name, Err: protowire.ParseError(n)}
	}

	switch dt {
	case TypeBytes:
		data := make([]byte, len(v))
		copy(data, v)
		return data, n, nil

	case TypeString:
		if !utf8.Valid(v) {
			return nil, 0, decodeErr(s, f.Name, "invalid utf8 string")
		}
		return string(v), n, nil
	}

	sub, err := f.Schema.Decode(v)
	if err != nil {
		return nil, 0, err
	}
	return sub, n, nil
}
