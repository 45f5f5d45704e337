package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ToJSON produces the JSON projection of the record. Keys follow the wire
// order of the schema, bytes are 0x prefixed hex strings and uint64 values
// are decimal strings so they survive JavaScript number precision.
func (s *Schema) ToJSON(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.writeJSON(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Schema) writeJSON(buf *bytes.Buffer, rec Record) error {
	buf.WriteByte('{')

	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, _ := json.Marshal(f.Name)
		buf.Write(key)
		buf.WriteByte(':')

		v, exists := rec[f.Name]
		if !exists || v == nil {
			v = zero(f)
		}

		if f.Type != TypeArray {
			if err := s.writeJSONValue(buf, f, f.Type, v); err != nil {
				return err
			}
			continue
		}

		items, ok := v.([]any)
		if !ok {
			return typeErr(s, f, v)
		}

		buf.WriteByte('[')
		for j, item := range items {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := s.writeJSONValue(buf, f, f.Items, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}

	buf.WriteByte('}')
	return nil
}

func (s *Schema) writeJSONValue(buf *bytes.Buffer, f Field, dt DataType, v any) error {
	switch dt {
	case TypeUint32:
		n, ok := v.(uint32)
		if !ok {
			return typeErr(s, f, v)
		}
		buf.WriteString(strconv.FormatUint(uint64(n), 10))

	case TypeUint64:
		n, ok := v.(uint64)
		if !ok {
			return typeErr(s, f, v)
		}
		buf.WriteString(strconv.Quote(strconv.FormatUint(n, 10)))

	case TypeBool:
		t, ok := v.(bool)
		if !ok {
			return typeErr(s, f, v)
		}
		buf.WriteString(strconv.FormatBool(t))

	case TypeBytes:
		data, ok := v.([]byte)
		if !ok {
			return typeErr(s, f, v)
		}
		buf.WriteString(strconv.Quote(hexutil.Encode(data)))

	case TypeString:
		str, ok := v.(string)
		if !ok {
			return typeErr(s, f, v)
		}
		data, err := json.Marshal(str)
		if err != nil {
			return err
		}
		buf.Write(data)

	case TypeObject:
		sub, ok := v.(Record)
		if !ok {
			return typeErr(s, f, v)
		}
		return f.Schema.writeJSON(buf, sub)

	default:
		return fmt.Errorf("json %s.%s: unsupported type %s", s.ID, f.Name, dt)
	}

	return nil
}

// =============================================================================

// FromJSON parses the JSON projection of a record. Unknown keys are
// rejected and missing keys take their zero value.
func (s *Schema) FromJSON(data []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Schema: s.ID, Err: err}
	}

	for key := range raw {
		if !s.has(key) {
			return nil, decodeErr(s, key, "unknown field")
		}
	}

	rec := s.Zero()
	for _, f := range s.fields {
		msg, exists := raw[f.Name]
		if !exists || string(msg) == "null" {
			continue
		}

		if f.Type != TypeArray {
			v, err := s.parseJSONValue(f, f.Type, msg)
			if err != nil {
				return nil, err
			}
			rec[f.Name] = v
			continue
		}

		var items []json.RawMessage
		if err := json.Unmarshal(msg, &items); err != nil {
			return nil, &DecodeError{Schema: s.ID, Field: f.Name, Err: err}
		}

		values := make([]any, len(items))
		for i, item := range items {
			v, err := s.parseJSONValue(f, f.Items, item)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		rec[f.Name] = values
	}

	return rec, nil
}

func (s *Schema) parseJSONValue(f Field, dt DataType, msg json.RawMessage) (any, error) {
	fail := func(err error) (any, error) {
		return nil, &DecodeError{Schema: s.ID, Field: f.Name, Err: err}
	}

	switch dt {
	case TypeUint32:
		var n uint32
		if err := json.Unmarshal(msg, &n); err != nil {
			return fail(err)
		}
		return n, nil

	case TypeUint64:
		var str string
		if err := json.Unmarshal(msg, &str); err != nil {
			var n uint64
			if err := json.Unmarshal(msg, &n); err != nil {
				return fail(err)
			}
			return n, nil
		}
		n, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return fail(err)
		}
		return n, nil

	case TypeBool:
		var t bool
		if err := json.Unmarshal(msg, &t); err != nil {
			return fail(err)
		}
		return t, nil

	case TypeBytes:
		var str string
		if err := json.Unmarshal(msg, &str); err != nil {
			return fail(err)
		}
		data, err := hexutil.Decode(str)
		if err != nil {
			if err == hexutil.ErrEmptyString {
				return []byte{}, nil
			}
			return fail(err)
		}
		return data, nil

	case TypeString:
		var str string
		if err := json.Unmarshal(msg, &str); err != nil {
			return fail(err)
		}
		return str, nil

	case TypeObject:
		return f.Schema.FromJSON(msg)
	}

	return fail(fmt.Errorf("unsupported type %s", dt))
}

func (s *Schema) has(name string) bool {
	for _, f := range s.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
