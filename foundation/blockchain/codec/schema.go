// Package codec provides the canonical binary and JSON encoding for the
// records exchanged by the chain. A record's layout is described by a
// Schema; the binary form follows the protobuf wire format with every
// field written in ascending field number order.
package codec

import (
	"fmt"
	"sort"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// DataType identifies the type of a schema field.
type DataType uint8

// Set of supported data types.
const (
	TypeUint32 DataType = iota + 1
	TypeUint64
	TypeBool
	TypeBytes
	TypeString
	TypeObject
	TypeArray
)

// String implements the fmt.Stringer interface.
func (dt DataType) String() string {
	switch dt {
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeBool:
		return "boolean"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	}
	return fmt.Sprintf("unknown(%d)", dt)
}

func (dt DataType) wireType() protowire.Type {
	switch dt {
	case TypeUint32, TypeUint64, TypeBool:
		return protowire.VarintType
	}
	return protowire.BytesType
}

// Record is the generic in memory form of an encoded value. Values are
// uint32, uint64, bool, []byte, string, Record or []any for arrays.
type Record map[string]any

// Field describes one field of a schema.
type Field struct {
	Name   string
	Number protowire.Number
	Type   DataType

	// Items is the element type for TypeArray. Only bytes, string and
	// object elements are supported.
	Items DataType

	// Schema describes TypeObject fields and arrays of objects.
	Schema *Schema
}

// Schema describes the layout of a record.
type Schema struct {
	ID       string
	fields   []Field
	byNumber map[protowire.Number]int
}

// New constructs a schema. Fields may be declared in any order, the
// encoding always follows the field numbers.
func New(id string, fields ...Field) (*Schema, error) {
	s := Schema{
		ID:       id,
		fields:   make([]Field, len(fields)),
		byNumber: make(map[protowire.Number]int, len(fields)),
	}
	copy(s.fields, fields)

	sort.Slice(s.fields, func(i, j int) bool {
		return s.fields[i].Number < s.fields[j].Number
	})

	names := make(map[string]struct{}, len(fields))
	for i, f := range s.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %s: field %d has no name", id, f.Number)
		}
		if !f.Number.IsValid() {
			return nil, fmt.Errorf("schema %s: field %s has invalid number %d", id, f.Name, f.Number)
		}
		if _, exists := names[f.Name]; exists {
			return nil, fmt.Errorf("schema %s: duplicate field name %s", id, f.Name)
		}
		if _, exists := s.byNumber[f.Number]; exists {
			return nil, fmt.Errorf("schema %s: duplicate field number %d", id, f.Number)
		}

		switch f.Type {
		case TypeUint32, TypeUint64, TypeBool, TypeBytes, TypeString:
		case TypeObject:
			if f.Schema == nil {
				return nil, fmt.Errorf("schema %s: object field %s has no schema", id, f.Name)
			}
		case TypeArray:
			switch f.Items {
			case TypeBytes, TypeString:
			case TypeObject:
				if f.Schema == nil {
					return nil, fmt.Errorf("schema %s: array field %s has no item schema", id, f.Name)
				}
			default:
				return nil, fmt.Errorf("schema %s: array field %s has unsupported items %s", id, f.Name, f.Items)
			}
		default:
			return nil, fmt.Errorf("schema %s: field %s has unsupported type %s", id, f.Name, f.Type)
		}

		names[f.Name] = struct{}{}
		s.byNumber[f.Number] = i
	}

	return &s, nil
}

// MustNew constructs a schema and panics on an invalid declaration. It is
// intended for package level schema variables.
func MustNew(id string, fields ...Field) *Schema {
	s, err := New(id, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the fields in wire order.
func (s *Schema) Fields() []Field {
	fields := make([]Field, len(s.fields))
	copy(fields, s.fields)
	return fields
}

// Without returns a copy of the schema minus the named fields. It is used
// to derive signing scopes that exclude the signature itself.
func (s *Schema) Without(id string, names ...string) (*Schema, error) {
	skip := make(map[string]struct{}, len(names))
	for _, name := range names {
		skip[name] = struct{}{}
	}

	var fields []Field
	for _, f := range s.fields {
		if _, exists := skip[f.Name]; exists {
			continue
		}
		fields = append(fields, f)
	}

	return New(id, fields...)
}

// Zero returns a record holding the zero value of every field.
func (s *Schema) Zero() Record {
	rec := make(Record, len(s.fields))
	for _, f := range s.fields {
		rec[f.Name] = zero(f)
	}
	return rec
}

func zero(f Field) any {
	switch f.Type {
	case TypeUint32:
		return uint32(0)
	case TypeUint64:
		return uint64(0)
	case TypeBool:
		return false
	case TypeBytes:
		return []byte{}
	case TypeString:
		return ""
	case TypeObject:
		return f.Schema.Zero()
	}
	return []any{}
}

// =============================================================================

var registry = struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}{
	schemas: make(map[string]*Schema),
}

// Register adds the schema to the registry so it can be looked up by id.
func Register(s *Schema) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.schemas[s.ID]; exists {
		return fmt.Errorf("schema %q already registered", s.ID)
	}

	registry.schemas[s.ID] = s
	return nil
}

// MustRegister registers the schemas and panics if any id is taken.
func MustRegister(schemas ...*Schema) {
	for _, s := range schemas {
		if err := Register(s); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the registered schema for the specified id.
func Lookup(id string) (*Schema, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	s, exists := registry.schemas[id]
	return s, exists
}

// Registered returns the sorted ids of all registered schemas.
func Registered() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	ids := make([]string, 0, len(registry.schemas))
	for id := range registry.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
