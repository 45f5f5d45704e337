package codec

import (
	"errors"
	"fmt"
)

// DecodeError is returned when bytes or JSON do not match the schema.
type DecodeError struct {
	Schema string
	Field  string
	Err    error
}

// Error implements the error interface.
func (de *DecodeError) Error() string {
	if de.Field == "" {
		return fmt.Sprintf("decode %s: %s", de.Schema, de.Err)
	}
	return fmt.Sprintf("decode %s.%s: %s", de.Schema, de.Field, de.Err)
}

// Unwrap returns the underlying cause.
func (de *DecodeError) Unwrap() error {
	return de.Err
}

// IsDecodeError checks if an error of type DecodeError exists.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func decodeErr(s *Schema, field string, format string, args ...any) error {
	return &DecodeError{Schema: s.ID, Field: field, Err: fmt.Errorf(format, args...)}
}
