// Package errs provides types and support related to web v1 functionality.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/validate"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap returns the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}

// FromChain classifies an error returned by the chain core. Malformed input
// and rejected blocks are trusted client errors, a missing record is a 404
// and anything else, including fatal chain errors, is left untrusted.
func FromChain(err error) error {
	switch {
	case err == nil:
		return nil

	case state.IsFatal(err):
		return err

	case codec.IsDecodeError(err), validate.IsFieldErrors(err):
		return NewTrusted(err, http.StatusBadRequest)

	case state.IsConsensusError(err):
		return NewTrusted(err, http.StatusNotAcceptable)

	case errors.Is(err, database.ErrNotFound):
		return NewTrusted(err, http.StatusNotFound)

	case errors.Is(err, state.ErrRemoveFinalized):
		return NewTrusted(err, http.StatusConflict)
	}

	return err
}

// ToResponse builds the response body and status for an error.
func ToResponse(err error) (Response, int) {
	te := GetTrusted(err)
	if te == nil {
		return Response{Error: http.StatusText(http.StatusInternalServerError)}, http.StatusInternalServerError
	}

	resp := Response{Error: te.Err.Error()}
	if fe := validate.GetFieldErrors(te.Err); fe != nil {
		resp.Error = "data validation error"
		resp.Fields = fe.Fields()
	}

	return resp, te.Status
}
