// Package validate contains the support for validating models.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// validate holds the settings and caches for validating request struct values.
var validate *validator.Validate

// translator is a cache of locale and translation information.
var translator ut.Translator

func init() {

	// Instantiate a validator.
	validate = validator.New()

	// Create a translator for english so the error messages are
	// more human-readable than technical.
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")

	// Register the english error messages for use.
	en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Check validates the provided model against it's declared tags. Every
// violated field is reported, not just the first one.
func Check(val any) error {
	var fields FieldErrors
	fields.Check("", val)

	if len(fields) == 0 {
		return nil
	}

	return fields
}

// =============================================================================

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Add appends a violation for the named field.
func (fe *FieldErrors) Add(field string, msg string) {
	*fe = append(*fe, FieldError{Field: field, Error: msg})
}

// Check runs the tag validation for val and appends every violation. The
// prefix is prepended to the field names so nested models report their
// position in the parent, like "payload[3].nonce".
func (fe *FieldErrors) Check(prefix string, val any) {
	err := validate.Struct(val)
	if err == nil {
		return
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		fe.Add(prefix, err.Error())
		return
	}

	for _, verror := range verrors {
		fe.Add(join(prefix, namespace(verror)), verror.Translate(translator))
	}
}

// Merge appends the field errors carried by err, if any. Any other error is
// recorded against the prefix.
func (fe *FieldErrors) Merge(prefix string, err error) {
	if err == nil {
		return
	}

	var other FieldErrors
	if !errors.As(err, &other) {
		fe.Add(prefix, err.Error())
		return
	}

	for _, f := range other {
		fe.Add(join(prefix, f.Field), f.Error)
	}
}

// Err returns the collection as an error or nil when it is empty.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	msgs := make([]string, len(fe))
	for i, f := range fe {
		msgs[i] = f.Field + ": " + f.Error
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the fields that failed validation.
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string, len(fe))
	for _, f := range fe {
		m[f.Field] = f.Error
	}
	return m
}

// Has reports whether the named field is part of the collection.
func (fe FieldErrors) Has(field string) bool {
	for _, f := range fe {
		if f.Field == field {
			return true
		}
	}
	return false
}

// IsFieldErrors checks if an error of type FieldErrors exists.
func IsFieldErrors(err error) bool {
	var fe FieldErrors
	return errors.As(err, &fe)
}

// GetFieldErrors returns a copy of the FieldErrors pointer.
func GetFieldErrors(err error) FieldErrors {
	var fe FieldErrors
	if !errors.As(err, &fe) {
		return nil
	}
	return fe
}

// =============================================================================

// namespace drops the struct name from the validator namespace so nested
// fields read like "aggregateCommit.height".
func namespace(verror validator.FieldError) string {
	ns := verror.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func join(prefix string, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	}
	return prefix + "." + field
}
