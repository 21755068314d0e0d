package docql

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported        = errors.New("operator not supported")
	ErrTranslationFailed   = errors.New("query translation failed")
	ErrCannotMaterialize   = errors.New("type cannot be materialized")
	ErrMissingParameter    = errors.New("missing query parameter")
	ErrIterationDone       = errors.New("no more documents")
	ErrConcurrentIteration = errors.New("execution context used concurrently")
	ErrKeynotFound         = errors.New("key not found")
	ErrKeyAlreadyExists    = errors.New("key already exists")
	ErrNoResult            = errors.New("query returned no result")
	ErrMoreThanOneResult   = errors.New("query returned more than one result")
)

// UnsupportedOperatorError reports an operator the translator refuses to fold
// into a native query. It always fails the whole compilation.
type UnsupportedOperatorError struct {
	Operator string
	Reason   string
}

func (e *UnsupportedOperatorError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("operator %s: %s", e.Operator, ErrNotSupported)
	}
	return fmt.Sprintf("operator %s: %s: %s", e.Operator, ErrNotSupported, e.Reason)
}

func (e *UnsupportedOperatorError) Unwrap() error { return ErrNotSupported }

// TranslationError reports a sub-expression that could not be rewritten into
// the store's native filter form. QueryText carries the printable form of the
// original query for diagnosis.
type TranslationError struct {
	QueryText string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTranslationFailed, e.QueryText)
}

func (e *TranslationError) Unwrap() error { return ErrTranslationFailed }

// MaterializationError reports a document field that could not be coerced
// into the requested Go type.
type MaterializationError struct {
	Field string
	Type  string
	Cause error
}

func (e *MaterializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("field %q: %s %s: %s", e.Field, ErrCannotMaterialize, e.Type, e.Cause)
	}
	return fmt.Sprintf("field %q: %s %s", e.Field, ErrCannotMaterialize, e.Type)
}

func (e *MaterializationError) Unwrap() error { return ErrCannotMaterialize }
