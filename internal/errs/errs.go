// Package errs defines the error-kind taxonomy shared across the store,
// manager, processor, and HTTP glue.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way spec.md's error handling design table does.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalid
	KindDuplicate
	KindNotFound
	KindHandlerNotFound
	KindDeserializationFailed
	KindHandlerError
	KindHandlerException
	KindStorageUnavailable
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "Invalid"
	case KindDuplicate:
		return "Duplicate"
	case KindNotFound:
		return "NotFound"
	case KindHandlerNotFound:
		return "HandlerNotFound"
	case KindDeserializationFailed:
		return "DeserializationFailed"
	case KindHandlerError:
		return "HandlerError"
	case KindHandlerException:
		return "HandlerException"
	case KindStorageUnavailable:
		return "StorageUnavailable"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// E is a wrapped, kind-tagged error. Use errors.As to recover it.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error {
	return e.Err
}

// New builds an *E with no wrapped cause.
func New(kind Kind, message string) *E {
	return &E{Kind: kind, Message: message}
}

// Wrap builds an *E around an existing error.
func Wrap(kind Kind, message string, err error) *E {
	return &E{Kind: kind, Message: message, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As is errors.As specialized to *E, exported so callers outside this
// package don't need to import errors just to unwrap a Kind.
func As(err error, target **E) bool {
	return errors.As(err, target)
}
