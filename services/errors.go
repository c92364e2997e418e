package services

import (
	"errors"
	"fmt"
)

// Kind classifies service failures so transports can pick a status code.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	}
	return "unexpected"
}

// Error is returned by every service method. Message is safe to show to
// clients; Err is the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func ValidationError(msg string) error     { return &Error{Kind: KindValidation, Message: msg} }
func AuthenticationError(msg string) error { return &Error{Kind: KindAuthentication, Message: msg} }
func AuthorizationError(msg string) error  { return &Error{Kind: KindAuthorization, Message: msg} }
func NotFoundError(msg string) error       { return &Error{Kind: KindNotFound, Message: msg} }
func ConflictError(msg string) error       { return &Error{Kind: KindConflict, Message: msg} }

// UnexpectedError wraps a storage or infrastructure failure.
func UnexpectedError(msg string, err error) error {
	return &Error{Kind: KindUnexpected, Message: msg, Err: err}
}

// KindOf reports the kind of err; errors that are not *Error are unexpected.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}
