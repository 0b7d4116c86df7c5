// Package apperr defines the closed set of failure kinds shared by the
// identity service and the gateway. Handlers translate a Kind into an HTTP
// status; lower layers only ever pick a Kind and a client-safe message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a failure. The zero value is not a valid kind.
type Kind uint8

const (
	Validation Kind = iota + 1
	MissingInput
	DuplicateIdentity
	InvalidRole
	InvalidCredentials
	AccountDisabled
	WrongLoginChannel
	Forbidden
	InvalidToken
	TokenExpired
	TokenNotFound
	UserUnavailable
	NotFound
	RateLimited
	UpstreamUnavailable
	Internal
)

// Class groups kinds into the coarse error taxonomy exposed to clients.
type Class uint8

const (
	ClassValidation Class = iota + 1
	ClassAuthentication
	ClassAuthorization
	ClassNotFound
	ClassRateLimited
	ClassUpstreamUnavailable
	ClassInternal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "Validation"
	case MissingInput:
		return "MissingInput"
	case DuplicateIdentity:
		return "DuplicateIdentity"
	case InvalidRole:
		return "InvalidRole"
	case InvalidCredentials:
		return "InvalidCredentials"
	case AccountDisabled:
		return "AccountDisabled"
	case WrongLoginChannel:
		return "WrongLoginChannel"
	case Forbidden:
		return "Forbidden"
	case InvalidToken:
		return "InvalidToken"
	case TokenExpired:
		return "TokenExpired"
	case TokenNotFound:
		return "TokenNotFound"
	case UserUnavailable:
		return "UserUnavailable"
	case NotFound:
		return "NotFound"
	case RateLimited:
		return "RateLimited"
	case UpstreamUnavailable:
		return "UpstreamUnavailable"
	case Internal:
		return "Internal"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Class reports which taxonomy class the kind belongs to. Unknown kinds are
// treated as internal.
func (k Kind) Class() Class {
	switch k {
	case Validation, MissingInput, DuplicateIdentity, InvalidRole:
		return ClassValidation
	case InvalidCredentials, InvalidToken, TokenExpired, TokenNotFound:
		return ClassAuthentication
	case AccountDisabled, WrongLoginChannel, Forbidden:
		return ClassAuthorization
	case UserUnavailable, NotFound:
		return ClassNotFound
	case RateLimited:
		return ClassRateLimited
	case UpstreamUnavailable:
		return ClassUpstreamUnavailable
	case Internal:
		return ClassInternal
	}
	return ClassInternal
}

// Error is the typed failure returned by the service layer.
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

// Is matches any *Error carrying the same kind, so callers can write
// errors.Is(err, apperr.E(apperr.TokenExpired)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind with a client-safe message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a cause that is logged but never shown to clients.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// E is shorthand for a bare kind, used as an errors.Is target.
func E(kind Kind) *Error { return &Error{Kind: kind} }

// KindOf extracts the kind from err. Errors that are not *Error are Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// As returns the *Error inside err, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
