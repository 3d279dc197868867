package domain

import (
	"errors"
	"net/http"
)

// Kind classifies failures so callers can react without string matching.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindDevice         Kind = "device"
	KindProvider       Kind = "provider"
	KindEmptyResult    Kind = "empty_result"
	KindPersistence    Kind = "persistence"
)

// Error is the typed error returned by every stage.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so sentinel comparisons like
// errors.Is(err, &Error{Kind: KindValidation}) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func ValidationError(msg string) error { return newError(KindValidation, msg, nil) }

func AuthenticationError(msg string) error { return newError(KindAuthentication, msg, nil) }

func AuthorizationError(msg string) error { return newError(KindAuthorization, msg, nil) }

func NotFoundError(msg string) error { return newError(KindNotFound, msg, nil) }

func DeviceError(msg string, cause error) error { return newError(KindDevice, msg, cause) }

func ProviderError(msg string, cause error) error { return newError(KindProvider, msg, cause) }

func EmptyResultError(msg string) error { return newError(KindEmptyResult, msg, nil) }

func PersistenceError(msg string, cause error) error { return newError(KindPersistence, msg, cause) }

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDevice:
		return http.StatusServiceUnavailable
	case KindProvider:
		return http.StatusBadGateway
	case KindEmptyResult:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
