// Package apperr defines the error taxonomy shared by the store, services and
// HTTP handlers. Every failure that can reach a client is an *Error with a
// Kind; callers match with errors.Is against the sentinels below or read the
// Kind with KindOf.
package apperr

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicateIdentity
	KindInvalidCredentials
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindCsrfMismatch
	KindInvalidURL
	KindInvalidToken
	KindInvalidOrExpiredToken
	KindImageFetchFailed
)

var kindNames = map[Kind]string{
	KindInternal:              "internal",
	KindValidation:            "validation",
	KindDuplicateIdentity:     "duplicate_identity",
	KindInvalidCredentials:    "invalid_credentials",
	KindUnauthenticated:       "unauthenticated",
	KindForbidden:             "forbidden",
	KindNotFound:              "not_found",
	KindCsrfMismatch:          "csrf_mismatch",
	KindInvalidURL:            "invalid_url",
	KindInvalidToken:          "invalid_token",
	KindInvalidOrExpiredToken: "invalid_or_expired_token",
	KindImageFetchFailed:      "image_fetch_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is an application error. Msg is safe to show to clients; Err is the
// underlying cause and is only ever logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrForbidden)
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInternal              = &Error{Kind: KindInternal, Msg: "Internal server error"}
	ErrValidation            = &Error{Kind: KindValidation, Msg: "Invalid request"}
	ErrDuplicateIdentity     = &Error{Kind: KindDuplicateIdentity, Msg: "Username or email is already in use"}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials, Msg: "Invalid username or password"}
	ErrUnauthenticated       = &Error{Kind: KindUnauthenticated, Msg: "Not logged in"}
	ErrForbidden             = &Error{Kind: KindForbidden, Msg: "You do not have access to this resource"}
	ErrNotFound              = &Error{Kind: KindNotFound, Msg: "Not found"}
	ErrCsrfMismatch          = &Error{Kind: KindCsrfMismatch, Msg: "Invalid CSRF token"}
	ErrInvalidURL            = &Error{Kind: KindInvalidURL, Msg: "Invalid URL"}
	ErrInvalidToken          = &Error{Kind: KindInvalidToken, Msg: "Invalid token"}
	ErrInvalidOrExpiredToken = &Error{Kind: KindInvalidOrExpiredToken, Msg: "Invalid or expired token"}
	ErrImageFetchFailed      = &Error{Kind: KindImageFetchFailed, Msg: "Failed to fetch image"}
)

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation reports malformed or missing input.
func Validation(msg string) error { return newErr(KindValidation, msg, nil) }

// DuplicateIdentity reports a taken username or email.
func DuplicateIdentity(msg string) error { return newErr(KindDuplicateIdentity, msg, nil) }

// NotFound reports a missing resource, naming it in the client message.
func NotFound(what string) error { return newErr(KindNotFound, what+" not found", nil) }

// Forbidden reports an ownership mismatch.
func Forbidden() error { return newErr(KindForbidden, ErrForbidden.Msg, nil) }

// ImageFetchFailed hides the concrete image pipeline failure behind one
// generic client message.
func ImageFetchFailed(cause error) error {
	return newErr(KindImageFetchFailed, ErrImageFetchFailed.Msg, cause)
}

// Internal wraps an unexpected failure, recording a stack trace for the log.
// Application errors pass through untouched.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return newErr(KindInternal, ErrInternal.Msg, pkgerrors.WithStack(err))
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// PublicMessage returns the text that may be shown to a client for err.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Msg
	}
	return ErrInternal.Msg
}
