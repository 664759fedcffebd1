// Package apperr defines the registry's domain error taxonomy.
//
// Domain errors travel to clients inside the legacy response envelope
// {status:"error", code, text} with an HTTP 200 status line; the numeric
// codes are part of the wire contract and must stay stable.
package apperr

import (
	"errors"
	"fmt"
)

// Stable wire codes.
const (
	CodeAuth       = 0   // missing/expired token
	CodeValidation = 1   // bad district, malformed changeset, invalid subscription
	CodeCluster    = 2   // writer unreachable, pull failed, snapshot corrupt
	CodeStorage    = 3   // filesystem/database I/O
	CodeNotFound   = 4   // document or row not found
	CodeSignature  = 501 // unknown key or failed signature verification
)

// Error is a domain error with a stable wire code and a human message.
type Error struct {
	Code int    `json:"code"`
	Text string `json:"text"`
	// Err is the wrapped cause, not serialised.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Text, e.Err)
	}
	return e.Text
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Predefined errors for conditions with fixed messages.
var (
	// ErrUnauthorized is returned for a missing, unknown or expired token.
	ErrUnauthorized = &Error{Code: CodeAuth, Text: "Nicht angemeldet oder Sitzung abgelaufen"}

	// ErrForbidden is returned when the authenticated user lacks the role
	// required for an action.
	ErrForbidden = &Error{Code: CodeAuth, Text: "Keine Berechtigung für diese Aktion"}

	// ErrClusterUnavailable is returned when a follower cannot reach the
	// writer.
	ErrClusterUnavailable = &Error{Code: CodeCluster, Text: "Schreibknoten nicht erreichbar"}
)

// BadSignature reports a failed signature verification.
func BadSignature(detail string) *Error {
	return &Error{Code: CodeSignature, Text: "Ungültige Signatur: " + detail}
}

// UnknownKey reports that no key is registered for (email, fingerprint).
func UnknownKey(email, fingerprint string) *Error {
	return &Error{
		Code: CodeSignature,
		Text: fmt.Sprintf("Kein öffentlicher Schlüssel %s für %s hinterlegt (Signatur nicht prüfbar)", fingerprint, email),
	}
}

// BadDistrict reports a document key outside the district namespace.
func BadDistrict(amtsgericht, bezirk string) *Error {
	return &Error{
		Code: CodeValidation,
		Text: fmt.Sprintf("Ungültiges Amtsgericht oder ungültige Gemarkung: %s/%s", amtsgericht, bezirk),
	}
}

// Validation reports a malformed request.
func Validation(text string) *Error {
	return &Error{Code: CodeValidation, Text: text}
}

// NotFound reports a missing resource.
func NotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Text: what + " nicht gefunden"}
}

// Cluster wraps a replication failure.
func Cluster(text string, err error) *Error {
	return &Error{Code: CodeCluster, Text: text, Err: err}
}

// Storage wraps a filesystem or database failure.
func Storage(text string, err error) *Error {
	return &Error{Code: CodeStorage, Text: text, Err: err}
}

// As converts err to *Error; unknown errors map to a generic storage error
// so internals are never leaked to clients.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeStorage, Text: "Interner Fehler", Err: err}
}
