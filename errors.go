package warden

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "invalid_credentials"
	TextCodeAccountLocked      = "account_locked"
	TextCodeAccountNotVerified = "account_not_verified"
	TextCodeUnauthorizedAccess = "unauthorized_access"
	TextCodeInvalidAccessToken = "invalid_access_token"
	TextCodeMissingHeaders     = "missing_headers"
	TextCodeInvalidHeaders     = "invalid_headers"
	TextCodeDataConflict       = "data_conflict"
	TextCodeBadRequest         = "bad_request"
	TextCodeInternalError      = "internal_server_error"
	TextCodeRecordNotFound     = "record_not_found"
)

// ErrInvalidCredentials is returned for any failed credential or code check.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountLocked is returned while a principal is locked; the lock is sticky
// and ignores credential correctness. The HTTP layer maps it to 429.
var ErrAccountLocked = goerrors.New("account locked, contact support", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked)

// ErrAccountNotVerified is returned when a principal still has a pending
// verification code.
var ErrAccountNotVerified = goerrors.New("account not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthorizedAccess is returned when a protected route is hit without a
// session cookie, or with a session that no longer maps to a live principal.
var ErrUnauthorizedAccess = goerrors.New("unauthorized access", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorizedAccess).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidAccessToken is returned on a bad signature or an expired token, so
// clients can tell "log in again" apart from "not logged in".
var ErrInvalidAccessToken = goerrors.New("invalid access token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidAccessToken).
	WithCode(goerrors.CodeForbidden)

// ErrMissingHeaders is returned when either tenant API header is absent.
var ErrMissingHeaders = goerrors.New("missing tenant API headers", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMissingHeaders).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidHeaders is returned for any tenant header mismatch: unknown id,
// wrong key, or no key issued. Deliberately indistinguishable to avoid tenant
// identifier enumeration.
var ErrInvalidHeaders = goerrors.New("invalid tenant API headers", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidHeaders).
	WithCode(goerrors.CodeUnauthorized)

// ErrInternal is the uniform error surfaced for unexpected repository or
// notifier failures; the cause is logged, never returned to the client.
var ErrInternal = goerrors.New("internal server error", goerrors.CategoryInternal).
	WithTextCode(TextCodeInternalError).
	WithCode(goerrors.CodeInternal)

// ErrRecordNotFound is the not-found sentinel used by the repositories.
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// DataConflict builds a conflict error, e.g. duplicate email or app name.
func DataConflict(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithTextCode(TextCodeDataConflict).
		WithCode(goerrors.CodeConflict)
}

// BadRequest builds a client error for a disallowed field or malformed input.
func BadRequest(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(TextCodeBadRequest).
		WithCode(goerrors.CodeBadRequest)
}

// redactedKeys are log fields whose values never appear in clear.
var redactedKeys = map[string]bool{
	"email":        true,
	"hash":         true,
	"api_key_hash": true,
}

const redactedValue = "[REDACTED]"

// internalError is the single wrap point for repository and notifier
// failures: it emits one structured, redacted log line and converts the cause
// into the uniform internal_server_error kind.
func internalError(logger Logger, message string, cause error, args ...any) error {
	if logger == nil {
		logger = defLogger{}
	}
	logger.Error(message, append([]any{"error", cause}, redactArgs(args)...)...)
	return ErrInternal
}

func redactArgs(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i += 2 {
		if key, ok := out[i].(string); ok && redactedKeys[key] {
			out[i+1] = redactedValue
		}
	}
	return out
}
