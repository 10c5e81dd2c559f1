package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeAccountDisabled    = "ACCOUNT_DISABLED"
	textCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	textCodeIdentityRevoked    = "IDENTITY_REVOKED"
	textCodeUsernameTaken      = "USERNAME_TAKEN"
	textCodeEmailTaken         = "EMAIL_TAKEN"
	textCodeTokenMissing       = "TOKEN_MISSING"
	textCodeTokenExpired       = "TOKEN_EXPIRED"
	textCodeTokenMalformed     = "TOKEN_MALFORMED"
	textCodePasswordMismatch   = "PASSWORD_MISMATCH"
	textCodeValidation         = "VALIDATION"
	textCodeConfiguration      = "CONFIGURATION"
)

// ErrInvalidCredentials collapses "no such account" and "wrong password"
// into a single message so callers cannot enumerate accounts.
var ErrInvalidCredentials = goerrors.New("incorrect username or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled is returned when an account exists but its status is
// anything other than active.
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(textCodeAccountDisabled).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is returned when an account lookup comes back empty
// after the caller has already been authenticated.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrIdentityRevoked rejects a cryptographically valid token whose account
// no longer exists or is no longer active.
var ErrIdentityRevoked = goerrors.New("token no longer valid for this account", goerrors.CategoryAuth).
	WithTextCode(textCodeIdentityRevoked).
	WithCode(goerrors.CodeUnauthorized)

// ErrUsernameTaken is the registration conflict for a duplicate username.
var ErrUsernameTaken = goerrors.New("username already exists", goerrors.CategoryConflict).
	WithTextCode(textCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

// ErrEmailTaken is the registration conflict for a duplicate email.
var ErrEmailTaken = goerrors.New("email already exists", goerrors.CategoryConflict).
	WithTextCode(textCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrTokenMissing is returned when a route requires a bearer token and the
// request carries none.
var ErrTokenMissing = goerrors.New("token must be provided", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenMissing).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned for a structurally valid, correctly signed
// token whose exp is in the past. Kept distinct from ErrTokenMalformed.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed covers bad structure, unexpected signing method, and
// invalid signatures.
var ErrTokenMalformed = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrPasswordMismatch is the change-password rejection for a wrong current
// password. Unlike login this one can be specific: the caller is already
// authenticated.
var ErrPasswordMismatch = goerrors.New("incorrect old password", goerrors.CategoryAuth).
	WithTextCode(textCodePasswordMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the hasher-level comparison failure. A
// malformed stored hash maps here too, so hash format is never an oracle.
var ErrMismatchedHashAndPassword = goerrors.New("mismatched hash and password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(textCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ValidationError builds a 400 validation error with a safe message.
func ValidationError(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryValidation).
		WithTextCode(textCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

// ConfigurationError builds a fatal startup configuration error. These are
// never surfaced per request; the process must refuse to accept traffic.
func ConfigurationError(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryOperation).
		WithTextCode(textCodeConfiguration).
		WithCode(goerrors.CodeInternal)
}

// IsTokenExpired reports whether err is the expired-token rejection. Callers
// match on the text code, never on message substrings.
func IsTokenExpired(err error) bool {
	return hasTextCode(err, textCodeTokenExpired)
}

// IsTokenMalformed reports whether err is the malformed/invalid-signature
// rejection.
func IsTokenMalformed(err error) bool {
	return hasTextCode(err, textCodeTokenMalformed)
}

// IsAccountDisabled reports whether err is the disabled-account rejection,
// distinct from the generic credential failure.
func IsAccountDisabled(err error) bool {
	return hasTextCode(err, textCodeAccountDisabled)
}

// IsConflict reports whether err is a duplicate username/email conflict.
func IsConflict(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryConflict
}

// IsValidation reports whether err is a malformed-input rejection.
func IsValidation(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryValidation
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}
