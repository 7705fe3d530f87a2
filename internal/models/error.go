package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountDisabled = errors.New("account is disabled")
	ErrAccountLocked   = errors.New("account is temporarily locked")

	// Authentication flow errors
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidNonce         = errors.New("nonce is invalid or expired")
	ErrStoreUnavailable     = errors.New("backing store unavailable")
	ErrChallengeUnavailable = errors.New("challenge verification unavailable")
	ErrInvalidOTP           = errors.New("invalid verification code")
	ErrTooManyAttempts      = errors.New("too many attempts")
)

// Directory error codes. The first four describe identity failures and are
// collapsed into one generic message before reaching the client.
const (
	DirCodeInvalidUsername   = "invalid_username"
	DirCodeInvalidEmail      = "invalid_email"
	DirCodeIncorrectPassword = "incorrect_password"
	DirCodeInvalidCombo      = "invalidcombo"
	DirCodeEmptyUsername     = "empty_username"
	DirCodeEmptyPassword     = "empty_password"
	DirCodeAccountLocked     = "account_locked"
	DirCodeAccountDisabled   = "account_disabled"
)

// DirectoryError is returned by the user directory when it rejects a login.
type DirectoryError struct {
	Code    string
	Message string
	Err     error
}

func (e *DirectoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// IsIdentityFailure reports whether the code means "unknown login or wrong password".
func (e *DirectoryError) IsIdentityFailure() bool {
	switch e.Code {
	case DirCodeInvalidUsername, DirCodeInvalidEmail, DirCodeIncorrectPassword, DirCodeInvalidCombo:
		return true
	}
	return false
}
