package services

import (
	"errors"
	"regexp"

	"github.com/BradenHooton/loginpopup/internal/models"
)

// User-facing messages of the authenticate flow
const (
	MsgLoginSuccess         = "Login successful. Redirecting..."
	MsgTwoFactorRequired    = "Two-factor authentication required. Redirecting..."
	MsgInvalidSession       = "Your session has expired. Please refresh the page and try again."
	MsgMissingFields        = "Please enter both username and password."
	MsgInvalidCredentials   = "<strong>Error:</strong> Invalid username or password."
	MsgChallengeFailed      = "Bot verification failed. Please try again."
	MsgChallengeUnavailable = "Bot verification is temporarily unavailable. Please try again later."
	MsgTwoFactorIssue       = "Failed to initiate two-factor authentication. Please try again."
	MsgUnexpected           = "An unexpected error occurred. Please try again."
)

var (
	loginReference = regexp.MustCompile(`(?i)<strong>[^<]+</strong>\s*(is not registered|was not found)`)
	// highlighted values other than "Error:" style labels
	highlightedValue = regexp.MustCompile(`\s*<strong>[^<:]+</strong>`)
)

// ClassifyVerifyError maps a directory error to a failure kind and a message
// that never reveals whether the login exists.
func ClassifyVerifyError(err error) (models.FailureKind, string) {
	var dirErr *models.DirectoryError
	if !errors.As(err, &dirErr) {
		return models.FailureAccountError, MsgUnexpected
	}

	if dirErr.IsIdentityFailure() {
		return models.FailureIdentityInvalid, MsgInvalidCredentials
	}

	msg := dirErr.Error()
	if msg == "" {
		return models.FailureAccountError, MsgUnexpected
	}
	return models.FailureAccountError, StripLoginReferences(msg)
}

// StripLoginReferences replaces a highlighted username or email followed by
// "is not registered" / "was not found" with a neutral phrase, then drops
// any other highlighted value. Labels ending in a colon are kept.
func StripLoginReferences(msg string) string {
	msg = loginReference.ReplaceAllString(msg, "the username or email $1")
	return highlightedValue.ReplaceAllString(msg, "")
}
