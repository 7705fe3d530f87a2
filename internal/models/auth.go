package models

import (
	"log/slog"
	"net/http"
)

// Credentials submitted through the popup form. Password is never logged.
type Credentials struct {
	Login    string
	Password string
	Remember bool
}

// LogValue implements slog.LogValuer so credentials can be logged without the password.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("login", c.Login),
		slog.Bool("remember", c.Remember),
	)
}

// LoginRequest is the transport-neutral form of an authenticate call.
type LoginRequest struct {
	ClientIP          string
	UserAgent         string
	SessionToken      string
	Login             string
	Password          string
	Remember          bool
	ChallengeResponse string
	RedirectTo        string
}

// FailureKind classifies a failed authentication.
type FailureKind string

const (
	FailureRateLimited          FailureKind = "rate_limited"
	FailureInvalidSession       FailureKind = "invalid_session"
	FailureMissingFields        FailureKind = "missing_fields"
	FailureChallengeFailed      FailureKind = "challenge_failed"
	FailureChallengeUnavailable FailureKind = "challenge_unavailable"
	FailureIdentityInvalid      FailureKind = "identity_invalid"
	FailureAccountError         FailureKind = "account_error"
	FailureTwoFactorIssue       FailureKind = "two_factor_issue"
	FailureNetworkOrFormat      FailureKind = "network_or_format"
)

// HTTPStatus maps a failure kind to the status code of the response.
func (k FailureKind) HTTPStatus() int {
	switch k {
	case FailureRateLimited:
		return http.StatusTooManyRequests
	case FailureChallengeFailed:
		return http.StatusForbidden
	case FailureChallengeUnavailable, FailureTwoFactorIssue:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// Outcome is the tag of an AuthResult.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeTwoFactorRequired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTwoFactorRequired:
		return "two_factor_required"
	default:
		return "failure"
	}
}

// AuthResult is the result of one authenticate call.
type AuthResult struct {
	Outcome Outcome

	// Success
	UserID string

	// Failure
	Kind              FailureKind
	Message           string
	RetryAfterSeconds int

	// TwoFactorRequired
	RedirectTarget string

	// RefreshChallenge tells the client its challenge token is spent.
	RefreshChallenge bool
	// SessionToken is a freshly issued anti-forgery token for a retry.
	SessionToken string
}

func SuccessResult(userID string) AuthResult {
	return AuthResult{Outcome: OutcomeSuccess, UserID: userID}
}

func FailureResult(kind FailureKind, message string) AuthResult {
	return AuthResult{Outcome: OutcomeFailure, Kind: kind, Message: message}
}

func TwoFactorResult(redirectTarget string) AuthResult {
	return AuthResult{Outcome: OutcomeTwoFactorRequired, RedirectTarget: redirectTarget}
}

func (r AuthResult) IsSuccess() bool { return r.Outcome == OutcomeSuccess }

// HTTPStatus returns the status code the result is delivered with.
func (r AuthResult) HTTPStatus() int {
	if r.Outcome != OutcomeFailure {
		return http.StatusOK
	}
	return r.Kind.HTTPStatus()
}
