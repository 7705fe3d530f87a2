package hooks

import (
	"log/slog"
	"time"

	"github.com/BradenHooton/loginpopup/internal/models"
)

// AttemptEvent is fired before identity verification.
type AttemptEvent struct {
	Login    string
	ClientIP string
}

// VerifiedEvent carries the raw directory result. Err is nil on success.
type VerifiedEvent struct {
	Login    string
	ClientIP string
	UserID   string
	Err      error
}

// SuccessEvent is fired once a login has fully completed.
type SuccessEvent struct {
	UserID    string
	Login     string
	ClientIP  string
	UserAgent string
	Remember  bool
}

// ChallengeEvent reports a bot-challenge verdict.
type ChallengeEvent struct {
	ClientIP   string
	ErrorCodes []string
}

// ChallengeScope lets filters exempt a request from the bot challenge.
type ChallengeScope struct {
	ClientIP string
	Skip     bool
}

// Registry holds every extension point of the login popup.
type Registry struct {
	// Credentials transforms submitted credentials before verification.
	Credentials FilterChain[models.Credentials]

	BeforeAuthenticate ActionList[AttemptEvent]
	AfterAuthenticate  ActionList[VerifiedEvent]
	Success            ActionList[SuccessEvent]
	ChallengeSuccess   ActionList[ChallengeEvent]
	ChallengeFailure   ActionList[ChallengeEvent]

	// Form slots receive the HTML already placed in the slot and return the new HTML.
	FormStart  FilterChain[string]
	FormMiddle FilterChain[string]
	FormEnd    FilterChain[string]

	ErrorMessage       FilterChain[string]
	RedirectURL        FilterChain[string]
	MaxAttempts        FilterChain[int]
	RateLimitWindow    FilterChain[time.Duration]
	EnableRateLimiting FilterChain[bool]
	ButtonStyle        FilterChain[models.ButtonStyle]
	Labels             FilterChain[models.Labels]
	ClientIP           FilterChain[string]
	SuppressLoading    FilterChain[bool]
	SkipChallenge      FilterChain[ChallengeScope]
}

// NewRegistry creates an empty registry whose listeners log panics to logger.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{}
	r.BeforeAuthenticate.name, r.BeforeAuthenticate.logger = "before_authenticate", logger
	r.AfterAuthenticate.name, r.AfterAuthenticate.logger = "after_authenticate", logger
	r.Success.name, r.Success.logger = "success", logger
	r.ChallengeSuccess.name, r.ChallengeSuccess.logger = "challenge_success", logger
	r.ChallengeFailure.name, r.ChallengeFailure.logger = "challenge_failure", logger
	return r
}
