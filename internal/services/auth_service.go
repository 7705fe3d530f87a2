package services

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
	pkghttp "github.com/BradenHooton/loginpopup/pkg/http"
	pkglogger "github.com/BradenHooton/loginpopup/pkg/logger"
)

// NonceIssuer issues and redeems the popup's anti-forgery tokens
type NonceIssuer interface {
	Issue(ctx context.Context) (string, error)
	Redeem(ctx context.Context, token string) error
}

// IdentityVerifier checks credentials against the user directory
type IdentityVerifier interface {
	Verify(ctx context.Context, creds models.Credentials) (*models.User, error)
}

// ChallengeResult is a bot-challenge verdict
type ChallengeResult struct {
	Success    bool
	ErrorCodes []string
}

// ChallengeGate verifies a single-use bot-challenge token. An error means
// the gate could not reach a verdict.
type ChallengeGate interface {
	Verify(ctx context.Context, token, clientIP string) (ChallengeResult, error)
}

// TwoFactorInterceptor detects and starts the second-factor flow
type TwoFactorInterceptor interface {
	IsSecondFactorEnabled(ctx context.Context, userID string) (bool, error)
	IssueSecondFactorChallenge(ctx context.Context, userID, destination string, remember bool) (string, error)
	BuildChallengeRedirect(userID, token, destination string) string
}

// Session is the cookie session of the current response
type Session interface {
	Establish(ctx context.Context, userID string, remember bool) error
	Clear()
}

// MessageSanitizer cleans HTML fragments returned to the client
type MessageSanitizer interface {
	SanitizeMessage(msg string) string
}

// AuthConfig holds the settings of the authenticator
type AuthConfig struct {
	HomeURL  string
	AdminURL string
	// ChallengeAllowList exempts these IPs and CIDR ranges from the bot challenge
	ChallengeAllowList []string
}

// AuthDeps are the collaborators of AuthService. Gate and TwoFactor may be nil.
type AuthDeps struct {
	Limiter   *RateLimitService
	Nonces    NonceIssuer
	Directory IdentityVerifier
	Gate      ChallengeGate
	TwoFactor TwoFactorInterceptor
	Sanitizer MessageSanitizer
	Hooks     *hooks.Registry
	Audit     *pkglogger.AuditLogger
}

// AuthService runs one popup login: rate limit, anti-forgery token,
// credentials, bot challenge, identity, second factor, session.
type AuthService struct {
	deps      AuthDeps
	config    AuthConfig
	allowList []*net.IPNet
	logger    *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthDeps, config AuthConfig, logger *slog.Logger) *AuthService {
	if deps.Hooks == nil {
		deps.Hooks = hooks.NewRegistry(logger)
	}
	if deps.Audit == nil {
		deps.Audit = pkglogger.NewAuditLogger(logger)
	}
	return &AuthService{
		deps:      deps,
		config:    config,
		allowList: ParseAllowList(config.ChallengeAllowList),
		logger:    logger,
	}
}

// Authenticate runs the login flow. It never returns an error: every
// failure is folded into the result.
func (s *AuthService) Authenticate(ctx context.Context, req models.LoginRequest, sess Session) models.AuthResult {
	clientIP := s.deps.Hooks.ClientIP.Apply(req.ClientIP)

	// 1. rate limit
	if s.deps.Limiter != nil && s.deps.Limiter.Enabled() {
		if st := s.deps.Limiter.IsLimited(ctx, clientIP); st.Limited {
			s.audit(pkglogger.EventLoginRateLimited, req, clientIP, "", string(models.FailureRateLimited))
			res := models.FailureResult(models.FailureRateLimited, RateLimitMessage(st.RetryAfterSeconds))
			res.RetryAfterSeconds = st.RetryAfterSeconds
			res.RefreshChallenge = true
			return res
		}
	}

	// 2. anti-forgery token
	if err := s.deps.Nonces.Redeem(ctx, req.SessionToken); err != nil {
		if !errors.Is(err, models.ErrInvalidNonce) {
			s.logger.Error("failed to validate popup nonce", slog.Any("error", err))
		}
		s.audit(pkglogger.EventLoginFailure, req, clientIP, "", string(models.FailureInvalidSession))
		res := models.FailureResult(models.FailureInvalidSession, MsgInvalidSession)
		res.RefreshChallenge = true
		return res
	}

	// 3. credentials
	creds := models.Credentials{
		Login:    strings.TrimSpace(req.Login),
		Password: req.Password,
		Remember: req.Remember,
	}
	if creds.Login == "" || strings.TrimSpace(creds.Password) == "" {
		return s.fail(ctx, models.FailureResult(models.FailureMissingFields, MsgMissingFields))
	}

	// 4. pre-auth transform
	creds = s.deps.Hooks.Credentials.Apply(creds)

	// 5. observers
	s.deps.Hooks.BeforeAuthenticate.Fire(hooks.AttemptEvent{Login: creds.Login, ClientIP: clientIP})

	// 6. bot challenge, strictly before identity verification
	if res, ok := s.checkChallenge(ctx, req, clientIP); !ok {
		return s.fail(ctx, res)
	}

	// 7. identity
	user, err := s.deps.Directory.Verify(ctx, creds)

	// 8. observers see the raw result
	ev := hooks.VerifiedEvent{Login: creds.Login, ClientIP: clientIP, Err: err}
	if user != nil {
		ev.UserID = user.ID
	}
	s.deps.Hooks.AfterAuthenticate.Fire(ev)

	// 9. failure
	if err != nil {
		if s.deps.Limiter != nil && s.deps.Limiter.Enabled() {
			s.deps.Limiter.RecordFailure(ctx, clientIP)
		}
		kind, msg := ClassifyVerifyError(err)
		if kind == models.FailureAccountError && msg == MsgUnexpected {
			s.logger.Error("identity verification failed", slog.Any("error", err))
		}
		s.audit(pkglogger.EventLoginFailure, req, clientIP, "", string(kind))
		return s.fail(ctx, models.FailureResult(kind, s.message(msg)))
	}

	destination := s.destination(req.RedirectTo)

	// 10. second factor
	if s.deps.TwoFactor != nil {
		if res, intercepted := s.interceptSecondFactor(ctx, req, sess, user, clientIP, destination); intercepted {
			return res
		}
	}

	// 11. success
	if err := sess.Establish(ctx, user.ID, creds.Remember); err != nil {
		s.logger.Error("failed to establish session", slog.String("user_id", user.ID), slog.Any("error", err))
		return s.fail(ctx, models.FailureResult(models.FailureAccountError, s.message(MsgUnexpected)))
	}

	if s.deps.Limiter != nil {
		s.deps.Limiter.Clear(ctx, clientIP)
	}

	s.deps.Hooks.Success.Fire(hooks.SuccessEvent{
		UserID:    user.ID,
		Login:     creds.Login,
		ClientIP:  clientIP,
		UserAgent: req.UserAgent,
		Remember:  creds.Remember,
	})
	s.audit(pkglogger.EventLoginSuccess, req, clientIP, user.ID, "")

	res := models.SuccessResult(user.ID)
	res.Message = MsgLoginSuccess
	res.RedirectTarget = destination
	return res
}

func (s *AuthService) checkChallenge(ctx context.Context, req models.LoginRequest, clientIP string) (models.AuthResult, bool) {
	if s.deps.Gate == nil || s.challengeExempt(clientIP) {
		return models.AuthResult{}, true
	}

	verdict, err := s.deps.Gate.Verify(ctx, req.ChallengeResponse, clientIP)
	if err != nil {
		s.logger.Error("bot challenge verification unavailable", slog.Any("error", err))
		s.deps.Hooks.ChallengeFailure.Fire(hooks.ChallengeEvent{ClientIP: clientIP, ErrorCodes: []string{"internal-error"}})
		s.audit(pkglogger.EventChallengeFailure, req, clientIP, "", string(models.FailureChallengeUnavailable))
		return models.FailureResult(models.FailureChallengeUnavailable, s.message(MsgChallengeUnavailable)), false
	}

	event := hooks.ChallengeEvent{ClientIP: clientIP, ErrorCodes: verdict.ErrorCodes}
	if !verdict.Success {
		s.deps.Hooks.ChallengeFailure.Fire(event)
		s.audit(pkglogger.EventChallengeFailure, req, clientIP, "", string(models.FailureChallengeFailed))
		return models.FailureResult(models.FailureChallengeFailed, s.message(MsgChallengeFailed)), false
	}

	s.deps.Hooks.ChallengeSuccess.Fire(event)
	return models.AuthResult{}, true
}

func (s *AuthService) challengeExempt(clientIP string) bool {
	if ipInList(clientIP, s.allowList) {
		return true
	}
	return s.deps.Hooks.SkipChallenge.Apply(hooks.ChallengeScope{ClientIP: clientIP}).Skip
}

// interceptSecondFactor runs after a successful password check. The session
// cookie is cleared before anything else so a failure below cannot leave a
// half-authenticated session behind.
func (s *AuthService) interceptSecondFactor(ctx context.Context, req models.LoginRequest, sess Session, user *models.User, clientIP, destination string) (models.AuthResult, bool) {
	enabled, err := s.deps.TwoFactor.IsSecondFactorEnabled(ctx, user.ID)
	if err != nil {
		sess.Clear()
		s.logger.Error("failed to read second factor status", slog.String("user_id", user.ID), slog.Any("error", err))
		return s.fail(ctx, models.FailureResult(models.FailureTwoFactorIssue, s.message(MsgTwoFactorIssue))), true
	}
	if !enabled {
		return models.AuthResult{}, false
	}

	sess.Clear()

	token, err := s.deps.TwoFactor.IssueSecondFactorChallenge(ctx, user.ID, destination, req.Remember)
	if err != nil {
		s.logger.Error("failed to issue second factor challenge", slog.String("user_id", user.ID), slog.Any("error", err))
		return s.fail(ctx, models.FailureResult(models.FailureTwoFactorIssue, s.message(MsgTwoFactorIssue))), true
	}

	target := s.deps.TwoFactor.BuildChallengeRedirect(user.ID, token, destination)
	s.audit(pkglogger.EventTwoFactorRequired, req, clientIP, user.ID, "")

	res := models.TwoFactorResult(target)
	res.Message = MsgTwoFactorRequired
	return res, true
}

// destination is the validated post-login target, falling back to the admin URL
func (s *AuthService) destination(redirectTo string) string {
	target := redirectTo
	if strings.TrimSpace(target) == "" {
		target = s.config.AdminURL
	}
	safe := pkghttp.SafeRedirect(target, s.config.HomeURL)
	return pkghttp.SafeRedirect(s.deps.Hooks.RedirectURL.Apply(safe), s.config.HomeURL)
}

// fail finishes a failure after the nonce was consumed: the client gets a
// fresh nonce and is told to fetch a fresh challenge token.
func (s *AuthService) fail(ctx context.Context, res models.AuthResult) models.AuthResult {
	res.RefreshChallenge = true
	token, err := s.deps.Nonces.Issue(ctx)
	if err != nil {
		s.logger.Error("failed to issue replacement nonce", slog.Any("error", err))
		return res
	}
	res.SessionToken = token
	return res
}

func (s *AuthService) message(msg string) string {
	msg = s.deps.Hooks.ErrorMessage.Apply(msg)
	if s.deps.Sanitizer != nil {
		msg = s.deps.Sanitizer.SanitizeMessage(msg)
	}
	return msg
}

func (s *AuthService) audit(eventType string, req models.LoginRequest, clientIP, userID, reason string) {
	s.deps.Audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     eventType,
		UserID:        userID,
		Login:         req.Login,
		IPAddress:     clientIP,
		UserAgent:     req.UserAgent,
		Success:       eventType == pkglogger.EventLoginSuccess || eventType == pkglogger.EventTwoFactorRequired,
		FailureReason: reason,
	})
}

// ParseAllowList parses IPs and CIDR ranges. Invalid entries are skipped.
func ParseAllowList(entries []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				continue
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

func ipInList(ip string, nets []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
