package popupclient

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BradenHooton/loginpopup/internal/models"
	pkghttp "github.com/BradenHooton/loginpopup/pkg/http"
)

const (
	MsgAlreadyLoggedIn = "You're already logged in!"
	MsgNotLoggedIn     = "You're not logged in"
	MsgMissingFields   = "Please enter both username and password."
	MsgLoginFailed     = "Login failed. Please try again."
	MsgGenericError    = "An error occurred. Please try again."
)

var (
	ErrBusy         = errors.New("popup is busy")
	ErrInvalidState = errors.New("action not allowed in current state")
)

// Transport performs the two ajax calls of the popup
type Transport interface {
	CheckStatus(ctx context.Context, currentURL string) (*models.StatusResult, error)
	Authenticate(ctx context.Context, req SubmitRequest) (*AuthResponse, error)
}

// ChallengeSource yields the bot-challenge token of the rendered form
type ChallengeSource interface {
	Token() string
	Reset()
}

// Credentials are what the user typed into the form
type Credentials struct {
	Login    string
	Password string
	Remember bool
}

// SubmitRequest is the authenticate call payload
type SubmitRequest struct {
	Credentials
	SessionToken      string
	ChallengeResponse string
	RedirectTo        string
}

// AuthResponse is the decoded authenticate envelope
type AuthResponse struct {
	Success           bool   `json:"-"`
	Message           string `json:"message"`
	UserID            string `json:"userId,omitempty"`
	TwoFactorRequired bool   `json:"twoFactorRequired,omitempty"`
	RedirectURL       string `json:"redirectUrl,omitempty"`
	SessionToken      string `json:"sessionToken,omitempty"`
	RefreshChallenge  bool   `json:"refreshChallenge,omitempty"`
	RetryAfter        int    `json:"retryAfter,omitempty"`
}

// Config tunes controller timing
type Config struct {
	MessageDuration time.Duration
	RevealDelay     time.Duration
	ChallengeWait   WaitPolicy
}

// DefaultConfig mirrors the browser popup timing
func DefaultConfig() Config {
	return Config{
		MessageDuration: time.Second,
		RevealDelay:     time.Second,
		ChallengeWait:   DefaultWaitPolicy,
	}
}

// Controller drives one popup instance. Every transition bumps the version;
// timers and in-flight calls only apply if the version they captured is
// still current.
type Controller struct {
	transport Transport
	challenge ChallengeSource
	config    Config
	logger    *slog.Logger

	// OnChange is called after every transition, outside the lock.
	OnChange func(View)

	mu     sync.Mutex
	view   View
	busy   bool
	timers []*time.Timer
}

// NewController creates a controller. challenge may be nil when no bot
// challenge is rendered.
func NewController(transport Transport, challenge ChallengeSource, config Config, logger *slog.Logger) *Controller {
	if config.ChallengeWait.Attempts <= 0 {
		config.ChallengeWait = DefaultWaitPolicy
	}
	return &Controller{
		transport: transport,
		challenge: challenge,
		config:    config,
		logger:    logger,
		view:      View{State: StateIdle},
	}
}

// View returns the current snapshot
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// State returns the current state
func (c *Controller) State() State {
	return c.View().State
}

// Start checks pageURL for the trigger parameter and, if present, runs the
// status check. It reports whether the popup opened.
func (c *Controller) Start(ctx context.Context, pageURL string) (bool, error) {
	u, err := url.Parse(pageURL)
	if err != nil || !pkghttp.IsTriggered(u.Query()) {
		return false, nil
	}

	c.mu.Lock()
	if c.view.State != StateIdle {
		c.mu.Unlock()
		return false, ErrInvalidState
	}
	version := c.transitionLocked(StateLoading, func(v *View) { v.Message = "" })
	c.busy = true
	c.mu.Unlock()
	c.notify()

	status, err := c.transport.CheckStatus(ctx, pageURL)

	c.mu.Lock()
	c.busy = false
	if c.view.Version != version {
		c.mu.Unlock()
		return true, nil
	}

	if err != nil {
		c.logger.Warn("popup status check failed", slog.Any("error", err))
		c.transitionLocked(StateClosed, nil)
		c.stopTimersLocked()
		c.mu.Unlock()
		c.notify()
		return true, err
	}

	switch {
	case !status.Show:
		v := c.transitionLocked(StateShowMessage, func(v *View) { v.Message = MsgAlreadyLoggedIn })
		c.scheduleLocked(c.config.MessageDuration, v, func() {
			c.transitionLocked(StateClosed, nil)
		})
	case status.SuppressLoading || c.config.RevealDelay <= 0:
		c.revealLocked(status)
	default:
		c.view.Message = MsgNotLoggedIn
		v := c.view.Version
		c.scheduleLocked(c.config.RevealDelay, v, func() {
			c.revealLocked(status)
		})
	}
	c.mu.Unlock()
	c.notify()
	return true, nil
}

func (c *Controller) revealLocked(status *models.StatusResult) {
	c.transitionLocked(StateFormVisible, func(v *View) {
		v.Message = ""
		v.Error = ""
		v.HTML = status.HTML
		v.SessionToken = status.SessionToken
		v.RedirectTarget = status.RedirectTarget
	})
}

// Submit sends the credentials. It is rejected while a status poll or
// another submission is in flight.
func (c *Controller) Submit(ctx context.Context, creds Credentials) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.view.State != StateFormVisible {
		c.mu.Unlock()
		return ErrInvalidState
	}

	if creds.Login == "" || creds.Password == "" {
		c.view.Error = MsgMissingFields
		c.view.Version++
		c.mu.Unlock()
		c.notify()
		return nil
	}

	c.busy = true
	next := StateSubmitting
	if c.challenge != nil {
		next = StateAwaitingChallenge
	}
	version := c.transitionLocked(next, func(v *View) { v.Error = "" })
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	var challengeResponse string
	if c.challenge != nil {
		if !WaitFor(ctx, c.config.ChallengeWait, func() bool { return c.challenge.Token() != "" }) {
			c.logger.Info("challenge token not ready, submitting without it")
		}
		challengeResponse = c.challenge.Token()

		c.mu.Lock()
		if c.view.Version != version {
			c.mu.Unlock()
			return nil
		}
		version = c.transitionLocked(StateSubmitting, nil)
		c.mu.Unlock()
		c.notify()
	}

	c.mu.Lock()
	req := SubmitRequest{
		Credentials:       creds,
		SessionToken:      c.view.SessionToken,
		ChallengeResponse: challengeResponse,
		RedirectTo:        c.view.RedirectTarget,
	}
	c.mu.Unlock()

	resp, err := c.transport.Authenticate(ctx, req)

	c.mu.Lock()
	if c.view.Version != version {
		c.mu.Unlock()
		return nil
	}

	switch {
	case err != nil:
		c.logger.Warn("popup authenticate failed", slog.Any("error", err))
		c.failLocked(MsgGenericError, "", true)
	// The two-factor response may arrive in either envelope, so it is
	// checked before plain success.
	case resp.TwoFactorRequired:
		c.transitionLocked(StateRedirecting, func(v *View) {
			v.Error = ""
			v.RedirectTarget = resp.RedirectURL
		})
	case resp.Success:
		c.transitionLocked(StateRedirecting, func(v *View) {
			v.Error = ""
			if resp.RedirectURL != "" {
				v.RedirectTarget = resp.RedirectURL
			}
		})
	default:
		msg := resp.Message
		if msg == "" {
			msg = MsgLoginFailed
		}
		c.failLocked(msg, resp.SessionToken, resp.RefreshChallenge)
	}
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) failLocked(message, sessionToken string, refresh bool) {
	c.transitionLocked(StateFormVisible, func(v *View) {
		v.Error = message
		if sessionToken != "" {
			v.SessionToken = sessionToken
		}
	})
	if refresh && c.challenge != nil {
		c.challenge.Reset()
	}
}

// Close dismisses the popup from any visible state. It covers the close
// button, ESC, overlay and outside clicks. Pending timers are stopped and
// in-flight results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopTimersLocked()
	if !c.view.State.Visible() {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(StateClosed, nil)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) transitionLocked(next State, mutate func(*View)) uint64 {
	c.view.State = next
	c.view.Version++
	if mutate != nil {
		mutate(&c.view)
	}
	return c.view.Version
}

// scheduleLocked runs fn after d unless the version moved on in the meantime.
func (c *Controller) scheduleLocked(d time.Duration, version uint64, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		c.removeTimerLocked(t)
		if c.view.Version != version {
			c.mu.Unlock()
			return
		}
		fn()
		c.mu.Unlock()
		c.notify()
	})
	c.timers = append(c.timers, t)
}

func (c *Controller) removeTimerLocked(t *time.Timer) {
	for i, existing := range c.timers {
		if existing == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (c *Controller) stopTimersLocked() {
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
}

func (c *Controller) notify() {
	if c.OnChange == nil {
		return
	}
	c.OnChange(c.View())
}
