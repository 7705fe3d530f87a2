package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
	pkghttp "github.com/BradenHooton/loginpopup/pkg/http"
)

// MaxStatusDelay caps the artificial delay of the status check
const MaxStatusDelay = 3 * time.Second

// FormRenderer renders the popup form
type FormRenderer interface {
	Render(sessionToken, redirectTarget string) (string, error)
}

// PopupConfig configures the status check
type PopupConfig struct {
	HomeURL         string
	Delay           time.Duration
	SuppressLoading bool
}

// PopupService answers the popup's status check: either "already logged
// in" or a fresh form bound to a new nonce.
type PopupService struct {
	nonces   NonceIssuer
	renderer FormRenderer
	hooks    *hooks.Registry
	config   PopupConfig
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPopupService creates a new PopupService
func NewPopupService(nonces NonceIssuer, renderer FormRenderer, registry *hooks.Registry, config PopupConfig, logger *slog.Logger) *PopupService {
	if registry == nil {
		registry = hooks.NewRegistry(logger)
	}
	config.Delay = min(max(config.Delay, 0), MaxStatusDelay)
	return &PopupService{
		nonces:   nonces,
		renderer: renderer,
		hooks:    registry,
		config:   config,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// CheckStatus reports whether the popup should show. authenticated is the
// caller's session state and currentURL the page the popup was opened from.
func (s *PopupService) CheckStatus(ctx context.Context, authenticated bool, currentURL string) (*models.StatusResult, error) {
	if authenticated {
		return &models.StatusResult{Show: false, Reason: models.ReasonAlreadyLoggedIn}, nil
	}

	suppress := s.hooks.SuppressLoading.Apply(s.config.SuppressLoading)
	if !suppress && s.config.Delay > 0 {
		if err := s.sleep(ctx, s.config.Delay); err != nil {
			return nil, err
		}
	}

	target := pkghttp.SafeRedirect(currentURL, s.config.HomeURL)
	target = pkghttp.SafeRedirect(s.hooks.RedirectURL.Apply(target), s.config.HomeURL)

	token, err := s.nonces.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to issue popup nonce: %w", err)
	}

	html, err := s.renderer.Render(token, target)
	if err != nil {
		return nil, err
	}

	return &models.StatusResult{
		Show:            true,
		HTML:            html,
		SessionToken:    token,
		RedirectTarget:  target,
		SuppressLoading: suppress,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
