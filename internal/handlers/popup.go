package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/BradenHooton/loginpopup/internal/services"
	pkghttp "github.com/BradenHooton/loginpopup/pkg/http"
)

// Ajax action identifiers
const (
	ActionCheckPopup   = "show_login_check_popup"
	ActionAuthenticate = "show_login_authenticate"
)

// maxFormMemory bounds the in-memory part of a multipart login form
const maxFormMemory = 64 << 10

// AuthenticatorInterface runs one popup login
type AuthenticatorInterface interface {
	Authenticate(ctx context.Context, req models.LoginRequest, sess services.Session) models.AuthResult
}

// StatusServiceInterface answers the popup status check
type StatusServiceInterface interface {
	CheckStatus(ctx context.Context, authenticated bool, currentURL string) (*models.StatusResult, error)
}

// SessionBinder writes the cookie session of a response
type SessionBinder interface {
	Bind(w http.ResponseWriter) *auth.RequestSession
}

// PopupHandler serves the popup's ajax endpoint
type PopupHandler struct {
	authenticator AuthenticatorInterface
	status        StatusServiceInterface
	sessions      SessionBinder
	ipConfig      *pkghttp.IPConfig
	logger        *slog.Logger
}

// NewPopupHandler creates a new PopupHandler
func NewPopupHandler(authenticator AuthenticatorInterface, status StatusServiceInterface, sessions SessionBinder, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *PopupHandler {
	return &PopupHandler{
		authenticator: authenticator,
		status:        status,
		sessions:      sessions,
		ipConfig:      ipConfig,
		logger:        logger,
	}
}

// StatusRequest is the form of a status check
type StatusRequest struct {
	Action     string `validate:"required,eq=show_login_check_popup"`
	CurrentURL string `validate:"omitempty,max=2048"`
}

// AuthenticateRequest is the form of a login submission
type AuthenticateRequest struct {
	Action            string `validate:"required,eq=show_login_authenticate"`
	SessionToken      string `validate:"max=256"`
	Login             string `validate:"max=255"`
	Password          string `validate:"max=4096"`
	Remember          bool
	ChallengeResponse string `validate:"max=4096"`
	RedirectTo        string `validate:"max=2048"`
}

// AuthenticateData is the data of an authenticate envelope
type AuthenticateData struct {
	Message           string `json:"message"`
	UserID            string `json:"userId,omitempty"`
	TwoFactorRequired bool   `json:"twoFactorRequired,omitempty"`
	RedirectURL       string `json:"redirectUrl,omitempty"`
	SessionToken      string `json:"sessionToken,omitempty"`
	RefreshChallenge  bool   `json:"refreshChallenge,omitempty"`
	RetryAfter        int    `json:"retryAfter,omitempty"`
}

// Ajax dispatches on the action field
// @Summary Popup ajax endpoint
// @Accept x-www-form-urlencoded,multipart/form-data
// @Produce json
// @Router /ajax [post]
func (h *PopupHandler) Ajax(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		pkghttp.WriteFailureMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	switch r.PostFormValue("action") {
	case ActionCheckPopup:
		h.CheckStatus(w, r)
	case ActionAuthenticate:
		h.Authenticate(w, r)
	default:
		pkghttp.WriteFailureMessage(w, http.StatusBadRequest, "Unknown action.")
	}
}

// CheckStatus reports whether the popup should be shown
func (h *PopupHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		pkghttp.WriteFailureMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	req := StatusRequest{
		Action:     r.PostFormValue("action"),
		CurrentURL: r.PostFormValue("current_url"),
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteFailureMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	// Set by auth.LoadSession
	_, authenticated := auth.UserIDFromContext(r.Context())

	result, err := h.status.CheckStatus(r.Context(), authenticated, req.CurrentURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error("popup status check failed", slog.Any("error", err))
		pkghttp.WriteFailureMessage(w, http.StatusInternalServerError, services.MsgUnexpected)
		return
	}

	pkghttp.WriteSuccess(w, result)
}

// Authenticate handles a login submission
func (h *PopupHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		pkghttp.WriteFailureMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	req := AuthenticateRequest{
		Action:            r.PostFormValue("action"),
		SessionToken:      firstValue(r, "sessionToken", "nonce"),
		Login:             firstValue(r, "login", "username", "log"),
		Password:          firstValue(r, "password", "pwd"),
		Remember:          isTruthy(firstValue(r, "remember", "rememberme")),
		ChallengeResponse: firstValue(r, "challengeResponse", "cf-turnstile-response"),
		RedirectTo:        r.PostFormValue("redirect_to"),
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteFailureMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	loginReq := models.LoginRequest{
		ClientIP:          pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:         r.UserAgent(),
		SessionToken:      req.SessionToken,
		Login:             req.Login,
		Password:          req.Password,
		Remember:          req.Remember,
		ChallengeResponse: req.ChallengeResponse,
		RedirectTo:        req.RedirectTo,
	}

	result := h.authenticator.Authenticate(r.Context(), loginReq, h.sessions.Bind(w))
	writeAuthResult(w, result)
}

func writeAuthResult(w http.ResponseWriter, result models.AuthResult) {
	data := AuthenticateData{
		Message:          result.Message,
		SessionToken:     result.SessionToken,
		RefreshChallenge: result.RefreshChallenge,
	}

	switch result.Outcome {
	case models.OutcomeSuccess:
		data.UserID = result.UserID
		data.RedirectURL = result.RedirectTarget
		pkghttp.WriteSuccess(w, data)
	case models.OutcomeTwoFactorRequired:
		data.TwoFactorRequired = true
		data.RedirectURL = result.RedirectTarget
		pkghttp.WriteSuccess(w, data)
	default:
		if result.Kind == models.FailureRateLimited {
			data.RetryAfter = result.RetryAfterSeconds
			pkghttp.SetRetryAfter(w, result.RetryAfterSeconds)
		}
		pkghttp.WriteFailure(w, result.HTTPStatus(), data)
	}
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if r.MultipartForm != nil {
			return nil
		}
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

func firstValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := r.PostFormValue(k); v != "" {
			return v
		}
	}
	return ""
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes", "forever":
		return true
	}
	return false
}
