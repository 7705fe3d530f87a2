package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/BradenHooton/loginpopup/internal/services"
	pkghttp "github.com/BradenHooton/loginpopup/pkg/http"
)

// TwoFactorValidatorInterface validates second-factor codes
type TwoFactorValidatorInterface interface {
	Validate(ctx context.Context, userID, token, code string) (*services.TwoFactorValidation, error)
}

var twoFactorPage = template.Must(template.New("2fa").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><meta name="robots" content="noindex"><title>Two-Factor Authentication</title></head>
<body>
<main class="two-factor">
<h1>Two-Factor Authentication</h1>
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
{{if .Nonce}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="auth_id" value="{{.AuthID}}">
<input type="hidden" name="nonce" value="{{.Nonce}}">
<input type="hidden" name="redirect_to" value="{{.RedirectTo}}">
<p><label for="authcode">Enter the code from your authenticator app:</label>
<input type="text" id="authcode" name="authcode" inputmode="numeric" autocomplete="one-time-code" pattern="[0-9]*" maxlength="6" autofocus required></p>
<p><button type="submit">Verify</button></p>
</form>
{{else}}
<p><a href="{{.HomeURL}}">Return to the site and log in again</a></p>
{{end}}
</main>
</body>
</html>`))

type twoFactorPageData struct {
	Action     string
	AuthID     string
	Nonce      string
	RedirectTo string
	HomeURL    string
	Error      string
}

// TwoFactorValidateRequest is the form of a code submission
type TwoFactorValidateRequest struct {
	AuthID     string `validate:"required,max=64"`
	Nonce      string `validate:"required,hexadecimal,len=64"`
	Code       string `validate:"required,max=10"`
	RedirectTo string `validate:"max=2048"`
}

// TwoFactorHandler serves the second-factor prompt
type TwoFactorHandler struct {
	validator TwoFactorValidatorInterface
	sessions  SessionBinder
	homeURL   string
	logger    *slog.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(validator TwoFactorValidatorInterface, sessions SessionBinder, homeURL string, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		validator: validator,
		sessions:  sessions,
		homeURL:   homeURL,
		logger:    logger,
	}
}

// Prompt renders the code form for a login nonce
// @Router /2fa/validate [get]
func (h *TwoFactorHandler) Prompt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := twoFactorPageData{
		Action:     r.URL.Path,
		AuthID:     q.Get("auth_id"),
		Nonce:      q.Get("nonce"),
		RedirectTo: pkghttp.SafeRedirect(q.Get("redirect_to"), h.homeURL),
		HomeURL:    h.homeURL,
	}
	if data.AuthID == "" || data.Nonce == "" {
		data.Nonce = ""
		data.Error = "Your login session has expired. Please log in again."
		h.render(w, http.StatusBadRequest, data)
		return
	}
	h.render(w, http.StatusOK, data)
}

// Validate checks a submitted code and completes the login
// @Router /2fa/validate [post]
func (h *TwoFactorHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req := TwoFactorValidateRequest{
		AuthID:     r.PostFormValue("auth_id"),
		Nonce:      r.PostFormValue("nonce"),
		Code:       r.PostFormValue("authcode"),
		RedirectTo: r.PostFormValue("redirect_to"),
	}
	data := twoFactorPageData{
		Action:     r.URL.Path,
		AuthID:     req.AuthID,
		Nonce:      req.Nonce,
		RedirectTo: pkghttp.SafeRedirect(req.RedirectTo, h.homeURL),
		HomeURL:    h.homeURL,
	}

	if req.AuthID == "" || req.Nonce == "" {
		data.Nonce = ""
		data.Error = "Your login session has expired. Please log in again."
		h.render(w, http.StatusBadRequest, data)
		return
	}
	if req.Code == "" {
		data.Error = "Please enter a verification code."
		h.render(w, http.StatusBadRequest, data)
		return
	}
	if err := ValidateRequest(req); err != nil {
		data.Nonce = ""
		data.Error = "Your login session has expired. Please log in again."
		h.render(w, http.StatusBadRequest, data)
		return
	}

	result, err := h.validator.Validate(r.Context(), req.AuthID, req.Nonce, req.Code)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidOTP):
		data.Nonce = result.RetryToken
		data.Error = "Invalid verification code. Please try again."
		h.render(w, http.StatusUnauthorized, data)
		return
	case errors.Is(err, models.ErrInvalidNonce):
		data.Nonce = ""
		data.Error = "Your login session has expired. Please log in again."
		h.render(w, http.StatusForbidden, data)
		return
	case errors.Is(err, models.ErrTooManyAttempts):
		data.Nonce = ""
		data.Error = "Too many verification attempts. Please try again later."
		h.render(w, http.StatusTooManyRequests, data)
		return
	default:
		h.logger.Error("second factor validation failed", slog.Any("error", err))
		data.Nonce = ""
		data.Error = "An unexpected error occurred. Please log in again."
		h.render(w, http.StatusInternalServerError, data)
		return
	}

	if err := h.sessions.Bind(w).Establish(r.Context(), result.UserID, result.Remember); err != nil {
		h.logger.Error("failed to establish session after second factor", slog.Any("error", err))
		data.Nonce = ""
		data.Error = "An unexpected error occurred. Please log in again."
		h.render(w, http.StatusInternalServerError, data)
		return
	}

	http.Redirect(w, r, pkghttp.SafeRedirect(result.RedirectTo, h.homeURL), http.StatusSeeOther)
}

func (h *TwoFactorHandler) render(w http.ResponseWriter, status int, data twoFactorPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := twoFactorPage.Execute(w, data); err != nil {
		h.logger.Error("failed to render two-factor page", slog.Any("error", err))
	}
}
