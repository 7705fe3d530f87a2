package popupclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/loginpopup/internal/models"
)

const (
	actionCheckPopup   = "show_login_check_popup"
	actionAuthenticate = "show_login_authenticate"
	maxResponseBytes   = 1 << 20
)

// ErrNotJSON is returned when the server answers with anything but JSON,
// such as a redirect to a login page.
var ErrNotJSON = errors.New("response is not JSON")

// StatusError is a failure envelope returned by the status check
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status check failed (%d): %s", e.StatusCode, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// HTTPTransport talks to the ajax endpoint with a cookie jar so the
// session established by a login is kept for later calls.
type HTTPTransport struct {
	client  *http.Client
	ajaxURL string
}

// NewHTTPTransport creates a transport for ajaxURL
func NewHTTPTransport(ajaxURL string, timeout time.Duration) (*HTTPTransport, error) {
	if _, err := url.ParseRequestURI(ajaxURL); err != nil {
		return nil, fmt.Errorf("invalid ajax url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &HTTPTransport{
		client:  &http.Client{Jar: jar, Timeout: timeout},
		ajaxURL: ajaxURL,
	}, nil
}

// Cookies returns the cookies held for the ajax origin
func (t *HTTPTransport) Cookies() []*http.Cookie {
	u, _ := url.Parse(t.ajaxURL)
	return t.client.Jar.Cookies(u)
}

// CheckStatus posts the status check as a form-encoded request
func (t *HTTPTransport) CheckStatus(ctx context.Context, currentURL string) (*models.StatusResult, error) {
	form := url.Values{
		"action":      {actionCheckPopup},
		"current_url": {currentURL},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.ajaxURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	env, status, err := t.do(req)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		var data struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Data, &data)
		return nil, &StatusError{StatusCode: status, Message: data.Message}
	}

	var result models.StatusResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &result, nil
}

// Authenticate posts the credentials as multipart form data. Failure
// envelopes are returned as an unsuccessful AuthResponse, not an error.
func (t *HTTPTransport) Authenticate(ctx context.Context, sr SubmitRequest) (*AuthResponse, error) {
	remember := "0"
	if sr.Remember {
		remember = "1"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"action", actionAuthenticate},
		{"sessionToken", sr.SessionToken},
		{"login", sr.Login},
		{"password", sr.Password},
		{"remember", remember},
		{"challengeResponse", sr.ChallengeResponse},
		{"redirect_to", sr.RedirectTo},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.ajaxURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	env, _, err := t.do(req)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode authenticate response: %w", err)
	}
	resp.Success = env.Success
	return &resp, nil
}

func (t *HTTPTransport) do(req *http.Request) (*envelope, int, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", ErrNotJSON, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, resp.StatusCode, nil
}
