package render

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginpopup/internal/config"
	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
)

func newRenderer(t *testing.T, registry *hooks.Registry) *FormRenderer {
	t.Helper()
	ui := config.DefaultUI()
	r, err := NewFormRenderer(ui.Labels, ui.Button, registry, NewSanitizer())
	require.NoError(t, err)
	return r
}

func TestFormRenderer_Render(t *testing.T) {
	registry := hooks.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := newRenderer(t, registry)

	out, err := r.Render("abc123", "http://localhost:8080/admin")
	require.NoError(t, err)

	assert.Contains(t, out, `name="sessionToken" value="abc123"`)
	assert.Contains(t, out, `name="redirect_to" value="http://localhost:8080/admin"`)
	assert.Contains(t, out, "Log In")
	assert.Contains(t, out, "#2271b1")
}

func TestFormRenderer_FiltersApply(t *testing.T) {
	registry := hooks.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	registry.Labels.Add(func(l models.Labels) models.Labels {
		l.Title = "Members Area"
		return l
	})
	registry.ButtonStyle.Add(func(b models.ButtonStyle) models.ButtonStyle {
		b.Background = "#ff0000"
		return b
	})
	registry.FormMiddle.Add(func(s string) string {
		return s + `<div class="cf-turnstile" data-sitekey="site"></div>`
	})
	registry.FormEnd.Add(func(s string) string {
		return s + `<script>alert(1)</script><p>Forgot password?</p>`
	})

	r := newRenderer(t, registry)
	out, err := r.Render("tok", "/")
	require.NoError(t, err)

	assert.Contains(t, out, "Members Area")
	assert.Contains(t, out, "#ff0000")
	assert.Contains(t, out, `data-sitekey="site"`)
	assert.Contains(t, out, "Forgot password?")
	assert.NotContains(t, out, "<script>")
}

func TestFormRenderer_RejectsInvalidColors(t *testing.T) {
	registry := hooks.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	registry.ButtonStyle.Add(func(b models.ButtonStyle) models.ButtonStyle {
		b.Background = "red; background-image: url(x)"
		b.Hover = "#abc"
		return b
	})

	r := newRenderer(t, registry)
	out, err := r.Render("tok", "/")
	require.NoError(t, err)

	assert.Contains(t, out, "background: #2271b1;")
	assert.Contains(t, out, "background: #abc;")
	assert.NotContains(t, out, "background-image")
}

func TestSanitizeColor(t *testing.T) {
	assert.Equal(t, "#fff", SanitizeColor("#fff", "#000"))
	assert.Equal(t, "#A1B2C3", SanitizeColor("#A1B2C3", "#000"))
	assert.Equal(t, "#000", SanitizeColor("fff", "#000"))
	assert.Equal(t, "#000", SanitizeColor("#abcd", "#000"))
	assert.Equal(t, "#000", SanitizeColor("", "#000"))
}

func TestFormRenderer_EscapesValues(t *testing.T) {
	registry := hooks.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := newRenderer(t, registry)

	out, err := r.Render(`"><script>`, "/")
	require.NoError(t, err)
	assert.NotContains(t, out, `"><script>`)
}

func TestSanitizer_SanitizeMessage(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"keeps strong", "<strong>Error:</strong> Invalid username or password.", "<strong>Error:</strong> Invalid username or password."},
		{"drops script", `Bad<script>alert(1)</script>`, "Bad"},
		{"drops handlers", `<strong onclick="x()">Hi</strong>`, "<strong>Hi</strong>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SanitizeMessage(tt.in))
		})
	}
}
