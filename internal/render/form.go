package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
)

const formTemplate = `<div class="login-popup" role="dialog" aria-modal="true" aria-labelledby="login-popup-title">
<button type="button" class="login-popup-close" aria-label="{{.Labels.Close}}">&times;</button>
<h2 id="login-popup-title">{{.Labels.Title}}</h2>
<div class="login-popup-message" role="alert" aria-live="polite"></div>
<form class="login-popup-form" method="post" novalidate>
{{.FormStart}}
<p><label for="login-popup-username">{{.Labels.Username}}</label>
<input type="text" id="login-popup-username" name="username" autocomplete="username" required></p>
<p><label for="login-popup-password">{{.Labels.Password}}</label>
<input type="password" id="login-popup-password" name="password" autocomplete="current-password" required></p>
{{.FormMiddle}}
<p><label><input type="checkbox" name="remember" value="1"> {{.Labels.Remember}}</label></p>
<input type="hidden" name="sessionToken" value="{{.SessionToken}}">
<input type="hidden" name="redirect_to" value="{{.RedirectTarget}}">
<p><button type="submit" class="login-popup-submit" data-loading-label="{{.Labels.Loading}}">{{.Labels.Submit}}</button></p>
{{.FormEnd}}
</form>
<style>
.login-popup-submit { background: {{.Button.Background}}; color: {{.Button.Text}}; }
.login-popup-submit:hover { background: {{.Button.Hover}}; }
</style>
</div>`

var defaultButton = models.ButtonStyle{Background: "#2271b1", Text: "#ffffff", Hover: "#135e96"}

type formData struct {
	Labels         models.Labels
	Button         models.ButtonStyle
	SessionToken   string
	RedirectTarget string
	FormStart      template.HTML
	FormMiddle     template.HTML
	FormEnd        template.HTML
}

// FormRenderer renders the popup form markup
type FormRenderer struct {
	tmpl      *template.Template
	labels    models.Labels
	button    models.ButtonStyle
	hooks     *hooks.Registry
	sanitizer *Sanitizer
}

// NewFormRenderer parses the form template. Labels and button colors pass
// through the registry's filters on every render; colors that are not hex
// values fall back to the configured ones.
func NewFormRenderer(labels models.Labels, button models.ButtonStyle, registry *hooks.Registry, sanitizer *Sanitizer) (*FormRenderer, error) {
	tmpl, err := template.New("login-popup").Parse(formTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form template: %w", err)
	}
	return &FormRenderer{
		tmpl:      tmpl,
		labels:    labels,
		button:    SanitizeButtonStyle(button, defaultButton),
		hooks:     registry,
		sanitizer: sanitizer,
	}, nil
}

// Render returns the form HTML carrying sessionToken and redirectTarget
func (r *FormRenderer) Render(sessionToken, redirectTarget string) (string, error) {
	data := formData{
		Labels:         r.hooks.Labels.Apply(r.labels),
		Button:         SanitizeButtonStyle(r.hooks.ButtonStyle.Apply(r.button), r.button),
		SessionToken:   sessionToken,
		RedirectTarget: redirectTarget,
		FormStart:      r.slot(r.hooks.FormStart.Apply("")),
		FormMiddle:     r.slot(r.hooks.FormMiddle.Apply("")),
		FormEnd:        r.slot(r.hooks.FormEnd.Apply("")),
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render form: %w", err)
	}
	return buf.String(), nil
}

func (r *FormRenderer) slot(fragment string) template.HTML {
	if fragment == "" {
		return ""
	}
	// #nosec G203 -- sanitized by the slot policy
	return template.HTML(r.sanitizer.SanitizeSlot(fragment))
}
