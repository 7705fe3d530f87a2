package render

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"

	"github.com/BradenHooton/loginpopup/internal/models"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Sanitizer cleans HTML that comes from hooks or directory messages
// before it reaches the browser.
type Sanitizer struct {
	messages *bluemonday.Policy
	slots    *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	messages := bluemonday.NewPolicy()
	messages.AllowElements("strong", "em", "b", "i", "br", "span")
	messages.AllowAttrs("href").OnElements("a")
	messages.AllowStandardURLs()
	messages.RequireNoFollowOnLinks(true)

	slots := bluemonday.UGCPolicy()
	slots.AllowDataAttributes()
	slots.AllowAttrs("class", "id").Globally()
	slots.AllowElements("div", "span", "label", "input", "fieldset")
	slots.AllowAttrs("type", "name", "value", "placeholder", "autocomplete", "checked").OnElements("input")
	slots.AllowAttrs("for").OnElements("label")

	return &Sanitizer{messages: messages, slots: slots}
}

// SanitizeMessage keeps simple inline markup of a user-facing message
func (s *Sanitizer) SanitizeMessage(msg string) string {
	return s.messages.Sanitize(msg)
}

// SanitizeSlot cleans markup injected into a form slot
func (s *Sanitizer) SanitizeSlot(fragment string) string {
	return s.slots.Sanitize(fragment)
}

// SanitizeColor returns value when it is a #rgb or #rrggbb color, else fallback.
func SanitizeColor(value, fallback string) string {
	if hexColor.MatchString(value) {
		return value
	}
	return fallback
}

// SanitizeButtonStyle replaces every invalid color with the one from fallback.
func SanitizeButtonStyle(style, fallback models.ButtonStyle) models.ButtonStyle {
	return models.ButtonStyle{
		Background: SanitizeColor(style.Background, fallback.Background),
		Text:       SanitizeColor(style.Text, fallback.Text),
		Hover:      SanitizeColor(style.Hover, fallback.Hover),
	}
}
