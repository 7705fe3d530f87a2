package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BradenHooton/loginpopup/internal/models"
)

// UIConfig holds the presentation settings of the popup.
type UIConfig struct {
	Labels models.Labels      `yaml:"labels"`
	Button models.ButtonStyle `yaml:"button"`
}

// DefaultUI returns the built-in labels and button colors.
func DefaultUI() UIConfig {
	return UIConfig{
		Labels: models.Labels{
			Title:           "Log In",
			Username:        "Username or Email Address",
			Password:        "Password",
			Remember:        "Remember Me",
			Submit:          "Log In",
			Loading:         "Checking login status...",
			AlreadyLoggedIn: "You are already logged in.",
			Close:           "Close",
		},
		Button: models.ButtonStyle{
			Background: "#2271b1",
			Text:       "#ffffff",
			Hover:      "#135e96",
		},
	}
}

// LoadUI reads a YAML overlay on top of DefaultUI. An empty path returns the defaults.
func LoadUI(path string) (UIConfig, error) {
	ui := DefaultUI()
	if path == "" {
		return ui, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ui, fmt.Errorf("failed to read UI config: %w", err)
	}

	var overlay UIConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return ui, fmt.Errorf("failed to parse UI config: %w", err)
	}

	mergeLabels(&ui.Labels, overlay.Labels)
	mergeString(&ui.Button.Background, overlay.Button.Background)
	mergeString(&ui.Button.Text, overlay.Button.Text)
	mergeString(&ui.Button.Hover, overlay.Button.Hover)

	return ui, nil
}

func mergeLabels(dst *models.Labels, src models.Labels) {
	mergeString(&dst.Title, src.Title)
	mergeString(&dst.Username, src.Username)
	mergeString(&dst.Password, src.Password)
	mergeString(&dst.Remember, src.Remember)
	mergeString(&dst.Submit, src.Submit)
	mergeString(&dst.Loading, src.Loading)
	mergeString(&dst.AlreadyLoggedIn, src.AlreadyLoggedIn)
	mergeString(&dst.Close, src.Close)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
