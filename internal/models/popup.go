package models

// StatusResult is returned by the popup status check.
type StatusResult struct {
	Show            bool   `json:"show"`
	Reason          string `json:"reason,omitempty"`
	HTML            string `json:"html,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty"`
	RedirectTarget  string `json:"redirectTarget,omitempty"`
	SuppressLoading bool   `json:"suppressLoading"`
}

const ReasonAlreadyLoggedIn = "already_logged_in"

// ButtonStyle holds the colors of the submit button.
type ButtonStyle struct {
	Background string `yaml:"background" json:"background"`
	Text       string `yaml:"text" json:"text"`
	Hover      string `yaml:"hover" json:"hover"`
}

// Labels are the user-facing strings of the popup.
type Labels struct {
	Title           string `yaml:"title"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Remember        string `yaml:"remember"`
	Submit          string `yaml:"submit"`
	Loading         string `yaml:"loading"`
	AlreadyLoggedIn string `yaml:"already_logged_in"`
	Close           string `yaml:"close"`
}
