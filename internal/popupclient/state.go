package popupclient

// State is a step of the popup lifecycle
type State int

const (
	StateIdle State = iota
	StateLoading
	StateShowMessage
	StateFormVisible
	StateAwaitingChallenge
	StateSubmitting
	StateRedirecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateShowMessage:
		return "show_message"
	case StateFormVisible:
		return "form_visible"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateSubmitting:
		return "submitting"
	case StateRedirecting:
		return "redirecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Visible reports whether the popup is on screen in s
func (s State) Visible() bool {
	switch s {
	case StateLoading, StateShowMessage, StateFormVisible, StateAwaitingChallenge, StateSubmitting:
		return true
	}
	return false
}

// View is a snapshot of the controller handed to observers
type View struct {
	State          State
	Version        uint64
	Message        string
	Error          string
	HTML           string
	SessionToken   string
	RedirectTarget string
}
