package popupclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginpopup/internal/models"
)

const triggeredURL = "https://example.com/page?sl=true"

func fastConfig() Config {
	return Config{
		MessageDuration: 10 * time.Millisecond,
		RevealDelay:     0,
		ChallengeWait:   WaitPolicy{Interval: time.Millisecond, Attempts: 5},
	}
}

func openForm(t *testing.T, c *Controller) {
	t.Helper()
	opened, err := c.Start(context.Background(), triggeredURL)
	require.NoError(t, err)
	require.True(t, opened)
	require.Equal(t, StateFormVisible, c.State())
}

func TestController_NoTrigger(t *testing.T) {
	c := NewController(&MockTransport{
		CheckStatusFunc: func(context.Context, string) (*models.StatusResult, error) {
			t.Fatal("status check must not run without the trigger")
			return nil, nil
		},
	}, nil, fastConfig(), discardLogger())

	opened, err := c.Start(context.Background(), "https://example.com/page?sl=false")

	assert.NoError(t, err)
	assert.False(t, opened)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_AlreadyLoggedIn(t *testing.T) {
	c := NewController(&MockTransport{
		CheckStatusFunc: func(context.Context, string) (*models.StatusResult, error) {
			return &models.StatusResult{Show: false, Reason: models.ReasonAlreadyLoggedIn}, nil
		},
	}, nil, fastConfig(), discardLogger())

	opened, err := c.Start(context.Background(), "https://example.com/?show_login=1")
	require.NoError(t, err)
	require.True(t, opened)

	view := c.View()
	assert.Equal(t, StateShowMessage, view.State)
	assert.Equal(t, MsgAlreadyLoggedIn, view.Message)

	require.Eventually(t, func() bool { return c.State() == StateClosed }, time.Second, 5*time.Millisecond)
}

func TestController_StatusNetworkFailureCloses(t *testing.T) {
	c := NewController(&MockTransport{
		CheckStatusFunc: func(context.Context, string) (*models.StatusResult, error) {
			return nil, errors.New("connection refused")
		},
	}, nil, fastConfig(), discardLogger())

	opened, err := c.Start(context.Background(), triggeredURL)

	assert.True(t, opened)
	assert.Error(t, err)
	assert.Equal(t, StateClosed, c.State())
}

func TestController_RevealDelay(t *testing.T) {
	config := fastConfig()
	config.RevealDelay = 20 * time.Millisecond
	c := NewController(&MockTransport{}, nil, config, discardLogger())

	_, err := c.Start(context.Background(), triggeredURL)
	require.NoError(t, err)

	view := c.View()
	assert.Equal(t, StateLoading, view.State)
	assert.Equal(t, MsgNotLoggedIn, view.Message)

	require.Eventually(t, func() bool { return c.State() == StateFormVisible }, time.Second, 5*time.Millisecond)
	view = c.View()
	assert.Equal(t, "tok-1", view.SessionToken)
	assert.Equal(t, "<form></form>", view.HTML)
}

func TestController_SuppressLoadingSkipsDelay(t *testing.T) {
	config := fastConfig()
	config.RevealDelay = time.Hour
	c := NewController(&MockTransport{
		CheckStatusFunc: func(context.Context, string) (*models.StatusResult, error) {
			return &models.StatusResult{Show: true, HTML: "<form></form>", SessionToken: "tok", SuppressLoading: true}, nil
		},
	}, nil, config, discardLogger())

	openForm(t, c)
}

func TestController_CloseCancelsTimers(t *testing.T) {
	config := fastConfig()
	config.RevealDelay = 20 * time.Millisecond
	c := NewController(&MockTransport{}, nil, config, discardLogger())

	_, err := c.Start(context.Background(), triggeredURL)
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, StateClosed, c.State())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateClosed, c.State(), "popup must not reappear after close")
}

func TestController_CloseDuringStatusDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	c := NewController(&MockTransport{
		CheckStatusFunc: func(context.Context, string) (*models.StatusResult, error) {
			<-release
			return &models.StatusResult{Show: true, HTML: "<form></form>", SessionToken: "tok"}, nil
		},
	}, nil, fastConfig(), discardLogger())

	done := make(chan struct{})
	go func() {
		_, _ = c.Start(context.Background(), triggeredURL)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.State() == StateLoading }, time.Second, time.Millisecond)
	c.Close()
	close(release)
	<-done

	assert.Equal(t, StateClosed, c.State())
}

func TestController_SubmitWhilePollingIsRejected(t *testing.T) {
	release := make(chan struct{})
	c := NewController(&MockTransport{
		CheckStatusFunc: func(context.Context, string) (*models.StatusResult, error) {
			<-release
			return &models.StatusResult{Show: true, HTML: "<form></form>", SessionToken: "tok"}, nil
		},
	}, nil, fastConfig(), discardLogger())

	done := make(chan struct{})
	go func() {
		_, _ = c.Start(context.Background(), triggeredURL)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.State() == StateLoading }, time.Second, time.Millisecond)
	err := c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw"})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	<-done
	assert.Equal(t, StateFormVisible, c.State())
}

func TestController_SubmitMissingFields(t *testing.T) {
	transport := &MockTransport{}
	c := NewController(transport, nil, fastConfig(), discardLogger())
	openForm(t, c)

	require.NoError(t, c.Submit(context.Background(), Credentials{Login: "alice"}))

	view := c.View()
	assert.Equal(t, StateFormVisible, view.State)
	assert.Equal(t, MsgMissingFields, view.Error)
	assert.Empty(t, transport.Requests)
}

func TestController_SubmitSuccess(t *testing.T) {
	transport := &MockTransport{}
	c := NewController(transport, nil, fastConfig(), discardLogger())
	openForm(t, c)

	require.NoError(t, c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw", Remember: true}))

	view := c.View()
	assert.Equal(t, StateRedirecting, view.State)
	assert.Equal(t, "https://example.com/", view.RedirectTarget)

	require.Len(t, transport.Requests, 1)
	req := transport.Requests[0]
	assert.Equal(t, "tok-1", req.SessionToken)
	assert.Equal(t, "alice", req.Login)
	assert.True(t, req.Remember)
	assert.Equal(t, "https://example.com/", req.RedirectTo)
}

func TestController_SubmitSuccessUsesServerRedirect(t *testing.T) {
	transport := &MockTransport{
		AuthenticateFunc: func(context.Context, SubmitRequest) (*AuthResponse, error) {
			return &AuthResponse{Success: true, RedirectURL: "https://example.com/admin"}, nil
		},
	}
	c := NewController(transport, nil, fastConfig(), discardLogger())
	openForm(t, c)

	require.NoError(t, c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw"}))

	view := c.View()
	assert.Equal(t, StateRedirecting, view.State)
	assert.Equal(t, "https://example.com/admin", view.RedirectTarget)
}

func TestController_SubmitTwoFactor(t *testing.T) {
	const validateURL = "/2fa/validate?auth_id=1&nonce=abc"

	tests := []struct {
		name    string
		success bool
	}{
		{"success envelope", true},
		{"failure envelope", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &MockTransport{
				AuthenticateFunc: func(context.Context, SubmitRequest) (*AuthResponse, error) {
					return &AuthResponse{Success: tt.success, TwoFactorRequired: true, RedirectURL: validateURL}, nil
				},
			}
			c := NewController(transport, nil, fastConfig(), discardLogger())
			openForm(t, c)

			require.NoError(t, c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw"}))

			view := c.View()
			assert.Equal(t, StateRedirecting, view.State)
			assert.Equal(t, validateURL, view.RedirectTarget)
			assert.Empty(t, view.Error)
		})
	}
}

func TestController_SubmitFailureRefreshesTokens(t *testing.T) {
	challenge := &MockChallenge{}
	challenge.SetToken("cf-1")
	transport := &MockTransport{
		AuthenticateFunc: func(context.Context, SubmitRequest) (*AuthResponse, error) {
			return &AuthResponse{
				Message:          "<strong>Error:</strong> Invalid username or password.",
				SessionToken:     "tok-2",
				RefreshChallenge: true,
			}, nil
		},
	}
	c := NewController(transport, challenge, fastConfig(), discardLogger())
	openForm(t, c)

	require.NoError(t, c.Submit(context.Background(), Credentials{Login: "alice", Password: "wrong"}))

	view := c.View()
	assert.Equal(t, StateFormVisible, view.State)
	assert.Contains(t, view.Error, "Invalid username or password")
	assert.Equal(t, "tok-2", view.SessionToken)
	assert.Equal(t, 1, challenge.Resets)
	assert.Equal(t, "cf-1", transport.Requests[0].ChallengeResponse)
}

func TestController_SubmitNetworkFailureShowsGenericError(t *testing.T) {
	transport := &MockTransport{
		AuthenticateFunc: func(context.Context, SubmitRequest) (*AuthResponse, error) {
			return nil, ErrNotJSON
		},
	}
	c := NewController(transport, nil, fastConfig(), discardLogger())
	openForm(t, c)

	err := c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw"})
	assert.ErrorIs(t, err, ErrNotJSON)

	view := c.View()
	assert.Equal(t, StateFormVisible, view.State)
	assert.Equal(t, MsgGenericError, view.Error)
	assert.Equal(t, "tok-1", view.SessionToken)
}

func TestController_ChallengeTimeoutStillSubmits(t *testing.T) {
	challenge := &MockChallenge{}
	transport := &MockTransport{}
	c := NewController(transport, challenge, fastConfig(), discardLogger())
	openForm(t, c)

	require.NoError(t, c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw"}))

	require.Len(t, transport.Requests, 1)
	assert.Empty(t, transport.Requests[0].ChallengeResponse)
	assert.Equal(t, StateRedirecting, c.State())
}

func TestController_ChallengeArrivesWhileWaiting(t *testing.T) {
	challenge := &MockChallenge{}
	transport := &MockTransport{}
	config := fastConfig()
	config.ChallengeWait = WaitPolicy{Interval: 5 * time.Millisecond, Attempts: 100}
	c := NewController(transport, challenge, config, discardLogger())
	openForm(t, c)

	var seen []State
	var mu sync.Mutex
	c.OnChange = func(v View) {
		mu.Lock()
		seen = append(seen, v.State)
		mu.Unlock()
		if v.State == StateAwaitingChallenge {
			go func() {
				time.Sleep(10 * time.Millisecond)
				challenge.SetToken("cf-late")
			}()
		}
	}

	require.NoError(t, c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw"}))

	assert.Equal(t, "cf-late", transport.Requests[0].ChallengeResponse)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateAwaitingChallenge, StateSubmitting, StateRedirecting}, seen)
}

func TestController_SubmitRequiresForm(t *testing.T) {
	c := NewController(&MockTransport{}, nil, fastConfig(), discardLogger())

	err := c.Submit(context.Background(), Credentials{Login: "alice", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestController_VersionIncreases(t *testing.T) {
	c := NewController(&MockTransport{}, nil, fastConfig(), discardLogger())
	before := c.View().Version
	openForm(t, c)
	after := c.View().Version
	c.Close()

	assert.Greater(t, after, before)
	assert.Greater(t, c.View().Version, after)
	assert.Equal(t, StateClosed, c.State())
}

func TestState_Visible(t *testing.T) {
	assert.False(t, StateIdle.Visible())
	assert.True(t, StateFormVisible.Visible())
	assert.True(t, StateSubmitting.Visible())
	assert.False(t, StateRedirecting.Visible())
	assert.False(t, StateClosed.Visible())
	assert.Equal(t, "awaiting_challenge", StateAwaitingChallenge.String())
}
