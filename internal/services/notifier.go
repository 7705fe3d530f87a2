package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
)

// EmailSender sends one email
type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// UserLookup resolves a user id to a user
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// LoginNotifier emails users after each successful popup login
type LoginNotifier struct {
	client      EmailSender
	users       UserLookup
	fromAddress string
	timeout     time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
	nowFunc     func() time.Time
}

// NewSESClient loads the default AWS configuration for region
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

// NewLoginNotifier creates a new LoginNotifier
func NewLoginNotifier(client EmailSender, users UserLookup, fromAddress string, logger *slog.Logger) *LoginNotifier {
	return &LoginNotifier{
		client:      client,
		users:       users,
		fromAddress: fromAddress,
		timeout:     10 * time.Second,
		logger:      logger,
		nowFunc:     time.Now,
	}
}

// Register subscribes the notifier to successful logins
func (n *LoginNotifier) Register(registry *hooks.Registry) {
	registry.Success.Add(n.OnSuccess)
}

// OnSuccess sends the notification in the background so the login response
// is not held up by SES
func (n *LoginNotifier) OnSuccess(ev hooks.SuccessEvent) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.Notify(ctx, ev); err != nil {
			n.logger.Error("failed to send login notification",
				slog.String("user_id", ev.UserID),
				slog.Any("error", err))
		}
	}()
}

// Notify sends the notification synchronously
func (n *LoginNotifier) Notify(ctx context.Context, ev hooks.SuccessEvent) error {
	user, err := n.users.GetUser(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.Email == "" {
		return nil
	}

	when := n.nowFunc().UTC().Format(time.RFC1123)
	textBody := fmt.Sprintf(`New sign-in to your account

Time: %s
IP address: %s
Browser: %s

If this was not you, change your password immediately.
`, when, ev.ClientIP, ev.UserAgent)

	htmlBody := fmt.Sprintf(`<p>New sign-in to your account.</p>
<ul><li>Time: %s</li><li>IP address: %s</li><li>Browser: %s</li></ul>
<p>If this was not you, change your password immediately.</p>`,
		html.EscapeString(when), html.EscapeString(ev.ClientIP), html.EscapeString(ev.UserAgent))

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("New sign-in to your account")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("login notification sent",
		slog.String("user_id", ev.UserID),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// Wait blocks until in-flight notifications finish
func (n *LoginNotifier) Wait() {
	n.wg.Wait()
}
