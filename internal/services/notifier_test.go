package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
)

type userLookupFunc func(ctx context.Context, id string) (*models.User, error)

func (f userLookupFunc) GetUser(ctx context.Context, id string) (*models.User, error) { return f(ctx, id) }

func TestLoginNotifier_SendsOnSuccess(t *testing.T) {
	sender := &MockEmailSender{}
	users := userLookupFunc(func(_ context.Context, id string) (*models.User, error) {
		return NewTestUser(id, "alice", "alice@example.test"), nil
	})
	notifier := NewLoginNotifier(sender, users, "noreply@example.test", discardLogger())

	registry := hooks.NewRegistry(discardLogger())
	notifier.Register(registry)

	registry.Success.Fire(hooks.SuccessEvent{UserID: "user-1", ClientIP: "203.0.113.7", UserAgent: "<ua>"})
	notifier.Wait()

	require.Len(t, sender.Inputs, 1)
	input := sender.Inputs[0]
	assert.Equal(t, "noreply@example.test", aws.ToString(input.Source))
	assert.Equal(t, []string{"alice@example.test"}, input.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), "203.0.113.7")
	assert.Contains(t, aws.ToString(input.Message.Body.Html.Data), "&lt;ua&gt;")
}

func TestLoginNotifier_Notify(t *testing.T) {
	t.Run("no email", func(t *testing.T) {
		sender := &MockEmailSender{}
		users := userLookupFunc(func(_ context.Context, id string) (*models.User, error) {
			return NewTestUser(id, "alice", ""), nil
		})
		n := NewLoginNotifier(sender, users, "noreply@example.test", discardLogger())

		require.NoError(t, n.Notify(context.Background(), hooks.SuccessEvent{UserID: "user-1"}))
		assert.Empty(t, sender.Inputs)
	})

	t.Run("send error", func(t *testing.T) {
		sender := &MockEmailSender{Err: errors.New("throttled")}
		users := userLookupFunc(func(_ context.Context, id string) (*models.User, error) {
			return NewTestUser(id, "alice", "alice@example.test"), nil
		})
		n := NewLoginNotifier(sender, users, "noreply@example.test", discardLogger())

		assert.Error(t, n.Notify(context.Background(), hooks.SuccessEvent{UserID: "user-1"}))
	})
}
