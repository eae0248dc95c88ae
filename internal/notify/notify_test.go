package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cvhub/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakePublisher struct {
	messages []publishedMessage
	closed   bool
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.messages = append(p.messages, publishedMessage{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestNotifierUserRegistered(t *testing.T) {
	publisher := &fakePublisher{}
	notifier := New(publisher)

	require.NoError(t, notifier.UserRegistered(context.Background(), "alice@example.com", "Alice"))
	require.Len(t, publisher.messages, 1)

	msg := publisher.messages[0]
	assert.Equal(t, "account-events", msg.channel)
	assert.Equal(t, map[string]string{"type": EventUserRegistered}, msg.attrs)

	var event Event
	require.NoError(t, json.Unmarshal(msg.data, &event))
	assert.Equal(t, EventUserRegistered, event.Type)
	assert.Equal(t, "alice@example.com", event.Email)
	assert.Equal(t, "Alice", event.Name)
	assert.Empty(t, event.ResetToken)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestNotifierPasswordResetRequested(t *testing.T) {
	publisher := &fakePublisher{}
	notifier := New(publisher)

	require.NoError(t, notifier.PasswordResetRequested(context.Background(), "alice@example.com", "Alice", "reset-token-1"))
	require.Len(t, publisher.messages, 1)

	var event Event
	require.NoError(t, json.Unmarshal(publisher.messages[0].data, &event))
	assert.Equal(t, EventPasswordResetRequested, event.Type)
	assert.Equal(t, "reset-token-1", event.ResetToken)
}

func TestNotifierClose(t *testing.T) {
	publisher := &fakePublisher{}
	notifier := New(publisher)

	require.NoError(t, notifier.Close())
	assert.True(t, publisher.closed)
}

func TestNewFromConfigDisabled(t *testing.T) {
	notifier, err := NewFromConfig(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.Nil(t, notifier)
}

func TestNewFromConfigUnknownBackend(t *testing.T) {
	_, err := NewFromConfig(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)
}
