// Package notify publishes outbound account events to a message
// broker. Email delivery happens in a separate consumer; this service
// only emits the events that trigger it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cvhub/apiserver/config"
)

// accountEventsChannel is the queue (RabbitMQ) or topic (Pub/Sub) the
// mailer consumer listens on.
const accountEventsChannel = "account-events"

// Event types published by the API server.
const (
	EventUserRegistered         = "user.registered"
	EventPasswordResetRequested = "password_reset.requested"
)

// Event is one outbound account event.
type Event struct {
	Type       string    `json:"type"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ResetToken string    `json:"reset_token,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers an encoded event to the broker and returns the
// broker-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Notifier encodes account events as JSON and hands them to a
// Publisher backend.
type Notifier struct {
	publisher Publisher
}

// New constructs a Notifier for the provided backend.
func New(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// NewFromConfig constructs a Notifier for the configured backend.
// Returns (nil, nil) when no backend is configured; callers treat a
// nil Notifier as publishing disabled.
func NewFromConfig(ctx context.Context, cfg config.MQConfig) (*Notifier, error) {
	var (
		publisher Publisher
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case "rabbitmq":
		publisher, err = NewRabbitMQPublisher(cfg.RabbitMQ)
	case "pubsub":
		publisher, err = NewPubSubPublisher(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(publisher), nil
}

// UserRegistered emits a welcome event for a fresh account.
func (n *Notifier) UserRegistered(ctx context.Context, email, name string) error {
	return n.publish(ctx, Event{
		Type:  EventUserRegistered,
		Email: email,
		Name:  name,
	})
}

// PasswordResetRequested asks the mailer to deliver a reset token.
func (n *Notifier) PasswordResetRequested(ctx context.Context, email, name, token string) error {
	return n.publish(ctx, Event{
		Type:       EventPasswordResetRequested,
		Email:      email,
		Name:       name,
		ResetToken: token,
	})
}

// Close closes the underlying backend.
func (n *Notifier) Close() error {
	return n.publisher.Close()
}

func (n *Notifier) publish(ctx context.Context, event Event) error {
	event.OccurredAt = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	attrs := map[string]string{"type": event.Type}
	if _, err := n.publisher.Publish(ctx, accountEventsChannel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
