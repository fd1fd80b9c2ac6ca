package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/ports"
)

const (
	TopicSessionIssued = "gatekeeper.session_issued"
	TopicLogout        = "gatekeeper.logout"
)

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// SessionIssuedEvent is published after every successful login
type SessionIssuedEvent struct {
	SessionID  string          `json:"session_id"`
	Subject    string          `json:"subject"`
	AuthMethod core.AuthMethod `json:"auth_method"`
	IssuedAt   time.Time       `json:"issued_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Subject string `json:"subject"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishSessionIssued publishes a session issued event
func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, session core.Session) error {
	return p.publish(ctx, TopicSessionIssued, session.ID, SessionIssuedEvent{
		SessionID:  session.ID,
		Subject:    session.SubjectID,
		AuthMethod: session.AuthMethod,
		IssuedAt:   session.IssuedAt,
		ExpiresAt:  session.ExpiresAt,
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, subject string, tokenID string) error {
	return p.publish(ctx, TopicLogout, tokenID, LogoutEvent{
		Subject: subject,
		TokenID: tokenID,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event. Used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) PublishSessionIssued(context.Context, core.Session) error { return nil }
func (NopPublisher) PublishLogout(context.Context, string, string) error      { return nil }
