package ports

import (
	"context"

	"github.com/pumppilot/gatekeeper/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSessionIssued(ctx context.Context, session core.Session) error
	PublishLogout(ctx context.Context, subject string, tokenID string) error
}
