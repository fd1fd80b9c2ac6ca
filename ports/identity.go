package ports

import (
	"context"

	"github.com/pumppilot/gatekeeper/core"
)

// IdentityProvider is the external email/password account service.
// Implementations report rejections with core.ErrInvalidCredentials or
// core.ErrEmailUnconfirmed, and transport problems with core.ErrUpstreamUnavailable.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (core.Identity, error)
	SignUp(ctx context.Context, email, password string) (core.PendingConfirmation, error)
}
