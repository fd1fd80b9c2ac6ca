package identity

import (
	"context"
	"fmt"

	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/ports"
)

var _ ports.IdentityProvider = Disabled{}

// Disabled stands in when no identity service is configured. Only wallet logins work.
type Disabled struct{}

func (Disabled) SignInWithPassword(context.Context, string, string) (core.Identity, error) {
	return core.Identity{}, fmt.Errorf("%w: no identity service configured", core.ErrUpstreamUnavailable)
}

func (Disabled) SignUp(context.Context, string, string) (core.PendingConfirmation, error) {
	return core.PendingConfirmation{}, fmt.Errorf("%w: no identity service configured", core.ErrUpstreamUnavailable)
}
