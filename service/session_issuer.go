package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/pumppilot/gatekeeper/core"
)

// SessionIssuer turns an authenticated subject into a Session
type SessionIssuer struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSessionIssuer creates a session issuer
func NewSessionIssuer(opts Options) *SessionIssuer {
	opts = opts.withDefaults()
	return &SessionIssuer{
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        opts.Now,
	}
}

// Issue builds a fresh session for subjectID. It performs no I/O.
func (i *SessionIssuer) Issue(subjectID string, method core.AuthMethod) core.Session {
	now := i.now()
	return core.Session{
		ID:               uuid.New().String(),
		SubjectID:        subjectID,
		AuthMethod:       method,
		IssuedAt:         now,
		ExpiresAt:        now.Add(i.accessTTL),
		RefreshID:        uuid.New().String(),
		RefreshExpiresAt: now.Add(i.refreshTTL),
	}
}
