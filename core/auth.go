package core

import (
	"fmt"
	"time"
)

// AuthMethod identifies which login path produced a session
type AuthMethod string

const (
	// AuthMethodCredential is an email/password login through the identity service
	AuthMethodCredential AuthMethod = "credential"

	// AuthMethodWallet is a wallet signature over an issued challenge
	AuthMethodWallet AuthMethod = "wallet"
)

// DefaultAppName is the application name embedded in challenge messages
const DefaultAppName = "PumpPilot"

// Challenge represents an authentication challenge
type Challenge struct {
	ID        string    // Unique identifier for the challenge
	Address   string    // Checksummed Ethereum address of the user
	Nonce     string    // Random nonce embedded in the message
	Message   string    // Exact text the wallet has to sign
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// Expired reports whether the challenge is past its expiry at the given time
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// SignedAssertion is what a client submits to prove ownership of an address
type SignedAssertion struct {
	Address   string
	Message   string
	Signature []byte
}

// Session represents an authenticated user session
type Session struct {
	ID               string     // Unique session identifier
	SubjectID        string     // Checksummed address or lower-cased email
	AuthMethod       AuthMethod // Login path that produced the session
	IssuedAt         time.Time  // When the session was created
	ExpiresAt        time.Time  // When the access capability expires
	RefreshID        string     // Unique identifier for the refresh token
	RefreshExpiresAt time.Time  // When the refresh capability expires
}

// Identity is an account as reported by the identity service
type Identity struct {
	ID             string
	Email          string
	EmailConfirmed bool
}

// PendingConfirmation is returned by a sign-up that still needs email confirmation
type PendingConfirmation struct {
	Email              string
	ConfirmationSentAt time.Time
}

// TokenPair is a minted session ready for transport
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Session      Session
}

// ChallengeMessage renders the text a wallet signs for the given nonce
func ChallengeMessage(appName, nonce string) string {
	if appName == "" {
		appName = DefaultAppName
	}
	return fmt.Sprintf("Sign this message to authenticate with %s.\nNonce: %s", appName, nonce)
}
