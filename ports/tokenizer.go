package ports

import "github.com/pumppilot/gatekeeper/core"

// Tokenizer converts between sessions and signed tokens
type Tokenizer interface {
	SessionToAccessToken(session core.Session) (string, error)
	AccessTokenToSession(token string) (core.Session, error)
	SessionToRefreshToken(session core.Session) (string, error)
	RefreshTokenToSession(token string) (core.Session, error)
}
