package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pumppilot/gatekeeper/core"
)

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID  string          `json:"rid"` // ID of the refresh token
	AuthMethod core.AuthMethod `json:"amr"`
}

// RefreshClaims carry the login path so a rotated session keeps it
type RefreshClaims struct {
	jwt.RegisteredClaims
	AuthMethod core.AuthMethod `json:"amr"`
}
