package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// SessionView is the public part of a session
type SessionView struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	AuthMethod core.AuthMethod `json:"auth_method"`
	IssuedAt   time.Time       `json:"issued_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// TokenResponse is returned by every endpoint that starts a session
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	Session      SessionView `json:"session"`
}

func newSessionView(session core.Session) SessionView {
	return SessionView{
		ID:         session.ID,
		Subject:    session.SubjectID,
		AuthMethod: session.AuthMethod,
		IssuedAt:   session.IssuedAt,
		ExpiresAt:  session.ExpiresAt,
	}
}

func newTokenResponse(pair core.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.ExpiresIn / time.Second),
		Session:      newSessionView(pair.Session),
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Challenge handles the challenge request
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	challenge, err := h.authService.RequestChallenge(c.Request.Context(), req.Address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    challenge.Message,
		"nonce":      challenge.Nonce,
		"expires_at": challenge.ExpiresAt,
	})
}

// Verify exchanges a signed challenge for a session
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.VerifySignature(c.Request.Context(), req.Address, req.Message, req.Signature)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Login handles email and password login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.LoginWithCredentials(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// SignUp registers an email and password account
func (h *AuthHandlers) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pending, err := h.authService.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{"email": pending.Email}
	if !pending.ConfirmationSentAt.IsZero() {
		body["confirmation_sent_at"] = pending.ConfirmationSentAt
	}
	c.JSON(http.StatusAccepted, body)
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	err := h.authService.Logout(c.Request.Context(), req.RefreshToken)
	if err != nil && !errors.Is(err, core.ErrTokenExpired) {
		writeError(c, err)
		return
	}

	// An expired refresh token is already unusable, so logout still succeeds
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject":     session.SubjectID,
		"auth_method": session.AuthMethod,
		"expires_at":  session.ExpiresAt,
	})
}

// Authorize checks if a user is authorized
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// The auth middleware already validated the token
	subject, exists := c.Get(subjectKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"subject":    subject,
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps the error taxonomy to a status code. Wallet rejections and
// bad credentials share one body so callers cannot tell which check failed.
func writeError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	c.JSON(status, gin.H{"error": msg})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidAddress):
		return http.StatusBadRequest, "Invalid address"
	case core.IsWalletRejection(err), errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, core.ErrEmailUnconfirmed):
		return http.StatusForbidden, "Email not confirmed"
	case errors.Is(err, core.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "Upstream timed out"
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	case errors.Is(err, core.ErrInvalidToken):
		return http.StatusBadRequest, "Invalid token"
	case errors.Is(err, core.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, core.ErrTokenInvalidated):
		return http.StatusUnauthorized, "Token has been invalidated"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
