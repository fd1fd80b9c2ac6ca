package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/service"
	"go.uber.org/zap"
)

const (
	subjectKey = "subject"
	sessionKey = "session"
)

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			case errors.Is(err, core.ErrInvalidToken), errors.Is(err, core.ErrTokenInvalidated):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			default:
				status, msg := errorStatus(err)
				c.AbortWithStatusJSON(status, gin.H{"error": msg})
			}
			return
		}

		c.Set(subjectKey, session.SubjectID)
		c.Set(sessionKey, session)

		c.Next()
	}
}

func sessionFromContext(c *gin.Context) (core.Session, bool) {
	v, exists := c.Get(sessionKey)
	if !exists {
		return core.Session{}, false
	}
	session, ok := v.(core.Session)
	return session, ok
}

// RequestLogger logs one line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
