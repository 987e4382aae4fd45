package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verida/notification-server/internal/infrastructure/did"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ContextKeyDID is the context key for the authenticated DID.
	ContextKeyDID ContextKey = "did"
	// ContextKeyAppContext is the context key for the authenticated context name.
	ContextKeyAppContext ContextKey = "context_name"
)

// HeaderContextName carries the application context the caller signs for.
const HeaderContextName = "context-name"

// Authorizer checks a consent signature for a DID and context.
type Authorizer interface {
	Authorize(ctx context.Context, did, contextName, signature string) bool
}

// AuthMiddleware authenticates callers by DID signature over HTTP basic auth.
// The username is the DID with colons replaced by underscores and the
// password is the signature.
type AuthMiddleware struct {
	authorizer Authorizer
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(authorizer Authorizer) *AuthMiddleware {
	return &AuthMiddleware{authorizer: authorizer}
}

// RequireAuth returns a middleware that requires a valid DID signature.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, signature, ok := c.Request.BasicAuth()
		contextName := c.GetHeader(HeaderContextName)
		if !ok || username == "" || signature == "" || contextName == "" {
			unauthorized(c)
			return
		}

		subject := did.NormalizeDID(username)
		if !m.authorizer.Authorize(c.Request.Context(), subject, contextName, signature) {
			unauthorized(c)
			return
		}

		c.Set(string(ContextKeyDID), subject)
		c.Set(string(ContextKeyAppContext), contextName)

		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status": "fail",
		"code":   90,
		"data": gin.H{
			"auth": "Invalid credentials supplied",
		},
	})
}

// GetIdentity extracts the authenticated DID and context name.
func GetIdentity(c *gin.Context) (string, string, bool) {
	subject := c.GetString(string(ContextKeyDID))
	contextName := c.GetString(string(ContextKeyAppContext))
	if subject == "" || contextName == "" {
		return "", "", false
	}
	return subject, contextName, true
}
