package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // Header trimming

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/google/uuid"   // User identifiers

	"wallet_saga/internal/domain" // Identity model
	"wallet_saga/internal/utils"  // Identity token parsing
)

// Headers set by the gateway in front of the services
const (
	HeaderUserID        = "X-User-Id"
	HeaderUserRole      = "X-User-Role"
	HeaderUserEmail     = "X-User-Email"
	HeaderIdentityToken = "X-Identity-Token"

	identityKey = "identity"
)

// IdentityMiddleware resolves the acting user. With a secret the signed identity token is
// required and wins over the plain headers; without one the plain headers are trusted.
func IdentityMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var who domain.Identity
		if secret != "" {
			tok := strings.TrimSpace(c.GetHeader(HeaderIdentityToken)) // Signed by the gateway
			claims, err := utils.ParseIdentityToken(tok, secret)
			if err != nil {
				// Missing, expired or forged token
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired identity token"})
				return
			}
			id, err := uuid.Parse(claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user id"})
				return
			}
			who = domain.Identity{UserID: id, Role: claims.Role, Email: claims.Email}
		} else {
			raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
			if raw == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user id"})
				return
			}
			who = domain.Identity{
				UserID: id,                                              // Authenticated user
				Role:   strings.TrimSpace(c.GetHeader(HeaderUserRole)),  // USER or ADMIN
				Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)), // May be empty
			}
		}
		c.Set(identityKey, who) // Store identity in context
		c.Next()                // Proceed to the next handler
	}
}

// GetIdentity returns the identity stored by IdentityMiddleware
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	who, ok := v.(domain.Identity)
	return who, ok
}
