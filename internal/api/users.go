package api

import (
	"context"  // Request scoped context
	"net/http" // HTTP status codes
	"strings"  // Input trimming

	"github.com/gin-gonic/gin" // Gin web framework

	"wallet_saga/internal/domain" // Importing domain models
)

// UserDirectory stores the local copy of user profiles
type UserDirectory interface {
	Upsert(ctx context.Context, u *domain.User) error
}

// UserProfileRequest is a profile pushed by the user service
type UserProfileRequest struct {
	Name  string `json:"name"`                            // Display name
	Email string `json:"email" binding:"omitempty,email"` // Notification address
	Role  string `json:"role"`                            // USER or ADMIN, any case
}

// UpsertUserHandler creates or replaces the local copy of a user profile (admin only)
func UpsertUserHandler(dir UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c) // User id from the path
		if !ok {
			return
		}
		var req UserProfileRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		role := strings.ToUpper(strings.TrimSpace(req.Role))
		switch role {
		case "":
			role = "USER" // Default role
		case "USER", domain.RoleAdmin:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be USER or ADMIN"})
			return
		}
		u := &domain.User{ID: id, Name: strings.TrimSpace(req.Name), Email: strings.TrimSpace(req.Email), Role: role}
		if err := dir.Upsert(c.Request.Context(), u); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User saved", "user": u})
	}
}
