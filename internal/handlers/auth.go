package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/meshroom/internal/middleware"
	"github.com/mossy-p/meshroom/internal/models"
)

const tokenTTL = 24 * time.Hour

// RoleResolver decides which role an identity joins with.
type RoleResolver func(identity string) models.Role

// Login issues a JWT carrying identity and role.
// For demo purposes, accepts any username/password combination
func Login(jwtSecret string, resolveRole RoleResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		// In production, validate against a user database
		identity := req.Username
		role := resolveRole(identity)

		token, err := middleware.IssueToken(jwtSecret, identity, role, tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, models.LoginResponse{
			Token:    token,
			Identity: identity,
			Role:     role,
		})
	}
}
