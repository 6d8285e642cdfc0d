package httpapi

import (
	"errors"
	"net/http"
	"time"

	"protocolo-municipal/internal/auth"
	"protocolo-municipal/internal/identity"

	"github.com/gin-gonic/gin"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair.
// Refresh tokens carry no role, so the role is re-read from the directory
// and a deactivated user cannot refresh.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token required")
		return
	}

	now := time.Now()
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, now)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	u, err := h.Users.ByID(c.Request.Context(), claims.UserID)
	if errors.Is(err, identity.ErrNotFound) || (err == nil && !u.Active) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user inactive"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	pair, err := h.Auth.IssuePair(now, auth.Subject{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// Me echoes the identity carried by the access token.
func (h Handlers) Me(c *gin.Context) {
	ctx := c.Request.Context()
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	role, _ := auth.Role(ctx)
	c.JSON(http.StatusOK, gin.H{
		"user_id": uid,
		"name":    auth.Name(ctx),
		"email":   auth.Email(ctx),
		"role":    role,
	})
}
