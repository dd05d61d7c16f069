// routes_auth.go - Registrierung, Login und Benutzerinfo
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edullm/edullm/api"
	"github.com/edullm/edullm/auth"
	"github.com/edullm/edullm/server/internal/store"
)

// RegisterHandler legt einen Benutzer an
func (s *Server) RegisterHandler(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.CreateUser(c.Request.Context(), strings.TrimSpace(req.Email), hash)
	if errors.Is(err, store.ErrDuplicateEmail) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("user registered", "id", user.ID)
	c.JSON(http.StatusCreated, userResponse(user))
}

// LoginHandler prueft die Zugangsdaten und stellt ein Token aus
func (s *Server) LoginHandler(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.UserByEmail(c.Request.Context(), strings.TrimSpace(req.Username))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil || !user.IsActive {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := s.issuer.Issue(user.Email)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   api.Duration{Duration: s.issuer.TTL()},
	})
}

// MeHandler gibt den angemeldeten Benutzer zurueck
func (s *Server) MeHandler(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, api.UserResponse{ID: user.ID, Email: user.Email, IsActive: user.IsActive})
}

func userResponse(u *store.User) api.UserResponse {
	return api.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}
