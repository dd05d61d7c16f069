// middleware.go - Request-IDs und Bearer-Authentifizierung
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edullm/edullm/server/internal/store"
)

const (
	requestIDHeader = "X-Request-ID"
	userKey         = "user"
)

// requestIDMiddleware uebernimmt oder vergibt eine Request-ID
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// authMiddleware prueft das Bearer-Token und laedt den Benutzer
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		email, err := s.issuer.Verify(token)
		if err != nil {
			slog.Debug("token rejected", "error", err, "request", c.GetString(requestIDHeader))
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			return
		}

		user, err := s.store.UserByEmail(c.Request.Context(), email)
		switch {
		case errors.Is(err, store.ErrNotFound), err == nil && !user.IsActive:
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// currentUser gibt den von authMiddleware gesetzten Benutzer zurueck
func currentUser(c *gin.Context) *store.User {
	return c.MustGet(userKey).(*store.User)
}
