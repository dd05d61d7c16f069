// routes_generate.go - POST /generate
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edullm/edullm/api"
	"github.com/edullm/edullm/llm"
)

// GenerateHandler leitet den Prompt an das Completion-Backend weiter.
// Fehler der Generierung beenden nur diese Anfrage.
func (s *Server) GenerateHandler(c *gin.Context) {
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.completer == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": llm.ErrNotInitialized.Error()})
		return
	}

	maxTokens, temperature := req.Options()
	if temperature < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "temperature must be a non-negative number"})
		return
	}

	start := time.Now()
	text, err := s.completer.Completion(c.Request.Context(), llm.CompletionRequest{
		Prompt:      req.Prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotInitialized) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		slog.Error("generation failed", "error", err, "request", c.GetString(requestIDHeader))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Debug("generation done", "user", currentUser(c).ID, "duration", time.Since(start))
	c.JSON(http.StatusOK, api.GenerateResponse{Response: text})
}
