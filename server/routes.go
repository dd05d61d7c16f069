// routes.go - Router, CORS und statische Dateien
package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/version"
)

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		"X-Request-ID",
	}
	if s.cfg.AllowAllOrigins {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowWildcard = true
		corsConfig.AllowBrowserExtensions = true
		corsConfig.AllowFiles = true
		corsConfig.AllowOrigins = s.cfg.AllowOrigins
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOrigins = envconfig.AllowedOrigins()
		}
	}

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		requestIDMiddleware(),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/", s.IndexHandler)
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Accounts
	r.POST("/register", s.RegisterHandler)
	r.POST("/login", s.LoginHandler)

	authed := r.Group("/", s.authMiddleware())
	authed.GET("/me", s.MeHandler)
	authed.POST("/generate", s.GenerateHandler)

	authed.GET("/notes", s.ListNotesHandler)
	authed.POST("/notes", s.CreateNoteHandler)
	authed.GET("/notes/:id", s.GetNoteHandler)
	authed.DELETE("/notes/:id", s.DeleteNoteHandler)
	authed.PATCH("/notes/:id/bookmark", s.BookmarkHandler)

	authed.GET("/flashcards", s.ListDecksHandler)
	authed.POST("/flashcards", s.CreateDeckHandler)
	authed.DELETE("/flashcards/:id", s.DeleteDeckHandler)

	// alles andere aus dem Frontend-Verzeichnis
	r.NoRoute(s.StaticHandler)

	return r
}

// IndexHandler liefert index.html oder eine Statusmeldung
func (s *Server) IndexHandler(c *gin.Context) {
	index := filepath.Join(s.static, "index.html")
	if _, err := os.Stat(index); err != nil {
		c.String(http.StatusOK, "edullm is running")
		return
	}
	c.File(index)
}

// StaticHandler liefert Dateien aus dem Frontend-Verzeichnis
func (s *Server) StaticHandler(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}

	if !servable(c.Request.URL.Path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}

	fs := gin.Dir(s.static, false)
	f, err := fs.Open(c.Request.URL.Path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}
	f.Close()

	c.FileFromFS(c.Request.URL.Path, fs)
}

// hiddenExts sind Dateien im Frontend-Verzeichnis, die nie ausgeliefert werden
var hiddenExts = []string{".db", ".db-wal", ".db-shm", ".gguf", ".model", ".pt", ".env"}

// servable lehnt versteckte Pfade und Daten-Dateien ab
func servable(p string) bool {
	for _, part := range strings.Split(path.Clean("/"+p), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return !slices.Contains(hiddenExts, strings.ToLower(path.Ext(p)))
}
