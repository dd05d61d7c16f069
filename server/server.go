// Package server - Anwendungszustand und HTTP-Server fuer edullm
// Beinhaltet: Config, Server (Store, Issuer, Completer), New, Close
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edullm/edullm/auth"
	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/llm"
	"github.com/edullm/edullm/server/internal/store"
)

var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Config enthaelt alles, was der Server beim Start braucht
type Config struct {
	Database  string
	StaticDir string

	AllowOrigins    []string
	AllowAllOrigins bool

	JWTSecret string
	TokenTTL  time.Duration

	Backend string
	Hosted  llm.HostedConfig
	Local   llm.LocalConfig

	// Completer ersetzt das aus Backend erzeugte Backend
	Completer llm.Completer
}

// ConfigFromEnv liest die Konfiguration aus den EDULLM_* Variablen
func ConfigFromEnv() Config {
	return Config{
		Database:        envconfig.Database(),
		StaticDir:       envconfig.StaticDir(),
		AllowOrigins:    envconfig.AllowedOrigins(),
		AllowAllOrigins: envconfig.AllowAllOrigins(),
		JWTSecret:       envconfig.JWTSecret(),
		TokenTTL:        envconfig.TokenTTL(),
		Backend:         envconfig.Backend(),
		Hosted: llm.HostedConfig{
			BaseURL:      envconfig.HostedURL(),
			APIKey:       envconfig.APIKey(),
			Model:        envconfig.HostedModel(),
			SystemPrompt: envconfig.SystemPrompt(),
		},
		Local: llm.LocalConfig{
			TokenizerPath:  envconfig.TokenizerPath(),
			CheckpointPath: envconfig.CheckpointPath(),
			Device:         envconfig.Device(),
			NumParallel:    int(envconfig.NumParallel()),
			Threads:        int(envconfig.NumThreads()),
		},
	}
}

// Server ist der Anwendungszustand. Alle Handler lesen nur aus ihm;
// der Completer ist fuer nebenlaeufige Aufrufe ausgelegt.
type Server struct {
	store     *store.Store
	issuer    *auth.Issuer
	completer llm.Completer
	static    string
	cfg       Config
}

// New oeffnet die Datenbank und initialisiert das Completion-Backend.
// Scheitert das Backend, startet der Server trotzdem und /generate
// antwortet mit 503.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if dir := filepath.Dir(cfg.Database); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}
	if cfg.JWTSecret == "" {
		slog.Warn("EDULLM_JWT_SECRET not set, tokens are only valid until restart")
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		st.Close()
		return nil, err
	}

	completer := cfg.Completer
	if completer == nil {
		completer, err = newCompleter(ctx, cfg)
		if err != nil {
			slog.Warn("completion backend not available", "backend", cfg.Backend, "error", err)
			completer = nil
		}
	}

	return &Server{
		store:     st,
		issuer:    issuer,
		completer: completer,
		static:    cfg.StaticDir,
		cfg:       cfg,
	}, nil
}

func newCompleter(ctx context.Context, cfg Config) (llm.Completer, error) {
	switch cfg.Backend {
	case envconfig.BackendHosted:
		return llm.NewHosted(cfg.Hosted)
	case envconfig.BackendLocal:
		return llm.LoadLocal(ctx, cfg.Local)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", llm.ErrNotInitialized, cfg.Backend)
	}
}

// Close gibt Backend und Datenbank frei
func (s *Server) Close() error {
	var errs []error
	if s.completer != nil {
		errs = append(errs, s.completer.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
