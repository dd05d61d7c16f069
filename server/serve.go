// serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - startet den HTTP-Server und faehrt ihn bei SIGINT/SIGTERM herunter

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edullm/edullm/envconfig"
	"github.com/edullm/edullm/logutil"
	"github.com/edullm/edullm/version"
)

// shutdownTimeout begrenzt das Warten auf laufende Anfragen
const shutdownTimeout = 10 * time.Second

// Serve startet den HTTP-Server auf ln
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, ConfigFromEnv())
	if err != nil {
		return err
	}
	defer s.Close()

	srvr := &http.Server{
		Handler:           s.GenerateRoutes(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srvr.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srvr.Shutdown(shutdownCtx); err != nil {
		srvr.Close()
		return err
	}
	return nil
}
