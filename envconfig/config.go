// config.go - Haupt-Konfigurationsfunktionen fuer edullm
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (EDULLM_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (EDULLM_ORIGINS)
// - DataDir: Verzeichnis fuer Tokenizer, Korpus und Checkpoint (EDULLM_DATA)
// - Database: Pfad der SQLite-Datenbank (EDULLM_DB)
// - StaticDir: Verzeichnis fuer das Frontend (EDULLM_STATIC)
// - TokenTTL: Lebensdauer der Access-Tokens (EDULLM_TOKEN_TTL)
// - LogLevel: Gibt Log-Level zurueck (EDULLM_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Backend-Auswahl, Hosted-API und Parallelitaet
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edullm/edullm/logutil"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via EDULLM_HOST
// Default: http://127.0.0.1:8000
func Host() *url.URL {
	defaultPort := "8000"

	s := strings.TrimSpace(Var("EDULLM_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via EDULLM_ORIGINS (komma-separiert), "*" erlaubt alles
func AllowedOrigins() (origins []string) {
	if s := Var("EDULLM_ORIGINS"); s != "" {
		for _, o := range strings.Split(s, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	// Standard-Origins fuer localhost
	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins, "file://*")

	return origins
}

// AllowAllOrigins meldet ob EDULLM_ORIGINS den Wildcard "*" enthaelt
func AllowAllOrigins() bool {
	for _, o := range strings.Split(Var("EDULLM_ORIGINS"), ",") {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// DataDir gibt das Daten-Verzeichnis zurueck
// Konfigurierbar via EDULLM_DATA
// Default: ./data
func DataDir() string {
	if s := Var("EDULLM_DATA"); s != "" {
		return s
	}
	return "data"
}

// TokenizerPath gibt den Pfad des Vokabular-Modells zurueck
func TokenizerPath() string {
	return filepath.Join(DataDir(), "tokenizer.model")
}

// CorpusPath gibt den Pfad des Trainingskorpus zurueck
func CorpusPath() string {
	return filepath.Join(DataDir(), "dataset.txt")
}

// CheckpointPath gibt den Pfad des Checkpoints zurueck
func CheckpointPath() string {
	return filepath.Join(DataDir(), "edullm_model.gguf")
}

// Database gibt den Pfad der SQLite-Datenbank zurueck
// Konfigurierbar via EDULLM_DB
func Database() string {
	if s := Var("EDULLM_DB"); s != "" {
		return s
	}
	return filepath.Join(DataDir(), "edullm.db")
}

// StaticDir gibt das Verzeichnis der Frontend-Dateien zurueck
// Konfigurierbar via EDULLM_STATIC
func StaticDir() string {
	if s := Var("EDULLM_STATIC"); s != "" {
		return s
	}
	return "."
}

// TokenTTL gibt die Lebensdauer eines Access-Tokens zurueck
// Konfigurierbar via EDULLM_TOKEN_TTL (Dauer oder Minuten)
// Default: 30 Minuten
func TokenTTL() (ttl time.Duration) {
	ttl = 30 * time.Minute
	if s := Var("EDULLM_TOKEN_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			ttl = d
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			ttl = time.Duration(n) * time.Minute
		}
	}

	if ttl <= 0 {
		return 30 * time.Minute
	}

	return ttl
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via EDULLM_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("EDULLM_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	if level < logutil.LevelTrace {
		level = logutil.LevelTrace
	}

	return level
}
