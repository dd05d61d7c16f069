package envconfig

import (
	"log/slog"
	"testing"
	"time"

	"github.com/edullm/edullm/logutil"
)

// TestHost testet das Parsen von EDULLM_HOST
func TestHost(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"leer", "", "127.0.0.1:8000"},
		{"nur ip", "0.0.0.0", "0.0.0.0:8000"},
		{"ip mit port", "1.2.3.4:9000", "1.2.3.4:9000"},
		{"http scheme", "http://example.com", "example.com:80"},
		{"https scheme", "https://example.com", "example.com:443"},
		{"ungueltiger port", "1.2.3.4:99999", "1.2.3.4:8000"},
		{"ipv6", "[::1]:8080", "[::1]:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EDULLM_HOST", tt.value)
			if got := Host().Host; got != tt.want {
				t.Errorf("Host() = %q, erwartet %q", got, tt.want)
			}
		})
	}
}

// TestLogLevel testet die Abbildung von EDULLM_DEBUG auf slog-Level
func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     logutil.LevelTrace,
		"9":     logutil.LevelTrace,
	}

	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			t.Setenv("EDULLM_DEBUG", value)
			if got := LogLevel(); got != want {
				t.Errorf("LogLevel() = %v, erwartet %v", got, want)
			}
		})
	}
}

// TestBackend testet die Auswahl des Completion-Backends
func TestBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		key     string
		want    string
	}{
		{"default ohne key", "", "", BackendLocal},
		{"default mit key", "", "gsk_test", BackendHosted},
		{"explizit local", "local", "gsk_test", BackendLocal},
		{"explizit hosted", "HOSTED", "", BackendHosted},
		{"unbekannt", "gpu", "", BackendLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EDULLM_BACKEND", tt.backend)
			t.Setenv("GROQ_API_KEY", tt.key)
			if got := Backend(); got != tt.want {
				t.Errorf("Backend() = %q, erwartet %q", got, tt.want)
			}
		})
	}
}

// TestTokenTTL testet Dauer- und Minuten-Angaben
func TestTokenTTL(t *testing.T) {
	tests := map[string]time.Duration{
		"":     30 * time.Minute,
		"1h":   time.Hour,
		"15":   15 * time.Minute,
		"-5m":  30 * time.Minute,
		"quak": 30 * time.Minute,
	}

	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			t.Setenv("EDULLM_TOKEN_TTL", value)
			if got := TokenTTL(); got != want {
				t.Errorf("TokenTTL() = %v, erwartet %v", got, want)
			}
		})
	}
}

// TestAllowAllOrigins testet den Wildcard in EDULLM_ORIGINS
func TestAllowAllOrigins(t *testing.T) {
	t.Setenv("EDULLM_ORIGINS", "http://a.example, *")
	if !AllowAllOrigins() {
		t.Error("AllowAllOrigins() = false, erwartet true")
	}

	t.Setenv("EDULLM_ORIGINS", "http://a.example")
	if AllowAllOrigins() {
		t.Error("AllowAllOrigins() = true, erwartet false")
	}
	if origins := AllowedOrigins(); origins[0] != "http://a.example" {
		t.Errorf("AllowedOrigins()[0] = %q, erwartet http://a.example", origins[0])
	}
}

// TestValuesRedacted stellt sicher dass Geheimnisse nicht geloggt werden
func TestValuesRedacted(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_secret")
	t.Setenv("EDULLM_JWT_SECRET", "topsecret")

	vals := Values()
	for _, k := range []string{"GROQ_API_KEY", "EDULLM_JWT_SECRET"} {
		if vals[k] != "********" {
			t.Errorf("Values()[%s] = %q, erwartet redigiert", k, vals[k])
		}
	}
}
