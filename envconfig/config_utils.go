// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String/StringWithDefault: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// StringWithDefault gibt eine Funktion zurueck, die einen String mit Default liest
func StringWithDefault(s, defaultValue string) func() string {
	return func() string {
		if v := Var(s); v != "" {
			return v
		}
		return defaultValue
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"EDULLM_DEBUG":         {"EDULLM_DEBUG", LogLevel(), "Show additional debug information (e.g. EDULLM_DEBUG=1)"},
		"EDULLM_HOST":          {"EDULLM_HOST", Host(), "IP Address for the edullm server (default 127.0.0.1:8000)"},
		"EDULLM_ORIGINS":       {"EDULLM_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins (\"*\" allows all)"},
		"EDULLM_DATA":          {"EDULLM_DATA", DataDir(), "Directory holding tokenizer.model, dataset.txt and the checkpoint"},
		"EDULLM_DB":            {"EDULLM_DB", Database(), "Path of the SQLite database"},
		"EDULLM_STATIC":        {"EDULLM_STATIC", StaticDir(), "Directory with index.html, styles.css and script.js"},
		"EDULLM_BACKEND":       {"EDULLM_BACKEND", Backend(), "Completion backend: hosted or local"},
		"EDULLM_HOSTED_URL":    {"EDULLM_HOSTED_URL", HostedURL(), "Base URL of the OpenAI compatible API"},
		"EDULLM_HOSTED_MODEL":  {"EDULLM_HOSTED_MODEL", HostedModel(), "Model name used with the hosted API"},
		"EDULLM_SYSTEM_PROMPT": {"EDULLM_SYSTEM_PROMPT", SystemPrompt(), "System message sent to the hosted API"},
		"EDULLM_TOKEN_TTL":     {"EDULLM_TOKEN_TTL", TokenTTL(), "Lifetime of access tokens (default \"30m\")"},
		"EDULLM_DEVICE":        {"EDULLM_DEVICE", Device(), "Compute backend used to load checkpoints (default: cpu)"},
		"EDULLM_NUM_PARALLEL":  {"EDULLM_NUM_PARALLEL", NumParallel(), "Maximum number of parallel local generations"},
		"EDULLM_NUM_THREADS":   {"EDULLM_NUM_THREADS", NumThreads(), "Maximum number of threads used by tensor operations"},
		"GROQ_API_KEY":         {"GROQ_API_KEY", redact(APIKey()), "API key of the hosted model provider"},
		"EDULLM_JWT_SECRET":    {"EDULLM_JWT_SECRET", redact(JWTSecret()), "Secret used to sign access tokens"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// redact versteckt Geheimnisse in Log-Ausgaben
func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
