// config_features.go - Backend-Auswahl und Laufzeit-Einstellungen
//
// Dieses Modul enthaelt:
// - Backend: lokales Modell oder gehostete API
// - Hosted-API Einstellungen (GROQ_API_KEY, URL, Modell, System-Prompt)
// - Geraete- und Parallelitaets-Einstellungen
package envconfig

import (
	"runtime"
	"strings"
)

// Backend-Namen
const (
	BackendHosted = "hosted"
	BackendLocal  = "local"
)

// DefaultSystemPrompt ist die System-Nachricht fuer die gehostete API
const DefaultSystemPrompt = "You are NeuroNotes Pro. Summarize educational content with clean Markdown, bold key terms, and LaTeX ($$)."

// =============================================================================
// Hosted-API
// =============================================================================

var (
	// APIKey ist der Schluessel fuer die gehostete API
	APIKey = String("GROQ_API_KEY")

	// HostedURL ist die Basis-URL der OpenAI-kompatiblen API
	HostedURL = StringWithDefault("EDULLM_HOSTED_URL", "https://api.groq.com/openai/v1")

	// HostedModel ist das Modell der gehosteten API
	HostedModel = StringWithDefault("EDULLM_HOSTED_MODEL", "llama-3.3-70b-versatile")

	// SystemPrompt ueberschreibt die System-Nachricht
	SystemPrompt = StringWithDefault("EDULLM_SYSTEM_PROMPT", DefaultSystemPrompt)

	// JWTSecret ist das HMAC-Geheimnis fuer Tokens (leer = zufaellig pro Prozess)
	JWTSecret = String("EDULLM_JWT_SECRET")
)

// Backend gibt das Completion-Backend zurueck
// Konfigurierbar via EDULLM_BACKEND ("hosted" oder "local")
// Default: hosted wenn GROQ_API_KEY gesetzt ist, sonst local
func Backend() string {
	switch s := strings.ToLower(Var("EDULLM_BACKEND")); s {
	case BackendHosted, BackendLocal:
		return s
	}

	if APIKey() != "" {
		return BackendHosted
	}
	return BackendLocal
}

// =============================================================================
// Geraete und Parallelitaet
// =============================================================================

var (
	// Device waehlt das Compute-Backend beim Laden des Checkpoints
	Device = StringWithDefault("EDULLM_DEVICE", "cpu")

	// NumParallel setzt die Anzahl paralleler lokaler Generierungen
	NumParallel = Uint("EDULLM_NUM_PARALLEL", 1)

	// NumThreads begrenzt die Worker fuer Tensor-Operationen
	NumThreads = Uint("EDULLM_NUM_THREADS", uint(runtime.GOMAXPROCS(0)))
)
