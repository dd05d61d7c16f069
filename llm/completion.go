// Package llm - Completion-Backends fuer POST /generate
//
// Enthaelt:
// - Completer: gemeinsames Interface aller Backends
// - Hosted: OpenAI-kompatible Chat-API (z.B. Groq)
// - Local: eigenes Sprachmodell aus Tokenizer und Checkpoint
package llm

import (
	"context"
	"errors"
)

// ErrNotInitialized meldet, dass kein Backend verfuegbar ist
var ErrNotInitialized = errors.New("AI Client not initialized.")

// CompletionRequest enthaelt alle Parameter fuer eine Generierung
type CompletionRequest struct {
	Prompt string

	// System ueberschreibt die System-Nachricht (nur Hosted)
	System string

	MaxTokens   int
	Temperature float64

	// TopK und StopAtEOT werden nur vom lokalen Modell ausgewertet
	TopK      int
	StopAtEOT bool
}

// Completer erzeugt Text zu einem Prompt
type Completer interface {
	Completion(ctx context.Context, req CompletionRequest) (string, error)
	Close() error
}
