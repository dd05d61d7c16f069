// local.go - Generierung mit dem eigenen Sprachmodell
//
// Parameter und Tokenizer werden von allen Anfragen nur gelesen; jede
// Generierung bekommt ihren eigenen Zufallsgenerator, dessen Seed unter
// einem Mutex gezogen wird.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/edullm/edullm/model"
	"github.com/edullm/edullm/sample"
	"github.com/edullm/edullm/tokenizer"
)

// LocalConfig beschreibt Dateien und Grenzen fuer das lokale Modell
type LocalConfig struct {
	TokenizerPath  string
	CheckpointPath string
	Device         string

	// NumParallel begrenzt gleichzeitige Generierungen (Standard 1)
	NumParallel int
	// Threads begrenzt die Parallelitaet innerhalb eines Forward-Passes
	Threads int
	// Seed 0 waehlt einen zufaelligen Seed
	Seed uint64
}

// Local erzeugt Text mit Tokenizer und Modell im Prozess
type Local struct {
	tok     *tokenizer.Tokenizer
	model   sample.LanguageModel
	sem     *semaphore.Weighted
	threads int

	mu  sync.Mutex
	rng *rand.Rand
}

// LoadLocal laedt Tokenizer und Checkpoint
func LoadLocal(ctx context.Context, cfg LocalConfig) (*Local, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := model.Load(cfg.CheckpointPath, model.LoadOptions{Device: cfg.Device, VocabSize: tok.VocabSize()})
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	slog.Info("local model loaded",
		"checkpoint", cfg.CheckpointPath,
		"params", m.NumParams(),
		"vocab", tok.VocabSize(),
		"context", m.ContextLength(),
		"duration", time.Since(start))

	return NewLocal(tok, m, cfg), nil
}

// NewLocal baut das Backend aus bereits geladenen Teilen
func NewLocal(tok *tokenizer.Tokenizer, m sample.LanguageModel, cfg LocalConfig) *Local {
	numParallel := max(cfg.NumParallel, 1)

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Local{
		tok:     tok,
		model:   m,
		sem:     semaphore.NewWeighted(int64(numParallel)),
		threads: cfg.Threads,
		rng:     rand.New(rand.NewPCG(seed, 0)),
	}
}

func (l *Local) nextSeed() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Uint64()
}

// Completion erzeugt bis zu MaxTokens Tokens und gibt nur den neuen Text zurueck
func (l *Local) Completion(ctx context.Context, req CompletionRequest) (text string, err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("aborting completion request due to client closing the connection")
		} else {
			slog.Error("Failed to acquire semaphore", "error", err)
		}
		return "", err
	}
	defer l.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("local generation panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("generation failed: %v", r)
		}
	}()

	opts := sample.Options{
		MaxNewTokens: req.MaxTokens,
		Temperature:  req.Temperature,
		TopK:         req.TopK,
		Threads:      l.threads,
	}
	if req.StopAtEOT {
		if id, ok := l.tok.PieceToID(tokenizer.EndOfText); ok {
			opts.StopIDs = []int32{id}
		}
	}

	ids := l.tok.Encode(req.Prompt)
	g := sample.Generator{
		Model: l.model,
		Rand:  rand.New(rand.NewPCG(l.nextSeed(), 0)),
	}

	start := time.Now()
	out, err := g.Generate(ctx, ids, opts)
	if err != nil {
		return "", err
	}
	slog.Debug("local completion done", "prompt_tokens", len(ids), "completion_tokens", len(out)-len(ids), "duration", time.Since(start))

	if len(ids) == 0 {
		return l.tok.Decode(out), nil
	}
	return sample.TrimPrompt(req.Prompt, l.tok.Decode(out)), nil
}

// Close gibt nichts frei; das Modell liegt vollstaendig im Speicher
func (l *Local) Close() error {
	return nil
}
