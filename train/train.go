// Package train - Trainingsschleife fuer das Sprachmodell
//
// Ablauf pro Schritt: Batch ziehen, Forward, Backward, AdamW-Schritt.
// Alle EvalInterval Schritte und im letzten Schritt wird der Loss auf
// beiden Splits geschaetzt und der Checkpoint ueberschrieben.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/edullm/edullm/fs/gguf"
	"github.com/edullm/edullm/ml"
	"github.com/edullm/edullm/model"
)

// Config enthaelt die Trainings-Hyperparameter
type Config struct {
	BatchSize    int
	BlockSize    int
	MaxIters     int
	EvalInterval int
	EvalIters    int
	LearningRate float32
	Seed         uint64
	Threads      int

	// CheckpointPath leer bedeutet: kein Checkpoint
	CheckpointPath string
	CheckpointKind gguf.Kind
	// CheckpointKV wird in jeden Checkpoint geschrieben
	CheckpointKV gguf.KV
}

// DefaultConfig gibt die Standard-Hyperparameter zurueck
func DefaultConfig() Config {
	return Config{
		BatchSize:    32,
		BlockSize:    256,
		MaxIters:     20000,
		EvalInterval: 1000,
		EvalIters:    200,
		LearningRate: 3e-4,
		Seed:         1337,
	}
}

func (c Config) validate() error {
	switch {
	case c.BatchSize <= 0, c.BlockSize <= 0:
		return fmt.Errorf("batch size and block size must be positive")
	case c.MaxIters < 0, c.EvalIters <= 0:
		return fmt.Errorf("invalid iteration counts")
	case c.EvalInterval <= 0:
		return fmt.Errorf("eval interval must be positive")
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive")
	}
	return nil
}

// EvalEvent beschreibt eine Evaluierung
type EvalEvent struct {
	Step    int
	Train   float64
	Val     float64
	Elapsed time.Duration
}

// Result fasst einen Trainingslauf zusammen
type Result struct {
	Steps  int
	Events []EvalEvent
	// Losses ist der Batch-Loss jedes Schritts
	Losses []float32
}

// Trainer trainiert ein Modell auf einem Dataset
type Trainer struct {
	Model *model.Model
	Data  Dataset
	Config

	// OnEval wird nach jeder Evaluierung aufgerufen
	OnEval func(step int, losses map[string]float64)
}

// Run fuehrt die Trainingsschleife aus. Ein abgebrochener ctx beendet den
// Lauf zwischen zwei Schritten; es gibt keinen wiederaufnehmbaren Zustand.
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	if err := t.validate(); err != nil {
		return Result{}, err
	}
	if t.BlockSize > t.Model.BlockSize {
		return Result{}, fmt.Errorf("%w: block size %d > model context %d", model.ErrContextTooLong, t.BlockSize, t.Model.BlockSize)
	}
	for name, split := range map[string][]int32{"train": t.Data.Train, "val": t.Data.Val} {
		if len(split) <= t.BlockSize {
			return Result{}, fmt.Errorf("%w: %s split has %d tokens, block size %d", ErrCorpusTooSmall, name, len(split), t.BlockSize)
		}
	}

	batchRNG := rand.New(rand.NewPCG(t.Seed, 0))
	dropoutRNG := rand.New(rand.NewPCG(t.Seed, 1))
	evalRNG := rand.New(rand.NewPCG(t.Seed, 2))

	opt := ml.NewAdamW(t.Model.Parameters(), t.LearningRate)
	slog.Info("training started", "params", t.Model.NumParams(), "iters", t.MaxIters, "batch", t.BatchSize, "block", t.BlockSize, "lr", t.LearningRate)

	var result Result
	start := time.Now()
	for step := range t.MaxIters {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if step%t.EvalInterval == 0 || step == t.MaxIters-1 {
			losses, err := EstimateLoss(t.Model, t.Data, t.EvalIters, t.BatchSize, t.BlockSize, evalRNG, t.Threads)
			if err != nil {
				return result, err
			}

			ev := EvalEvent{Step: step, Train: losses["train"], Val: losses["val"], Elapsed: time.Since(start)}
			result.Events = append(result.Events, ev)
			slog.Info("eval", "step", step, "train_loss", fmt.Sprintf("%.4f", ev.Train), "val_loss", fmt.Sprintf("%.4f", ev.Val), "elapsed", ev.Elapsed.Round(time.Millisecond))

			if t.CheckpointPath != "" {
				if err := t.Model.Save(t.CheckpointPath, model.SaveOptions{Kind: t.CheckpointKind, KV: t.CheckpointKV}); err != nil {
					return result, err
				}
			}
			if t.OnEval != nil {
				t.OnEval(step, losses)
			}
		}

		x, y, err := GetBatch(t.Data.Train, t.BatchSize, t.BlockSize, batchRNG)
		if err != nil {
			return result, err
		}

		_, loss, err := t.Model.Forward(ml.NewContext(ml.WithTraining(dropoutRNG), ml.WithThreads(t.Threads)), x, y)
		if err != nil {
			return result, fmt.Errorf("step %d: %w", step, err)
		}

		opt.ZeroGrad()
		if err := loss.Backward(); err != nil {
			return result, fmt.Errorf("step %d: %w", step, err)
		}
		opt.Step()

		result.Losses = append(result.Losses, loss.Item())
		result.Steps = step + 1
	}

	slog.Info("training finished", "steps", result.Steps, "elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// EstimateLoss mittelt den Loss ueber evalIters Batches je Split, ohne Dropout
// und ohne Gradienten.
func EstimateLoss(m *model.Model, ds Dataset, evalIters, batch, block int, rng *rand.Rand, threads int) (map[string]float64, error) {
	out := make(map[string]float64, 2)
	for _, split := range []struct {
		name string
		data []int32
	}{{"train", ds.Train}, {"val", ds.Val}} {
		var sum float64
		for range evalIters {
			x, y, err := GetBatch(split.data, batch, block, rng)
			if err != nil {
				return nil, err
			}
			_, loss, err := m.Forward(ml.NewContext(ml.WithThreads(threads)), x, y)
			if err != nil {
				return nil, err
			}
			sum += float64(loss.Item())
		}
		out[split.name] = sum / float64(evalIters)
	}
	return out, nil
}
