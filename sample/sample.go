// Package sample - Autoregressive Textgenerierung
//
// Enthaelt:
// - Generator: erzeugt Token fuer Token aus einem Sprachmodell
// - Softmax/Sample: Temperatur, Top-K und Ziehen aus der Verteilung
// - TrimPrompt: trennt den generierten Teil vom Prompt
package sample

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/edullm/edullm/logutil"
	"github.com/edullm/edullm/ml"
)

// ErrInvalidTemperature wird bei negativer oder NaN-Temperatur zurueckgegeben
var ErrInvalidTemperature = errors.New("temperature must be a non-negative number")

// LanguageModel liefert Logits (B, T, V) fuer einen Batch von Token-IDs
type LanguageModel interface {
	Forward(ctx *ml.Context, ids [][]int32, targets [][]int32) (*ml.Tensor, *ml.Tensor, error)
	ContextLength() int
}

// Options steuert eine Generierung
type Options struct {
	MaxNewTokens int
	// Temperature 0 bedeutet 1.0
	Temperature float64
	// TopK 0 deaktiviert die Begrenzung
	TopK int
	// StopIDs beenden die Generierung nach dem Ziehen eines dieser Tokens
	StopIDs []int32
	// Threads begrenzt die Parallelitaet im Modell (0 = GOMAXPROCS)
	Threads int
}

// Generator erzeugt Sequenzen; Rand ist nicht nebenlaeufig nutzbar
type Generator struct {
	Model LanguageModel
	Rand  *rand.Rand
}

func temperature(t float64) (float64, error) {
	switch {
	case math.IsNaN(t) || t < 0:
		return 0, fmt.Errorf("%w: %v", ErrInvalidTemperature, t)
	case t == 0:
		return 1, nil
	}
	return t, nil
}

// Generate haengt bis zu MaxNewTokens Tokens an prompt an und gibt die
// gesamte Sequenz zurueck. Ein leerer Prompt wird intern mit Token 0
// konditioniert; dieser Token ist nicht Teil des Ergebnisses.
func (g *Generator) Generate(ctx context.Context, prompt []int32, opts Options) ([]int32, error) {
	temp, err := temperature(opts.Temperature)
	if err != nil {
		return nil, err
	}

	if opts.MaxNewTokens <= 0 {
		return slices.Clone(prompt), nil
	}

	seq := slices.Clone(prompt)
	seeded := len(seq) == 0
	if seeded {
		seq = []int32{0}
	}

	rng := g.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	block := g.Model.ContextLength()
	for range opts.MaxNewTokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		window := seq[max(0, len(seq)-block):]
		logits, _, err := g.Model.Forward(ml.NewContext(ml.WithThreads(opts.Threads)), [][]int32{window}, nil)
		if err != nil {
			return nil, err
		}

		vocab := logits.Dim(-1)
		last := logits.Data[(len(window)-1)*vocab : len(window)*vocab]

		next := int32(Sample(Softmax(last, temp, opts.TopK), rng))
		seq = append(seq, next)
		logutil.Trace("sampled token", "id", next, "len", len(seq))

		if slices.Contains(opts.StopIDs, next) {
			break
		}
	}

	if seeded {
		return seq[1:], nil
	}
	return seq, nil
}

// Softmax berechnet die Wahrscheinlichkeiten von logits/temperature.
// Mit topK > 0 bekommen alle Logits ausserhalb der besten k die Wahrscheinlichkeit 0.
func Softmax(logits []float32, temperature float64, topK int) []float64 {
	if temperature <= 0 || math.IsNaN(temperature) {
		temperature = 1
	}

	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = float64(v) / temperature
	}

	if topK > 0 && topK < len(probs) {
		sorted := slices.Clone(probs)
		slices.Sort(sorted)
		threshold := sorted[len(sorted)-topK]
		for i, v := range probs {
			if v < threshold {
				probs[i] = math.Inf(-1)
			}
		}
	}

	m := floats.Max(probs)
	for i, v := range probs {
		probs[i] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return probs
}

// Sample zieht einen Index gemaess probs
func Sample(probs []float64, rng *rand.Rand) int {
	cdf := make([]float64, len(probs))
	floats.CumSum(cdf, probs)

	u := rng.Float64() * cdf[len(cdf)-1]
	i, _ := slices.BinarySearch(cdf, u)
	// erster Index mit cdf[i] > u, damit Eintraege mit Wahrscheinlichkeit 0 nie gewaehlt werden
	for i < len(probs)-1 && cdf[i] <= u {
		i++
	}
	return i
}
