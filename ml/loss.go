// loss.go - Kreuzentropie ueber Logits
package ml

import (
	"fmt"
	"math"
)

// CrossEntropy berechnet den mittleren negativen Log-Likelihood der targets
// unter softmax(logits). logits hat die Form (..., V), targets eine id pro Zeile.
func (c *Context) CrossEntropy(logits *Tensor, targets []int32) (*Tensor, error) {
	vocab, rows := logits.cols(), logits.rows()
	if len(targets) != rows {
		return nil, fmt.Errorf("cross entropy: %d targets for %d rows", len(targets), rows)
	}

	// Pro Zeile nur Maximum und log-sum-exp, die Softmax wird im
	// Rueckwaerts-Pfad neu berechnet
	maxs := make([]float32, rows)
	lse := make([]float64, rows)

	var total float64
	for r, target := range targets {
		if target < 0 || int(target) >= vocab {
			return nil, fmt.Errorf("cross entropy: target %d out of range [0,%d)", target, vocab)
		}

		row := logits.Data[r*vocab : (r+1)*vocab]
		m := row[0]
		for _, v := range row[1:] {
			m = max(m, v)
		}

		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - m))
		}
		maxs[r], lse[r] = m, math.Log(sum)
		total += lse[r] - float64(row[target]-m)
	}

	out := New(1)
	out.Data[0] = float32(total / float64(rows))

	return c.record(out, func() {
		if !logits.requiresGrad {
			return
		}
		g := logits.ensureGrad()
		scale := out.Grad[0] / float32(rows)
		for r, target := range targets {
			row := logits.Data[r*vocab : (r+1)*vocab]
			grow := g[r*vocab : (r+1)*vocab]
			for j, v := range row {
				prob := float32(math.Exp(float64(v-maxs[r]) - lse[r]))
				if j == int(target) {
					prob--
				}
				grow[j] += prob * scale
			}
		}
	}, logits), nil
}
