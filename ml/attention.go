// attention.go - Kausale Multi-Head Self-Attention
//
// q, k, v haben die Form (B, T, C) mit C = heads * headSize. Jeder
// (Batch, Head)-Block wird unabhaengig in einer eigenen Goroutine berechnet.
package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// CausalSelfAttention berechnet softmax(q k^T / sqrt(headSize) + mask) v pro Head.
// Position t sieht nur Positionen <= t. p ist die Dropout-Rate auf den
// Attention-Gewichten und wirkt nur im Training.
func (c *Context) CausalSelfAttention(q, k, v *Tensor, heads int, p float32) (*Tensor, error) {
	if len(q.Shape) != 3 {
		return nil, fmt.Errorf("attention: expected (B, T, C), got %v", q.Shape)
	}
	for _, t := range []*Tensor{k, v} {
		if len(t.Shape) != 3 || t.Shape[0] != q.Shape[0] || t.Shape[1] != q.Shape[1] || t.Shape[2] != q.Shape[2] {
			return nil, fmt.Errorf("attention: shape %v does not match %v", t.Shape, q.Shape)
		}
	}

	B, T, C := q.Shape[0], q.Shape[1], q.Shape[2]
	if heads <= 0 || C%heads != 0 {
		return nil, fmt.Errorf("attention: %d channels not divisible by %d heads", C, heads)
	}
	hs := C / heads
	scale := float32(1 / math.Sqrt(float64(hs)))

	dropout := c.train && p > 0
	seeds := make([]uint64, B*heads)
	if dropout {
		for i := range seeds {
			seeds[i] = c.rng.Uint64()
		}
	}

	out := New(B, T, C)
	// Softmax-Gewichte und Dropout-Maske fuer den Rueckwaerts-Pfad
	att := make([]float32, B*heads*T*T)
	var mask []float32
	if dropout {
		mask = make([]float32, B*heads*T*T)
	}

	var g errgroup.Group
	g.SetLimit(c.threads)
	for bh := range B * heads {
		g.Go(func() error {
			b, h := bh/heads, bh%heads
			a := att[bh*T*T : (bh+1)*T*T]

			var rng *rand.Rand
			var m []float32
			if dropout {
				rng = rand.New(rand.NewPCG(seeds[bh], uint64(bh)))
				m = mask[bh*T*T : (bh+1)*T*T]
			}

			for t := range T {
				qt := q.Data[(b*T+t)*C+h*hs : (b*T+t)*C+(h+1)*hs]
				row := a[t*T : (t+1)*T]

				maxv := float32(math.Inf(-1))
				for s := 0; s <= t; s++ {
					ks := k.Data[(b*T+s)*C+h*hs : (b*T+s)*C+(h+1)*hs]
					var dot float32
					for d := range hs {
						dot += qt[d] * ks[d]
					}
					row[s] = dot * scale
					maxv = max(maxv, row[s])
				}

				// Positionen > t bleiben 0 (entspricht -Inf vor der Softmax)
				var sum float32
				for s := 0; s <= t; s++ {
					row[s] = float32(math.Exp(float64(row[s] - maxv)))
					sum += row[s]
				}
				for s := 0; s <= t; s++ {
					row[s] /= sum
				}

				o := out.Data[(b*T+t)*C+h*hs : (b*T+t)*C+(h+1)*hs]
				for s := 0; s <= t; s++ {
					w := row[s]
					if m != nil {
						if rng.Float32() >= p {
							m[t*T+s] = 1 / (1 - p)
						}
						w *= m[t*T+s]
					}
					vs := v.Data[(b*T+s)*C+h*hs : (b*T+s)*C+(h+1)*hs]
					for d := range hs {
						o[d] += w * vs[d]
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return c.record(out, func() {
		var gq, gk, gv []float32
		if q.requiresGrad {
			gq = q.ensureGrad()
		}
		if k.requiresGrad {
			gk = k.ensureGrad()
		}
		if v.requiresGrad {
			gv = v.ensureGrad()
		}

		var g errgroup.Group
		g.SetLimit(c.threads)
		for bh := range B * heads {
			g.Go(func() error {
				b, h := bh/heads, bh%heads
				a := att[bh*T*T : (bh+1)*T*T]
				var m []float32
				if mask != nil {
					m = mask[bh*T*T : (bh+1)*T*T]
				}

				datt := make([]float32, T)
				for t := range T {
					dout := out.Grad[(b*T+t)*C+h*hs : (b*T+t)*C+(h+1)*hs]
					row := a[t*T : (t+1)*T]

					// Gradient der (gedroppten) Gewichte und von v
					for s := 0; s <= t; s++ {
						vs := v.Data[(b*T+s)*C+h*hs : (b*T+s)*C+(h+1)*hs]
						var dot float32
						for d := range hs {
							dot += dout[d] * vs[d]
						}
						w := row[s]
						if m != nil {
							dot *= m[t*T+s]
							w *= m[t*T+s]
						}
						datt[s] = dot

						if gv != nil {
							gvs := gv[(b*T+s)*C+h*hs : (b*T+s)*C+(h+1)*hs]
							for d := range hs {
								gvs[d] += w * dout[d]
							}
						}
					}

					// Softmax-Rueckwaerts
					var sum float32
					for s := 0; s <= t; s++ {
						sum += row[s] * datt[s]
					}

					qt := q.Data[(b*T+t)*C+h*hs : (b*T+t)*C+(h+1)*hs]
					for s := 0; s <= t; s++ {
						dpre := row[s] * (datt[s] - sum) * scale
						if dpre == 0 {
							continue
						}
						ks := k.Data[(b*T+s)*C+h*hs : (b*T+s)*C+(h+1)*hs]
						if gq != nil {
							gqt := gq[(b*T+t)*C+h*hs : (b*T+t)*C+(h+1)*hs]
							for d := range hs {
								gqt[d] += dpre * ks[d]
							}
						}
						if gk != nil {
							gks := gk[(b*T+s)*C+h*hs : (b*T+s)*C+(h+1)*hs]
							for d := range hs {
								gks[d] += dpre * qt[d]
							}
						}
					}
				}
				return nil
			})
		}
		g.Wait() //nolint:errcheck
	}, q, k, v), nil
}
