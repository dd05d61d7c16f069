// optim.go - AdamW Optimizer
package ml

import "math"

// AdamW implementiert Adam mit entkoppeltem Weight Decay
type AdamW struct {
	LR          float32
	Beta1       float32
	Beta2       float32
	Eps         float32
	WeightDecay float32

	params []*Tensor
	m, v   [][]float32
	step   int
}

// NewAdamW erstellt einen Optimizer mit den ueblichen Standardwerten
func NewAdamW(params []*Tensor, lr float32) *AdamW {
	o := &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: 0.01,
		params:      params,
		m:           make([][]float32, len(params)),
		v:           make([][]float32, len(params)),
	}
	for i, p := range params {
		o.m[i] = make([]float32, p.Len())
		o.v[i] = make([]float32, p.Len())
	}
	return o
}

// Steps gibt die Anzahl bisheriger Schritte zurueck
func (o *AdamW) Steps() int {
	return o.step
}

// Step aktualisiert alle Parameter mit ihren Gradienten.
// Parameter ohne Gradient werden uebersprungen.
func (o *AdamW) Step() {
	o.step++
	bc1 := 1 - math.Pow(float64(o.Beta1), float64(o.step))
	bc2 := 1 - math.Pow(float64(o.Beta2), float64(o.step))

	for i, p := range o.params {
		if p.Grad == nil {
			continue
		}
		m, v := o.m[i], o.v[i]
		for j, g := range p.Grad {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*g
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*g*g
			mhat := float64(m[j]) / bc1
			vhat := float64(v[j]) / bc2

			p.Data[j] -= o.LR * o.WeightDecay * p.Data[j]
			p.Data[j] -= o.LR * float32(mhat/(math.Sqrt(vhat)+float64(o.Eps)))
		}
	}
}

// ZeroGrad verwirft die Gradienten aller Parameter
func (o *AdamW) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}
