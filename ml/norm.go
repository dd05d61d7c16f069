// norm.go - LayerNorm ueber die letzte Dimension
package ml

import (
	"fmt"
	"math"
)

// LayerNormEps entspricht dem Standard von torch.nn.LayerNorm
const LayerNormEps = 1e-5

// LayerNorm normalisiert jede Zeile auf Mittelwert 0 und Varianz 1 und
// wendet danach weight und bias an.
func (c *Context) LayerNorm(x, weight, bias *Tensor) (*Tensor, error) {
	dim := x.cols()
	if weight.Len() != dim || bias.Len() != dim {
		return nil, fmt.Errorf("layernorm: input %v does not match weight %v", x.Shape, weight.Shape)
	}

	rows := x.rows()
	out := New(x.Shape...)
	mean := make([]float32, rows)
	rstd := make([]float32, rows)

	for r := range rows {
		row := x.Data[r*dim : (r+1)*dim]
		var m float64
		for _, v := range row {
			m += float64(v)
		}
		m /= float64(dim)

		var variance float64
		for _, v := range row {
			d := float64(v) - m
			variance += d * d
		}
		variance /= float64(dim)

		s := 1 / math.Sqrt(variance+LayerNormEps)
		mean[r], rstd[r] = float32(m), float32(s)

		o := out.Data[r*dim : (r+1)*dim]
		for j, v := range row {
			o[j] = (v-mean[r])*rstd[r]*weight.Data[j] + bias.Data[j]
		}
	}

	return c.record(out, func() {
		var gx, gw, gb []float32
		if x.requiresGrad {
			gx = x.ensureGrad()
		}
		if weight.requiresGrad {
			gw = weight.ensureGrad()
		}
		if bias.requiresGrad {
			gb = bias.ensureGrad()
		}

		for r := range rows {
			row := x.Data[r*dim : (r+1)*dim]
			dout := out.Grad[r*dim : (r+1)*dim]

			// zwei Reduktionen wie in llm.c
			var dnormMean, dnormNormMean float32
			for j, v := range row {
				norm := (v - mean[r]) * rstd[r]
				dnorm := weight.Data[j] * dout[j]
				dnormMean += dnorm
				dnormNormMean += dnorm * norm
			}
			dnormMean /= float32(dim)
			dnormNormMean /= float32(dim)

			for j, v := range row {
				norm := (v - mean[r]) * rstd[r]
				if gb != nil {
					gb[j] += dout[j]
				}
				if gw != nil {
					gw[j] += norm * dout[j]
				}
				if gx != nil {
					dnorm := weight.Data[j] * dout[j]
					gx[r*dim+j] += (dnorm - dnormMean - norm*dnormNormMean) * rstd[r]
				}
			}
		}
	}, x, weight, bias), nil
}
