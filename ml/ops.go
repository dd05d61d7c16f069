// ops.go - Elementare Operationen mit Vorwaerts- und Rueckwaerts-Pfad
//
// Enthaelt:
// - Embedding: Zeilen-Lookup in einer Tabelle
// - Add: Elementweise Addition (Residual-Verbindungen)
// - Linear: x @ W + b ueber gonum blas32
// - ReLU, Dropout
package ml

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// general beschreibt einen Tensor als (rows, cols) Matrix fuer blas32
func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// Embedding liest fuer jede id die Zeile aus table (V, C).
// Das Ergebnis hat die Form shape + [C].
func (c *Context) Embedding(table *Tensor, ids []int32, shape ...int) (*Tensor, error) {
	vocab, dim := table.rows(), table.cols()
	for _, id := range ids {
		if id < 0 || int(id) >= vocab {
			return nil, fmt.Errorf("embedding: id %d out of range [0,%d)", id, vocab)
		}
	}

	out := New(append(slices.Clone(shape), dim)...)
	if out.Len() != len(ids)*dim {
		return nil, fmt.Errorf("embedding: %d ids do not fit shape %v", len(ids), shape)
	}

	for i, id := range ids {
		copy(out.Data[i*dim:(i+1)*dim], table.Data[int(id)*dim:(int(id)+1)*dim])
	}

	return c.record(out, func() {
		if !table.requiresGrad {
			return
		}
		grad := table.ensureGrad()
		for i, id := range ids {
			row := grad[int(id)*dim : (int(id)+1)*dim]
			for j, g := range out.Grad[i*dim : (i+1)*dim] {
				row[j] += g
			}
		}
	}, table), nil
}

// Add addiert zwei Tensors. b darf eine Zeile (cols) sein, die auf
// alle Zeilen von a addiert wird (Positions-Embeddings pro Batch).
func (c *Context) Add(a, b *Tensor) (*Tensor, error) {
	if a.cols() != b.cols() || a.Len()%b.Len() != 0 {
		return nil, fmt.Errorf("add: shapes %v and %v do not broadcast", a.Shape, b.Shape)
	}

	out := New(a.Shape...)
	n := b.Len()
	for i := range out.Data {
		out.Data[i] = a.Data[i] + b.Data[i%n]
	}

	return c.record(out, func() {
		if a.requiresGrad {
			ga := a.ensureGrad()
			for i, g := range out.Grad {
				ga[i] += g
			}
		}
		if b.requiresGrad {
			gb := b.ensureGrad()
			for i, g := range out.Grad {
				gb[i%n] += g
			}
		}
	}, a, b), nil
}

// Linear berechnet x @ w + bias mit w in der Form (in, out).
// bias darf nil sein.
func (c *Context) Linear(x, w, bias *Tensor) (*Tensor, error) {
	in, outDim := w.Shape[0], w.Shape[1]
	if x.cols() != in {
		return nil, fmt.Errorf("linear: input %v does not match weight %v", x.Shape, w.Shape)
	}
	if bias != nil && bias.Len() != outDim {
		return nil, fmt.Errorf("linear: bias %v does not match weight %v", bias.Shape, w.Shape)
	}

	rows := x.rows()
	shape := slices.Clone(x.Shape)
	shape[len(shape)-1] = outDim
	out := New(shape...)

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, general(x.Data, rows, in), general(w.Data, in, outDim), 0, general(out.Data, rows, outDim))
	if bias != nil {
		for r := range rows {
			row := out.Data[r*outDim : (r+1)*outDim]
			for j, b := range bias.Data {
				row[j] += b
			}
		}
	}

	return c.record(out, func() {
		dout := general(out.Grad, rows, outDim)
		if x.requiresGrad {
			// dx += dout @ w^T
			blas32.Gemm(blas.NoTrans, blas.Trans, 1, dout, general(w.Data, in, outDim), 1, general(x.ensureGrad(), rows, in))
		}
		if w.requiresGrad {
			// dw += x^T @ dout
			blas32.Gemm(blas.Trans, blas.NoTrans, 1, general(x.Data, rows, in), dout, 1, general(w.ensureGrad(), in, outDim))
		}
		if bias != nil && bias.requiresGrad {
			gb := bias.ensureGrad()
			for r := range rows {
				for j, g := range out.Grad[r*outDim : (r+1)*outDim] {
					gb[j] += g
				}
			}
		}
	}, x, w, bias), nil
}

// ReLU berechnet max(0, x)
func (c *Context) ReLU(x *Tensor) *Tensor {
	out := New(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}

	return c.record(out, func() {
		if !x.requiresGrad {
			return
		}
		gx := x.ensureGrad()
		for i, v := range x.Data {
			if v > 0 {
				gx[i] += out.Grad[i]
			}
		}
	}, x)
}

// Dropout setzt im Training Elemente mit Wahrscheinlichkeit p auf Null und
// skaliert den Rest mit 1/(1-p). Ausserhalb des Trainings ist es die Identitaet.
func (c *Context) Dropout(x *Tensor, p float32) *Tensor {
	if !c.train || p <= 0 {
		return x
	}

	scale := 1 / (1 - p)
	mask := make([]float32, x.Len())
	out := New(x.Shape...)
	for i, v := range x.Data {
		if c.rng.Float32() >= p {
			mask[i] = scale
			out.Data[i] = v * scale
		}
	}

	return c.record(out, func() {
		if !x.requiresGrad {
			return
		}
		gx := x.ensureGrad()
		for i, m := range mask {
			gx[i] += out.Grad[i] * m
		}
	}, x)
}
