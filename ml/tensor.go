// tensor.go - Float32-Tensor mit Gradienten fuer Training und Inferenz
//
// Enthaelt:
// - Tensor: Form, Daten, Gradient und Rueckwaerts-Funktion
// - NewParam/New/FromData: Konstruktoren
// - Backward: Reverse-Mode Autodiff ueber den aufgezeichneten Graphen
package ml

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNotScalar wird zurueckgegeben wenn Backward auf einem Nicht-Skalar aufgerufen wird
var ErrNotScalar = errors.New("backward requires a scalar tensor")

// Tensor ist ein dichter float32-Tensor in row-major Reihenfolge.
// Die letzte Dimension ist die Spalten-Dimension aller 2D-Operationen.
type Tensor struct {
	Shape []int
	Data  []float32
	Grad  []float32

	requiresGrad bool
	parents      []*Tensor
	backward     func()
}

// New erstellt einen Tensor mit Nullen
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, n)}
}

// NewParam erstellt einen trainierbaren Tensor mit Nullen
func NewParam(shape ...int) *Tensor {
	t := New(shape...)
	t.requiresGrad = true
	return t
}

// FromData erstellt einen Tensor aus vorhandenen Daten (ohne Kopie)
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("%d values do not fit shape %v", len(data), shape)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// RequiresGrad meldet ob fuer diesen Tensor Gradienten berechnet werden
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// Len gibt die Anzahl der Elemente zurueck
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Dim gibt die Groesse der Dimension i zurueck (negative i zaehlen von hinten)
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Item gibt den Wert eines Skalars zurueck
func (t *Tensor) Item() float32 {
	return t.Data[0]
}

// cols ist die Breite der letzten Dimension
func (t *Tensor) cols() int {
	return t.Shape[len(t.Shape)-1]
}

// rows ist die Anzahl der Zeilen bei 2D-Sicht
func (t *Tensor) rows() int {
	return len(t.Data) / t.cols()
}

// ensureGrad allokiert den Gradienten bei Bedarf
func (t *Tensor) ensureGrad() []float32 {
	if t.Grad == nil {
		t.Grad = make([]float32, len(t.Data))
	}
	return t.Grad
}

// ZeroGrad verwirft den Gradienten
func (t *Tensor) ZeroGrad() {
	t.Grad = nil
}

// CopyFrom kopiert Daten gleicher Form in t
func (t *Tensor) CopyFrom(data []float32) error {
	if len(data) != len(t.Data) {
		return fmt.Errorf("%d values do not fit shape %v", len(data), t.Shape)
	}
	copy(t.Data, data)
	return nil
}

// Backward berechnet die Gradienten aller Vorgaenger eines skalaren Tensors
func (t *Tensor) Backward() error {
	if len(t.Data) != 1 {
		return fmt.Errorf("%w: shape %v", ErrNotScalar, t.Shape)
	}
	if !t.requiresGrad {
		return errors.New("tensor does not require grad")
	}

	// Topologische Sortierung (Eltern vor Kindern)
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(*Tensor)
	visit = func(n *Tensor) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.parents {
			if p.requiresGrad {
				visit(p)
			}
		}
		order = append(order, n)
	}
	visit(t)

	t.ensureGrad()[0] = 1
	for i := len(order) - 1; i >= 0; i-- {
		if n := order[i]; n.backward != nil {
			n.backward()
		}
	}

	// Graph freigeben, damit Aktivierungen vom GC eingesammelt werden
	for _, n := range order {
		n.parents, n.backward = nil, nil
	}
	return nil
}
