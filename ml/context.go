// context.go - Ausfuehrungskontext fuer Tensor-Operationen
//
// Ein Context legt fest ob Dropout aktiv ist (Training) und ob der
// Rueckwaerts-Graph aufgezeichnet wird. Parameter werden nie veraendert,
// nur neue Tensors erzeugt; ein Inferenz-Context kann daher von mehreren
// Goroutinen mit eigenen Contexts auf denselben Parametern genutzt werden.
package ml

import (
	"math/rand/v2"
	"runtime"
)

// Context steuert Modus, Zufallsquelle und Parallelitaet der Operationen
type Context struct {
	train   bool
	grad    bool
	rng     *rand.Rand
	threads int
}

// Option konfiguriert einen Context
type Option func(*Context)

// WithTraining aktiviert Dropout und die Aufzeichnung von Gradienten
func WithTraining(rng *rand.Rand) Option {
	return func(c *Context) {
		c.train = true
		c.grad = true
		c.rng = rng
	}
}

// WithGrad zeichnet Gradienten auf ohne Dropout zu aktivieren
func WithGrad() Option {
	return func(c *Context) {
		c.grad = true
	}
}

// WithThreads begrenzt die Anzahl paralleler Worker
func WithThreads(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.threads = n
		}
	}
}

// NewContext erstellt einen Context; ohne Optionen ist er im Inferenz-Modus
func NewContext(opts ...Option) *Context {
	c := &Context{threads: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(c)
	}
	if c.train && c.rng == nil {
		c.rng = rand.New(rand.NewPCG(0, 0))
	}
	return c
}

// Training meldet ob Dropout aktiv ist
func (c *Context) Training() bool {
	return c.train
}

// record haengt die Rueckwaerts-Funktion an out, wenn ein Eingang Gradienten braucht
func (c *Context) record(out *Tensor, backward func(), parents ...*Tensor) *Tensor {
	if !c.grad {
		return out
	}
	for _, p := range parents {
		if p != nil && p.requiresGrad {
			out.requiresGrad = true
			break
		}
	}
	if out.requiresGrad {
		for _, p := range parents {
			if p != nil {
				out.parents = append(out.parents, p)
			}
		}
		out.backward = backward
	}
	return out
}
