// layers.go - Schichten des Sprachmodells
//
// Enthaelt:
// - Embedding, Linear, LayerNorm: Parameter-Container mit Forward
// - Block: Transformer-Block (Pre-Norm, Attention + FeedForward)
package model

import (
	"math/rand/v2"

	"github.com/edullm/edullm/ml"
)

// initStd ist die Standardabweichung der Gewichts-Initialisierung
const initStd = 0.02

func normal(rng *rand.Rand, shape ...int) *ml.Tensor {
	t := ml.NewParam(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64() * initStd)
	}
	return t
}

type Embedding struct {
	Weight *ml.Tensor `gguf:"weight"`
}

func newEmbedding(rng *rand.Rand, rows, dim int) *Embedding {
	return &Embedding{Weight: normal(rng, rows, dim)}
}

// Linear haelt das Gewicht in der Form (in, out) und optional einen Bias
type Linear struct {
	Weight *ml.Tensor `gguf:"weight"`
	Bias   *ml.Tensor `gguf:"bias"`
}

func newLinear(rng *rand.Rand, in, out int, bias bool) *Linear {
	l := &Linear{Weight: normal(rng, in, out)}
	if bias {
		l.Bias = ml.NewParam(out)
	}
	return l
}

func (l *Linear) Forward(ctx *ml.Context, x *ml.Tensor) (*ml.Tensor, error) {
	return ctx.Linear(x, l.Weight, l.Bias)
}

type LayerNorm struct {
	Weight *ml.Tensor `gguf:"weight"`
	Bias   *ml.Tensor `gguf:"bias"`
}

func newLayerNorm(dim int) *LayerNorm {
	ln := &LayerNorm{Weight: ml.NewParam(dim), Bias: ml.NewParam(dim)}
	for i := range ln.Weight.Data {
		ln.Weight.Data[i] = 1
	}
	return ln
}

func (ln *LayerNorm) Forward(ctx *ml.Context, x *ml.Tensor) (*ml.Tensor, error) {
	return ctx.LayerNorm(x, ln.Weight, ln.Bias)
}

// Block ist ein Transformer-Block: x + Attention(LN(x)), dann x + FFN(LN(x)).
// Die Attention-Projektionen haben keinen Bias.
type Block struct {
	AttnNorm   *LayerNorm `gguf:"attn_norm"`
	Query      *Linear    `gguf:"attn_q"`
	Key        *Linear    `gguf:"attn_k"`
	Value      *Linear    `gguf:"attn_v"`
	AttnOutput *Linear    `gguf:"attn_output,alt:attn_out"`

	FFNNorm *LayerNorm `gguf:"ffn_norm"`
	FFNUp   *Linear    `gguf:"ffn_up"`
	FFNDown *Linear    `gguf:"ffn_down"`
}

func newBlock(rng *rand.Rand, cfg Config) *Block {
	c := cfg.EmbedDim
	return &Block{
		AttnNorm:   newLayerNorm(c),
		Query:      newLinear(rng, c, c, false),
		Key:        newLinear(rng, c, c, false),
		Value:      newLinear(rng, c, c, false),
		AttnOutput: newLinear(rng, c, c, true),
		FFNNorm:    newLayerNorm(c),
		FFNUp:      newLinear(rng, c, 4*c, true),
		FFNDown:    newLinear(rng, 4*c, c, true),
	}
}

// Forward erwartet x in der Form (B, T, C)
func (b *Block) Forward(ctx *ml.Context, x *ml.Tensor, cfg Config) (*ml.Tensor, error) {
	h, err := b.AttnNorm.Forward(ctx, x)
	if err != nil {
		return nil, err
	}

	q, err := b.Query.Forward(ctx, h)
	if err != nil {
		return nil, err
	}
	k, err := b.Key.Forward(ctx, h)
	if err != nil {
		return nil, err
	}
	v, err := b.Value.Forward(ctx, h)
	if err != nil {
		return nil, err
	}

	att, err := ctx.CausalSelfAttention(q, k, v, cfg.Heads, cfg.Dropout)
	if err != nil {
		return nil, err
	}
	att, err = b.AttnOutput.Forward(ctx, att)
	if err != nil {
		return nil, err
	}
	x, err = ctx.Add(x, ctx.Dropout(att, cfg.Dropout))
	if err != nil {
		return nil, err
	}

	h, err = b.FFNNorm.Forward(ctx, x)
	if err != nil {
		return nil, err
	}
	h, err = b.FFNUp.Forward(ctx, h)
	if err != nil {
		return nil, err
	}
	h, err = b.FFNDown.Forward(ctx, ctx.ReLU(h))
	if err != nil {
		return nil, err
	}
	return ctx.Add(x, ctx.Dropout(h, cfg.Dropout))
}
