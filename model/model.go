// Package model - Decoder-only Transformer Sprachmodell
//
// Dieses Paket enthaelt das GPT-Modell, seine Konfiguration und das
// Speichern/Laden von Checkpoints.
//
// Hauptkomponenten:
// - Config: Hyperparameter mit Validierung
// - Model: Embeddings, Transformer-Bloecke, finale Norm und Projektion
// - Forward: Logits und optional Loss fuer einen Batch
// - StateDict: Geordnete Abbildung Tensor-Name -> Parameter

package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/edullm/edullm/ml"
)

// Fehler-Definitionen
var (
	ErrShapeMismatch     = errors.New("tensor shape mismatch")
	ErrMissingTensor     = errors.New("missing tensor")
	ErrContextTooLong    = errors.New("sequence longer than context window")
	ErrUnsupportedDevice = errors.New("unsupported device")
	ErrInvalidConfig     = errors.New("invalid model config")
)

// Config enthaelt die Hyperparameter des Modells
type Config struct {
	VocabSize int
	EmbedDim  int
	Heads     int
	Layers    int
	BlockSize int
	Dropout   float32
}

// DefaultConfig gibt die Standard-Hyperparameter fuer ein Vokabular zurueck
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize: vocabSize,
		EmbedDim:  384,
		Heads:     6,
		Layers:    6,
		BlockSize: 256,
		Dropout:   0.2,
	}
}

// Validate prueft die Konsistenz der Hyperparameter
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("%w: vocab size %d", ErrInvalidConfig, c.VocabSize)
	case c.EmbedDim <= 0 || c.Heads <= 0 || c.Layers <= 0 || c.BlockSize <= 0:
		return fmt.Errorf("%w: sizes must be positive", ErrInvalidConfig)
	case c.EmbedDim%c.Heads != 0:
		return fmt.Errorf("%w: embedding %d not divisible by %d heads", ErrInvalidConfig, c.EmbedDim, c.Heads)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout %v", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// HeadSize ist die Dimension eines Attention-Heads
func (c Config) HeadSize() int {
	return c.EmbedDim / c.Heads
}

// Model ist das GPT-Sprachmodell. Es haelt keinen Modus; ob Dropout aktiv
// ist entscheidet der ml.Context des Aufrufers.
type Model struct {
	Config

	TokenEmbedding    *Embedding `gguf:"token_embd"`
	PositionEmbedding *Embedding `gguf:"position_embd"`
	Blocks            []*Block   `gguf:"blk"`
	OutputNorm        *LayerNorm `gguf:"output_norm"`
	Output            *Linear    `gguf:"output"`
}

// New erstellt ein Modell mit zufaellig initialisierten Gewichten
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(1337, 0))
	}

	m := &Model{
		Config:            cfg,
		TokenEmbedding:    newEmbedding(rng, cfg.VocabSize, cfg.EmbedDim),
		PositionEmbedding: newEmbedding(rng, cfg.BlockSize, cfg.EmbedDim),
		Blocks:            make([]*Block, cfg.Layers),
		OutputNorm:        newLayerNorm(cfg.EmbedDim),
		Output:            newLinear(rng, cfg.EmbedDim, cfg.VocabSize, true),
	}
	for i := range m.Blocks {
		m.Blocks[i] = newBlock(rng, cfg)
	}
	return m, nil
}

// Forward berechnet die Logits (B, T, V) fuer ids. Mit targets wird zusaetzlich
// die mittlere Kreuzentropie zurueckgegeben, sonst ist loss nil.
func (m *Model) Forward(ctx *ml.Context, ids [][]int32, targets [][]int32) (logits, loss *ml.Tensor, err error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return nil, nil, errors.New("empty batch")
	}

	B, T := len(ids), len(ids[0])
	if T > m.BlockSize {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrContextTooLong, T, m.BlockSize)
	}

	flat := make([]int32, 0, B*T)
	for _, row := range ids {
		if len(row) != T {
			return nil, nil, fmt.Errorf("batch rows have different lengths: %d and %d", T, len(row))
		}
		for _, id := range row {
			if id < 0 || int(id) >= m.VocabSize {
				return nil, nil, fmt.Errorf("token id %d out of range [0,%d)", id, m.VocabSize)
			}
		}
		flat = append(flat, row...)
	}

	tok, err := ctx.Embedding(m.TokenEmbedding.Weight, flat, B, T)
	if err != nil {
		return nil, nil, err
	}

	positions := make([]int32, T)
	for i := range positions {
		positions[i] = int32(i)
	}
	pos, err := ctx.Embedding(m.PositionEmbedding.Weight, positions, T)
	if err != nil {
		return nil, nil, err
	}

	x, err := ctx.Add(tok, pos)
	if err != nil {
		return nil, nil, err
	}

	for _, b := range m.Blocks {
		if x, err = b.Forward(ctx, x, m.Config); err != nil {
			return nil, nil, err
		}
	}

	if x, err = m.OutputNorm.Forward(ctx, x); err != nil {
		return nil, nil, err
	}
	if logits, err = m.Output.Forward(ctx, x); err != nil {
		return nil, nil, err
	}

	if targets == nil {
		return logits, nil, nil
	}

	if len(targets) != B {
		return nil, nil, fmt.Errorf("%d target rows for %d input rows", len(targets), B)
	}
	flatTargets := make([]int32, 0, B*T)
	for _, row := range targets {
		if len(row) != T {
			return nil, nil, fmt.Errorf("target row length %d, expected %d", len(row), T)
		}
		flatTargets = append(flatTargets, row...)
	}

	loss, err = ctx.CrossEntropy(logits, flatTargets)
	if err != nil {
		return nil, nil, err
	}
	return logits, loss, nil
}

// StateDict bildet die Tensor-Namen in fester Reihenfolge auf die Parameter ab
type StateDict = orderedmap.OrderedMap[string, *ml.Tensor]

// StateDict gibt alle Parameter mit ihren Checkpoint-Namen zurueck
func (m *Model) StateDict() *StateDict {
	sd := orderedmap.New[string, *ml.Tensor]()
	walkTensors(reflect.ValueOf(m), func(names []string, t *ml.Tensor) {
		sd.Set(names[0], t)
	})
	return sd
}

// tensorNames liefert zu jedem Parameter alle akzeptierten Namen
func (m *Model) tensorNames() map[*ml.Tensor][]string {
	names := make(map[*ml.Tensor][]string)
	walkTensors(reflect.ValueOf(m), func(n []string, t *ml.Tensor) {
		names[t] = n
	})
	return names
}

// Parameters gibt alle trainierbaren Tensors zurueck
func (m *Model) Parameters() []*ml.Tensor {
	sd := m.StateDict()
	params := make([]*ml.Tensor, 0, sd.Len())
	for pair := sd.Oldest(); pair != nil; pair = pair.Next() {
		params = append(params, pair.Value)
	}
	return params
}

// NumParams gibt die Anzahl aller Parameter-Werte zurueck
func (m *Model) NumParams() int {
	var n int
	for _, p := range m.Parameters() {
		n += p.Len()
	}
	return n
}

// ContextLength ist die maximale Sequenzlaenge (block size)
func (m *Model) ContextLength() int {
	return m.BlockSize
}
