// checkpoint.go - Speichern und Laden von Checkpoints im GGUF-Format
//
// Die Hyperparameter liegen unter "edullm.*", die Tensors tragen die Namen
// aus StateDict. Dimensionen werden wie bei ggml mit der innersten zuerst
// abgelegt.
package model

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/edullm/edullm/fs/gguf"
	"github.com/edullm/edullm/logutil"
)

// Architecture ist der Wert von general.architecture
const Architecture = "edullm"

// SaveOptions steuert das Schreiben eines Checkpoints
type SaveOptions struct {
	// Kind ist der Tensor-Typ; Standard ist F32 (bitgenau)
	Kind gguf.Kind
	Name string
	// KV wird zusaetzlich in die Metadaten geschrieben
	KV gguf.KV
}

// LoadOptions steuert das Laden eines Checkpoints
type LoadOptions struct {
	// Device ist "", "auto" oder "cpu"
	Device string
	// VocabSize wird, falls gesetzt, mit dem Checkpoint verglichen
	VocabSize int
}

func (c Config) kv() gguf.KV {
	return gguf.KV{
		"general.architecture":     Architecture,
		"vocab_size":               uint32(c.VocabSize),
		"context_length":           uint32(c.BlockSize),
		"embedding_length":         uint32(c.EmbedDim),
		"attention.head_count":     uint32(c.Heads),
		"block_count":              uint32(c.Layers),
		"feed_forward_length":      uint32(4 * c.EmbedDim),
		"attention.dropout":        c.Dropout,
		"attention.layer_norm_eps": float32(1e-5),
	}
}

func configFromKV(kv gguf.KV) Config {
	return Config{
		VocabSize: int(kv.Uint("vocab_size")),
		BlockSize: int(kv.Uint("context_length")),
		EmbedDim:  int(kv.Uint("embedding_length")),
		Heads:     int(kv.Uint("attention.head_count")),
		Layers:    int(kv.Uint("block_count")),
		Dropout:   kv.Float("attention.dropout"),
	}
}

func reversed(shape []int) []uint64 {
	out := make([]uint64, len(shape))
	for i, d := range shape {
		out[len(shape)-1-i] = uint64(d)
	}
	return out
}

// Save schreibt den Checkpoint nach path; eine vorhandene Datei wird ersetzt
func (m *Model) Save(path string, opts SaveOptions) error {
	kv := m.Config.kv()
	for k, v := range opts.KV {
		kv[k] = v
	}
	if opts.Name != "" {
		kv["general.name"] = opts.Name
	}

	sd := m.StateDict()
	ts := make([]*gguf.Tensor, 0, sd.Len())
	for pair := sd.Oldest(); pair != nil; pair = pair.Next() {
		ts = append(ts, &gguf.Tensor{
			Name:  pair.Key,
			Kind:  opts.Kind,
			Shape: reversed(pair.Value.Shape),
			Data:  pair.Value.Data,
		})
	}

	if err := gguf.WriteFile(path, kv, ts); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	slog.Debug("checkpoint saved", "path", path, "tensors", len(ts), "kind", opts.Kind)
	return nil
}

// ReadConfig liest nur die Hyperparameter eines Checkpoints
func ReadConfig(path string) (Config, gguf.KV, error) {
	f, err := gguf.Open(path)
	if err != nil {
		return Config{}, nil, err
	}
	return configFromKV(f.KV), f.KV, nil
}

// Load liest einen Checkpoint und baut das Modell daraus auf
func Load(path string, opts LoadOptions) (*Model, error) {
	switch strings.ToLower(opts.Device) {
	case "", "auto", "cpu":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDevice, opts.Device)
	}

	f, err := gguf.Open(path)
	if err != nil {
		return nil, err
	}

	if arch := f.KV.Architecture(); arch != Architecture {
		return nil, fmt.Errorf("unsupported architecture %q", arch)
	}

	cfg := configFromKV(f.KV)
	if opts.VocabSize > 0 && opts.VocabSize != cfg.VocabSize {
		return nil, fmt.Errorf("%w: checkpoint vocabulary %d, tokenizer %d", ErrShapeMismatch, cfg.VocabSize, opts.VocabSize)
	}

	m, err := New(cfg, nil)
	if err != nil {
		return nil, err
	}

	for t, names := range m.tensorNames() {
		var src *gguf.Tensor
		for _, name := range names {
			if gt, ok := f.Tensor(name); ok {
				src = gt
				break
			}
		}
		if src == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingTensor, names[0])
		}

		if want := reversed(t.Shape); !slices.Equal(want, src.Shape) {
			return nil, fmt.Errorf("%w: %s has shape %v, expected %v", ErrShapeMismatch, src.Name, src.Shape, want)
		}
		if err := t.CopyFrom(src.Data); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrShapeMismatch, src.Name, err)
		}
		logutil.Trace("loaded tensor", "name", src.Name, "shape", src.Shape)
	}

	slog.Info("model loaded", "path", path, "params", m.NumParams(), "layers", cfg.Layers, "vocab", cfg.VocabSize)
	return m, nil
}
