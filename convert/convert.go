// Package convert - Import von PyTorch-Checkpoints des Referenzmodells
//
// Die Gewichte eines GPT-Modells mit den Namen
//
//	token_embedding_table, position_embedding_table,
//	blocks.N.sa.heads.H.{key,query,value}, blocks.N.sa.proj,
//	blocks.N.ffwd.net.{0,2}, blocks.N.ln1, blocks.N.ln2, ln_f, lm_head
//
// werden in ein model.Model uebertragen. nn.Linear speichert (out, in), das
// Modell erwartet (in, out); lineare Gewichte werden daher transponiert und
// die Heads entlang der Ausgabe-Dimension zusammengefuegt.
package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/edullm/edullm/ml"
	"github.com/edullm/edullm/model"
)

// ErrUnknownLayout wird zurueckgegeben wenn der Checkpoint nicht dem
// erwarteten Aufbau entspricht
var ErrUnknownLayout = errors.New("unrecognized checkpoint layout")

// Options steuert den Import
type Options struct {
	// Dropout wird nicht im Checkpoint gespeichert
	Dropout float32
}

// replacements bildet die uebrigen Namen 1:1 auf Checkpoint-Namen ab
var replacements = strings.NewReplacer(
	"token_embedding_table", "token_embd",
	"position_embedding_table", "position_embd",
	"sa.proj", "attn_output",
	"ffwd.net.0", "ffn_up",
	"ffwd.net.2", "ffn_down",
	"ln1", "attn_norm",
	"ln2", "ffn_norm",
	"ln_f", "output_norm",
	"lm_head", "output",
	"blocks.", "blk.",
)

var headPattern = regexp.MustCompile(`^blocks\.(\d+)\.sa\.heads\.(\d+)\.(key|query|value)\.weight$`)

// ImportTorch liest einen PyTorch state_dict und baut das Modell daraus auf
func ImportTorch(path string, opts Options) (*model.Model, error) {
	ts, err := parseTorch(path)
	if err != nil {
		return nil, err
	}
	return fromStateDict(ts, opts)
}

// inferConfig leitet die Hyperparameter aus den Tensor-Formen ab
func inferConfig(ts map[string]torchTensor, dropout float32) (model.Config, error) {
	tok, ok := ts["token_embedding_table.weight"]
	if !ok || len(tok.shape) != 2 {
		return model.Config{}, fmt.Errorf("%w: token_embedding_table.weight missing", ErrUnknownLayout)
	}
	pos, ok := ts["position_embedding_table.weight"]
	if !ok || len(pos.shape) != 2 {
		return model.Config{}, fmt.Errorf("%w: position_embedding_table.weight missing", ErrUnknownLayout)
	}

	cfg := model.Config{
		VocabSize: tok.dim(0),
		EmbedDim:  tok.dim(1),
		BlockSize: pos.dim(0),
		Dropout:   dropout,
	}

	for name := range ts {
		m := headPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		layer, _ := strconv.Atoi(m[1])
		head, _ := strconv.Atoi(m[2])
		cfg.Layers = max(cfg.Layers, layer+1)
		cfg.Heads = max(cfg.Heads, head+1)
	}

	if err := cfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("%w: %v", ErrUnknownLayout, err)
	}
	return cfg, nil
}

func fromStateDict(ts map[string]torchTensor, opts Options) (*model.Model, error) {
	cfg, err := inferConfig(ts, opts.Dropout)
	if err != nil {
		return nil, err
	}

	m, err := model.New(cfg, nil)
	if err != nil {
		return nil, err
	}
	sd := m.StateDict()

	assigned := make(map[string]bool)
	for name, src := range ts {
		if strings.HasSuffix(name, ".tril") || headPattern.MatchString(name) {
			continue
		}

		target := replacements.Replace(name)
		dst, ok := sd.Get(target)
		if !ok {
			slog.Warn("skipping unknown tensor", "name", name)
			continue
		}

		if len(src.shape) == 2 && !strings.Contains(target, "embd") {
			src = transpose(src)
		}
		if err := copyInto(dst, src, target); err != nil {
			return nil, err
		}
		assigned[target] = true
	}

	hs := cfg.HeadSize()
	for i := range cfg.Layers {
		for _, kind := range []struct{ torch, gguf string }{{"query", "attn_q"}, {"key", "attn_k"}, {"value", "attn_v"}} {
			target := fmt.Sprintf("blk.%d.%s.weight", i, kind.gguf)
			dst, _ := sd.Get(target)

			for h := range cfg.Heads {
				name := fmt.Sprintf("blocks.%d.sa.heads.%d.%s.weight", i, h, kind.torch)
				src, ok := ts[name]
				if !ok {
					return nil, fmt.Errorf("%w: %s", model.ErrMissingTensor, name)
				}
				if len(src.shape) != 2 || src.dim(0) != hs || src.dim(1) != cfg.EmbedDim {
					return nil, fmt.Errorf("%w: %s has shape %v", model.ErrShapeMismatch, name, src.shape)
				}

				// (hs, C) -> Spalten h*hs .. (h+1)*hs von (C, C)
				for j := range hs {
					for c := range cfg.EmbedDim {
						dst.Data[c*cfg.EmbedDim+h*hs+j] = src.data[j*cfg.EmbedDim+c]
					}
				}
			}
			assigned[target] = true
		}
	}

	for pair := sd.Oldest(); pair != nil; pair = pair.Next() {
		if !assigned[pair.Key] {
			return nil, fmt.Errorf("%w: %s", model.ErrMissingTensor, pair.Key)
		}
	}

	slog.Info("imported torch checkpoint", "vocab", cfg.VocabSize, "embed", cfg.EmbedDim, "heads", cfg.Heads, "layers", cfg.Layers, "block", cfg.BlockSize)
	return m, nil
}

func transpose(t torchTensor) torchTensor {
	rows, cols := t.dim(0), t.dim(1)
	out := torchTensor{shape: []int{cols, rows}, data: make([]float32, len(t.data))}
	for r := range rows {
		for c := range cols {
			out.data[c*rows+r] = t.data[r*cols+c]
		}
	}
	return out
}

func copyInto(dst *ml.Tensor, src torchTensor, name string) error {
	if len(dst.Shape) != len(src.shape) {
		return fmt.Errorf("%w: %s has shape %v, expected %v", model.ErrShapeMismatch, name, src.shape, dst.Shape)
	}
	for i := range dst.Shape {
		if dst.Shape[i] != src.shape[i] {
			return fmt.Errorf("%w: %s has shape %v, expected %v", model.ErrShapeMismatch, name, src.shape, dst.Shape)
		}
	}
	return dst.CopyFrom(src.data)
}
