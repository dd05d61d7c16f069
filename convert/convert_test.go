package convert

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/edullm/edullm/ml"
	"github.com/edullm/edullm/model"
)

func param(t *ml.Tensor) torchTensor {
	return torchTensor{shape: append([]int(nil), t.Shape...), data: append([]float32(nil), t.Data...)}
}

// toTorch erzeugt den state_dict, den das Referenzmodell fuer m speichern wuerde
func toTorch(m *model.Model) map[string]torchTensor {
	ts := map[string]torchTensor{
		"token_embedding_table.weight":    param(m.TokenEmbedding.Weight),
		"position_embedding_table.weight": param(m.PositionEmbedding.Weight),
		"ln_f.weight":                     param(m.OutputNorm.Weight),
		"ln_f.bias":                       param(m.OutputNorm.Bias),
		"lm_head.weight":                  transpose(param(m.Output.Weight)),
		"lm_head.bias":                    param(m.Output.Bias),
	}

	c, hs := m.EmbedDim, m.HeadSize()
	for i, b := range m.Blocks {
		p := fmt.Sprintf("blocks.%d.", i)
		ts[p+"ln1.weight"] = param(b.AttnNorm.Weight)
		ts[p+"ln1.bias"] = param(b.AttnNorm.Bias)
		ts[p+"ln2.weight"] = param(b.FFNNorm.Weight)
		ts[p+"ln2.bias"] = param(b.FFNNorm.Bias)
		ts[p+"sa.proj.weight"] = transpose(param(b.AttnOutput.Weight))
		ts[p+"sa.proj.bias"] = param(b.AttnOutput.Bias)
		ts[p+"ffwd.net.0.weight"] = transpose(param(b.FFNUp.Weight))
		ts[p+"ffwd.net.0.bias"] = param(b.FFNUp.Bias)
		ts[p+"ffwd.net.2.weight"] = transpose(param(b.FFNDown.Weight))
		ts[p+"ffwd.net.2.bias"] = param(b.FFNDown.Bias)

		for _, kind := range []struct {
			name string
			w    *ml.Tensor
		}{{"query", b.Query.Weight}, {"key", b.Key.Weight}, {"value", b.Value.Weight}} {
			full := transpose(param(kind.w))
			for h := range m.Heads {
				ts[fmt.Sprintf("%ssa.heads.%d.%s.weight", p, h, kind.name)] = torchTensor{
					shape: []int{hs, c},
					data:  full.data[h*hs*c : (h+1)*hs*c],
				}
			}
			ts[fmt.Sprintf("%ssa.heads.0.tril", p)] = torchTensor{shape: []int{m.BlockSize, m.BlockSize}, data: make([]float32, m.BlockSize*m.BlockSize)}
		}
	}
	return ts
}

func TestFromStateDict(t *testing.T) {
	cfg := model.Config{VocabSize: 9, EmbedDim: 6, Heads: 3, Layers: 2, BlockSize: 5}
	want, err := model.New(cfg, rand.New(rand.NewPCG(4, 2)))
	if err != nil {
		t.Fatal(err)
	}

	got, err := fromStateDict(toTorch(want), Options{Dropout: 0.2})
	if err != nil {
		t.Fatalf("fromStateDict() Fehler: %v", err)
	}

	cfg.Dropout = 0.2
	if diff := cmp.Diff(cfg, got.Config); diff != "" {
		t.Errorf("Config (-want +got):\n%s", diff)
	}

	wsd, gsd := want.StateDict(), got.StateDict()
	for pair := wsd.Oldest(); pair != nil; pair = pair.Next() {
		g, _ := gsd.Get(pair.Key)
		if diff := cmp.Diff(pair.Value.Data, g.Data); diff != "" {
			t.Errorf("%s (-want +got):\n%s", pair.Key, diff)
		}
	}
}

func TestFromStateDictErrors(t *testing.T) {
	m, err := model.New(model.Config{VocabSize: 9, EmbedDim: 6, Heads: 2, Layers: 1, BlockSize: 5}, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(map[string]torchTensor)
		want   error
	}{
		{"ohne Embedding", func(ts map[string]torchTensor) { delete(ts, "token_embedding_table.weight") }, ErrUnknownLayout},
		{"ohne Projektion", func(ts map[string]torchTensor) { delete(ts, "lm_head.bias") }, model.ErrMissingTensor},
		{"falsche Form", func(ts map[string]torchTensor) {
			ts["ln_f.weight"] = torchTensor{shape: []int{5}, data: make([]float32, 5)}
		}, model.ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := toTorch(m)
			tt.modify(ts)
			if _, err := fromStateDict(ts, Options{}); !errors.Is(err, tt.want) {
				t.Errorf("fromStateDict() = %v, erwartet %v", err, tt.want)
			}
		})
	}
}

func TestTranspose(t *testing.T) {
	in := torchTensor{shape: []int{2, 3}, data: []float32{1, 2, 3, 4, 5, 6}}
	out := transpose(in)
	if diff := cmp.Diff([]int{3, 2}, out.shape); diff != "" {
		t.Errorf("shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 4, 2, 5, 3, 6}, out.data); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}
}
