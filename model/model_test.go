package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edullm/edullm/fs/gguf"
	"github.com/edullm/edullm/ml"
)

func testConfig() Config {
	return Config{VocabSize: 11, EmbedDim: 8, Heads: 2, Layers: 2, BlockSize: 6, Dropout: 0.1}
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(testConfig(), rand.New(rand.NewPCG(1337, 0)))
	require.NoError(t, err)
	return m
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"gueltig", func(*Config) {}, true},
		{"kein Vokabular", func(c *Config) { c.VocabSize = 0 }, false},
		{"nicht teilbar", func(c *Config) { c.Heads = 3 }, false},
		{"keine Schichten", func(c *Config) { c.Layers = 0 }, false},
		{"Dropout 1", func(c *Config) { c.Dropout = 1 }, false},
		{"negativer Dropout", func(c *Config) { c.Dropout = -0.1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, erwartet nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, erwartet ErrInvalidConfig", err)
			}
		})
	}

	assert.Equal(t, 64, DefaultConfig(100).HeadSize())
}

func TestForwardShapes(t *testing.T) {
	m := newTestModel(t)
	ids := [][]int32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	targets := [][]int32{{2, 3, 4, 5}, {6, 7, 8, 9}}

	logits, loss, err := m.Forward(ml.NewContext(), ids, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 11}, logits.Shape)
	assert.Nil(t, loss)

	_, loss, err = m.Forward(ml.NewContext(), ids, targets)
	require.NoError(t, err)
	// bei kleiner Initialisierung ist der Loss nahe ln(V)
	assert.InDelta(t, math.Log(11), float64(loss.Item()), 0.3)
}

func TestForwardErrors(t *testing.T) {
	m := newTestModel(t)
	ctx := ml.NewContext()

	_, _, err := m.Forward(ctx, [][]int32{make([]int32, 7)}, nil)
	assert.ErrorIs(t, err, ErrContextTooLong)

	_, _, err = m.Forward(ctx, [][]int32{{1, 11}}, nil)
	assert.Error(t, err, "id ausserhalb des Vokabulars")

	_, _, err = m.Forward(ctx, [][]int32{{1, 2}, {3}}, nil)
	assert.Error(t, err, "unterschiedliche Zeilenlaengen")

	_, _, err = m.Forward(ctx, nil, nil)
	assert.Error(t, err, "leerer Batch")
}

// TestCausality prueft dass Logits an Position t nicht von spaeteren Tokens abhaengen
func TestCausality(t *testing.T) {
	m := newTestModel(t)
	ctx := ml.NewContext()

	a, _, err := m.Forward(ctx, [][]int32{{1, 2, 3, 4, 5}}, nil)
	require.NoError(t, err)
	b, _, err := m.Forward(ctx, [][]int32{{1, 2, 3, 9, 10}}, nil)
	require.NoError(t, err)

	v := m.VocabSize
	assert.Equal(t, a.Data[:3*v], b.Data[:3*v])
	assert.NotEqual(t, a.Data[3*v:], b.Data[3*v:])
}

func TestInferenceDeterministic(t *testing.T) {
	m := newTestModel(t)
	ids := [][]int32{{3, 1, 4, 1, 5}}

	a, _, err := m.Forward(ml.NewContext(), ids, nil)
	require.NoError(t, err)
	b, _, err := m.Forward(ml.NewContext(), ids, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data, "ohne Training darf Dropout nicht wirken")
}

func TestStateDict(t *testing.T) {
	m := newTestModel(t)
	sd := m.StateDict()

	// 2 Embeddings + 13 Tensors pro Block + finale Norm (2) + Ausgabe (2)
	assert.Equal(t, 2+13*2+4, sd.Len())
	assert.Equal(t, "token_embd.weight", sd.Oldest().Key)
	assert.Equal(t, "output.bias", sd.Newest().Key)

	for _, name := range []string{"position_embd.weight", "blk.0.attn_q.weight", "blk.1.attn_output.bias", "blk.1.ffn_down.bias", "output_norm.weight"} {
		_, ok := sd.Get(name)
		assert.True(t, ok, "Tensor %s fehlt", name)
	}
	_, ok := sd.Get("blk.0.attn_q.bias")
	assert.False(t, ok, "Query-Projektion hat keinen Bias")

	w, _ := sd.Get("blk.0.ffn_up.weight")
	assert.Equal(t, []int{8, 32}, w.Shape)

	c, v, T := 8, 11, 6
	perBlock := 2*c + 3*c*c + c*c + c + 2*c + c*4*c + 4*c + 4*c*c + c
	want := v*c + T*c + 2*perBlock + 2*c + c*v + v
	assert.Equal(t, want, m.NumParams())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newTestModel(t)
	path := filepath.Join(t.TempDir(), "edullm_model.gguf")
	require.NoError(t, m.Save(path, SaveOptions{Name: "test"}))

	loaded, err := Load(path, LoadOptions{Device: "cpu", VocabSize: 11})
	require.NoError(t, err)
	assert.Equal(t, m.Config, loaded.Config)

	want, got := m.StateDict(), loaded.StateDict()
	for pair := want.Oldest(); pair != nil; pair = pair.Next() {
		lt, ok := got.Get(pair.Key)
		require.True(t, ok, pair.Key)
		for i := range pair.Value.Data {
			if math.Float32bits(pair.Value.Data[i]) != math.Float32bits(lt.Data[i]) {
				t.Fatalf("%s[%d] = %v, erwartet bitgenau %v", pair.Key, i, lt.Data[i], pair.Value.Data[i])
			}
		}
	}

	ids := [][]int32{{1, 2, 3}}
	a, _, err := m.Forward(ml.NewContext(), ids, nil)
	require.NoError(t, err)
	b, _, err := loaded.Forward(ml.NewContext(), ids, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	cfg, kv, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, m.Config, cfg)
	assert.Equal(t, "test", kv.String("general.name"))
}

func TestLoadErrors(t *testing.T) {
	m := newTestModel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gguf")
	require.NoError(t, m.Save(path, SaveOptions{}))

	_, err := Load(path, LoadOptions{VocabSize: 12})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Load(path, LoadOptions{Device: "cuda"})
	assert.ErrorIs(t, err, ErrUnsupportedDevice)

	_, err = Load(filepath.Join(dir, "fehlt.gguf"), LoadOptions{})
	assert.Error(t, err)

	// Checkpoint ohne finale Projektion
	f, err := gguf.Open(path)
	require.NoError(t, err)
	var ts []*gguf.Tensor
	for _, gt := range f.Tensors {
		if !strings.HasPrefix(gt.Name, "output.") {
			ts = append(ts, gt)
		}
	}
	missing := filepath.Join(dir, "missing.gguf")
	require.NoError(t, gguf.WriteFile(missing, f.KV, ts))
	_, err = Load(missing, LoadOptions{})
	assert.ErrorIs(t, err, ErrMissingTensor)

	// falsche Form
	for _, gt := range f.Tensors {
		if gt.Name == "output_norm.weight" {
			gt.Shape = []uint64{4, 2}
		}
	}
	bad := filepath.Join(dir, "bad.gguf")
	require.NoError(t, gguf.WriteFile(bad, f.KV, f.Tensors))
	_, err = Load(bad, LoadOptions{})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestLoadAlternativeName(t *testing.T) {
	m := newTestModel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gguf")
	require.NoError(t, m.Save(path, SaveOptions{}))

	f, err := gguf.Open(path)
	require.NoError(t, err)
	for _, gt := range f.Tensors {
		gt.Name = strings.Replace(gt.Name, "attn_output", "attn_out", 1)
	}
	alt := filepath.Join(dir, "alt.gguf")
	require.NoError(t, gguf.WriteFile(alt, f.KV, f.Tensors))

	loaded, err := Load(alt, LoadOptions{})
	require.NoError(t, err)
	want, _ := m.StateDict().Get("blk.1.attn_output.weight")
	got, _ := loaded.StateDict().Get("blk.1.attn_output.weight")
	assert.Equal(t, want.Data, got.Data)
}

// TestTrainingReducesLoss fuehrt einige Optimierungsschritte auf einem festen Batch aus
func TestTrainingReducesLoss(t *testing.T) {
	cfg := testConfig()
	cfg.Dropout = 0
	m, err := New(cfg, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	ids := [][]int32{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}}
	targets := [][]int32{{2, 3, 4, 5, 6}, {7, 8, 9, 10, 0}}
	opt := ml.NewAdamW(m.Parameters(), 2e-2)
	rng := rand.New(rand.NewPCG(2, 2))

	var first, last float32
	for step := range 50 {
		_, loss, err := m.Forward(ml.NewContext(ml.WithTraining(rng)), ids, targets)
		require.NoError(t, err)
		if step == 0 {
			first = loss.Item()
		}
		last = loss.Item()

		opt.ZeroGrad()
		require.NoError(t, loss.Backward())
		opt.Step()
	}

	assert.Less(t, last, first-0.5, "Loss sinkt nicht: %v -> %v", first, last)
}
