package train

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edullm/edullm/model"
	"github.com/edullm/edullm/tokenizer"
)

func TestGetBatch(t *testing.T) {
	data := make([]int32, 50)
	for i := range data {
		data[i] = int32(i)
	}
	rng := rand.New(rand.NewPCG(1, 2))

	for range 20 {
		x, y, err := GetBatch(data, 4, 8, rng)
		require.NoError(t, err)
		require.Len(t, x, 4)
		for b := range x {
			require.Len(t, x[b], 8)
			require.Len(t, y[b], 8)
			for i := 0; i < 7; i++ {
				if y[b][i] != x[b][i+1] {
					t.Fatalf("target[%d] = %d, erwartet input[%d] = %d", i, y[b][i], i+1, x[b][i+1])
				}
			}
			assert.Equal(t, x[b][7]+1, y[b][7])
		}
	}

	_, _, err := GetBatch(data[:8], 1, 8, rng)
	assert.ErrorIs(t, err, ErrCorpusTooSmall)
}

func TestSplit(t *testing.T) {
	ids := make([]int32, 100)
	for i := range ids {
		ids[i] = int32(i)
	}

	ds := Split(ids, 0.9)
	assert.Len(t, ds.Train, 90)
	assert.Len(t, ds.Val, 10)
	assert.Equal(t, int32(90), ds.Val[0], "Split ist positionsweise")
}

func TestLoadCorpusMissing(t *testing.T) {
	_, err := LoadCorpus(filepath.Join(t.TempDir(), "dataset.txt"), nil)
	if !errors.Is(err, ErrNoCorpus) {
		t.Errorf("LoadCorpus() = %v, erwartet ErrNoCorpus", err)
	}
}

// TestEndToEnd trainiert auf einem sich wiederholenden Korpus und prueft
// dass der Loss sinkt und Checkpoints geschrieben werden
func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	corpus := strings.Repeat("Tom went home.\n<|endoftext|>\n", 60)
	corpusPath := filepath.Join(dir, "dataset.txt")
	require.NoError(t, os.WriteFile(corpusPath, []byte(corpus), 0o644))

	tok, err := tokenizer.Train(strings.NewReader(corpus), tokenizer.TrainOptions{VocabSize: 30})
	require.NoError(t, err)

	ids, err := LoadCorpus(corpusPath, tok)
	require.NoError(t, err)
	ds := Split(ids, 0.9)

	m, err := model.New(model.Config{VocabSize: tok.VocabSize(), EmbedDim: 16, Heads: 2, Layers: 1, BlockSize: 8, Dropout: 0}, rand.New(rand.NewPCG(1337, 0)))
	require.NoError(t, err)

	checkpoint := filepath.Join(dir, "edullm_model.gguf")
	var evals []int
	trainer := Trainer{
		Model: m,
		Data:  ds,
		Config: Config{
			BatchSize:      4,
			BlockSize:      8,
			MaxIters:       40,
			EvalInterval:   20,
			EvalIters:      2,
			LearningRate:   1e-2,
			Seed:           1337,
			CheckpointPath: checkpoint,
		},
		OnEval: func(step int, losses map[string]float64) {
			evals = append(evals, step)
			assert.Contains(t, losses, "train")
			assert.Contains(t, losses, "val")
		},
	}

	result, err := trainer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 40, result.Steps)
	assert.Equal(t, []int{0, 20, 39}, evals)
	require.Len(t, result.Events, 3)
	first, last := result.Events[0], result.Events[len(result.Events)-1]
	assert.Less(t, last.Train, first.Train, "Trainings-Loss sinkt nicht")
	assert.Less(t, result.Losses[len(result.Losses)-1], result.Losses[0])

	loaded, err := model.Load(checkpoint, model.LoadOptions{VocabSize: tok.VocabSize()})
	require.NoError(t, err)
	assert.Equal(t, m.Config, loaded.Config)
}

func TestRunErrors(t *testing.T) {
	m, err := model.New(model.Config{VocabSize: 5, EmbedDim: 4, Heads: 1, Layers: 1, BlockSize: 4}, nil)
	require.NoError(t, err)

	small := Trainer{Model: m, Data: Dataset{Train: []int32{1, 2, 3}, Val: []int32{1, 2, 3, 4, 0}}, Config: Config{BatchSize: 1, BlockSize: 4, MaxIters: 1, EvalInterval: 1, EvalIters: 1, LearningRate: 1e-3}}
	_, err = small.Run(context.Background())
	assert.ErrorIs(t, err, ErrCorpusTooSmall)

	long := small
	long.Data = Dataset{Train: make([]int32, 20), Val: make([]int32, 20)}
	long.BlockSize = 8
	_, err = long.Run(context.Background())
	assert.ErrorIs(t, err, model.ErrContextTooLong)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := small
	ok.Data = Dataset{Train: make([]int32, 20), Val: make([]int32, 20)}
	_, err = ok.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
