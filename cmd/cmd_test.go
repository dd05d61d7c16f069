package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edullm/edullm/fs/gguf"
	"github.com/edullm/edullm/llm"
	"github.com/edullm/edullm/model"
	"github.com/edullm/edullm/tokenizer"
)

// execute fuehrt das CLI mit args aus und gibt die Ausgabe zurueck
func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cli := NewCLI()
	cli.SetOut(&out)
	cli.SetErr(&out)
	cli.SetArgs(args)

	if err := cli.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("edullm %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

// TestPipeline laeuft einmal durch prepare, tokenizer train, train, show und run
func TestPipeline(t *testing.T) {
	t.Setenv("EDULLM_DATA", t.TempDir())

	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.txt"), []byte(strings.Repeat("Tom went home. Tom was happy.\n", 60)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "b.txt"), []byte("Once upon a time Tom went home.\n"), 0o644))

	corpusPath := filepath.Join(dir, "data", "dataset.txt")
	tokenizerPath := filepath.Join(dir, "data", "tokenizer.model")
	checkpointPath := filepath.Join(dir, "data", "edullm_model.gguf")

	out := execute(t, "prepare", docs, "-o", corpusPath)
	assert.Contains(t, out, "Wrote 2 documents")

	out = execute(t, "tokenizer", "train", "--data", corpusPath, "-o", tokenizerPath, "--vocab-size", "40", "--byte-fallback=false")
	assert.Contains(t, out, "Tokenizer saved to "+tokenizerPath)

	tok, err := tokenizer.Load(tokenizerPath)
	require.NoError(t, err)

	out = execute(t, "train",
		"--data", corpusPath,
		"--tokenizer", tokenizerPath,
		"--checkpoint", checkpointPath,
		"--batch-size", "4",
		"--block-size", "8",
		"--max-iters", "4",
		"--eval-interval", "2",
		"--eval-iters", "1",
		"--lr", "0.01",
		"--n-embd", "16",
		"--n-head", "2",
		"--n-layer", "1",
		"--dropout", "0",
		"--threads", "1",
		"--seed", "4294967301",
	)
	for _, want := range []string{"step 0: train loss", "step 2: train loss", "step 3: train loss", "Training finished after 4 steps"} {
		assert.Contains(t, out, want)
	}

	cfg, kv, err := model.ReadConfig(checkpointPath)
	require.NoError(t, err)
	if diff := cmp.Diff(model.Config{VocabSize: tok.VocabSize(), EmbedDim: 16, Heads: 2, Layers: 1, BlockSize: 8}, cfg); diff != "" {
		t.Errorf("Checkpoint-Config stimmt nicht (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint32(4), kv.Uint("training.max_iters"))
	// Seeds ueber 2^32 duerfen nicht abgeschnitten werden
	assert.Equal(t, uint64(4294967301), kv[model.Architecture+".training.seed"])

	out = execute(t, "show", checkpointPath, "--verbose")
	for _, want := range []string{"architecture", model.Architecture, "token_embd.weight", "blk.0.attn_q.weight", "F32"} {
		assert.Contains(t, out, want)
	}

	out = execute(t, "run", "--tokenizer", tokenizerPath, "--checkpoint", checkpointPath, "--max-tokens", "5", "--seed", "3", "Tom", "went")
	assert.Contains(t, out, "Loading model from "+checkpointPath)
}

func TestTrainErrors(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"ungueltiger Split", []string{"train", "--train-split", "1.5"}, "--train-split"},
		{"unbekannter Typ", []string{"train", "--kind", "q4_0"}, "unsupported tensor type"},
		{"fehlender Tokenizer", []string{"train", "--tokenizer", filepath.Join(dir, "missing.model")}, "missing.model"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cli := NewCLI()
			cli.SetOut(&bytes.Buffer{})
			cli.SetArgs(tt.args)

			err := cli.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

type fakeCompleter struct {
	prompts []string
	err     error
}

func (f *fakeCompleter) Completion(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return "", f.err
	}
	return " the end", nil
}

func (f *fakeCompleter) Close() error { return nil }

func TestInteractive(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		err     error
		prompts []string
		want    []string
	}{
		{
			name:    "quit beendet",
			input:   "Once upon\n\n   \nQUIT\nignored\n",
			prompts: []string{"Once upon"},
			want:    []string{"AI: ... the end", "Goodbye!"},
		},
		{
			name:    "EOF beendet",
			input:   "Tom\nSue",
			prompts: []string{"Tom", "Sue"},
			want:    []string{"AI: ... the end"},
		},
		{
			name:    "Fehler werden gemeldet",
			input:   "Tom\nexit\n",
			err:     errors.New("boom"),
			prompts: []string{"Tom"},
			want:    []string{"Error during generation: boom", "Goodbye!"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{err: tt.err}
			var out bytes.Buffer

			err := interactive(context.Background(), strings.NewReader(tt.input), &out, c, llm.CompletionRequest{MaxTokens: 100, Temperature: 1})
			require.NoError(t, err)

			if diff := cmp.Diff(tt.prompts, c.prompts); diff != "" {
				t.Errorf("Prompts stimmen nicht (-want +got):\n%s", diff)
			}
			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"edullm", "edullm"},
		{uint32(384), "384"},
		{[]string{"a", "b"}, "[a b]"},
		{[]int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, "[1 2 3 4 5 6 7 8 ...] (10 items)"},
	}

	for _, tt := range cases {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, erwartet %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanNumber(t *testing.T) {
	cases := map[uint64]string{
		0:             "0",
		999:           "999",
		1_500:         "1.5K",
		10_788_929:    "10.8M",
		7_000_000_000: "7.0B",
	}

	for in, want := range cases {
		if got := humanNumber(in); got != want {
			t.Errorf("humanNumber(%d) = %q, erwartet %q", in, got, want)
		}
	}
}

func TestShowInfo(t *testing.T) {
	gf := &gguf.File{
		KV: gguf.KV{
			"general.architecture":  model.Architecture,
			"general.name":          "tiny",
			"edullm.context_length": uint32(256),
		},
		Tensors: []*gguf.Tensor{{Name: "output.weight", Kind: gguf.KindF16, Shape: []uint64{384, 2000}}},
	}

	var out bytes.Buffer
	require.NoError(t, showInfo(gf, false, &out))
	assert.Contains(t, out.String(), "tiny")
	assert.Contains(t, out.String(), "768.0K")
	assert.Contains(t, out.String(), "F16")
	assert.NotContains(t, out.String(), "output.weight")
}

func TestPrepareHub(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/datasets/roneneldan/TinyStories/resolve/main/TinyStoriesV2-GPT4-train.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("Tom went home.\n<|endoftext|>\nSue was happy.\n<|endoftext|>\nThe end.\n"))
	}))
	defer ts.Close()

	t.Setenv("HF_ENDPOINT", ts.URL)
	t.Setenv("HF_HUB_CACHE", t.TempDir())
	t.Setenv("HF_TOKEN", "")

	output := filepath.Join(t.TempDir(), "dataset.txt")
	out := execute(t, "prepare", "--hub", "roneneldan/TinyStories", "--limit", "2", "-o", output)
	assert.Contains(t, out, "Wrote 2 documents")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "Tom went home.\n<|endoftext|>\nSue was happy.\n<|endoftext|>\n", string(data))
}

func TestPrepareNoSources(t *testing.T) {
	cli := NewCLI()
	cli.SetOut(&bytes.Buffer{})
	cli.SetArgs([]string{"prepare", "-o", filepath.Join(t.TempDir(), "dataset.txt")})
	require.ErrorContains(t, cli.ExecuteContext(context.Background()), "no sources")
}
