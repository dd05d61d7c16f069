package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/edullm/edullm/api"
	"github.com/edullm/edullm/ml"
	"github.com/edullm/edullm/model"
	"github.com/edullm/edullm/sample"
	"github.com/edullm/edullm/tokenizer"
)

const testCorpus = "Once upon a time there was a little girl.\n<|endoftext|>\n" +
	"Tom went home. Tom was happy.\n<|endoftext|>\n"

func TestHostedCompletion(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"**Zusammenfassung**"},"finish_reason":"stop"}]}`))
	}))
	defer ts.Close()

	h, err := NewHosted(HostedConfig{BaseURL: ts.URL + "/v1/", APIKey: "key", Model: "m", SystemPrompt: "sys"})
	require.NoError(t, err)
	defer h.Close()

	text, err := h.Completion(context.Background(), CompletionRequest{Prompt: "Photosynthese", MaxTokens: 100, Temperature: 0.7})
	require.NoError(t, err)
	require.Equal(t, "**Zusammenfassung**", text)

	want := chatRequest{
		Model: "m",
		Messages: []chatMessage{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "Photosynthese"},
		},
		Temperature: 0.7,
		MaxTokens:   100,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Request mismatch (-want +got):\n%s", diff)
	}
}

func TestHostedErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`, "Rate limit reached"},
		{"text", http.StatusBadGateway, "bad gateway\n", "bad gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			h, err := NewHosted(HostedConfig{BaseURL: ts.URL, APIKey: "key"})
			require.NoError(t, err)

			_, err = h.Completion(context.Background(), CompletionRequest{Prompt: "x"})
			var se api.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Completion() Fehler = %v, erwartet api.StatusError", err)
			}
			if se.StatusCode != tt.status || se.ErrorMessage != tt.message {
				t.Errorf("StatusError = %+v", se)
			}
		})
	}

	t.Run("keine choices", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer ts.Close()

		h, err := NewHosted(HostedConfig{BaseURL: ts.URL, APIKey: "key"})
		require.NoError(t, err)
		_, err = h.Completion(context.Background(), CompletionRequest{Prompt: "x"})
		require.Error(t, err)
	})

	t.Run("kein Schluessel", func(t *testing.T) {
		_, err := NewHosted(HostedConfig{BaseURL: "https://api.example.com"})
		require.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("ungueltige URL", func(t *testing.T) {
		_, err := NewHosted(HostedConfig{BaseURL: "api.example.com", APIKey: "key"})
		require.Error(t, err)
	})
}

func newTestLocal(t *testing.T, seed uint64, numParallel int) (*Local, *tokenizer.Tokenizer, *model.Model) {
	t.Helper()
	tok, err := tokenizer.Train(strings.NewReader(testCorpus), tokenizer.TrainOptions{VocabSize: 40})
	require.NoError(t, err)

	m, err := model.New(model.Config{VocabSize: tok.VocabSize(), EmbedDim: 16, Heads: 2, Layers: 1, BlockSize: 8}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	return NewLocal(tok, m, LocalConfig{Seed: seed, NumParallel: numParallel}), tok, m
}

func TestLocalCompletion(t *testing.T) {
	a, _, _ := newTestLocal(t, 7, 1)
	b, _, _ := newTestLocal(t, 7, 1)

	req := CompletionRequest{Prompt: "Once upon", MaxTokens: 6, Temperature: 1}
	ta, err := a.Completion(context.Background(), req)
	require.NoError(t, err)
	tb, err := b.Completion(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, ta, tb, "gleicher Seed muss gleichen Text erzeugen")

	empty, err := a.Completion(context.Background(), CompletionRequest{Prompt: "", MaxTokens: 0})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestLocalCompletionEmptyPrompt(t *testing.T) {
	a, tok, _ := newTestLocal(t, 11, 1)
	b, _, _ := newTestLocal(t, 11, 1)

	req := CompletionRequest{Prompt: "", MaxTokens: 5, Temperature: 1}
	ta, err := a.Completion(context.Background(), req)
	require.NoError(t, err)
	tb, err := b.Completion(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ta, tb)

	// gleiche Ziehung direkt ueber sample: Token 0 darf nicht im Text landen
	seed := rand.New(rand.NewPCG(11, 0)).Uint64()
	g := sample.Generator{Model: a.model, Rand: rand.New(rand.NewPCG(seed, 0))}
	ids, err := g.Generate(context.Background(), nil, sample.Options{MaxNewTokens: 5, Temperature: 1})
	require.NoError(t, err)
	require.Len(t, ids, 5)
	require.Equal(t, tok.Decode(ids), ta)
}

func TestLocalConcurrent(t *testing.T) {
	l, _, _ := newTestLocal(t, 3, 2)

	var g errgroup.Group
	for range 4 {
		g.Go(func() error {
			_, err := l.Completion(context.Background(), CompletionRequest{Prompt: "Tom", MaxTokens: 4})
			return err
		})
	}
	require.NoError(t, g.Wait())
}

func TestLocalCanceled(t *testing.T) {
	l, _, _ := newTestLocal(t, 3, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Completion(ctx, CompletionRequest{Prompt: "Tom", MaxTokens: 4})
	require.ErrorIs(t, err, context.Canceled)
}

type panicModel struct{}

func (panicModel) Forward(*ml.Context, [][]int32, [][]int32) (*ml.Tensor, *ml.Tensor, error) {
	panic("index out of range")
}

func (panicModel) ContextLength() int { return 4 }

func TestLocalRecoversPanic(t *testing.T) {
	tok, err := tokenizer.Train(strings.NewReader(testCorpus), tokenizer.TrainOptions{VocabSize: 40})
	require.NoError(t, err)

	l := NewLocal(tok, panicModel{}, LocalConfig{})
	_, err = l.Completion(context.Background(), CompletionRequest{Prompt: "Tom", MaxTokens: 2})
	require.ErrorContains(t, err, "generation failed")

	// die Semaphore muss wieder frei sein
	_, err = l.Completion(context.Background(), CompletionRequest{Prompt: "Tom", MaxTokens: 0})
	require.NoError(t, err)
}

func TestLoadLocal(t *testing.T) {
	dir := t.TempDir()
	_, tok, m := newTestLocal(t, 1, 1)

	tokPath := filepath.Join(dir, "tokenizer.model")
	ckptPath := filepath.Join(dir, "model.gguf")
	require.NoError(t, tok.Save(tokPath))
	require.NoError(t, m.Save(ckptPath, model.SaveOptions{}))

	l, err := LoadLocal(context.Background(), LocalConfig{TokenizerPath: tokPath, CheckpointPath: ckptPath, Seed: 5})
	require.NoError(t, err)
	_, err = l.Completion(context.Background(), CompletionRequest{Prompt: "Once", MaxTokens: 3})
	require.NoError(t, err)

	_, err = LoadLocal(context.Background(), LocalConfig{TokenizerPath: filepath.Join(dir, "fehlt.model"), CheckpointPath: ckptPath})
	require.ErrorIs(t, err, tokenizer.ErrNoVocabulary)

	_, err = LoadLocal(context.Background(), LocalConfig{TokenizerPath: tokPath, CheckpointPath: filepath.Join(dir, "fehlt.gguf")})
	require.Error(t, err)

	_, err = LoadLocal(context.Background(), LocalConfig{TokenizerPath: tokPath, CheckpointPath: ckptPath, Device: "cuda"})
	require.ErrorIs(t, err, model.ErrUnsupportedDevice)
}

func TestLocalCompletionReturnsContinuation(t *testing.T) {
	l, tok, _ := newTestLocal(t, 5, 1)

	got, err := l.Completion(context.Background(), CompletionRequest{Prompt: "Tom went", MaxTokens: 4, Temperature: 1})
	require.NoError(t, err)

	seed := rand.New(rand.NewPCG(5, 0)).Uint64()
	g := sample.Generator{Model: l.model, Rand: rand.New(rand.NewPCG(seed, 0))}
	ids, err := g.Generate(context.Background(), tok.Encode("Tom went"), sample.Options{MaxNewTokens: 4, Temperature: 1})
	require.NoError(t, err)

	// nur die Fortsetzung, ohne den Prompt
	require.Equal(t, sample.TrimPrompt("Tom went", tok.Decode(ids)), got)
}
