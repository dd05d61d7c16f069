// hosted.go - OpenAI-kompatible Chat-Completions (POST {base}/chat/completions)
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/edullm/edullm/api"
	"github.com/edullm/edullm/logutil"
)

// HostedConfig beschreibt den Zugang zur gehosteten API
type HostedConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string

	// HTTPClient ist optional; Standard ist http.DefaultClient
	HTTPClient *http.Client
}

// Hosted ruft eine OpenAI-kompatible API auf
type Hosted struct {
	base   *url.URL
	key    string
	model  string
	system string
	http   *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewHosted erstellt das Backend. Ohne API-Schluessel gibt es ErrNotInitialized zurueck.
func NewHosted(cfg HostedConfig) (*Hosted, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrNotInitialized)
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid hosted url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid hosted url %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Hosted{
		base:   base,
		key:    cfg.APIKey,
		model:  cfg.Model,
		system: cfg.SystemPrompt,
		http:   client,
	}, nil
}

// Completion sendet System- und Benutzer-Nachricht und gibt die erste Antwort zurueck
func (h *Hosted) Completion(ctx context.Context, req CompletionRequest) (string, error) {
	system := h.system
	if req.System != "" {
		system = req.System
	}

	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       h.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	slog.Debug("hosted completion request", "model", h.model, "prompt", len(req.Prompt), "max_tokens", req.MaxTokens)
	logutil.Trace("hosted completion request", "prompt", req.Prompt)

	endpoint := h.base.JoinPath("chat", "completions")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating POST request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.key)

	res, err := h.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed reading hosted response: %w", err)
	}

	if res.StatusCode >= http.StatusMultipleChoices {
		slog.Warn("hosted completion failed", "status", res.StatusCode)
		return "", api.StatusError{StatusCode: res.StatusCode, Status: res.Status, ErrorMessage: hostedError(respBody)}
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("error unmarshalling hosted response: %v", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("hosted response contains no choices")
	}

	slog.Debug("hosted completion done", "prompt_tokens", cr.Usage.PromptTokens, "completion_tokens", cr.Usage.CompletionTokens, "finish_reason", cr.Choices[0].FinishReason)
	return cr.Choices[0].Message.Content, nil
}

// hostedError liest {"error": {"message": ...}} oder gibt den Body zurueck
func hostedError(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// Close schliesst offene Verbindungen
func (h *Hosted) Close() error {
	h.http.CloseIdleConnections()
	return nil
}
