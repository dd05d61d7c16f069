// client.go - HuggingFace Hub Client
// Stellt einen HTTP-Client fuer Dataset-Repositories auf dem Hub bereit.
package huggingface

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/edullm/edullm/version"
)

// Konstanten fuer den HuggingFace Hub
const (
	DefaultHubURL        = "https://huggingface.co"
	DefaultClientTimeout = 2 * time.Hour
	EnvHFToken           = "HF_TOKEN"
	EnvHFHome            = "HF_HOME"
	EnvHFEndpoint        = "HF_ENDPOINT"
)

// Fehler-Definitionen
var (
	ErrRepoNotFound    = errors.New("repository or file not found")
	ErrUnauthorized    = errors.New("hub authentication failed")
	ErrRateLimited     = errors.New("hub rate limit exceeded")
	ErrInvalidRepoID   = errors.New("invalid repository id")
	ErrInvalidResponse = errors.New("invalid hub response")
)

// Client ist der HuggingFace Hub Client
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	cacheDir   string
}

// ClientOption ist eine Funktion zur Konfiguration des Clients
type ClientOption func(*Client)

// WithToken setzt den HuggingFace API Token
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithBaseURL setzt eine eigene Base-URL, z.B. einen Mirror
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithCacheDir setzt das Cache-Verzeichnis
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) { c.cacheDir = dir }
}

// WithHTTPClient setzt einen eigenen HTTP Client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient erstellt einen Client; HF_TOKEN und HF_ENDPOINT werden beruecksichtigt
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
		baseURL:    DefaultHubURL,
		userAgent:  "edullm/" + version.Version,
		token:      os.Getenv(EnvHFToken),
		cacheDir:   CacheDir(),
	}
	if endpoint := os.Getenv(EnvHFEndpoint); endpoint != "" {
		c.baseURL = strings.TrimSuffix(endpoint, "/")
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// resolveURL baut die Download-URL einer Datei im Dataset-Repository
func (c *Client) resolveURL(repoID, revision, filename string) string {
	return fmt.Sprintf("%s/datasets/%s/resolve/%s/%s", c.baseURL, repoID, revision, filename)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) handleResponseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return nil
	case http.StatusNotFound:
		return ErrRepoNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d - %s", ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func validateRepoID(repoID string) error {
	owner, name, ok := strings.Cut(repoID, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q, expected 'owner/name'", ErrInvalidRepoID, repoID)
	}
	return nil
}
