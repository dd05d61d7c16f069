// Package api - API-Methoden des Clients.
// Dieses Modul enthaelt je eine Methode pro Server-Route.

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return err
	}
	return nil
}

// Version returns the edullm server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}

// Register legt einen neuen Benutzer an
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*UserResponse, error) {
	var resp UserResponse
	if err := c.do(ctx, http.MethodPost, "/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login meldet sich per Formular an und merkt sich das Token
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{"username": {email}, "password": {password}}

	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "/login", form, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return &resp, nil
}

// Me gibt den angemeldeten Benutzer zurueck
func (c *Client) Me(ctx context.Context) (*UserResponse, error) {
	var resp UserResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate erzeugt eine Antwort zum Prompt
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notes listet die Notizen des Benutzers
func (c *Client) Notes(ctx context.Context) ([]Note, error) {
	var resp []Note
	if err := c.do(ctx, http.MethodGet, "/notes", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateNote speichert eine Notiz
func (c *Client) CreateNote(ctx context.Context, req *NoteRequest) (*Note, error) {
	var resp Note
	if err := c.do(ctx, http.MethodPost, "/notes", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteNote loescht eine Notiz
func (c *Client) DeleteNote(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notes/%d", id), nil, nil)
}

// Bookmark setzt oder entfernt das Lesezeichen einer Notiz
func (c *Client) Bookmark(ctx context.Context, id int64, bookmarked bool) (*Note, error) {
	var resp Note
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/notes/%d/bookmark", id), BookmarkRequest{Bookmarked: bookmarked}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Decks listet die Karteikarten-Decks des Benutzers
func (c *Client) Decks(ctx context.Context) ([]FlashcardDeck, error) {
	var resp []FlashcardDeck
	if err := c.do(ctx, http.MethodGet, "/flashcards", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateDeck speichert ein Karteikarten-Deck
func (c *Client) CreateDeck(ctx context.Context, req *DeckRequest) (*FlashcardDeck, error) {
	var resp FlashcardDeck
	if err := c.do(ctx, http.MethodPost, "/flashcards", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
