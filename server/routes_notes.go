// routes_notes.go - Notizen und Karteikarten-Decks des angemeldeten Benutzers
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edullm/edullm/api"
	"github.com/edullm/edullm/server/internal/store"
)

// ListNotesHandler listet die Notizen des Benutzers
func (s *Server) ListNotesHandler(c *gin.Context) {
	notes, err := s.store.Notes(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]api.Note, len(notes))
	for i, n := range notes {
		resp[i] = noteResponse(&n)
	}
	c.JSON(http.StatusOK, resp)
}

// CreateNoteHandler speichert eine Notiz
func (s *Server) CreateNoteHandler(c *gin.Context) {
	var req api.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n := &store.Note{UserID: currentUser(c).ID, Title: req.Title, Content: req.Content}
	if err := s.store.CreateNote(c.Request.Context(), n); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, noteResponse(n))
}

// GetNoteHandler gibt eine Notiz zurueck
func (s *Server) GetNoteHandler(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	n, err := s.store.Note(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		storeError(c, err, "Note not found")
		return
	}
	c.JSON(http.StatusOK, noteResponse(n))
}

// DeleteNoteHandler loescht eine Notiz
func (s *Server) DeleteNoteHandler(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteNote(c.Request.Context(), currentUser(c).ID, id); err != nil {
		storeError(c, err, "Note not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// BookmarkHandler setzt oder entfernt das Lesezeichen
func (s *Server) BookmarkHandler(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req api.BookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := s.store.SetBookmark(c.Request.Context(), currentUser(c).ID, id, req.Bookmarked)
	if err != nil {
		storeError(c, err, "Note not found")
		return
	}
	c.JSON(http.StatusOK, noteResponse(n))
}

// ListDecksHandler listet die Decks des Benutzers
func (s *Server) ListDecksHandler(c *gin.Context) {
	decks, err := s.store.Decks(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]api.FlashcardDeck, len(decks))
	for i, d := range decks {
		resp[i] = deckResponse(&d)
	}
	c.JSON(http.StatusOK, resp)
}

// CreateDeckHandler speichert ein Deck
func (s *Server) CreateDeckHandler(c *gin.Context) {
	var req api.DeckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d := &store.Deck{
		UserID:     currentUser(c).ID,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Cards:      make([]store.Card, len(req.Cards)),
	}
	if d.Difficulty == "" {
		d.Difficulty = "medium"
	}
	for i, card := range req.Cards {
		d.Cards[i] = store.Card{Front: card.Front, Back: card.Back}
	}

	if err := s.store.CreateDeck(c.Request.Context(), d); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, deckResponse(d))
}

// DeleteDeckHandler loescht ein Deck
func (s *Server) DeleteDeckHandler(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteDeck(c.Request.Context(), currentUser(c).ID, id); err != nil {
		storeError(c, err, "Deck not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id " + strconv.Quote(c.Param("id"))})
		return 0, false
	}
	return id, true
}

func storeError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func noteResponse(n *store.Note) api.Note {
	return api.Note{
		ID:           n.ID,
		Title:        n.Title,
		Content:      n.Content,
		IsBookmarked: n.IsBookmarked,
		CreatedAt:    n.CreatedAt,
	}
}

func deckResponse(d *store.Deck) api.FlashcardDeck {
	cards := make([]api.Flashcard, len(d.Cards))
	for i, card := range d.Cards {
		cards[i] = api.Flashcard{Front: card.Front, Back: card.Back}
	}
	return api.FlashcardDeck{
		ID:         d.ID,
		Topic:      d.Topic,
		Difficulty: d.Difficulty,
		Count:      len(cards),
		Cards:      cards,
		CreatedAt:  d.CreatedAt,
	}
}
