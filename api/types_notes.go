// types_notes.go - Notizen und Karteikarten-Decks
package api

import "time"

// Note ist eine gespeicherte Notiz eines Benutzers
type Note struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	IsBookmarked bool      `json:"is_bookmarked"`
	CreatedAt    time.Time `json:"created_at"`
}

// NoteRequest ist der Body von POST /notes
type NoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

// BookmarkRequest ist der Body von PATCH /notes/:id/bookmark
type BookmarkRequest struct {
	Bookmarked bool `json:"bookmarked"`
}

// Flashcard ist eine einzelne Karte mit Vorder- und Rueckseite
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// FlashcardDeck ist ein Deck zu einem Thema. Count ergibt sich aus Cards.
type FlashcardDeck struct {
	ID         int64       `json:"id"`
	Topic      string      `json:"topic"`
	Difficulty string      `json:"difficulty"`
	Count      int         `json:"count"`
	Cards      []Flashcard `json:"cards"`
	CreatedAt  time.Time   `json:"created_at"`
}

// DeckRequest ist der Body von POST /flashcards
type DeckRequest struct {
	Topic      string      `json:"topic" binding:"required"`
	Difficulty string      `json:"difficulty"`
	Cards      []Flashcard `json:"cards"`
}
