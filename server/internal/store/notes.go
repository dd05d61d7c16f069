// notes.go - Notizen und Karteikarten-Decks, jeweils an einen Benutzer gebunden
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Note ist eine gespeicherte Notiz
type Note struct {
	ID           int64
	UserID       int64
	Title        string
	Content      string
	IsBookmarked bool
	CreatedAt    time.Time
}

// Card ist eine Karteikarte
type Card struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Deck ist ein Karteikarten-Deck; die Karten liegen als JSON in einer Spalte
type Deck struct {
	ID         int64
	UserID     int64
	Topic      string
	Difficulty string
	Cards      []Card
	CreatedAt  time.Time
}

// CreateNote speichert eine neue Notiz
func (s *Store) CreateNote(ctx context.Context, n *Note) error {
	n.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO notes (user_id, title, content, is_bookmarked, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.UserID, n.Title, n.Content, n.IsBookmarked, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	n.ID, err = res.LastInsertId()
	return err
}

// Notes gibt die Notizen eines Benutzers zurueck, neueste zuerst
func (s *Store) Notes(ctx context.Context, userID int64) ([]Note, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, title, content, is_bookmarked, created_at FROM notes WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.IsBookmarked, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Note gibt eine Notiz des Benutzers zurueck; fremde Notizen ergeben ErrNotFound
func (s *Store) Note(ctx context.Context, userID, id int64) (*Note, error) {
	var n Note
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, is_bookmarked, created_at FROM notes WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.IsBookmarked, &n.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

// SetBookmark setzt das Lesezeichen einer Notiz
func (s *Store) SetBookmark(ctx context.Context, userID, id int64, bookmarked bool) (*Note, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE notes SET is_bookmarked = ? WHERE id = ? AND user_id = ?`, bookmarked, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	if err := affected(res); err != nil {
		return nil, err
	}
	return s.Note(ctx, userID, id)
}

// DeleteNote loescht eine Notiz des Benutzers
func (s *Store) DeleteNote(ctx context.Context, userID, id int64) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return affected(res)
}

// CreateDeck speichert ein neues Deck
func (s *Store) CreateDeck(ctx context.Context, d *Deck) error {
	if d.Cards == nil {
		d.Cards = []Card{}
	}
	cards, err := json.Marshal(d.Cards)
	if err != nil {
		return err
	}

	d.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO flashcard_decks (user_id, topic, difficulty, cards, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.UserID, d.Topic, d.Difficulty, string(cards), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert deck: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

// Decks gibt die Decks eines Benutzers zurueck, neueste zuerst
func (s *Store) Decks(ctx context.Context, userID int64) ([]Deck, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, topic, difficulty, cards, created_at FROM flashcard_decks WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query decks: %w", err)
	}
	defer rows.Close()

	decks := []Deck{}
	for rows.Next() {
		var d Deck
		var cards string
		if err := rows.Scan(&d.ID, &d.UserID, &d.Topic, &d.Difficulty, &cards, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		if err := json.Unmarshal([]byte(cards), &d.Cards); err != nil {
			return nil, fmt.Errorf("decode cards of deck %d: %w", d.ID, err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// DeleteDeck loescht ein Deck des Benutzers
func (s *Store) DeleteDeck(ctx context.Context, userID, id int64) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM flashcard_decks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	return affected(res)
}

type result interface {
	RowsAffected() (int64, error)
}

func affected(res result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
