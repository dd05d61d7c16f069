// users.go - Benutzerkonten
package store

import (
	"context"
	"fmt"
	"time"
)

// User ist ein registriertes Konto
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// CreateUser legt einen Benutzer an. Eine vorhandene E-Mail (ohne Beachtung
// der Gross-/Kleinschreibung) ergibt ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	u := &User{
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, is_active, created_at) VALUES (?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.IsActive, u.CreatedAt)
	if uniqueViolation(err) {
		return nil, ErrDuplicateEmail
	} else if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return u, nil
}

// UserByEmail sucht einen Benutzer ueber die E-Mail
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(ctx, `SELECT id, email, password_hash, is_active, created_at FROM users WHERE email = ?`, email)
}

// UserByID sucht einen Benutzer ueber die ID
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(ctx, `SELECT id, email, password_hash, is_active, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) scanUser(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := s.conn.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
