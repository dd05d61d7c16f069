// types_user.go - Registrierung, Login und Benutzerdaten
package api

import "time"

// RegisterRequest ist der Body von POST /register. Das Passwort muss
// mindestens 6 Zeichen lang sein.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest wird als Formular (username, password) oder JSON gesendet
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// UserResponse beschreibt einen Benutzer
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// TokenResponse ist die Antwort von POST /login
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   Duration `json:"expires_in,omitzero"`
}
