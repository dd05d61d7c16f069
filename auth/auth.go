// Package auth - Passwort-Hashing und Access-Tokens
//
// Enthaelt:
// - HashPassword/CheckPassword: bcrypt
// - Issuer: HS256 JWTs mit sub, exp, iat und jti
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// cost ist der bcrypt-Aufwand; Tests setzen bcrypt.MinCost
var cost = bcrypt.DefaultCost

// HashPassword erzeugt einen bcrypt-Hash
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword vergleicht password mit hash
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Issuer stellt Access-Tokens aus und prueft sie
type Issuer struct {
	secret []byte
	ttl    time.Duration
	name   string

	now func() time.Time
}

// NewIssuer erstellt einen Issuer. Ohne secret wird ein zufaelliger Schluessel
// erzeugt; Tokens sind dann nur bis zum Neustart gueltig.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %v", ttl)
	}
	return &Issuer{secret: key, ttl: ttl, name: "edullm", now: time.Now}, nil
}

// TTL gibt die Gueltigkeitsdauer der Tokens zurueck
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue stellt ein Token fuer subject aus
func (i *Issuer) Issue(subject string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    i.name,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify prueft Signatur und Ablauf und gibt das Subject zurueck
func (i *Issuer) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.name),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
