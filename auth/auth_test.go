package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func init() {
	cost = bcrypt.MinCost
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("geheim123")
	if err != nil {
		t.Fatalf("HashPassword() Fehler: %v", err)
	}
	if hash == "geheim123" {
		t.Fatal("Passwort wurde nicht gehasht")
	}

	if err := CheckPassword(hash, "geheim123"); err != nil {
		t.Errorf("CheckPassword() = %v, erwartet nil", err)
	}
	if err := CheckPassword(hash, "falsch"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("CheckPassword() = %v, erwartet ErrInvalidCredentials", err)
	}
}

func TestIssueVerify(t *testing.T) {
	issuer, err := NewIssuer("secret", 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	token, err := issuer.Issue("user@example.com")
	if err != nil {
		t.Fatalf("Issue() Fehler: %v", err)
	}

	sub, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() Fehler: %v", err)
	}
	if sub != "user@example.com" {
		t.Errorf("Verify() = %q, erwartet user@example.com", sub)
	}

	other, _ := issuer.Issue("user@example.com")
	if other == token {
		t.Error("Tokens muessen eine eindeutige jti haben")
	}
}

func TestVerifyErrors(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	token, err := issuer.Issue("a@b.c")
	if err != nil {
		t.Fatal(err)
	}

	foreign, err := NewIssuer("anderes", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	expired, err := NewIssuer("secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tests := []struct {
		name   string
		issuer *Issuer
		token  string
	}{
		{"falsche Signatur", foreign, token},
		{"abgelaufen", expired, token},
		{"kein JWT", issuer, "abc.def.ghi"},
		{"leer", issuer, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.issuer.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() = %v, erwartet ErrInvalidToken", err)
			}
		})
	}
}

func TestNewIssuer(t *testing.T) {
	if _, err := NewIssuer("x", 0); err == nil {
		t.Error("NewIssuer() erwartet Fehler bei TTL 0")
	}

	a, err := NewIssuer("", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewIssuer("", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	token, _ := a.Issue("x")
	if _, err := b.Verify(token); err == nil {
		t.Error("zufaellige Schluessel muessen sich unterscheiden")
	}
}
