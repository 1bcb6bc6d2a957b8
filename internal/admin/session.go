// Package admin guards the processing endpoints with a signed session cookie
// unlocked by the backend's processing token.
package admin

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	CookieName = "processing_admin_session"
	subject    = "admin"
	saltKey    = "admin_session_salt"
	keyInfo    = "newsroom admin session"
)

// SaltStore persists the session key salt.
type SaltStore interface {
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error
}

// Sessions issues and checks admin session cookies. The signing key is
// derived from the processing token, so rotating the token logs everyone out.
type Sessions struct {
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessions derives the signing key. With an empty token no session is
// ever valid.
func NewSessions(token string, salts SaltStore, ttl time.Duration, secure bool) (*Sessions, error) {
	s := &Sessions{ttl: ttl, secure: secure, now: time.Now}
	if token == "" {
		return s, nil
	}
	salt, err := loadOrCreateSalt(salts)
	if err != nil {
		return nil, err
	}
	s.key = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(token), salt, []byte(keyInfo)), s.key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return s, nil
}

func loadOrCreateSalt(salts SaltStore) ([]byte, error) {
	val, err := salts.GetConfig(saltKey)
	if err != nil {
		return nil, err
	}
	if val != "" {
		return base64.StdEncoding.DecodeString(val)
	}
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate session salt: %w", err)
	}
	if err := salts.SetConfig(saltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, err
	}
	return salt, nil
}

func (s *Sessions) Configured() bool { return len(s.key) > 0 }

// Issue signs a new session token.
func (s *Sessions) Issue() (string, time.Time, error) {
	if !s.Configured() {
		return "", time.Time{}, fmt.Errorf("admin token not configured")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Valid reports whether value is an unexpired session signed with the
// current key.
func (s *Sessions) Valid(value string) bool {
	if !s.Configured() || value == "" {
		return false
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return err == nil && token.Valid
}

// Authenticated checks the request's session cookie.
func (s *Sessions) Authenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return s.Valid(c.Value)
}

// SetCookie stores a freshly issued session in the response.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// MatchToken compares a submitted token with the configured one in constant
// time. Empty tokens never match.
func MatchToken(expected, candidate string) bool {
	if expected == "" || candidate == "" || len(expected) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1
}
