// Package session turns the bearer credential issued by the pharmacy API into
// the operator session the dashboard gates on.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession = errors.New("no session")
	ErrExpired   = errors.New("session expired")
	ErrMalformed = errors.New("malformed access token")
)

// Session is the authenticated operator. Only AccessToken is required by the
// rest of the dashboard; the claims are informational.
type Session struct {
	AccessToken string
	Subject     string
	Role        string
	ExpiresAt   time.Time
}

type claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Parse reads the claims of an access token. The signature is verified by the
// API on every request, so it is not checked here.
func Parse(token string, now time.Time) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s := &Session{AccessToken: token, Role: c.Role, Subject: c.Subject}
	if s.Subject == "" && c.UserID != 0 {
		s.Subject = fmt.Sprint(c.UserID)
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
		if !now.Before(s.ExpiresAt) {
			return nil, ErrExpired
		}
	}
	return s, nil
}

// Store keeps the access token in an HTTP-only cookie.
type Store struct {
	CookieName string
	Secure     bool
	Now        func() time.Time
}

func NewStore(cookieName string) *Store {
	return &Store{CookieName: cookieName, Now: time.Now}
}

// Load returns the session of the request, or an error when there is none.
func (s *Store) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(s.CookieName)
	if err != nil {
		return nil, ErrNoSession
	}
	return Parse(cookie.Value, s.Now())
}

func (s *Store) Save(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
