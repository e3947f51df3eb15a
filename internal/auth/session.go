// Package auth implements the shared site password and its sessions.
package auth

import (
	"errors"
	"log/slog"
	"time"

	"caixa/internal/cache"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CookieName is the session cookie set after a successful login.
const CookieName = "caixa_session"

const maxSessions = 1000

var ErrWrongPassword = errors.New("wrong password")

// Session is an unlocked browser.
type Session struct {
	ID        string
	CreatedAt time.Time
	ClientIP  string
}

// SessionStore checks the site password and tracks unlocked sessions in a
// bounded LRU cache. Sessions expire after the TTL; a restart logs everyone out.
type SessionStore struct {
	enabled  bool
	hash     []byte
	ttl      time.Duration
	sessions *cache.LRUCache[Session]
}

// NewSessionStore returns a store for password, given in clear text or as a
// bcrypt hash. An empty password disables the gate, see Enabled.
func NewSessionStore(password string, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	s := &SessionStore{
		enabled:  password != "",
		ttl:      ttl,
		sessions: cache.NewLRUCache[Session](maxSessions, ttl),
	}
	if s.enabled {
		s.hash = passwordHash(password)
	}
	return s
}

// passwordHash hashes clear text once at startup. A hash that cannot be
// built (bcrypt reads at most 72 bytes) is nil and matches nothing.
func passwordHash(password string) []byte {
	if IsHash(password) {
		return []byte(password)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Site password cannot be hashed, every login will fail", "component", "auth", "error", err)
		return nil
	}
	return h
}

// IsHash reports whether s is already a bcrypt hash.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// Enabled reports whether a password is configured.
func (s *SessionStore) Enabled() bool {
	return s.enabled
}

// TTL is the session lifetime, used for the cookie Max-Age.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Cache exposes the session cache so it can be registered for cleanup.
func (s *SessionStore) Cache() *cache.LRUCache[Session] {
	return s.sessions
}

// Login checks password against the bcrypt hash and opens a session.
func (s *SessionStore) Login(password, clientIP string) (Session, error) {
	if !s.enabled || s.hash == nil || bcrypt.CompareHashAndPassword(s.hash, []byte(password)) != nil {
		return Session{}, ErrWrongPassword
	}
	sess := Session{ID: uuid.NewString(), CreatedAt: time.Now(), ClientIP: clientIP}
	s.sessions.Set(sess.ID, sess)
	return sess, nil
}

// Valid reports whether id names a live session.
func (s *SessionStore) Valid(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.sessions.Get(id)
	return ok
}

func (s *SessionStore) Logout(id string) {
	s.sessions.Delete(id)
}
