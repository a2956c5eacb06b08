// Package session keeps one wizard state per browser, keyed by a cookie.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"fridgechef/internal/wizard"
)

// ErrNotFound is returned when no session exists for an ID, or it expired.
var ErrNotFound = errors.New("session not found")

// Flash levels, rendered as alert styles.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Flash is a one-shot message shown on the next page render.
type Flash struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Session is the persisted unit.
type Session struct {
	ID        string       `json:"id"`
	State     wizard.State `json:"state"`
	Flashes   []Flash      `json:"flashes,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// New returns a session with a fresh ID and the initial wizard state.
func New() *Session {
	return &Session{ID: uuid.NewString(), State: wizard.New()}
}

// AddFlash queues a message.
func (s *Session) AddFlash(level, text string) {
	s.Flashes = append(s.Flashes, Flash{Level: level, Text: text})
}

// TakeFlashes returns queued messages and clears the queue.
func (s *Session) TakeFlashes() []Flash {
	f := s.Flashes
	s.Flashes = nil
	return f
}

// Store persists sessions.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
