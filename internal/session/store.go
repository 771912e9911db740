package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const CookieName = "nerdemo_session"

// Session holds the candidate text of one browser session. It is replaced
// wholesale on every suggestion click or submit.
type Session struct {
	ID        string
	Text      string
	UpdatedAt time.Time
}

type Store struct {
	sync.Map
}

type contextKeyType struct{}

// ContextKey is the key for storing/retrieving session IDs from request context
var ContextKey = contextKeyType{}

func NewStore() *Store {
	return &Store{}
}

func GenerateID() string {
	return uuid.NewString()
}

func (s *Store) SetText(sessionID, text string) {
	if s == nil || sessionID == "" {
		return
	}
	s.Store(sessionID, Session{ID: sessionID, Text: text, UpdatedAt: time.Now().UTC()})
}

func (s *Store) Get(sessionID string) (Session, bool) {
	if s == nil || sessionID == "" {
		return Session{}, false
	}
	v, ok := s.Load(sessionID)
	if !ok {
		return Session{}, false
	}
	session, ok := v.(Session)
	return session, ok
}

// Text returns the stored input for sessionID, or "" when none exists.
func (s *Store) Text(sessionID string) string {
	sess, _ := s.Get(sessionID)
	return sess.Text
}

func (s *Store) Delete(sessionID string) {
	if s == nil || sessionID == "" {
		return
	}
	s.Map.Delete(sessionID)
}

// Sweep drops sessions last updated before cutoff and reports how many
// were removed.
func (s *Store) Sweep(cutoff time.Time) int {
	removed := 0
	s.Range(func(k, v any) bool {
		sess, ok := v.(Session)
		if ok && !sess.UpdatedAt.Before(cutoff) {
			return true
		}
		if s.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	return removed
}

// StartSweeper evicts sessions idle for longer than ttl every interval until
// the returned stop func is called. stop is safe to call more than once.
func (s *Store) StartSweeper(interval, ttl time.Duration, onSweep func(removed int)) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				if n := s.Sweep(now.Add(-ttl)); n > 0 && onSweep != nil {
					onSweep(n)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Len counts live sessions.
func (s *Store) Len() int {
	n := 0
	s.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// FromRequest returns the session id carried by r's cookie. When absent or
// malformed, a fresh id is issued and set on w.
func FromRequest(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			return c.Value
		}
	}
	id := GenerateID()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// GetIDFromContext retrieves the session ID from request context
func GetIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ContextKey).(string)
	return id
}

// ContextWithID returns a new context with the session ID set
func ContextWithID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ContextKey, sessionID)
}
