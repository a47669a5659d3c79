package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/presence"
)

var (
	// ErrNotAuthorized is returned for operations that need a bound session
	ErrNotAuthorized = errors.New("session not authorized")
	// ErrAuthFailed is returned when credentials are rejected
	ErrAuthFailed = errors.New("authentication failed")
)

// Session is one client connection of a user
type Session struct {
	mu         sync.RWMutex
	connID     string
	resource   string
	jid        jid.JID
	authorized bool
	presence   *presence.Tracker
}

// New creates an unauthorized session. An empty connection id is replaced
// with a generated one. tracker may be nil.
func New(connID, resource string, tracker *presence.Tracker) *Session {
	if connID == "" {
		connID = uuid.NewString()
	}
	if resource == "" {
		resource = "rosterd-" + uuid.NewString()[:8]
	}
	if tracker == nil {
		tracker = presence.NewTracker()
	}
	return &Session{
		connID:   connID,
		resource: resource,
		presence: tracker,
	}
}

// ConnectionID returns the id of the connection the session arrived on
func (s *Session) ConnectionID() string {
	return s.connID
}

// Resource returns the resource the session binds to
func (s *Session) Resource() string {
	return s.resource
}

// Bind marks the session as authorized for the full JID
func (s *Session) Bind(full jid.JID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jid = full
	s.resource = full.Resourcepart()
	s.authorized = true
}

// Authorized reports whether the session has been bound
func (s *Session) Authorized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorized
}

// Owner returns the bare JID of the user owning the session
func (s *Session) Owner() (jid.JID, error) {
	full, err := s.JID()
	if err != nil {
		return jid.JID{}, err
	}
	return full.Bare(), nil
}

// JID returns the full JID the session is bound to
func (s *Session) JID() (jid.JID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authorized {
		return jid.JID{}, ErrNotAuthorized
	}
	return s.jid, nil
}

// Broadcast records p as the presence the session last sent out
func (s *Session) Broadcast(p *xmpp.Presence) error {
	full, err := s.JID()
	if err != nil {
		return err
	}
	s.presence.Set(full, p)
	return nil
}

// LastPresence returns a copy of the last broadcast presence, or nil
func (s *Session) LastPresence() *xmpp.Presence {
	full, err := s.JID()
	if err != nil {
		return nil
	}
	return s.presence.Get(full)
}

// Close forgets the broadcast presence of the session
func (s *Session) Close() {
	if full, err := s.JID(); err == nil {
		s.presence.Remove(full)
	}
}
