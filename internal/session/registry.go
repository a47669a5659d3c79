package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/rosterd/internal/logging"
	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/presence"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// Target identifies the session a roster push is delivered to
type Target struct {
	JID   jid.JID
	Route string
}

// Registry tracks the live sessions of every user
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // bare JID -> connection id -> session
	presence *presence.Tracker
	logger   *logging.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		sessions: make(map[string]map[string]*Session),
		presence: presence.NewTracker(),
		logger:   logger,
	}
}

// NewSession creates a session sharing the registry's presence tracker
func (r *Registry) NewSession(connID, resource string) *Session {
	return New(connID, resource, r.presence)
}

// Register adds an authorized session
func (r *Registry) Register(s *Session) error {
	owner, err := s.Owner()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bare := owner.String()
	if r.sessions[bare] == nil {
		r.sessions[bare] = make(map[string]*Session)
	}
	r.sessions[bare][s.ConnectionID()] = s
	r.logger.Debug("registered %s for %s", s.ConnectionID(), bare)
	return nil
}

// Unregister removes a session and its broadcast presence
func (r *Registry) Unregister(s *Session) {
	owner, err := s.Owner()
	if err != nil {
		return
	}
	s.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	bare := owner.String()
	if r.sessions[bare] == nil {
		return
	}
	delete(r.sessions[bare], s.ConnectionID())
	if len(r.sessions[bare]) == 0 {
		delete(r.sessions, bare)
	}
}

// Sessions returns the live sessions of owner sorted by connection id
func (r *Registry) Sessions(owner jid.JID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.sessions[owner.Bare().String()]
	out := make([]*Session, 0, len(conns))
	for _, s := range conns {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID() < out[j].ConnectionID() })
	return out
}

// NotifyChange queues a roster push of item to the requester followed by
// every other live session of the same user
func (r *Registry) NotifyChange(ctx context.Context, requester Target, item roster.Item, results *xmpp.Queue) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	targets := []Target{requester}
	for _, s := range r.Sessions(requester.JID) {
		if s.ConnectionID() == requester.Route {
			continue
		}
		full, err := s.JID()
		if err != nil {
			continue
		}
		targets = append(targets, Target{JID: full, Route: s.ConnectionID()})
	}

	for _, t := range targets {
		results.Offer(&xmpp.IQ{
			ID:    "push-" + uuid.NewString(),
			Type:  stanza.SetIQ,
			To:    t.JID,
			Route: t.Route,
			Query: &xmpp.Query{
				Namespace: roster.NS,
				Items:     []roster.Item{item},
			},
		})
	}
	return nil
}
