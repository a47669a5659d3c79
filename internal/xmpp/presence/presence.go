package presence

import (
	"sort"
	"sync"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp"
)

// Show values carried in <show/>
const (
	ShowOnline = ""
	ShowAway   = "away"
	ShowChat   = "chat"
	ShowDND    = "dnd"
	ShowXA     = "xa"
)

// Tracker keeps the last presence each connected resource broadcast
type Tracker struct {
	mu         sync.RWMutex
	broadcasts map[string]map[string]*xmpp.Presence // bare JID -> resource -> presence
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		broadcasts: make(map[string]map[string]*xmpp.Presence),
	}
}

// Set records p as the latest broadcast of the full JID from.
// Unavailable presences drop the resource instead.
func (t *Tracker) Set(from jid.JID, p *xmpp.Presence) {
	if p == nil || p.Type == "unavailable" {
		t.Remove(from)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bare := from.Bare().String()
	if t.broadcasts[bare] == nil {
		t.broadcasts[bare] = make(map[string]*xmpp.Presence)
	}
	t.broadcasts[bare][from.Resourcepart()] = p.Clone()
}

// Remove forgets a single resource, or every resource for a bare JID
func (t *Tracker) Remove(j jid.JID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bare := j.Bare().String()
	resource := j.Resourcepart()

	if resource == "" {
		delete(t.broadcasts, bare)
		return
	}
	if t.broadcasts[bare] != nil {
		delete(t.broadcasts[bare], resource)
		if len(t.broadcasts[bare]) == 0 {
			delete(t.broadcasts, bare)
		}
	}
}

// Get returns a copy of the last broadcast for a full JID, or nil
func (t *Tracker) Get(full jid.JID) *xmpp.Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resources := t.broadcasts[full.Bare().String()]
	if resources == nil {
		return nil
	}
	p, ok := resources[full.Resourcepart()]
	if !ok {
		return nil
	}
	return p.Clone()
}

// Resources returns the sorted resources with a recorded broadcast
func (t *Tracker) Resources(bare jid.JID) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resources := t.broadcasts[bare.Bare().String()]
	out := make([]string, 0, len(resources))
	for r := range resources {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// IsOnline checks if any resource of the bare JID has broadcast presence
func (t *Tracker) IsOnline(bare jid.JID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.broadcasts[bare.Bare().String()]) > 0
}
