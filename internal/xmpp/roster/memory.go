package roster

import (
	"context"
	"sort"
	"sync"

	"mellium.im/xmpp/jid"
)

// MemoryStore keeps rosters in memory
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string]*Item // owner -> contact -> item
}

// NewMemoryStore creates an empty in-memory roster store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]map[string]*Item),
	}
}

func (m *MemoryStore) lookup(owner, contact jid.JID) *Item {
	return m.items[owner.Bare().String()][contact.Bare().String()]
}

// Subscription returns the subscription of a contact
func (m *MemoryStore) Subscription(_ context.Context, owner, contact jid.JID) (Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item := m.lookup(owner, contact)
	if item == nil || item.Subscription == "" {
		return "", false, nil
	}
	return item.Subscription, true, nil
}

// SetSubscription sets the subscription of an existing contact
func (m *MemoryStore) SetSubscription(_ context.Context, owner, contact jid.JID, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.lookup(owner, contact); item != nil {
		item.Subscription = sub
	}
	return nil
}

// AddOrUpdate creates a contact or replaces its name and groups
func (m *MemoryStore) AddOrUpdate(_ context.Context, owner, contact jid.JID, name string, groups []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := owner.Bare().String()
	if m.items[key] == nil {
		m.items[key] = make(map[string]*Item)
	}

	bare := contact.Bare()
	item := m.items[key][bare.String()]
	if item == nil {
		item = &Item{JID: bare}
		m.items[key][bare.String()] = item
	}
	item.Name = name
	item.Groups = MergeGroups(nil, groups)
	return nil
}

// AddGroups adds groups to an existing contact
func (m *MemoryStore) AddGroups(_ context.Context, owner, contact jid.JID, groups []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.lookup(owner, contact); item != nil {
		item.Groups = MergeGroups(item.Groups, groups)
	}
	return nil
}

// Remove removes a contact
func (m *MemoryStore) Remove(_ context.Context, owner, contact jid.JID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := owner.Bare().String()
	delete(m.items[key], contact.Bare().String())
	if len(m.items[key]) == 0 {
		delete(m.items, key)
	}
	return nil
}

// Contains reports whether a contact exists
func (m *MemoryStore) Contains(_ context.Context, owner, contact jid.JID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(owner, contact) != nil, nil
}

// Item returns a copy of a contact
func (m *MemoryStore) Item(_ context.Context, owner, contact jid.JID) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item := m.lookup(owner, contact)
	if item == nil {
		return Item{}, ErrNotFound
	}
	return item.Clone(), nil
}

// Items returns copies of all contacts, sorted by JID
func (m *MemoryStore) Items(_ context.Context, owner jid.JID) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(owner), nil
}

// Hash returns the content hash of the roster
func (m *MemoryStore) Hash(_ context.Context, owner jid.JID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Hash(m.snapshot(owner)), nil
}

func (m *MemoryStore) snapshot(owner jid.JID) []Item {
	contacts := m.items[owner.Bare().String()]
	items := make([]Item, 0, len(contacts))
	for _, item := range contacts {
		items = append(items, item.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].JID.String() < items[j].JID.String()
	})
	return items
}
