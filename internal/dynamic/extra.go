package dynamic

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// MemoryExtraStore keeps extension data in memory
type MemoryExtraStore struct {
	mu    sync.RWMutex
	items map[string]map[string]roster.ExtraItem // owner -> contact -> item
}

// NewMemoryExtraStore creates an empty store
func NewMemoryExtraStore() *MemoryExtraStore {
	return &MemoryExtraStore{items: make(map[string]map[string]roster.ExtraItem)}
}

func (m *MemoryExtraStore) PutExtra(_ context.Context, owner jid.JID, item roster.ExtraItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := owner.Bare().String()
	if m.items[key] == nil {
		m.items[key] = make(map[string]roster.ExtraItem)
	}
	m.items[key][item.JID.Bare().String()] = cloneExtra(item)
	return nil
}

func (m *MemoryExtraStore) GetExtra(_ context.Context, owner, contact jid.JID) (*roster.ExtraItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[owner.Bare().String()][contact.Bare().String()]
	if !ok {
		return nil, nil
	}
	c := cloneExtra(item)
	return &c, nil
}

func cloneExtra(item roster.ExtraItem) roster.ExtraItem {
	c := item
	c.Attrs = append([]xml.Attr(nil), item.Attrs...)
	c.Inner = append([]byte(nil), item.Inner...)
	return c
}

// storedExtra is the JSON form kept in redis
type storedExtra struct {
	Space string     `json:"space"`
	Local string     `json:"local"`
	Attrs []xml.Attr `json:"attrs,omitempty"`
	Inner []byte     `json:"inner,omitempty"`
}

// RedisExtraStore keeps extension data in one redis hash per owner
type RedisExtraStore struct {
	client *redis.Client
	prefix string
}

// NewRedisExtraStore creates a store using keys "<prefix>:<owner>"
func NewRedisExtraStore(client *redis.Client, prefix string) *RedisExtraStore {
	if prefix == "" {
		prefix = "rosterd:extra"
	}
	return &RedisExtraStore{client: client, prefix: prefix}
}

func (r *RedisExtraStore) key(owner jid.JID) string {
	return r.prefix + ":" + owner.Bare().String()
}

func (r *RedisExtraStore) PutExtra(ctx context.Context, owner jid.JID, item roster.ExtraItem) error {
	data, err := json.Marshal(storedExtra{
		Space: item.Name.Space,
		Local: item.Name.Local,
		Attrs: item.Attrs,
		Inner: item.Inner,
	})
	if err != nil {
		return fmt.Errorf("failed to encode dynamic item: %w", err)
	}
	if err := r.client.HSet(ctx, r.key(owner), item.JID.Bare().String(), data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisExtraStore) GetExtra(ctx context.Context, owner, contact jid.JID) (*roster.ExtraItem, error) {
	data, err := r.client.HGet(ctx, r.key(owner), contact.Bare().String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var s storedExtra
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt dynamic item for %s: %w", contact, err)
	}
	return &roster.ExtraItem{
		Name:  xml.Name{Space: s.Space, Local: s.Local},
		JID:   contact.Bare(),
		Attrs: s.Attrs,
		Inner: s.Inner,
	}, nil
}
