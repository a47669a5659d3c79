// Package dynamic supplies roster contacts that are not persisted in the
// roster store, and keeps the per-item data of the dynamic namespace.
package dynamic

import (
	"context"
	"errors"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// ErrExtraUnavailable is returned when no extension data store is configured
var ErrExtraUnavailable = errors.New("dynamic item storage not available")

// Settings are request scoped options passed through to providers
type Settings map[string]string

// Provider is consumed by the roster request handlers
type Provider interface {
	// Pending returns the dynamic contacts of owner. The returned slice is
	// owned by the caller.
	Pending(ctx context.Context, owner jid.JID, settings Settings) ([]roster.Item, error)

	// Lookup returns the dynamic contact for contact, or nil.
	Lookup(ctx context.Context, owner jid.JID, settings Settings, contact jid.JID) (*roster.Item, error)

	// Augment returns item enriched with stored extension data, or nil when
	// there is nothing to add.
	Augment(ctx context.Context, owner jid.JID, settings Settings, item roster.ExtraItem) (*roster.ExtraItem, error)

	// Store saves extension data sent by a client.
	Store(ctx context.Context, owner jid.JID, settings Settings, item roster.ExtraItem) error
}

// ContactSource supplies dynamic contacts
type ContactSource interface {
	Contacts(ctx context.Context, owner jid.JID, settings Settings) ([]roster.Item, error)
	Lookup(ctx context.Context, owner jid.JID, settings Settings, contact jid.JID) (*roster.Item, error)
}

// ExtraStore keeps extension data per owner and contact. It receives the
// settings of the request it serves.
type ExtraStore interface {
	PutExtra(ctx context.Context, owner jid.JID, settings Settings, item roster.ExtraItem) error
	GetExtra(ctx context.Context, owner jid.JID, settings Settings, contact jid.JID) (*roster.ExtraItem, error)
}

// ItemStore is an extension data store that has no use for settings
type ItemStore interface {
	PutExtra(ctx context.Context, owner jid.JID, item roster.ExtraItem) error
	GetExtra(ctx context.Context, owner, contact jid.JID) (*roster.ExtraItem, error)
}

// IgnoreSettings adapts s to ExtraStore
func IgnoreSettings(s ItemStore) ExtraStore {
	return ignoreSettings{s}
}

type ignoreSettings struct {
	s ItemStore
}

func (i ignoreSettings) PutExtra(ctx context.Context, owner jid.JID, _ Settings, item roster.ExtraItem) error {
	return i.s.PutExtra(ctx, owner, item)
}

func (i ignoreSettings) GetExtra(ctx context.Context, owner jid.JID, _ Settings, contact jid.JID) (*roster.ExtraItem, error) {
	return i.s.GetExtra(ctx, owner, contact)
}
