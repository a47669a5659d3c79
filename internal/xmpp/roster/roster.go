package roster

import (
	"context"
	"encoding/xml"
	"errors"

	"mellium.im/xmpp/jid"
)

// NS is the roster management namespace.
const NS = "jabber:iq:roster"

// NSDynamic is the namespace used to read and write provider data attached
// to a single roster item.
const NSDynamic = "jabber:iq:roster-dynamic"

// ErrNotFound is returned when a roster item does not exist.
var ErrNotFound = errors.New("roster item not found")

// Subscription represents the subscription state
type Subscription string

const (
	SubscriptionNone   Subscription = "none"
	SubscriptionTo     Subscription = "to"
	SubscriptionFrom   Subscription = "from"
	SubscriptionBoth   Subscription = "both"
	SubscriptionRemove Subscription = "remove"
)

// Valid reports whether s is a storable subscription state.
func (s Subscription) Valid() bool {
	switch s {
	case SubscriptionNone, SubscriptionTo, SubscriptionFrom, SubscriptionBoth:
		return true
	}
	return false
}

// Item represents a roster item
type Item struct {
	JID          jid.JID
	Name         string
	Subscription Subscription
	Groups       []string
}

// Clone returns a copy of the item that shares no memory with it.
func (i Item) Clone() Item {
	c := i
	if i.Groups != nil {
		c.Groups = append([]string(nil), i.Groups...)
	}
	return c
}

// ExtraItem is provider specific data attached to one roster item, as
// exchanged in the dynamic namespace.
type ExtraItem struct {
	Name  xml.Name
	JID   jid.JID
	Attrs []xml.Attr
	Inner []byte
}

// Store is the per-owner persisted roster.
//
// Owner and contact addresses are bare JIDs. Implementations must be safe for
// concurrent use and must not lose updates when two sessions of the same
// owner modify the same contact at once.
type Store interface {
	// Subscription returns the stored subscription of contact. The boolean is
	// false when the contact is unknown or has no subscription recorded yet.
	Subscription(ctx context.Context, owner, contact jid.JID) (Subscription, bool, error)

	// SetSubscription records the subscription of an existing contact.
	SetSubscription(ctx context.Context, owner, contact jid.JID, sub Subscription) error

	// AddOrUpdate creates contact or replaces its name and groups. The
	// subscription is left untouched.
	AddOrUpdate(ctx context.Context, owner, contact jid.JID, name string, groups []string) error

	// AddGroups adds groups to an existing contact.
	AddGroups(ctx context.Context, owner, contact jid.JID, groups []string) error

	// Remove deletes contact from the roster.
	Remove(ctx context.Context, owner, contact jid.JID) error

	// Contains reports whether contact is in the roster.
	Contains(ctx context.Context, owner, contact jid.JID) (bool, error)

	// Item returns a single contact or ErrNotFound.
	Item(ctx context.Context, owner, contact jid.JID) (Item, error)

	// Items returns every contact of owner.
	Items(ctx context.Context, owner jid.JID) ([]Item, error)

	// Hash returns the content hash of the whole roster of owner.
	Hash(ctx context.Context, owner jid.JID) (string, error)
}

// MergeGroups returns the union of groups and extra, keeping the order of
// groups and appending unseen entries of extra.
func MergeGroups(groups, extra []string) []string {
	seen := make(map[string]bool, len(groups)+len(extra))
	merged := make([]string, 0, len(groups)+len(extra))
	for _, g := range groups {
		if seen[g] {
			continue
		}
		seen[g] = true
		merged = append(merged, g)
	}
	for _, g := range extra {
		if seen[g] {
			continue
		}
		seen[g] = true
		merged = append(merged, g)
	}
	return merged
}
