// Package plugin is the public API for out-of-process dynamic roster
// providers. A provider implements DynamicRoster and calls Serve from its
// main function; rosterd loads the binary with a Host.
package plugin

import (
	"context"
)

// DynamicRoster is the interface that all dynamic roster plugins implement.
// Addresses are bare JIDs in string form.
type DynamicRoster interface {
	// Metadata describes the plugin
	Metadata(ctx context.Context) (Metadata, error)

	// Contacts returns every dynamic contact of owner
	Contacts(ctx context.Context, owner string, settings map[string]string) ([]Contact, error)

	// Lookup returns the dynamic contact for jid, or nil
	Lookup(ctx context.Context, owner string, settings map[string]string, jid string) (*Contact, error)

	// Extra returns the stored extension data of jid, or nil
	Extra(ctx context.Context, owner string, settings map[string]string, jid string) (*Extra, error)

	// StoreExtra saves extension data sent by a client
	StoreExtra(ctx context.Context, owner string, settings map[string]string, extra Extra) error
}

// Contact represents a dynamic roster contact
type Contact struct {
	JID          string   `json:"jid"`
	Name         string   `json:"name,omitempty"`
	Groups       []string `json:"groups,omitempty"`
	Subscription string   `json:"subscription,omitempty"`
}

// Extra is the extension data attached to one roster item
type Extra struct {
	JID string `json:"jid"`
	// Element is the local name of the item element
	Element string `json:"element"`
	// Namespace of the item element
	Namespace string            `json:"namespace,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	// Inner is the raw inner XML of the item element
	Inner string `json:"inner,omitempty"`
}

// Metadata contains plugin metadata
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	License     string `json:"license,omitempty"`
}
