package main

import (
	"context"
	"fmt"
	"sync"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"github.com/meszmate/rosterd/pkg/plugin"
)

const version = "0.1.0"

// directoryRoster exposes a directory through the plugin interface and keeps
// extension data in memory
type directoryRoster struct {
	dir *dynamic.Directory

	mu     sync.RWMutex
	extras map[string]map[string]plugin.Extra // owner -> contact -> data
}

func newDirectoryRoster(dir *dynamic.Directory) *directoryRoster {
	return &directoryRoster{
		dir:    dir,
		extras: make(map[string]map[string]plugin.Extra),
	}
}

func (d *directoryRoster) Metadata(context.Context) (plugin.Metadata, error) {
	return plugin.Metadata{
		Name:        "directory",
		Version:     version,
		Description: "Contacts and shared groups from a TOML directory",
		License:     "MIT",
	}, nil
}

func (d *directoryRoster) Contacts(ctx context.Context, owner string, settings map[string]string) ([]plugin.Contact, error) {
	o, err := jid.Parse(owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner %q: %w", owner, err)
	}
	items, err := d.dir.Contacts(ctx, o, dynamic.Settings(settings))
	if err != nil {
		return nil, err
	}
	out := make([]plugin.Contact, 0, len(items))
	for _, item := range items {
		out = append(out, toContact(item))
	}
	return out, nil
}

func (d *directoryRoster) Lookup(ctx context.Context, owner string, settings map[string]string, contact string) (*plugin.Contact, error) {
	o, err := jid.Parse(owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner %q: %w", owner, err)
	}
	c, err := jid.Parse(contact)
	if err != nil {
		return nil, fmt.Errorf("invalid contact %q: %w", contact, err)
	}
	item, err := d.dir.Lookup(ctx, o, dynamic.Settings(settings), c)
	if err != nil || item == nil {
		return nil, err
	}
	out := toContact(*item)
	return &out, nil
}

func (d *directoryRoster) Extra(_ context.Context, owner string, _ map[string]string, contact string) (*plugin.Extra, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	extra, ok := d.extras[owner][contact]
	if !ok {
		return nil, nil
	}
	return &extra, nil
}

func (d *directoryRoster) StoreExtra(_ context.Context, owner string, _ map[string]string, extra plugin.Extra) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.extras[owner] == nil {
		d.extras[owner] = make(map[string]plugin.Extra)
	}
	d.extras[owner][extra.JID] = extra
	return nil
}

func toContact(item roster.Item) plugin.Contact {
	return plugin.Contact{
		JID:          item.JID.String(),
		Name:         item.Name,
		Groups:       item.Groups,
		Subscription: string(item.Subscription),
	}
}
