package dynamic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// SettingSharedGroups restricts the shared groups a request sees to a comma
// separated list of group names
const SettingSharedGroups = "shared-groups"

// DirectoryFile is the on-disk layout of a contact directory
type DirectoryFile struct {
	// Names maps JIDs to display names used for shared group members
	Names    map[string]string  `toml:"names"`
	Contacts []DirectoryContact `toml:"contact"`
	Shared   []SharedGroup      `toml:"shared"`
}

// DirectoryContact is a contact assigned to one owner
type DirectoryContact struct {
	Owner  string   `toml:"owner"`
	JID    string   `toml:"jid"`
	Name   string   `toml:"name"`
	Groups []string `toml:"groups"`
}

// SharedGroup makes every member a contact of every other member
type SharedGroup struct {
	Name    string   `toml:"name"`
	Members []string `toml:"members"`
}

type directoryEntry struct {
	item   roster.Item
	shared bool
}

// Directory serves contacts from a TOML directory file
type Directory struct {
	mu     sync.RWMutex
	path   string
	owners map[string][]directoryEntry // owner bare JID -> contacts
}

// LoadDirectory reads a directory file
func LoadDirectory(path string) (*Directory, error) {
	d := &Directory{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseDirectory builds a directory from TOML data
func ParseDirectory(data string) (*Directory, error) {
	var f DirectoryFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse directory: %w", err)
	}
	d := &Directory{}
	if err := d.load(f); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the directory file
func (d *Directory) Reload() error {
	var f DirectoryFile
	if _, err := toml.DecodeFile(d.path, &f); err != nil {
		return fmt.Errorf("failed to read directory %s: %w", d.path, err)
	}
	return d.load(f)
}

func (d *Directory) load(f DirectoryFile) error {
	owners := make(map[string][]directoryEntry)

	for _, c := range f.Contacts {
		owner, err := jid.Parse(c.Owner)
		if err != nil {
			return fmt.Errorf("invalid directory owner %q: %w", c.Owner, err)
		}
		contact, err := jid.Parse(c.JID)
		if err != nil {
			return fmt.Errorf("invalid directory contact %q: %w", c.JID, err)
		}
		key := owner.Bare().String()
		owners[key] = append(owners[key], directoryEntry{item: roster.Item{
			JID:          contact.Bare(),
			Name:         c.Name,
			Groups:       append([]string(nil), c.Groups...),
			Subscription: roster.SubscriptionBoth,
		}})
	}

	for _, g := range f.Shared {
		members := make([]jid.JID, 0, len(g.Members))
		for _, m := range g.Members {
			j, err := jid.Parse(m)
			if err != nil {
				return fmt.Errorf("invalid member %q of shared group %s: %w", m, g.Name, err)
			}
			members = append(members, j.Bare())
		}
		for _, owner := range members {
			key := owner.String()
			for _, member := range members {
				if member.Equal(owner) {
					continue
				}
				owners[key] = append(owners[key], directoryEntry{
					shared: true,
					item: roster.Item{
						JID:          member,
						Name:         f.Names[member.String()],
						Groups:       []string{g.Name},
						Subscription: roster.SubscriptionBoth,
					},
				})
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners = owners
	return nil
}

// Contacts returns the contacts of owner sorted by JID. Entries naming the
// same JID are merged.
func (d *Directory) Contacts(ctx context.Context, owner jid.JID, settings Settings) ([]roster.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allowed := sharedFilter(settings)

	d.mu.RLock()
	entries := d.owners[owner.Bare().String()]
	d.mu.RUnlock()

	merged := make(map[string]*roster.Item)
	var order []string
	for _, e := range entries {
		if e.shared && allowed != nil && !allowed[e.item.Groups[0]] {
			continue
		}
		key := e.item.JID.String()
		if existing, ok := merged[key]; ok {
			existing.Groups = roster.MergeGroups(existing.Groups, e.item.Groups)
			if existing.Name == "" {
				existing.Name = e.item.Name
			}
			continue
		}
		item := e.item.Clone()
		merged[key] = &item
		order = append(order, key)
	}

	sort.Strings(order)
	out := make([]roster.Item, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out, nil
}

func (d *Directory) Lookup(ctx context.Context, owner jid.JID, settings Settings, contact jid.JID) (*roster.Item, error) {
	items, err := d.Contacts(ctx, owner, settings)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].JID.Equal(contact.Bare()) {
			return &items[i], nil
		}
	}
	return nil, nil
}

func sharedFilter(settings Settings) map[string]bool {
	v, ok := settings[SettingSharedGroups]
	if !ok {
		return nil
	}
	allowed := make(map[string]bool)
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			allowed[name] = true
		}
	}
	return allowed
}
