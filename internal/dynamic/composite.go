package dynamic

import (
	"context"
	"fmt"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/logging"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// Composite combines contact sources with one extension data store
type Composite struct {
	sources []ContactSource
	extras  ExtraStore
	logger  *logging.Logger
}

// NewComposite creates a provider. extras may be nil, in which case stored
// data is unavailable.
func NewComposite(extras ExtraStore, logger *logging.Logger, sources ...ContactSource) *Composite {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Composite{
		sources: sources,
		extras:  extras,
		logger:  logger,
	}
}

// Pending returns the contacts of every source. The first source to name a
// JID wins.
func (c *Composite) Pending(ctx context.Context, owner jid.JID, settings Settings) ([]roster.Item, error) {
	seen := make(map[string]bool)
	var out []roster.Item
	for i, src := range c.sources {
		items, err := src.Contacts(ctx, owner, settings)
		if err != nil {
			return nil, fmt.Errorf("dynamic source %d: %w", i, err)
		}
		for _, item := range items {
			key := item.JID.Bare().String()
			if seen[key] || item.JID.Bare().Equal(owner.Bare()) {
				continue
			}
			seen[key] = true
			out = append(out, item.Clone())
		}
	}
	c.logger.Debug("%d dynamic contacts for %s", len(out), owner)
	return out, nil
}

func (c *Composite) Lookup(ctx context.Context, owner jid.JID, settings Settings, contact jid.JID) (*roster.Item, error) {
	for i, src := range c.sources {
		item, err := src.Lookup(ctx, owner, settings, contact)
		if err != nil {
			return nil, fmt.Errorf("dynamic source %d: %w", i, err)
		}
		if item != nil {
			found := item.Clone()
			return &found, nil
		}
	}
	return nil, nil
}

func (c *Composite) Augment(ctx context.Context, owner jid.JID, settings Settings, item roster.ExtraItem) (*roster.ExtraItem, error) {
	if c.extras == nil {
		return nil, nil
	}
	stored, err := c.extras.GetExtra(ctx, owner, settings, item.JID)
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic item: %w", err)
	}
	return stored, nil
}

func (c *Composite) Store(ctx context.Context, owner jid.JID, settings Settings, item roster.ExtraItem) error {
	if c.extras == nil {
		return ErrExtraUnavailable
	}
	if err := c.extras.PutExtra(ctx, owner, settings, item); err != nil {
		return fmt.Errorf("failed to store dynamic item: %w", err)
	}
	return nil
}
