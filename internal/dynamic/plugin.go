package dynamic

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"github.com/meszmate/rosterd/pkg/plugin"
)

// PluginSource adapts a DynamicRoster plugin. It serves both contacts and
// extension data.
type PluginSource struct {
	r plugin.DynamicRoster
}

// FromPlugin wraps a plugin client
func FromPlugin(r plugin.DynamicRoster) *PluginSource {
	return &PluginSource{r: r}
}

func (p *PluginSource) Contacts(ctx context.Context, owner jid.JID, settings Settings) ([]roster.Item, error) {
	contacts, err := p.r.Contacts(ctx, owner.Bare().String(), settings)
	if err != nil {
		return nil, fmt.Errorf("plugin contacts: %w", err)
	}
	items := make([]roster.Item, 0, len(contacts))
	for _, c := range contacts {
		item, err := contactItem(c)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *PluginSource) Lookup(ctx context.Context, owner jid.JID, settings Settings, contact jid.JID) (*roster.Item, error) {
	c, err := p.r.Lookup(ctx, owner.Bare().String(), settings, contact.Bare().String())
	if err != nil {
		return nil, fmt.Errorf("plugin lookup: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	item, err := contactItem(*c)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (p *PluginSource) PutExtra(ctx context.Context, owner jid.JID, settings Settings, item roster.ExtraItem) error {
	e := plugin.Extra{
		JID:       item.JID.Bare().String(),
		Element:   item.Name.Local,
		Namespace: item.Name.Space,
		Inner:     string(item.Inner),
	}
	if len(item.Attrs) > 0 {
		e.Attrs = make(map[string]string, len(item.Attrs))
		for _, a := range item.Attrs {
			e.Attrs[a.Name.Local] = a.Value
		}
	}
	if err := p.r.StoreExtra(ctx, owner.Bare().String(), settings, e); err != nil {
		return fmt.Errorf("plugin store: %w", err)
	}
	return nil
}

func (p *PluginSource) GetExtra(ctx context.Context, owner jid.JID, settings Settings, contact jid.JID) (*roster.ExtraItem, error) {
	e, err := p.r.Extra(ctx, owner.Bare().String(), settings, contact.Bare().String())
	if err != nil {
		return nil, fmt.Errorf("plugin extra: %w", err)
	}
	if e == nil {
		return nil, nil
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var attrs []xml.Attr
	for _, k := range keys {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: k}, Value: e.Attrs[k]})
	}

	return &roster.ExtraItem{
		Name:  xml.Name{Space: e.Namespace, Local: e.Element},
		JID:   contact.Bare(),
		Attrs: attrs,
		Inner: []byte(e.Inner),
	}, nil
}

func contactItem(c plugin.Contact) (roster.Item, error) {
	j, err := jid.Parse(c.JID)
	if err != nil {
		return roster.Item{}, fmt.Errorf("plugin returned invalid jid %q: %w", c.JID, err)
	}
	sub := roster.Subscription(c.Subscription)
	if !sub.Valid() {
		sub = roster.SubscriptionBoth
	}
	return roster.Item{
		JID:          j.Bare(),
		Name:         c.Name,
		Groups:       append([]string(nil), c.Groups...),
		Subscription: sub,
	}, nil
}
