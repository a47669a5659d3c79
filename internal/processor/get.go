package processor

import (
	"context"
	"fmt"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/internal/session"
	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

func (p *Processor) get(ctx context.Context, req *xmpp.Request, sess Session, owner jid.JID, settings dynamic.Settings, out *xmpp.Queue) (Outcome, error) {
	pending, err := p.provider.Pending(ctx, owner, settings)
	if err != nil {
		return StorageFailure, err
	}

	// Dynamic contacts already in the roster are delivered with it.
	remaining := pending[:0]
	for _, item := range pending {
		stored, err := p.store.Contains(ctx, owner, item.JID)
		if err != nil {
			return StorageFailure, err
		}
		if !stored {
			remaining = append(remaining, item)
			continue
		}
		if err := p.mergeDynamic(ctx, owner, item); err != nil {
			return StorageFailure, err
		}
		p.logger.Debug("merged dynamic contact %s into roster of %s", item.JID, owner)
	}

	var ver string
	if req.HasVer {
		ver, err = p.store.Hash(ctx, owner)
		if err != nil {
			return StorageFailure, err
		}
		if ver == req.Ver {
			p.metrics.versionHit()
			out.Offer(result(req, sess, nil))
			return Success, nil
		}
	}

	items, err := p.store.Items(ctx, owner)
	if err != nil {
		return StorageFailure, err
	}
	out.Offer(result(req, sess, &xmpp.Query{
		Namespace: roster.NS,
		Ver:       ver,
		Items:     items,
	}))

	if len(remaining) == 0 {
		return Success, nil
	}
	to, err := target(sess)
	if err != nil {
		return StorageFailure, err
	}
	p.pushDynamic(req, to, remaining, out)
	return Success, nil
}

func (p *Processor) mergeDynamic(ctx context.Context, owner jid.JID, item roster.Item) error {
	if err := p.store.SetSubscription(ctx, owner, item.JID, roster.SubscriptionBoth); err != nil {
		return err
	}
	return p.store.AddGroups(ctx, owner, item.JID, item.Groups)
}

// pushDynamic sends items in chunks. Each chunk id carries the number of
// items left before it was built.
func (p *Processor) pushDynamic(req *xmpp.Request, to session.Target, items []roster.Item, out *xmpp.Queue) {
	for len(items) > 0 {
		n := min(p.chunkSize, len(items))
		iq := push(to, fmt.Sprintf("dr-%d", len(items)), items[:n]...)
		iq.From = req.To
		out.Offer(iq)
		p.metrics.dynamicItems(n)
		items = items[n:]
	}
}
