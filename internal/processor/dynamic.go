package processor

import (
	"context"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

func (p *Processor) dynamicGet(ctx context.Context, req *xmpp.Request, sess Session, owner jid.JID, settings dynamic.Settings, out *xmpp.Queue) (Outcome, error) {
	item, ok := firstItem(req.Extra)
	if !ok {
		out.Offer(errorReply(req, sess, xmpp.ErrorModify, stanza.BadRequest, textMissingItem))
		return BadRequest, nil
	}

	augmented, err := p.provider.Augment(ctx, owner, settings, item)
	if err != nil {
		return StorageFailure, err
	}
	if augmented == nil {
		augmented = &item
	}

	out.Offer(result(req, sess, &xmpp.Query{
		Namespace: roster.NSDynamic,
		Extra:     []roster.ExtraItem{*augmented},
	}))
	return Success, nil
}

func (p *Processor) dynamicSet(ctx context.Context, req *xmpp.Request, sess Session, owner jid.JID, settings dynamic.Settings, out *xmpp.Queue) (Outcome, error) {
	if len(req.Extra) == 0 {
		out.Offer(errorReply(req, sess, xmpp.ErrorModify, stanza.BadRequest, textMissingItem))
		return BadRequest, nil
	}

	for _, item := range req.Extra {
		if err := p.provider.Store(ctx, owner, settings, item); err != nil {
			return StorageFailure, err
		}
	}

	out.Offer(result(req, sess, nil))
	return Success, nil
}

func firstItem(extra []roster.ExtraItem) (roster.ExtraItem, bool) {
	for _, e := range extra {
		if e.Name.Local == "item" {
			return e, true
		}
	}
	return roster.ExtraItem{}, false
}
