package processor

import (
	"context"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// set handles the first item of a roster set. Further items are ignored.
func (p *Processor) set(ctx context.Context, req *xmpp.Request, sess Session, owner jid.JID, settings dynamic.Settings, out *xmpp.Queue) (Outcome, error) {
	item, ok := req.FirstItem()
	if !ok {
		out.Offer(errorReply(req, sess, xmpp.ErrorModify, stanza.BadRequest, textMissingItem))
		return BadRequest, nil
	}
	if len(req.Items) > 1 {
		p.logger.Debug("ignoring %d extra items in %s", len(req.Items)-1, req)
	}

	if roster.Subscription(item.Subscription) == roster.SubscriptionRemove {
		return p.remove(ctx, req, sess, owner, item, out)
	}
	return p.addOrUpdate(ctx, req, sess, owner, settings, item, out)
}

func (p *Processor) remove(ctx context.Context, req *xmpp.Request, sess Session, owner jid.JID, item xmpp.QueryItem, out *xmpp.Queue) (Outcome, error) {
	contact := item.JID.Bare()

	sub, ok, err := p.store.Subscription(ctx, owner, contact)
	if err != nil {
		return StorageFailure, err
	}
	if !ok {
		sub = roster.SubscriptionNone
	}

	requester, err := target(sess)
	if err != nil {
		return NotAuthorized, err
	}

	if item.Type != p.anonMarker && sub != roster.SubscriptionNone {
		out.Offer(&xmpp.Presence{Type: stanza.UnsubscribePresence, To: contact, From: owner})
		out.Offer(&xmpp.Presence{Type: stanza.UnsubscribedPresence, To: contact, From: owner})
		out.Offer(&xmpp.Presence{Type: stanza.UnavailablePresence, To: contact, From: requester.JID})
	}

	removed := roster.Item{JID: contact, Subscription: roster.SubscriptionRemove}
	if err := p.notifier.NotifyChange(ctx, requester, removed, out); err != nil {
		return StorageFailure, err
	}
	if err := p.store.Remove(ctx, owner, contact); err != nil {
		return StorageFailure, err
	}
	p.logger.Debug("removed %s from roster of %s", contact, owner)

	out.Offer(result(req, sess, nil))
	return Success, nil
}

func (p *Processor) addOrUpdate(ctx context.Context, req *xmpp.Request, sess Session, owner jid.JID, settings dynamic.Settings, item xmpp.QueryItem, out *xmpp.Queue) (Outcome, error) {
	contact := item.JID.Bare()

	requester, err := target(sess)
	if err != nil {
		return NotAuthorized, err
	}

	dyn, err := p.provider.Lookup(ctx, owner, settings, contact)
	if err != nil {
		return StorageFailure, err
	}

	if err := p.store.AddOrUpdate(ctx, owner, contact, item.Name, item.Groups); err != nil {
		return StorageFailure, err
	}

	if item.Type == p.anonMarker {
		if err := p.store.SetSubscription(ctx, owner, contact, roster.SubscriptionBoth); err != nil {
			return StorageFailure, err
		}
		pres := sess.LastPresence()
		if pres == nil {
			pres = &xmpp.Presence{}
		} else {
			pres = pres.Clone()
		}
		pres.To = contact
		pres.From = requester.JID
		out.Offer(pres)
	}

	if _, ok, err := p.store.Subscription(ctx, owner, contact); err != nil {
		return StorageFailure, err
	} else if !ok {
		if err := p.store.SetSubscription(ctx, owner, contact, roster.SubscriptionNone); err != nil {
			return StorageFailure, err
		}
	}

	if dyn != nil {
		if err := p.mergeDynamic(ctx, owner, *dyn); err != nil {
			return StorageFailure, err
		}
		p.logger.Debug("merged dynamic contact %s into roster of %s", contact, owner)
	}

	stored, err := p.store.Item(ctx, owner, contact)
	if err != nil {
		return StorageFailure, err
	}

	out.Offer(result(req, sess, nil))
	if err := p.notifier.NotifyChange(ctx, requester, stored, out); err != nil {
		return StorageFailure, err
	}
	p.logger.Debug("updated %s in roster of %s", contact, owner)
	return Success, nil
}
