package processor

import (
	"github.com/google/uuid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/rosterd/internal/session"
	"github.com/meszmate/rosterd/internal/xmpp"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

const (
	textBadType        = "Request type is incorrect"
	textMissingItem    = "Missing 'item' element, request can not be processed."
	textMalformed      = "Malformed 'item' element, request can not be processed."
	textNotAuthorized  = "You must authorize session first."
	textStorageFailure = "Database access problem, please contact administrator."
)

func newID() string {
	return uuid.NewString()
}

// result answers req. A nil query is the reply without payload.
func result(req *xmpp.Request, sess Session, query *xmpp.Query) *xmpp.IQ {
	return &xmpp.IQ{
		ID:    req.ID,
		Type:  stanza.ResultIQ,
		To:    req.From,
		From:  req.To,
		Route: sess.ConnectionID(),
		Query: query,
	}
}

func errorReply(req *xmpp.Request, sess Session, typ xmpp.ErrorType, cond stanza.Condition, text string) *xmpp.IQ {
	return &xmpp.IQ{
		ID:    req.ID,
		Type:  stanza.ErrorIQ,
		To:    req.From,
		From:  req.To,
		Route: sess.ConnectionID(),
		Error: &xmpp.StanzaError{Type: typ, Condition: cond, Text: text},
	}
}

func push(to session.Target, id string, items ...roster.Item) *xmpp.IQ {
	return &xmpp.IQ{
		ID:    id,
		Type:  stanza.SetIQ,
		To:    to.JID,
		Route: to.Route,
		Query: &xmpp.Query{Namespace: roster.NS, Items: items},
	}
}

func target(sess Session) (session.Target, error) {
	full, err := sess.JID()
	if err != nil {
		return session.Target{}, err
	}
	return session.Target{JID: full, Route: sess.ConnectionID()}, nil
}
