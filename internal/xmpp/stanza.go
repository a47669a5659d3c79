package xmpp

import (
	"fmt"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Request is a parsed inbound IQ carrying a roster query. It is built once
// by the decoder and never modified afterwards.
type Request struct {
	ID      string
	Type    stanza.IQType
	From    jid.JID
	To      jid.JID
	HasFrom bool
	HasTo   bool

	// Namespace of the query child, empty if the IQ has none.
	Namespace string

	// Ver is the roster version sent by the client; HasVer distinguishes an
	// empty version from an absent one.
	Ver    string
	HasVer bool

	// Items holds the item children of a roster namespace query.
	Items []QueryItem

	// Extra holds every child of a dynamic namespace query.
	Extra []roster.ExtraItem

	// Malformed is set, wrapping ErrMalformed, when the envelope parsed but
	// the query content did not. Items and Extra are then incomplete.
	Malformed error
}

// String returns a short description used in logs
func (r *Request) String() string {
	return fmt.Sprintf("iq id=%q type=%s from=%q to=%q xmlns=%q items=%d",
		r.ID, r.Type, r.From.String(), r.To.String(), r.Namespace, len(r.Items)+len(r.Extra))
}

// FirstItem returns the first roster item of the request
func (r *Request) FirstItem() (QueryItem, bool) {
	if len(r.Items) == 0 {
		return QueryItem{}, false
	}
	return r.Items[0], true
}

// QueryItem is one item child of a roster query
type QueryItem struct {
	JID          jid.JID
	Name         string
	Subscription string
	Type         string
	Groups       []string
}

// Packet is an outbound stanza
type Packet interface {
	packet()
}

// Query is the payload of an outbound IQ. A Query without items is the
// explicit empty payload.
type Query struct {
	Namespace string
	Ver       string
	Items     []roster.Item
	Extra     []roster.ExtraItem
}

// ErrorType is the type attribute of a stanza error
type ErrorType string

const (
	ErrorCancel ErrorType = "cancel"
	ErrorAuth   ErrorType = "auth"
	ErrorModify ErrorType = "modify"
	ErrorWait   ErrorType = "wait"
)

// StanzaError is the error payload of an error IQ
type StanzaError struct {
	Type      ErrorType
	Condition stanza.Condition
	Text      string
}

// IQ is an outbound info/query stanza.
//
// Route names the connection the stanza must be delivered to. It is empty
// when the stanza is routed by its To address alone.
type IQ struct {
	ID    string
	Type  stanza.IQType
	To    jid.JID
	From  jid.JID
	Route string
	Query *Query
	Error *StanzaError
}

func (*IQ) packet() {}

// Presence is an outbound presence stanza
type Presence struct {
	ID       string
	To       jid.JID
	From     jid.JID
	Type     stanza.PresenceType
	Show     string
	Status   string
	Priority int
}

func (*Presence) packet() {}

// Clone returns a copy of the presence
func (p *Presence) Clone() *Presence {
	c := *p
	return &c
}

// Queue collects the outbound stanzas of one request in emission order
type Queue struct {
	packets []Packet
}

// Offer appends a packet
func (q *Queue) Offer(p Packet) {
	q.packets = append(q.packets, p)
}

// Packets returns the queued packets in order
func (q *Queue) Packets() []Packet {
	return q.packets
}

// Len returns the number of queued packets
func (q *Queue) Len() int {
	return len(q.packets)
}
