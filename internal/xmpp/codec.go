package xmpp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// NSStanzas is the namespace of stanza error conditions.
const NSStanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"

// ErrMalformed is returned for IQs that cannot be turned into a Request.
var ErrMalformed = errors.New("malformed stanza")

type iqIn struct {
	XMLName xml.Name `xml:"iq"`
	ID      string   `xml:"id,attr"`
	Type    string   `xml:"type,attr"`
	From    string   `xml:"from,attr"`
	To      string   `xml:"to,attr"`
	Query   *queryIn `xml:"query"`
}

type queryIn struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []childIn  `xml:",any"`
}

type childIn struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Groups  []groupIn  `xml:"group"`
	Inner   []byte     `xml:",innerxml"`
}

type groupIn struct {
	Value string `xml:",chardata"`
}

// Decoder reads IQ requests from a stream of XML
type Decoder struct {
	d *xml.Decoder
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{d: xml.NewDecoder(r)}
}

// Decode returns the next IQ or presence found in the stream, as a *Request
// or a *Presence. Elements wrapping the stanzas are descended into and
// messages are skipped. It returns io.EOF when the stream ends.
func (d *Decoder) Decode() (interface{}, error) {
	for {
		tok, err := d.d.Token()
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "iq":
			var in iqIn
			if err := d.d.DecodeElement(&in, &start); err != nil {
				return nil, fmt.Errorf("failed to decode iq: %w", err)
			}
			return newRequest(in)
		case "presence":
			var in presenceIn
			if err := d.d.DecodeElement(&in, &start); err != nil {
				return nil, fmt.Errorf("failed to decode presence: %w", err)
			}
			return newPresence(in)
		case "message":
			if err := d.d.Skip(); err != nil {
				return nil, err
			}
		}
	}
}

// ParseRequest parses a single IQ
func ParseRequest(data []byte) (*Request, error) {
	d := NewDecoder(bytes.NewReader(data))
	for {
		v, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no iq element", ErrMalformed)
		}
		if err != nil {
			return nil, err
		}
		if req, ok := v.(*Request); ok {
			return req, nil
		}
	}
}

type presenceIn struct {
	XMLName  xml.Name `xml:"presence"`
	ID       string   `xml:"id,attr"`
	Type     string   `xml:"type,attr"`
	From     string   `xml:"from,attr"`
	To       string   `xml:"to,attr"`
	Show     string   `xml:"show"`
	Status   string   `xml:"status"`
	Priority int      `xml:"priority"`
}

func newPresence(in presenceIn) (*Presence, error) {
	p := &Presence{
		ID:       in.ID,
		Type:     stanza.PresenceType(in.Type),
		Show:     in.Show,
		Status:   in.Status,
		Priority: in.Priority,
	}
	var err error
	if in.From != "" {
		if p.From, err = jid.Parse(in.From); err != nil {
			return nil, fmt.Errorf("%w: invalid from %q: %v", ErrMalformed, in.From, err)
		}
	}
	if in.To != "" {
		if p.To, err = jid.Parse(in.To); err != nil {
			return nil, fmt.Errorf("%w: invalid to %q: %v", ErrMalformed, in.To, err)
		}
	}
	return p, nil
}

func newRequest(in iqIn) (*Request, error) {
	req := &Request{
		ID:   in.ID,
		Type: stanza.IQType(in.Type),
	}

	if in.From != "" {
		from, err := jid.Parse(in.From)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from %q: %v", ErrMalformed, in.From, err)
		}
		req.From, req.HasFrom = from, true
	}
	if in.To != "" {
		to, err := jid.Parse(in.To)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to %q: %v", ErrMalformed, in.To, err)
		}
		req.To, req.HasTo = to, true
	}

	if in.Query == nil {
		return req, nil
	}

	req.Namespace = in.Query.XMLName.Space
	for _, attr := range in.Query.Attrs {
		if attr.Name.Local == "ver" && attr.Name.Space == "" {
			req.Ver, req.HasVer = attr.Value, true
		}
	}

	switch req.Namespace {
	case roster.NS:
		for _, child := range in.Query.Children {
			if child.XMLName.Local != "item" {
				continue
			}
			item, err := newQueryItem(child)
			if err != nil {
				req.Malformed = err
				return req, nil
			}
			req.Items = append(req.Items, item)
		}
	case roster.NSDynamic:
		for _, child := range in.Query.Children {
			extra, err := newExtraItem(child)
			if err != nil {
				req.Malformed = err
				return req, nil
			}
			req.Extra = append(req.Extra, extra)
		}
	}

	return req, nil
}

func attrValue(attrs []xml.Attr, local string) (string, bool) {
	for _, attr := range attrs {
		if attr.Name.Local == local && attr.Name.Space == "" {
			return attr.Value, true
		}
	}
	return "", false
}

func newQueryItem(child childIn) (QueryItem, error) {
	raw, ok := attrValue(child.Attrs, "jid")
	if !ok {
		return QueryItem{}, fmt.Errorf("%w: item without jid", ErrMalformed)
	}
	j, err := jid.Parse(raw)
	if err != nil {
		return QueryItem{}, fmt.Errorf("%w: invalid item jid %q: %v", ErrMalformed, raw, err)
	}

	item := QueryItem{JID: j}
	item.Name, _ = attrValue(child.Attrs, "name")
	item.Subscription, _ = attrValue(child.Attrs, "subscription")
	item.Type, _ = attrValue(child.Attrs, "type")
	for _, g := range child.Groups {
		item.Groups = append(item.Groups, g.Value)
	}
	return item, nil
}

func newExtraItem(child childIn) (roster.ExtraItem, error) {
	extra := roster.ExtraItem{
		Name:  child.XMLName,
		Inner: child.Inner,
	}
	for _, attr := range child.Attrs {
		switch {
		case attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns":
		case attr.Name.Local == "jid" && attr.Name.Space == "":
			j, err := jid.Parse(attr.Value)
			if err != nil {
				return roster.ExtraItem{}, fmt.Errorf("%w: invalid item jid %q: %v", ErrMalformed, attr.Value, err)
			}
			extra.JID = j
		default:
			extra.Attrs = append(extra.Attrs, attr)
		}
	}
	return extra, nil
}

type iqOut struct {
	XMLName xml.Name  `xml:"iq"`
	ID      string    `xml:"id,attr,omitempty"`
	Type    string    `xml:"type,attr"`
	To      string    `xml:"to,attr,omitempty"`
	From    string    `xml:"from,attr,omitempty"`
	Query   *queryOut `xml:",omitempty"`
	Error   *errorOut `xml:",omitempty"`
}

type queryOut struct {
	XMLName xml.Name
	Ver     string     `xml:"ver,attr,omitempty"`
	Items   []itemOut  `xml:"item"`
	Extra   []extraOut `xml:",omitempty"`
}

type itemOut struct {
	JID          string   `xml:"jid,attr"`
	Name         string   `xml:"name,attr,omitempty"`
	Subscription string   `xml:"subscription,attr,omitempty"`
	Groups       []string `xml:"group"`
}

type extraOut struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

type errorOut struct {
	XMLName   xml.Name `xml:"error"`
	Type      string   `xml:"type,attr"`
	Condition conditionOut
	Text      *textOut `xml:",omitempty"`
}

type conditionOut struct {
	XMLName xml.Name
}

type textOut struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-stanzas text"`
	Value   string   `xml:",chardata"`
}

type presenceOut struct {
	XMLName  xml.Name `xml:"presence"`
	ID       string   `xml:"id,attr,omitempty"`
	Type     string   `xml:"type,attr,omitempty"`
	To       string   `xml:"to,attr,omitempty"`
	From     string   `xml:"from,attr,omitempty"`
	Show     string   `xml:"show,omitempty"`
	Status   string   `xml:"status,omitempty"`
	Priority int      `xml:"priority,omitempty"`
}

// Encode writes a packet as XML
func Encode(w io.Writer, p Packet) error {
	var v interface{}
	switch p := p.(type) {
	case *IQ:
		v = iqToXML(p)
	case *Presence:
		v = presenceOut{
			ID:       p.ID,
			Type:     string(p.Type),
			To:       p.To.String(),
			From:     p.From.String(),
			Show:     p.Show,
			Status:   p.Status,
			Priority: p.Priority,
		}
	default:
		return fmt.Errorf("unsupported packet type %T", p)
	}

	enc := xml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}
	return enc.Flush()
}

// Marshal returns the XML form of a packet
func Marshal(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func iqToXML(iq *IQ) iqOut {
	out := iqOut{
		ID:   iq.ID,
		Type: string(iq.Type),
		To:   iq.To.String(),
		From: iq.From.String(),
	}

	if q := iq.Query; q != nil {
		qo := &queryOut{
			XMLName: xml.Name{Space: q.Namespace, Local: "query"},
			Ver:     q.Ver,
		}
		for _, item := range q.Items {
			qo.Items = append(qo.Items, itemOut{
				JID:          item.JID.String(),
				Name:         item.Name,
				Subscription: string(item.Subscription),
				Groups:       item.Groups,
			})
		}
		for _, extra := range q.Extra {
			qo.Extra = append(qo.Extra, extraToXML(extra, q.Namespace))
		}
		out.Query = qo
	}

	if e := iq.Error; e != nil {
		out.Error = &errorOut{
			Type:      string(e.Type),
			Condition: conditionOut{XMLName: xml.Name{Space: NSStanzas, Local: string(e.Condition)}},
		}
		if e.Text != "" {
			out.Error.Text = &textOut{Value: e.Text}
		}
	}

	return out
}

func extraToXML(extra roster.ExtraItem, ns string) extraOut {
	name := extra.Name
	if name.Local == "" {
		name.Local = "item"
	}
	if name.Space == "" {
		name.Space = ns
	}

	out := extraOut{XMLName: name, Inner: extra.Inner}
	if extra.JID.String() != "" {
		out.Attrs = append(out.Attrs, xml.Attr{Name: xml.Name{Local: "jid"}, Value: extra.JID.String()})
	}
	out.Attrs = append(out.Attrs, extra.Attrs...)
	return out
}
