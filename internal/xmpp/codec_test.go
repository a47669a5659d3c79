package xmpp

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

func TestParseRosterSet(t *testing.T) {
	raw := []byte(`<iq type='set' id='r1' from='alice@example.com/phone'><query xmlns='jabber:iq:roster'><item jid='bob@example.com' name='Bob' type='anon'><group>Friends</group><group></group></item><item jid='carol@example.com' subscription='remove'/></query></iq>`)

	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}

	if req.Type != stanza.SetIQ || req.ID != "r1" {
		t.Fatalf("unexpected header: %s", req)
	}
	if !req.HasFrom || req.From.String() != "alice@example.com/phone" {
		t.Fatalf("unexpected from: %q", req.From.String())
	}
	if req.Namespace != roster.NS {
		t.Fatalf("unexpected namespace %q", req.Namespace)
	}
	if req.HasVer {
		t.Fatalf("did not expect a version")
	}
	if len(req.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(req.Items))
	}

	first, _ := req.FirstItem()
	if first.JID.String() != "bob@example.com" || first.Name != "Bob" || first.Type != "anon" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if len(first.Groups) != 2 || first.Groups[0] != "Friends" || first.Groups[1] != "" {
		t.Fatalf("unexpected groups: %q", first.Groups)
	}
	if req.Items[1].Subscription != "remove" {
		t.Fatalf("expected remove subscription, got %q", req.Items[1].Subscription)
	}
}

func TestParseRosterGetWithEmptyVersion(t *testing.T) {
	req, err := ParseRequest([]byte(`<iq type='get' id='g1'><query xmlns='jabber:iq:roster' ver=''/></iq>`))
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if !req.HasVer || req.Ver != "" {
		t.Fatalf("expected empty version to be present, got %q (%v)", req.Ver, req.HasVer)
	}
	if req.HasFrom {
		t.Fatalf("did not expect a from address")
	}
}

func TestParseDynamicItems(t *testing.T) {
	req, err := ParseRequest([]byte(`<iq type='set' id='d1'><query xmlns='jabber:iq:roster-dynamic'><item jid='bob@example.com' kind='desk'><phone>123</phone></item></query></iq>`))
	if err != nil {
		t.Fatalf("ParseRequest returned error: %v", err)
	}
	if len(req.Extra) != 1 {
		t.Fatalf("expected 1 extra item, got %d", len(req.Extra))
	}
	extra := req.Extra[0]
	if extra.JID.String() != "bob@example.com" {
		t.Fatalf("unexpected jid %q", extra.JID.String())
	}
	if len(extra.Attrs) != 1 || extra.Attrs[0].Value != "desk" {
		t.Fatalf("unexpected attrs: %+v", extra.Attrs)
	}
	if string(extra.Inner) != "<phone>123</phone>" {
		t.Fatalf("unexpected inner xml %q", extra.Inner)
	}
}

func TestParseFlagsItemWithoutJID(t *testing.T) {
	req, err := ParseRequest([]byte(`<iq type='set' id='x'><query xmlns='jabber:iq:roster'><item name='nobody'/></query></iq>`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.ID != "x" || req.Namespace != "jabber:iq:roster" {
		t.Fatalf("envelope not kept: %s", req)
	}
	if !errors.Is(req.Malformed, ErrMalformed) {
		t.Fatalf("expected Malformed to wrap ErrMalformed, got %v", req.Malformed)
	}
}

func TestParseFlagsInvalidExtraJID(t *testing.T) {
	req, err := ParseRequest([]byte(`<iq type='get' id='d'><query xmlns='jabber:iq:roster-dynamic'><item jid='@'/></query></iq>`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if !errors.Is(req.Malformed, ErrMalformed) {
		t.Fatalf("expected Malformed to wrap ErrMalformed, got %v", req.Malformed)
	}
}

func TestParseRejectsInvalidFrom(t *testing.T) {
	_, err := ParseRequest([]byte(`<iq type='get' id='f' from='@'><query xmlns='jabber:iq:roster'/></iq>`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecoderContinuesAfterMalformedItem(t *testing.T) {
	in := `<s><iq type='set' id='bad'><query xmlns='jabber:iq:roster'><item/></query></iq><iq type='get' id='ok'><query xmlns='jabber:iq:roster'/></iq></s>`
	d := NewDecoder(strings.NewReader(in))

	var reqs []*Request
	for {
		v, err := d.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if req, ok := v.(*Request); ok {
			reqs = append(reqs, req)
		}
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Malformed == nil || reqs[1].Malformed != nil {
		t.Fatalf("unexpected malformed flags: %v, %v", reqs[0].Malformed, reqs[1].Malformed)
	}
}

func TestDecoderReadsConsecutiveIQs(t *testing.T) {
	in := `<replay><iq type='get' id='a'><query xmlns='jabber:iq:roster'/></iq><presence><show>away</show></presence><iq type='result' id='b'/></replay>`
	d := NewDecoder(strings.NewReader(in))

	var ids []string
	for {
		v, err := d.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Decode returned error: %v", err)
		}
		switch v := v.(type) {
		case *Request:
			ids = append(ids, v.ID)
		case *Presence:
			ids = append(ids, "presence:"+v.Show)
		}
	}
	if strings.Join(ids, ",") != "a,presence:away,b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestEncodeRosterResult(t *testing.T) {
	iq := &IQ{
		ID:   "g1",
		Type: stanza.ResultIQ,
		To:   jid.MustParse("alice@example.com/phone"),
		Query: &Query{
			Namespace: roster.NS,
			Ver:       "abc",
			Items: []roster.Item{
				{JID: jid.MustParse("bob@example.com"), Name: "Bob", Subscription: roster.SubscriptionBoth, Groups: []string{"Friends"}},
			},
		},
	}

	out, err := Marshal(iq)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}

	s := string(out)
	for _, want := range []string{
		`<iq id="g1" type="result" to="alice@example.com/phone">`,
		`<query xmlns="jabber:iq:roster" ver="abc">`,
		`<item jid="bob@example.com" name="Bob" subscription="both"><group>Friends</group></item>`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
}

func TestEncodeErrorAndPresence(t *testing.T) {
	iq := &IQ{
		ID:    "e1",
		Type:  stanza.ErrorIQ,
		Error: &StanzaError{Type: ErrorModify, Condition: stanza.BadRequest, Text: "Request type is incorrect"},
	}
	out, err := Marshal(iq)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if !strings.Contains(string(out), `<error type="modify"><bad-request xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"></bad-request>`) {
		t.Fatalf("unexpected error encoding: %s", out)
	}

	p := &Presence{To: jid.MustParse("bob@example.com"), From: jid.MustParse("alice@example.com"), Type: stanza.UnsubscribePresence}
	out, err = Marshal(p)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if string(out) != `<presence type="unsubscribe" to="bob@example.com" from="alice@example.com"></presence>` {
		t.Fatalf("unexpected presence encoding: %s", out)
	}
}

func TestEncodeEmptyQuery(t *testing.T) {
	out, err := Marshal(&IQ{ID: "g2", Type: stanza.ResultIQ, Query: &Query{Namespace: roster.NS}})
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if string(out) != `<iq id="g2" type="result"><query xmlns="jabber:iq:roster"></query></iq>` {
		t.Fatalf("unexpected encoding: %s", out)
	}
}
