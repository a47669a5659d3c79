package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoster struct {
	extras map[string]Extra
}

func (f *fakeRoster) Metadata(context.Context) (Metadata, error) {
	return Metadata{Name: "fake", Version: "0.1.0"}, nil
}

func (f *fakeRoster) Contacts(_ context.Context, owner string, settings map[string]string) ([]Contact, error) {
	if owner == "broken@example.com" {
		return nil, errors.New("directory offline")
	}
	return []Contact{
		{JID: "bob@example.com", Name: "Bob", Groups: []string{settings["group"]}},
		{JID: "carol@example.com"},
	}, nil
}

func (f *fakeRoster) Lookup(_ context.Context, _ string, _ map[string]string, jid string) (*Contact, error) {
	if jid != "bob@example.com" {
		return nil, nil
	}
	return &Contact{JID: jid, Name: "Bob"}, nil
}

func (f *fakeRoster) Extra(_ context.Context, owner string, _ map[string]string, jid string) (*Extra, error) {
	e, ok := f.extras[owner+"|"+jid]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeRoster) StoreExtra(_ context.Context, owner string, _ map[string]string, extra Extra) error {
	f.extras[owner+"|"+extra.JID] = extra
	return nil
}

func dispense(t *testing.T) DynamicRoster {
	t.Helper()
	client, _ := plugin.TestPluginGRPCConn(t, false, map[string]plugin.Plugin{
		PluginName: &GRPCPlugin{Impl: &fakeRoster{extras: map[string]Extra{}}},
	})
	t.Cleanup(func() { client.Close() })

	raw, err := client.Dispense(PluginName)
	require.NoError(t, err)
	return raw.(DynamicRoster)
}

func TestGRPCRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := dispense(t)

	md, err := r.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake", md.Name)

	contacts, err := r.Contacts(ctx, "alice@example.com", map[string]string{"group": "Staff"})
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, []string{"Staff"}, contacts[0].Groups)

	c, err := r.Lookup(ctx, "alice@example.com", nil, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Bob", c.Name)

	c, err = r.Lookup(ctx, "alice@example.com", nil, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestGRPCExtra(t *testing.T) {
	ctx := context.Background()
	r := dispense(t)

	e, err := r.Extra(ctx, "alice@example.com", nil, "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, e)

	want := Extra{
		JID:       "bob@example.com",
		Element:   "item",
		Namespace: "jabber:iq:roster-dynamic",
		Attrs:     map[string]string{"kind": "desk"},
		Inner:     "<phone>123</phone>",
	}
	require.NoError(t, r.StoreExtra(ctx, "alice@example.com", nil, want))

	e, err = r.Extra(ctx, "alice@example.com", nil, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, want, *e)
}

func TestGRPCErrorsPropagate(t *testing.T) {
	r := dispense(t)

	_, err := r.Contacts(context.Background(), "broken@example.com", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory offline")
}

func TestHostAttach(t *testing.T) {
	ctx := context.Background()
	h := NewHost("", nil)

	lp, err := h.Attach(ctx, "fake-bin", dispense(t))
	require.NoError(t, err)
	assert.Equal(t, "fake", lp.Metadata.Name)

	_, err = h.Attach(ctx, "fake-bin", &fakeRoster{})
	assert.Error(t, err)

	require.Len(t, h.List(), 1)
	assert.NotNil(t, h.Get("fake"))

	h.UnloadAll()
	assert.Empty(t, h.List())
	require.NoError(t, h.LoadAll(ctx))
}
