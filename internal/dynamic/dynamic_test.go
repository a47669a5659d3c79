package dynamic

import (
	"context"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"github.com/meszmate/rosterd/pkg/plugin"
)

var (
	alice = jid.MustParse("alice@example.com")
	bob   = jid.MustParse("bob@example.com")
	carol = jid.MustParse("carol@example.com")
)

const directoryTOML = `
[names]
"bob@example.com" = "Bob"
"carol@example.com" = "Carol"

[[contact]]
owner = "alice@example.com"
jid = "bob@example.com"
groups = ["Friends"]

[[shared]]
name = "Staff"
members = ["alice@example.com", "bob@example.com", "carol@example.com"]

[[shared]]
name = "Board"
members = ["alice@example.com", "carol@example.com"]
`

func TestDirectoryContacts(t *testing.T) {
	ctx := context.Background()
	d, err := ParseDirectory(directoryTOML)
	require.NoError(t, err)

	items, err := d.Contacts(ctx, alice, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.True(t, items[0].JID.Equal(bob))
	assert.Equal(t, "Bob", items[0].Name)
	assert.ElementsMatch(t, []string{"Friends", "Staff"}, items[0].Groups)
	assert.Equal(t, roster.SubscriptionBoth, items[0].Subscription)

	assert.True(t, items[1].JID.Equal(carol))
	assert.ElementsMatch(t, []string{"Staff", "Board"}, items[1].Groups)

	// members never see themselves
	items, err = d.Contacts(ctx, carol, nil)
	require.NoError(t, err)
	for _, item := range items {
		assert.False(t, item.JID.Equal(carol))
	}
}

func TestDirectorySharedGroupFilter(t *testing.T) {
	ctx := context.Background()
	d, err := ParseDirectory(directoryTOML)
	require.NoError(t, err)

	items, err := d.Contacts(ctx, alice, Settings{SettingSharedGroups: "Board"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"Friends"}, items[0].Groups)
	assert.Equal(t, []string{"Board"}, items[1].Groups)

	found, err := d.Lookup(ctx, alice, nil, jid.MustParse("carol@example.com/desk"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Carol", found.Name)

	missing, err := d.Lookup(ctx, alice, nil, jid.MustParse("dave@example.com"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDirectoryReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.toml")
	require.NoError(t, os.WriteFile(path, []byte(directoryTOML), 0600))

	d, err := LoadDirectory(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[[contact]]\nowner = \"alice@example.com\"\njid = \"dave@example.com\"\n"), 0600))
	require.NoError(t, d.Reload())

	items, err := d.Contacts(context.Background(), alice, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "dave@example.com", items[0].JID.String())

	_, err = ParseDirectory("[[contact]]\nowner = \"@@\"\njid = \"x@example.com\"\n")
	assert.Error(t, err)
}

type staticSource struct {
	items []roster.Item
	err   error
}

func (s staticSource) Contacts(context.Context, jid.JID, Settings) ([]roster.Item, error) {
	return s.items, s.err
}

func (s staticSource) Lookup(_ context.Context, _ jid.JID, _ Settings, contact jid.JID) (*roster.Item, error) {
	for _, item := range s.items {
		if item.JID.Equal(contact.Bare()) {
			return &item, nil
		}
	}
	return nil, s.err
}

func TestCompositePendingDeduplicates(t *testing.T) {
	ctx := context.Background()
	c := NewComposite(nil, nil,
		staticSource{items: []roster.Item{{JID: bob, Name: "first"}, {JID: alice}}},
		staticSource{items: []roster.Item{{JID: bob, Name: "second"}, {JID: carol}}},
	)

	items, err := c.Pending(ctx, alice, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Name)
	assert.True(t, items[1].JID.Equal(carol))

	// the caller owns the slice
	items[0].Name = "changed"
	again, _ := c.Pending(ctx, alice, nil)
	assert.Equal(t, "first", again[0].Name)

	found, err := c.Lookup(ctx, alice, nil, carol)
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestCompositeErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	c := NewComposite(nil, nil, staticSource{err: boom})

	_, err := c.Pending(ctx, alice, nil)
	assert.ErrorIs(t, err, boom)
	_, err = c.Lookup(ctx, alice, nil, bob)
	assert.ErrorIs(t, err, boom)

	got, err := c.Augment(ctx, alice, nil, roster.ExtraItem{JID: bob})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, c.Store(ctx, alice, nil, roster.ExtraItem{JID: bob}), ErrExtraUnavailable)
}

func extraItem() roster.ExtraItem {
	return roster.ExtraItem{
		Name:  xml.Name{Space: roster.NSDynamic, Local: "item"},
		JID:   bob,
		Attrs: []xml.Attr{{Name: xml.Name{Local: "kind"}, Value: "desk"}},
		Inner: []byte("<phone>123</phone>"),
	}
}

func testExtraStore(t *testing.T, store ExtraStore) {
	t.Helper()
	ctx := context.Background()

	got, err := store.GetExtra(ctx, alice, nil, bob)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.PutExtra(ctx, alice, nil, extraItem()))

	got, err = store.GetExtra(ctx, alice, nil, jid.MustParse("bob@example.com/phone"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, extraItem(), *got)

	other, err := store.GetExtra(ctx, carol, nil, bob)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestMemoryExtraStore(t *testing.T) {
	testExtraStore(t, IgnoreSettings(NewMemoryExtraStore()))
}

func TestRedisExtraStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisExtraStore(client, "test")
	testExtraStore(t, IgnoreSettings(store))
	assert.True(t, mr.Exists("test:alice@example.com"))

	mr.HSet("test:alice@example.com", "carol@example.com", "not json")
	_, err := store.GetExtra(context.Background(), alice, carol)
	assert.Error(t, err)
}

func TestCompositeAugmentAndStore(t *testing.T) {
	ctx := context.Background()
	c := NewComposite(IgnoreSettings(NewMemoryExtraStore()), nil)

	require.NoError(t, c.Store(ctx, alice, nil, extraItem()))
	got, err := c.Augment(ctx, alice, nil, roster.ExtraItem{JID: bob})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("<phone>123</phone>"), got.Inner)
}

type fakePlugin struct {
	extras   map[string]plugin.Extra
	settings []map[string]string
}

func (f *fakePlugin) Metadata(context.Context) (plugin.Metadata, error) {
	return plugin.Metadata{Name: "fake"}, nil
}

func (f *fakePlugin) Contacts(context.Context, string, map[string]string) ([]plugin.Contact, error) {
	return []plugin.Contact{{JID: "bob@example.com", Name: "Bob", Groups: []string{"Ext"}}}, nil
}

func (f *fakePlugin) Lookup(_ context.Context, _ string, _ map[string]string, j string) (*plugin.Contact, error) {
	if j == "bob@example.com" {
		return &plugin.Contact{JID: j, Subscription: "to"}, nil
	}
	return nil, nil
}

func (f *fakePlugin) Extra(_ context.Context, owner string, settings map[string]string, j string) (*plugin.Extra, error) {
	f.settings = append(f.settings, settings)
	e, ok := f.extras[owner+"|"+j]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakePlugin) StoreExtra(_ context.Context, owner string, settings map[string]string, e plugin.Extra) error {
	f.settings = append(f.settings, settings)
	f.extras[owner+"|"+e.JID] = e
	return nil
}

func TestPluginSource(t *testing.T) {
	ctx := context.Background()
	src := FromPlugin(&fakePlugin{extras: map[string]plugin.Extra{}})

	items, err := src.Contacts(ctx, alice, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, roster.SubscriptionBoth, items[0].Subscription)

	item, err := src.Lookup(ctx, alice, nil, bob)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, roster.SubscriptionTo, item.Subscription)

	testExtraStore(t, src)
}

func TestCompositePassesSettingsToPluginExtras(t *testing.T) {
	ctx := context.Background()
	fp := &fakePlugin{extras: map[string]plugin.Extra{}}
	c := NewComposite(FromPlugin(fp), nil)
	settings := Settings{"tenant": "acme"}

	require.NoError(t, c.Store(ctx, alice, settings, extraItem()))
	got, err := c.Augment(ctx, alice, settings, roster.ExtraItem{JID: bob})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("<phone>123</phone>"), got.Inner)

	require.Len(t, fp.settings, 2)
	for _, s := range fp.settings {
		assert.Equal(t, "acme", s["tenant"])
	}
}
