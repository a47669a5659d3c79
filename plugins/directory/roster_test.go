package main

import (
	"context"
	"testing"

	goplugin "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
	"github.com/meszmate/rosterd/pkg/plugin"
)

const testDirectory = `
[names]
"dave@example.com" = "Dave"

[[contact]]
owner = "alice@example.com"
jid = "helpdesk@example.com"
groups = ["Support"]

[[shared]]
name = "Staff"
members = ["alice@example.com", "dave@example.com"]
`

func TestDirectoryRosterOverGRPC(t *testing.T) {
	dir, err := dynamic.ParseDirectory(testDirectory)
	require.NoError(t, err)

	client, _ := goplugin.TestPluginGRPCConn(t, false, map[string]goplugin.Plugin{
		plugin.PluginName: &plugin.GRPCPlugin{Impl: newDirectoryRoster(dir)},
	})
	defer client.Close()

	raw, err := client.Dispense(plugin.PluginName)
	require.NoError(t, err)
	remote := raw.(plugin.DynamicRoster)

	meta, err := remote.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "directory", meta.Name)

	// the host side sees the plugin as an ordinary contact source
	src := dynamic.FromPlugin(remote)
	alice := jid.MustParse("alice@example.com")

	items, err := src.Contacts(context.Background(), alice, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "dave@example.com", items[0].JID.String())
	assert.Equal(t, "Dave", items[0].Name)
	assert.Equal(t, roster.SubscriptionBoth, items[0].Subscription)
	assert.Equal(t, "helpdesk@example.com", items[1].JID.String())

	item, err := src.Lookup(context.Background(), alice, nil, jid.MustParse("helpdesk@example.com"))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, []string{"Support"}, item.Groups)

	missing, err := src.Lookup(context.Background(), alice, nil, jid.MustParse("nobody@example.com"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	extra := roster.ExtraItem{JID: jid.MustParse("dave@example.com"), Inner: []byte("<phone>1</phone>")}
	require.NoError(t, src.PutExtra(context.Background(), alice, nil, extra))
	got, err := src.GetExtra(context.Background(), alice, nil, extra.JID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "<phone>1</phone>", string(got.Inner))
}
