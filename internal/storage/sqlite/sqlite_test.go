package sqlite

import (
	"context"
	"encoding/xml"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

var (
	alice = jid.MustParse("alice@example.com")
	bob   = jid.MustParse("bob@example.com")
	carol = jid.MustParse("carol@example.com")
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "roster.db"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.AddOrUpdate(ctx, alice, bob, "Bob", []string{"Friends", "Work"}); err != nil {
		t.Fatalf("AddOrUpdate returned error: %v", err)
	}
	if _, ok, err := db.Subscription(ctx, alice, bob); err != nil || ok {
		t.Fatalf("new item should have no subscription, ok=%v err=%v", ok, err)
	}
	if err := db.SetSubscription(ctx, alice, bob, roster.SubscriptionNone); err != nil {
		t.Fatalf("SetSubscription returned error: %v", err)
	}

	items, err := db.Items(ctx, alice)
	if err != nil {
		t.Fatalf("Items returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	got := items[0]
	if !got.JID.Equal(bob) || got.Name != "Bob" || got.Subscription != roster.SubscriptionNone {
		t.Fatalf("unexpected item: %+v", got)
	}
	if len(got.Groups) != 2 || got.Groups[0] != "Friends" || got.Groups[1] != "Work" {
		t.Fatalf("unexpected groups: %v", got.Groups)
	}

	// owners are isolated
	other, err := db.Items(ctx, carol)
	if err != nil || len(other) != 0 {
		t.Fatalf("expected empty roster for carol, got %v (%v)", other, err)
	}
}

func TestUpdateKeepsSubscription(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.AddOrUpdate(ctx, alice, bob, "Bob", nil)
	db.SetSubscription(ctx, alice, bob, roster.SubscriptionBoth)
	if err := db.AddOrUpdate(ctx, alice, bob, "Robert", []string{"Family"}); err != nil {
		t.Fatalf("AddOrUpdate returned error: %v", err)
	}

	item, err := db.Item(ctx, alice, bob)
	if err != nil {
		t.Fatalf("Item returned error: %v", err)
	}
	if item.Name != "Robert" || item.Subscription != roster.SubscriptionBoth {
		t.Fatalf("unexpected item after update: %+v", item)
	}
}

func TestAddGroupsAndMissingItems(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.AddOrUpdate(ctx, alice, bob, "", []string{"Friends"})
	if err := db.AddGroups(ctx, alice, bob, []string{"Work", "Friends"}); err != nil {
		t.Fatalf("AddGroups returned error: %v", err)
	}
	item, _ := db.Item(ctx, alice, bob)
	if len(item.Groups) != 2 || item.Groups[1] != "Work" {
		t.Fatalf("unexpected groups: %v", item.Groups)
	}

	if err := db.AddGroups(ctx, alice, carol, []string{"X"}); err != nil {
		t.Fatalf("AddGroups on missing item returned error: %v", err)
	}
	if err := db.SetSubscription(ctx, alice, carol, roster.SubscriptionBoth); err != nil {
		t.Fatalf("SetSubscription on missing item returned error: %v", err)
	}
	if ok, _ := db.Contains(ctx, alice, carol); ok {
		t.Fatal("missing item must not be created")
	}
	if _, err := db.Item(ctx, alice, carol); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.AddOrUpdate(ctx, alice, bob, "Bob", nil)
	if err := db.Remove(ctx, alice, bob); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if ok, _ := db.Contains(ctx, alice, bob); ok {
		t.Fatal("item still present after Remove")
	}
}

func TestHashMatchesMemoryStore(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mem := roster.NewMemoryStore()

	empty, _ := db.Hash(ctx, alice)
	for _, s := range []roster.Store{db, mem} {
		s.AddOrUpdate(ctx, alice, bob, "Bob", []string{"B", "A"})
		s.AddOrUpdate(ctx, alice, carol, "", nil)
		s.SetSubscription(ctx, alice, bob, roster.SubscriptionTo)
	}

	h1, err := db.Hash(ctx, alice)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	h2, _ := mem.Hash(ctx, alice)
	if h1 != h2 {
		t.Fatalf("hash mismatch: sqlite %s memory %s", h1, h2)
	}
	if h1 == empty {
		t.Fatal("hash did not change after adding items")
	}
	again, _ := db.Hash(ctx, alice)
	if again != h1 {
		t.Fatal("hash is not stable")
	}
}

func TestAddOrUpdateCollapsesDuplicateGroups(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mem := roster.NewMemoryStore()

	for _, s := range []roster.Store{db, mem} {
		if err := s.AddOrUpdate(ctx, alice, bob, "Bob", []string{"G", "G"}); err != nil {
			t.Fatalf("AddOrUpdate: %v", err)
		}
	}

	items, err := db.Items(ctx, alice)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 || len(items[0].Groups) != 1 || items[0].Groups[0] != "G" {
		t.Fatalf("unexpected items: %+v", items)
	}

	h1, _ := db.Hash(ctx, alice)
	h2, _ := mem.Hash(ctx, alice)
	if h1 != h2 {
		t.Fatalf("hash mismatch: sqlite %s memory %s", h1, h2)
	}
}

func TestConcurrentAddGroups(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	db.AddOrUpdate(ctx, alice, bob, "", nil)

	groups := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g string) {
			defer wg.Done()
			if err := db.AddGroups(ctx, alice, bob, []string{g}); err != nil {
				t.Errorf("AddGroups(%s) returned error: %v", g, err)
			}
		}(g)
	}
	wg.Wait()

	item, _ := db.Item(ctx, alice, bob)
	if len(item.Groups) != len(groups) {
		t.Fatalf("lost updates: got groups %v", item.Groups)
	}
}

func TestExtraRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	got, err := db.GetExtra(ctx, alice, bob)
	if err != nil || got != nil {
		t.Fatalf("expected no extra item, got %v (%v)", got, err)
	}

	item := roster.ExtraItem{
		Name:  xml.Name{Space: roster.NSDynamic, Local: "item"},
		JID:   bob,
		Attrs: []xml.Attr{{Name: xml.Name{Local: "kind"}, Value: "desk"}},
		Inner: []byte("<phone>123</phone>"),
	}
	if err := db.PutExtra(ctx, alice, item); err != nil {
		t.Fatalf("PutExtra returned error: %v", err)
	}

	got, err = db.GetExtra(ctx, alice, bob)
	if err != nil || got == nil {
		t.Fatalf("GetExtra returned %v (%v)", got, err)
	}
	if got.Name != item.Name || string(got.Inner) != "<phone>123</phone>" || len(got.Attrs) != 1 || got.Attrs[0].Value != "desk" {
		t.Fatalf("unexpected extra item: %+v", got)
	}
}
