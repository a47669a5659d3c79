package roster

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Hash computes the roster version string for a set of items.
//
// The result only depends on the set of items and their fields, never on the
// order they are passed in or the order of their groups.
func Hash(items []Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		groups := append([]string(nil), item.Groups...)
		sort.Strings(groups)

		var b strings.Builder
		b.WriteString(item.JID.Bare().String())
		b.WriteByte(0)
		b.WriteString(item.Name)
		b.WriteByte(0)
		b.WriteString(string(item.Subscription))
		for _, g := range groups {
			b.WriteByte(0x1f)
			b.WriteString(g)
		}
		lines = append(lines, b.String())
	}
	sort.Strings(lines)

	sum := blake2b.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
