package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/meszmate/rosterd/internal/xmpp/disco"
	"github.com/meszmate/rosterd/internal/xmpp/roster"
)

// RenderRoster renders the roster of owner as a table followed by its
// version hash
func RenderRoster(s *Styles, owner string, items []roster.Item, hash string) string {
	sorted := make([]roster.Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].JID.String() < sorted[j].JID.String()
	})

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		Headers("JID", "NAME", "SUBSCRIPTION", "GROUPS")

	for _, item := range sorted {
		groups := append([]string(nil), item.Groups...)
		sort.Strings(groups)
		t.Row(item.JID.String(), item.Name, string(item.Subscription), strings.Join(groups, ", "))
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return s.Header
		}
		if col == 2 && row >= 0 && row < len(sorted) {
			return s.subscription(sorted[row].Subscription).Padding(0, 1)
		}
		return s.Cell
	})

	var b strings.Builder
	b.WriteString(s.Title.Render(owner))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(s.Muted.Render(fmt.Sprintf("%d items, ver %s", len(sorted), hash)))
	b.WriteString("\n")
	return b.String()
}

func (s *Styles) subscription(sub roster.Subscription) lipgloss.Style {
	switch sub {
	case roster.SubscriptionBoth:
		return s.SubscriptionBoth
	case roster.SubscriptionTo:
		return s.SubscriptionTo
	case roster.SubscriptionFrom:
		return s.SubscriptionFrom
	default:
		return s.SubscriptionNone
	}
}

// RenderFeatures renders service discovery information as a list
func RenderFeatures(s *Styles, info disco.Info) string {
	var b strings.Builder

	if len(info.Identities) > 0 {
		b.WriteString(s.Title.Render("Identities"))
		b.WriteString("\n")
		for _, id := range info.Identities {
			fmt.Fprintf(&b, "  %s/%s %s\n", id.Category, id.Type, s.Muted.Render(id.Name))
		}
	}

	b.WriteString(s.Title.Render("Features"))
	b.WriteString("\n")
	for _, f := range info.Features {
		fmt.Fprintf(&b, "  %s\n", f)
	}

	if len(info.StreamFeatures) > 0 {
		b.WriteString(s.Title.Render("Stream features"))
		b.WriteString("\n")
		for _, f := range info.StreamFeatures {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}
	return b.String()
}
