// Package ui renders rosters and service information for the terminal.
package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
)

// Theme is a color palette
type Theme struct {
	Name        string       `toml:"name"`
	Description string       `toml:"description"`
	Colors      ColorsConfig `toml:"colors"`
}

// ColorsConfig contains the base color palette
type ColorsConfig struct {
	Primary string `toml:"primary"`
	Muted   string `toml:"muted"`
	Border  string `toml:"border"`
	Header  string `toml:"header"`

	// Subscription states
	Both string `toml:"both"`
	To   string `toml:"to"`
	From string `toml:"from"`
	None string `toml:"none"`
}

// Styles holds compiled lipgloss styles
type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Muted  lipgloss.Style
	Border lipgloss.Style

	SubscriptionBoth lipgloss.Style
	SubscriptionTo   lipgloss.Style
	SubscriptionFrom lipgloss.Style
	SubscriptionNone lipgloss.Style
}

func defaultThemes() map[string]*Theme {
	return map[string]*Theme{
		"rainbow": {
			Name:        "rainbow",
			Description: "Bright default palette",
			Colors: ColorsConfig{
				Primary: "#ff79c6",
				Muted:   "#6272a4",
				Border:  "#bd93f9",
				Header:  "#8be9fd",
				Both:    "#50fa7b",
				To:      "#f1fa8c",
				From:    "#ffb86c",
				None:    "#6272a4",
			},
		},
		"nord": {
			Name:        "nord",
			Description: "Arctic, north-bluish palette",
			Colors: ColorsConfig{
				Primary: "#88c0d0",
				Muted:   "#4c566a",
				Border:  "#5e81ac",
				Header:  "#81a1c1",
				Both:    "#a3be8c",
				To:      "#ebcb8b",
				From:    "#d08770",
				None:    "#4c566a",
			},
		},
		"plain": {
			Name:        "plain",
			Description: "No colors",
		},
	}
}

// Manager selects themes
type Manager struct {
	themes      map[string]*Theme
	current     *Theme
	currentName string
	styles      *Styles
	themeDirs   []string
}

// NewManager creates a theme manager. Themes not built in are looked up as
// <name>.toml in themeDirs.
func NewManager(themeDirs ...string) *Manager {
	m := &Manager{
		themes:    defaultThemes(),
		themeDirs: themeDirs,
	}
	m.current = m.themes["rainbow"]
	m.currentName = "rainbow"
	m.styles = compileStyles(m.current)
	return m
}

// LoadTheme loads a theme from the theme directories
func (m *Manager) LoadTheme(name string) error {
	for _, dir := range m.themeDirs {
		path := filepath.Join(dir, name+".toml")
		if _, err := os.Stat(path); err == nil {
			var theme Theme
			if _, err := toml.DecodeFile(path, &theme); err != nil {
				return fmt.Errorf("failed to parse theme file %s: %w", path, err)
			}
			theme.Name = name
			m.themes[name] = &theme
			return nil
		}
	}
	return fmt.Errorf("theme %s not found", name)
}

// SetTheme switches to a theme, loading it first if needed
func (m *Manager) SetTheme(name string) error {
	theme, ok := m.themes[name]
	if !ok {
		if err := m.LoadTheme(name); err != nil {
			return err
		}
		theme = m.themes[name]
	}
	m.current = theme
	m.currentName = name
	m.styles = compileStyles(theme)
	return nil
}

// CurrentName returns the name of the active theme
func (m *Manager) CurrentName() string {
	return m.currentName
}

// Styles returns the styles of the active theme
func (m *Manager) Styles() *Styles {
	return m.styles
}

// AvailableThemes returns the names of loaded themes
func (m *Manager) AvailableThemes() []string {
	names := make([]string, 0, len(m.themes))
	for name := range m.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fg(color string) lipgloss.Style {
	s := lipgloss.NewStyle()
	if color != "" {
		s = s.Foreground(lipgloss.Color(color))
	}
	return s
}

func compileStyles(t *Theme) *Styles {
	s := &Styles{}

	s.Title = fg(t.Colors.Primary).Bold(true)
	s.Header = fg(t.Colors.Header).Bold(true).Padding(0, 1)
	s.Cell = lipgloss.NewStyle().Padding(0, 1)
	s.Muted = fg(t.Colors.Muted)
	s.Border = fg(t.Colors.Border)

	s.SubscriptionBoth = fg(t.Colors.Both)
	s.SubscriptionTo = fg(t.Colors.To)
	s.SubscriptionFrom = fg(t.Colors.From)
	s.SubscriptionNone = fg(t.Colors.None)

	return s
}
