package disco

import (
	"sort"
	"sync"
)

// Identity represents a disco identity
type Identity struct {
	Category string
	Type     string
	Name     string
}

// Feature represents a disco feature
type Feature string

// Roster features
const (
	FeatureRoster        Feature = "jabber:iq:roster"
	FeatureRosterDynamic Feature = "jabber:iq:roster-dynamic"
	// FeatureRosterVer is advertised as a stream feature, not in disco#info
	FeatureRosterVer Feature = "urn:xmpp:features:rosterver"
)

// Info describes what a component advertises
type Info struct {
	Identities     []Identity
	Features       []Feature
	StreamFeatures []Feature
}

// HasFeature checks disco and stream features
func (i Info) HasFeature(f Feature) bool {
	for _, x := range i.Features {
		if x == f {
			return true
		}
	}
	for _, x := range i.StreamFeatures {
		if x == f {
			return true
		}
	}
	return false
}

// Registry merges the advertisements of every registered component
type Registry struct {
	mu    sync.RWMutex
	infos map[string]Info
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{infos: make(map[string]Info)}
}

// Register sets the advertisement of a named component
func (r *Registry) Register(component string, info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos[component] = info
}

// Remove drops a component
func (r *Registry) Remove(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.infos, component)
}

// Info returns the union of all registered advertisements, features sorted
// and deduplicated
func (r *Registry) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.infos))
	for name := range r.infos {
		names = append(names, name)
	}
	sort.Strings(names)

	var out Info
	features := map[Feature]bool{}
	stream := map[Feature]bool{}
	for _, name := range names {
		info := r.infos[name]
		out.Identities = append(out.Identities, info.Identities...)
		for _, f := range info.Features {
			features[f] = true
		}
		for _, f := range info.StreamFeatures {
			stream[f] = true
		}
	}
	out.Features = sortedFeatures(features)
	out.StreamFeatures = sortedFeatures(stream)
	return out
}

func sortedFeatures(set map[Feature]bool) []Feature {
	if len(set) == 0 {
		return nil
	}
	out := make([]Feature, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
