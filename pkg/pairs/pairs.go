// Package pairs resolves incoming channel identifiers to configured relay
// pairs. The matching policy is deliberately loose and is kept as an explicit,
// documented rule set rather than an implementation detail.
package pairs

import (
	"sort"
	"strings"

	"github.com/tinyland-inc/relayx/pkg/config"
	"github.com/tinyland-inc/relayx/pkg/logger"
)

// Pair is one active relay route, immutable after load.
type Pair struct {
	Name          string
	SourceChannel string
	Destination   string
	Session       string
	Blocklist     []string
}

// MatchesSource reports whether an incoming channel identifier matches a
// configured source channel. The rules, in order:
//
//  1. case-insensitive equality
//  2. the configured source is a substring of the incoming identifier
//  3. the incoming identifier is a substring of the configured source
//
// Rules 2 and 3 make similar channel names ambiguous; resolution order
// breaks ties (see Registry.ResolveBySource).
func MatchesSource(configured, incoming string) bool {
	c := strings.ToLower(configured)
	in := strings.ToLower(incoming)
	if c == "" || in == "" {
		return false
	}
	return c == in || strings.Contains(in, c) || strings.Contains(c, in)
}

// Registry holds the active pairs in registration order. Registration order
// is the sorted pair-name order, so resolution is deterministic for a given
// config regardless of map iteration.
type Registry struct {
	pairs []Pair
}

// NewRegistry builds a registry from the active pairs in cfg. Pairs whose
// source channels can shadow each other under the substring rules are
// reported once at build time; resolution itself stays first-match-wins.
func NewRegistry(cfg *config.Config) *Registry {
	names := make([]string, 0, len(cfg.Pairs))
	for name := range cfg.Pairs {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Registry{}
	for _, name := range names {
		pc := cfg.Pairs[name]
		if !pc.Active() {
			continue
		}
		r.pairs = append(r.pairs, Pair{
			Name:          name,
			SourceChannel: pc.SourceChannel,
			Destination:   pc.Destination,
			Session:       pc.Session,
			Blocklist:     cfg.PairEntries(name),
		})
	}

	for i := 0; i < len(r.pairs); i++ {
		for j := i + 1; j < len(r.pairs); j++ {
			if MatchesSource(r.pairs[i].SourceChannel, r.pairs[j].SourceChannel) {
				logger.WarnCF("pairs", "Ambiguous source channels, first registered wins", map[string]any{
					"pair_a":   r.pairs[i].Name,
					"source_a": r.pairs[i].SourceChannel,
					"pair_b":   r.pairs[j].Name,
					"source_b": r.pairs[j].SourceChannel,
				})
			}
		}
	}

	return r
}

// Len returns the number of active pairs.
func (r *Registry) Len() int { return len(r.pairs) }

// Pairs returns the active pairs in registration order.
func (r *Registry) Pairs() []Pair { return r.pairs }

// ResolveBySource returns the first registered active pair whose source
// channel matches the identifier. A miss is an expected outcome, not an
// error.
func (r *Registry) ResolveBySource(identifier string) (*Pair, bool) {
	for i := range r.pairs {
		if MatchesSource(r.pairs[i].SourceChannel, identifier) {
			return &r.pairs[i], true
		}
	}
	return nil, false
}

// ByName returns the active pair with the given name.
func (r *Registry) ByName(name string) (*Pair, bool) {
	for i := range r.pairs {
		if r.pairs[i].Name == name {
			return &r.pairs[i], true
		}
	}
	return nil, false
}

// ResolveByDestination returns the first registered active pair whose
// destination target contains the given destination channel id.
func (r *Registry) ResolveByDestination(id string) (*Pair, bool) {
	if id == "" {
		return nil, false
	}
	for i := range r.pairs {
		if strings.Contains(r.pairs[i].Destination, id) {
			return &r.pairs[i], true
		}
	}
	return nil, false
}

// BySession returns the pairs bound to the named session. Pairs with no
// session binding belong to every session.
func (r *Registry) BySession(session string) []Pair {
	var out []Pair
	for _, p := range r.pairs {
		if p.Session == "" || p.Session == session {
			out = append(out, p)
		}
	}
	return out
}
