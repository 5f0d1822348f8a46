package config

import "github.com/arc-self/sync-relay/internal/subject"

// Identity is the fixed tier/zone/subzone/node placement of the node this
// binary is running on, set once at deploy time (spec.md §3, §9: identity is
// configuration, never renegotiated at runtime).
type Identity struct {
	Tier    subject.Tier
	Zone    string
	Subzone string
	Node    string
}

// ZoneHasSubzones reports whether this zone node has subzones beneath it, a
// deploy-time topology fact (spec.md §4.6) read from config rather than
// discovered dynamically.
type ZoneHasSubzones bool
