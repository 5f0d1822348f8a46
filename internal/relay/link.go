// Package relay implements the Relay Engine (spec.md §4.6): per-link
// durable pull consumers that rewrite a canonical subject and republish it
// to the next-hop stream, acknowledging only after a successful republish.
package relay

import (
	"fmt"

	"github.com/arc-self/sync-relay/internal/config"
	"github.com/arc-self/sync-relay/internal/streams"
	"github.com/arc-self/sync-relay/internal/subject"
)

// Link is one (in-stream, filter, out-stream, direction) tuple owned by a
// single durable pull consumer, per spec.md §4.6's link table.
type Link struct {
	Key           string // e.g. "up-from-leaf"
	InStream      string
	InFilter      string
	OutStream     string
	OutDirection  subject.Direction
	OutTier       subject.Tier
	RemoteTier    subject.Tier // used only to build the durable consumer name
}

// DurableName returns the deterministic, restart-stable consumer name from
// spec.md §3: "<tier>_<zone>_<subzone>_<node>__<dir>__<remote_tier>".
func (l Link) DurableName(local config.Identity) string {
	return fmt.Sprintf("%s_%s_%s_%s__%s__%s",
		local.Tier, local.Zone, local.Subzone, local.Node, l.OutDirection, l.RemoteTier)
}

// LinksForTier returns the links a node of the given tier runs, per the
// link table in spec.md §4.6. Every zone node runs "up-from-leaf-direct"
// and "down-from-central"; zoneHasSubzones additionally adds
// "up-from-subzone", so both up links are active on the same zone node.
func LinksForTier(local config.Identity, zoneHasSubzones bool) []Link {
	switch local.Tier {
	case subject.Subzone:
		return []Link{
			{
				Key:          "up-from-leaf",
				InStream:     string(streams.UpLeaf),
				InFilter:     fmt.Sprintf("up.leaf.%s.%s.>", local.Zone, local.Subzone),
				OutStream:    string(streams.UpSubzone),
				OutDirection: subject.Up,
				OutTier:      subject.Subzone,
				RemoteTier:   subject.Leaf,
			},
			{
				Key:          "down-from-zone",
				InStream:     string(streams.DownZone),
				InFilter:     fmt.Sprintf("down.zone.%s.%s.>", local.Zone, local.Subzone),
				OutStream:    string(streams.DownSubzone),
				OutDirection: subject.Down,
				OutTier:      subject.Subzone,
				RemoteTier:   subject.Zone,
			},
		}

	case subject.Zone:
		var links []Link
		if zoneHasSubzones {
			links = append(links, Link{
				Key:          "up-from-subzone",
				InStream:     string(streams.UpSubzone),
				InFilter:     fmt.Sprintf("up.subzone.%s.>", local.Zone),
				OutStream:    string(streams.UpZone),
				OutDirection: subject.Up,
				OutTier:      subject.Zone,
				RemoteTier:   subject.Subzone,
			})
		}
		// Directly attached leaves are read through UP_SUBZONE_STREAM
		// (spec.md §4.6, §9 open question): the zone tier has no dedicated
		// aggregator stream in the fixed six-stream set. Note that
		// streams.DefaultSpecs gives UP_SUBZONE_STREAM the single subject
		// filter "up.subzone.>", so up.leaf.* messages are stored in
		// UP_LEAF_STREAM, not in this link's input stream.
		links = append(links,
			Link{
				Key:          "up-from-leaf-direct",
				InStream:     string(streams.UpSubzone),
				InFilter:     fmt.Sprintf("up.leaf.%s.>", local.Zone),
				OutStream:    string(streams.UpZone),
				OutDirection: subject.Up,
				OutTier:      subject.Zone,
				RemoteTier:   subject.Leaf,
			},
			Link{
				Key:          "down-from-central",
				InStream:     string(streams.DownCentral),
				InFilter:     fmt.Sprintf("down.central.%s.>", local.Zone),
				OutStream:    string(streams.DownZone),
				OutDirection: subject.Down,
				OutTier:      subject.Zone,
				RemoteTier:   subject.Central,
			},
		)
		return links

	default:
		// Leaf and central tiers run no relay links; they are terminal.
		return nil
	}
}
