package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arc-self/sync-relay/internal/config"
	"github.com/arc-self/sync-relay/internal/subject"
)

func TestLinksForTier_Subzone(t *testing.T) {
	id := config.Identity{Tier: subject.Subzone, Zone: "snc", Subzone: "unit1", Node: "rly1"}
	links := LinksForTier(id, false)

	assert.Len(t, links, 2)
	keys := []string{links[0].Key, links[1].Key}
	assert.Contains(t, keys, "up-from-leaf")
	assert.Contains(t, keys, "down-from-zone")
}

func TestLinksForTier_ZoneWithoutSubzones(t *testing.T) {
	id := config.Identity{Tier: subject.Zone, Zone: "snc", Node: "rly1"}
	links := LinksForTier(id, false)

	var keys []string
	for _, l := range links {
		keys = append(keys, l.Key)
	}
	assert.NotContains(t, keys, "up-from-subzone")
	assert.Contains(t, keys, "up-from-leaf-direct")
	assert.Contains(t, keys, "down-from-central")
}

func TestLinksForTier_ZoneWithSubzones(t *testing.T) {
	id := config.Identity{Tier: subject.Zone, Zone: "snc", Node: "rly1"}
	links := LinksForTier(id, true)

	var keys []string
	for _, l := range links {
		keys = append(keys, l.Key)
	}
	assert.Contains(t, keys, "up-from-subzone")
	assert.Contains(t, keys, "up-from-leaf-direct")
	assert.Contains(t, keys, "down-from-central")
	assert.Len(t, links, 3)
}

func TestLinksForTier_LeafAndCentralHaveNoLinks(t *testing.T) {
	assert.Empty(t, LinksForTier(config.Identity{Tier: subject.Leaf}, false))
	assert.Empty(t, LinksForTier(config.Identity{Tier: subject.Central}, false))
}

func TestLink_DurableNameIsDeterministic(t *testing.T) {
	id := config.Identity{Tier: subject.Subzone, Zone: "snc", Subzone: "unit1", Node: "rly1"}
	link := LinksForTier(id, false)[0]

	name1 := link.DurableName(id)
	name2 := link.DurableName(id)
	assert.Equal(t, name1, name2)
	assert.Contains(t, name1, "subzone_snc_unit1_rly1")
}
