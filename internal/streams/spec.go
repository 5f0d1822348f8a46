// Package streams defines the six fixed directional JetStream streams and
// the bootstrapper that creates/validates them (spec.md §3, §4.4).
package streams

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Retention is a closed sum type mirroring NATS JetStream retention
// policies. The source config parses these from strings; we keep that as a
// tolerant alias parser rather than dynamic dispatch.
type Retention string

const (
	WorkQueue Retention = "workqueue"
	Interest  Retention = "interest"
)

// ParseRetention lowercases and accepts common separator aliases
// (workqueue|work_queue|work-queue), matching how the original config
// parses retention policy names at startup.
func ParseRetention(s string) (Retention, error) {
	norm := normalize(s)
	switch norm {
	case "workqueue":
		return WorkQueue, nil
	case "interest":
		return Interest, nil
	default:
		return "", fmt.Errorf("unknown retention policy %q", s)
	}
}

// Storage is a closed sum type mirroring NATS JetStream storage backends.
type Storage string

const (
	FileStorage   Storage = "file"
	MemoryStorage Storage = "memory"
)

// ParseStorage lowercases and accepts common separator aliases.
func ParseStorage(s string) (Storage, error) {
	switch normalize(s) {
	case "file":
		return FileStorage, nil
	case "memory":
		return MemoryStorage, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q", s)
	}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// Key names the six logical streams a node may own, used for the
// stream_keys allowlist and the relay link table.
type Key string

const (
	UpLeaf        Key = "UP_LEAF_STREAM"
	UpSubzone     Key = "UP_SUBZONE_STREAM"
	UpZone        Key = "UP_ZONE_STREAM"
	DownCentral   Key = "DOWN_CENTRAL_STREAM"
	DownZone      Key = "DOWN_ZONE_STREAM"
	DownSubzone   Key = "DOWN_SUBZONE_STREAM"
)

// Spec is the desired configuration of one directional stream.
type Spec struct {
	Key             Key
	Name            string
	SubjectFilters  []string
	Retention       Retention
	Storage         Storage
	MaxAge          time.Duration
	Replicas        int
	PlacementTags   []string
}

// DefaultSpecs returns the fixed six-stream table from spec.md §3, with the
// platform default storage/replicas/max_age that an operator can override
// per stream via the stream-spec config file.
func DefaultSpecs() []Spec {
	return []Spec{
		{Key: UpLeaf, Name: "UP_LEAF_STREAM", SubjectFilters: []string{"up.leaf.>"}, Retention: WorkQueue, Storage: FileStorage, Replicas: 1},
		{Key: UpSubzone, Name: "UP_SUBZONE_STREAM", SubjectFilters: []string{"up.subzone.>"}, Retention: WorkQueue, Storage: FileStorage, Replicas: 1},
		{Key: UpZone, Name: "UP_ZONE_STREAM", SubjectFilters: []string{"up.zone.>"}, Retention: WorkQueue, Storage: FileStorage, Replicas: 1},
		{Key: DownCentral, Name: "DOWN_CENTRAL_STREAM", SubjectFilters: []string{"down.central.>"}, Retention: Interest, Storage: FileStorage, Replicas: 1},
		{Key: DownZone, Name: "DOWN_ZONE_STREAM", SubjectFilters: []string{"down.zone.>"}, Retention: Interest, Storage: FileStorage, Replicas: 1},
		{Key: DownSubzone, Name: "DOWN_SUBZONE_STREAM", SubjectFilters: []string{"down.subzone.>"}, Retention: Interest, Storage: FileStorage, Replicas: 1},
	}
}

// sameSubjectSet compares two subject filter lists order-insensitively, as
// required by the bootstrapper's drift check.
func sameSubjectSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
