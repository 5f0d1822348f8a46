package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arc-self/sync-relay/internal/streams"
)

// StreamOverride is the YAML shape for customizing one of the six fixed
// streams' operational knobs. The subject filter set and stream name are
// never overridable here — spec.md §4.4 requires them fixed — only storage
// class, replica count, retention age, and broker placement tags, which
// are legitimately deployment-specific.
type StreamOverride struct {
	Key           string   `yaml:"key"`
	Storage       string   `yaml:"storage,omitempty"`
	Retention     string   `yaml:"retention,omitempty"`
	MaxAgeSeconds int      `yaml:"max_age_seconds,omitempty"`
	Replicas      int      `yaml:"replicas,omitempty"`
	PlacementTags []string `yaml:"placement_tags,omitempty"`
}

// StreamSpecFile is the root shape of the YAML stream-spec config file.
type StreamSpecFile struct {
	Streams []StreamOverride `yaml:"streams"`
}

// LoadStreamSpecFile reads and parses a stream-spec YAML file. A missing
// file is not an error: callers fall back to streams.DefaultSpecs()
// unmodified, since every stream has a sane platform default already.
func LoadStreamSpecFile(path string) (StreamSpecFile, error) {
	if path == "" {
		return StreamSpecFile{}, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return StreamSpecFile{}, nil
	}
	if err != nil {
		return StreamSpecFile{}, fmt.Errorf("read stream spec file: %w", err)
	}

	var f StreamSpecFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return StreamSpecFile{}, fmt.Errorf("parse stream spec file: %w", err)
	}
	return f, nil
}

// ApplyOverrides merges a StreamSpecFile's per-key overrides onto the
// platform defaults, returning the effective spec list the Bootstrapper
// should target. Unknown keys in the override file are rejected loudly:
// a typo'd stream key must never silently vanish into "no override
// applied".
func ApplyOverrides(defaults []streams.Spec, file StreamSpecFile) ([]streams.Spec, error) {
	byKey := make(map[streams.Key]int, len(defaults))
	out := append([]streams.Spec(nil), defaults...)
	for i, s := range out {
		byKey[s.Key] = i
	}

	for _, ov := range file.Streams {
		idx, ok := byKey[streams.Key(ov.Key)]
		if !ok {
			return nil, fmt.Errorf("stream spec override: unknown stream key %q", ov.Key)
		}
		spec := out[idx]

		if ov.Storage != "" {
			storage, err := streams.ParseStorage(ov.Storage)
			if err != nil {
				return nil, fmt.Errorf("stream %s: %w", ov.Key, err)
			}
			spec.Storage = storage
		}
		if ov.Retention != "" {
			return nil, fmt.Errorf("stream %s: retention policy is fixed by spec and cannot be overridden", ov.Key)
		}
		if ov.MaxAgeSeconds > 0 {
			spec.MaxAge = time.Duration(ov.MaxAgeSeconds) * time.Second
		}
		if ov.Replicas > 0 {
			spec.Replicas = ov.Replicas
		}
		if len(ov.PlacementTags) > 0 {
			spec.PlacementTags = ov.PlacementTags
		}

		out[idx] = spec
	}

	return out, nil
}
