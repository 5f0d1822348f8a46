// Package subject implements the canonical 8-token subject model used for
// routing, filtering, and rewriting events across the relay fabric:
//
//	<direction>.<origin_tier>.<zone>.<subzone>.<node>.<domain>.<entity>.<event>
package subject

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Direction is the travel direction of an event through the tier hierarchy.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func (d Direction) valid() bool { return d == Up || d == Down }

// Tier identifies a node's position in the leaf→subzone→zone→central hierarchy.
type Tier string

const (
	Leaf    Tier = "leaf"
	Subzone Tier = "subzone"
	Zone    Tier = "zone"
	Central Tier = "central"
)

func (t Tier) valid() bool {
	switch t {
	case Leaf, Subzone, Zone, Central:
		return true
	}
	return false
}

// NoSubzone is the literal token used when a node/scope has no subzone.
const NoSubzone = "none"

// AllNodes is the sentinel node token used to address a broadcast scope on
// down-direction subjects.
const AllNodes = "all"

var tokenRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ErrInvalidToken is returned by Build when a token fails the token regex
// or an enumerant (direction/tier) is unknown.
var ErrInvalidToken = errors.New("invalid subject token")

// ErrNonCanonical is returned by Rewrite when the input subject does not
// have exactly 8 dot-separated tokens.
var ErrNonCanonical = errors.New("subject is not canonical")

const tokenCount = 8

// Parsed is the decomposed form of a canonical subject.
type Parsed struct {
	Direction   Direction
	OriginTier  Tier
	Zone        string
	Subzone     string
	Node        string
	Domain      string
	Entity      string
	Event       string
}

func validToken(s string) bool {
	return tokenRE.MatchString(s)
}

// Build constructs and validates a canonical subject from its components.
// subzone defaults to NoSubzone when the caller passes the empty string.
// Returns ErrInvalidToken if any token violates the token regex or either
// enumerant is unknown.
func Build(direction Direction, originTier Tier, zone, subzone, node, domain, entity, event string) (string, error) {
	if subzone == "" {
		subzone = NoSubzone
	}
	if !direction.valid() {
		return "", fmt.Errorf("%w: direction %q", ErrInvalidToken, direction)
	}
	if !originTier.valid() {
		return "", fmt.Errorf("%w: origin_tier %q", ErrInvalidToken, originTier)
	}
	tokens := []string{string(direction), string(originTier), zone, subzone, node, domain, entity, event}
	for _, tok := range tokens {
		if !validToken(tok) {
			return "", fmt.Errorf("%w: %q", ErrInvalidToken, tok)
		}
	}
	return strings.Join(tokens, "."), nil
}

// TryParse decomposes a subject into its components. It never panics and
// never returns an error: structurally invalid input yields (nil, false) so
// hot-path consumers can filter without allocating for the error path.
func TryParse(s string) (*Parsed, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != tokenCount {
		return nil, false
	}
	for _, p := range parts {
		if !validToken(p) {
			return nil, false
		}
	}
	direction := Direction(parts[0])
	tier := Tier(parts[1])
	if !direction.valid() || !tier.valid() {
		return nil, false
	}
	return &Parsed{
		Direction:  direction,
		OriginTier: tier,
		Zone:       parts[2],
		Subzone:    parts[3],
		Node:       parts[4],
		Domain:     parts[5],
		Entity:     parts[6],
		Event:      parts[7],
	}, true
}

// Rewrite substitutes the first five tokens of a canonical subject, leaving
// (domain, entity, event) untouched. Returns ErrNonCanonical if s does not
// have exactly 8 tokens.
func Rewrite(s string, newDirection Direction, newTier Tier, newZone, newSubzone, newNode string) (string, error) {
	parsed, ok := TryParse(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNonCanonical, s)
	}
	return Build(newDirection, newTier, newZone, newSubzone, newNode, parsed.Domain, parsed.Entity, parsed.Event)
}
