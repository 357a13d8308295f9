// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"maps"
	"regexp"
	"strings"
)

// BridgeSettings is the per-bridge policy consulted before dispatch.
type BridgeSettings struct {
	SyncMessages bool `json:"syncMessages" yaml:"sync_messages"`
	// MaxMessageLength caps the relayed text in runes. 0 uses the target
	// platform's own limit.
	MaxMessageLength int `json:"maxMessageLength" yaml:"max_message_length"`
}

// Bridge groups one destination per platform that mirror each other.
type Bridge struct {
	ID        string              `json:"id"`
	Platforms map[Platform]string `json:"platforms"`
	Settings  BridgeSettings      `json:"settings"`
}

// Target is one destination a message is delivered to.
type Target struct {
	Platform      Platform
	DestinationID string
}

var (
	discordIDRe   = regexp.MustCompile(`^\d+$`)
	telegramIDRe  = regexp.MustCompile(`^-?\d+$`)
	cometChatIDRe = regexp.MustCompile(`^(user:)?[A-Za-z0-9_\-.@]+$`)
)

// ValidateDestinationID checks that id has the native format of platform.
func ValidateDestinationID(platform Platform, id string) error {
	var re *regexp.Regexp
	switch platform {
	case PlatformDiscord:
		re = discordIDRe
	case PlatformTelegram:
		re = telegramIDRe
	case PlatformCometChat:
		re = cometChatIDRe
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}
	if !re.MatchString(id) {
		return fmt.Errorf("%q is not a valid %s destination id", id, platform)
	}
	return nil
}

// Registry is the read-only set of configured bridges.
type Registry struct {
	bridges []Bridge
}

// NewRegistry validates and copies the given bridges. Any invalid record
// fails the whole registry: routing with partial bridge data is not allowed.
func NewRegistry(bridges []Bridge) (*Registry, error) {
	r := &Registry{bridges: make([]Bridge, 0, len(bridges))}
	seenIDs := make(map[string]struct{}, len(bridges))
	claimed := make(map[Target]string)

	for i, b := range bridges {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: bridge #%d has no id", ErrInvalidBridge, i)
		}
		if _, dup := seenIDs[id]; dup {
			return nil, fmt.Errorf("%w: duplicate bridge id %q", ErrInvalidBridge, id)
		}
		seenIDs[id] = struct{}{}

		if len(b.Platforms) < 2 {
			return nil, fmt.Errorf("%w: bridge %q needs at least two platforms", ErrInvalidBridge, id)
		}
		if b.Settings.MaxMessageLength < 0 {
			return nil, fmt.Errorf("%w: bridge %q has negative max_message_length", ErrInvalidBridge, id)
		}

		platforms := make(map[Platform]string, len(b.Platforms))
		for rawPlatform, rawDest := range b.Platforms {
			platform, err := ParsePlatform(string(rawPlatform))
			if err != nil {
				return nil, fmt.Errorf("%w: bridge %q: %w", ErrInvalidBridge, id, err)
			}
			if _, dup := platforms[platform]; dup {
				return nil, fmt.Errorf("%w: bridge %q lists %s twice", ErrInvalidBridge, id, platform)
			}
			dest := strings.TrimSpace(rawDest)
			if err := ValidateDestinationID(platform, dest); err != nil {
				return nil, fmt.Errorf("%w: bridge %q: %w", ErrInvalidBridge, id, err)
			}
			key := Target{Platform: platform, DestinationID: dest}
			if owner, taken := claimed[key]; taken {
				return nil, fmt.Errorf("%w: %s destination %q is used by bridges %q and %q",
					ErrInvalidBridge, platform, dest, owner, id)
			}
			claimed[key] = id
			platforms[platform] = dest
		}

		r.bridges = append(r.bridges, Bridge{
			ID:        id,
			Platforms: platforms,
			Settings:  b.Settings,
		})
	}
	return r, nil
}

// Len returns the number of bridges.
func (r *Registry) Len() int {
	return len(r.bridges)
}

// Bridges returns a copy of the configured bridges.
func (r *Registry) Bridges() []Bridge {
	out := make([]Bridge, len(r.bridges))
	for i, b := range r.bridges {
		b.Platforms = maps.Clone(b.Platforms)
		out[i] = b
	}
	return out
}

// FindBridge returns the bridge that maps platform's destinationID.
func (r *Registry) FindBridge(platform Platform, destinationID string) (*Bridge, bool) {
	for i := range r.bridges {
		if dest, ok := r.bridges[i].Platforms[platform]; ok && dest == destinationID {
			b := r.bridges[i]
			b.Platforms = maps.Clone(b.Platforms)
			return &b, true
		}
	}
	return nil, false
}

// TargetsFor returns every other destination of the bridge owning the
// source destination, in Platforms order. The source platform is never
// a target. No matching bridge yields an empty list.
func (r *Registry) TargetsFor(source Platform, destinationID string) []Target {
	bridge, ok := r.FindBridge(source, destinationID)
	if !ok {
		return nil
	}
	return bridge.targets(source)
}

func (b *Bridge) targets(source Platform) []Target {
	var targets []Target
	for _, platform := range Platforms {
		if platform == source {
			continue
		}
		if dest, ok := b.Platforms[platform]; ok {
			targets = append(targets, Target{Platform: platform, DestinationID: dest})
		}
	}
	return targets
}
