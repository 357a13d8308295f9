// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"strings"
)

// DefaultBotNameFragments are display-name fragments of known relay and
// service accounts.
var DefaultBotNameFragments = []string{
	"cometchat bot",
	"discord bot",
	"telegram bot",
	"bridge bot",
}

// Rejection reasons reported by LoopGuard.Check.
const (
	ReasonBotFlag      = "bot_flag"
	ReasonRelayAccount = "relay_identity"
	ReasonBotName      = "bot_name"
	ReasonEcho         = "echo"
)

// LoopGuardConfig configures a LoopGuard.
type LoopGuardConfig struct {
	// NameFragments are matched case-insensitively against author names.
	// Nil uses DefaultBotNameFragments.
	NameFragments []string
	// Identities lists, per platform, the user ids the senders post as.
	Identities map[Platform][]string
	// Echoes is consulted for ids the relay delivered recently. May be nil.
	Echoes *EchoCache
}

// LoopGuard decides whether a canonical message was written by a person
// and may be relayed. It is read-only after construction apart from the
// echo cache it wraps.
type LoopGuard struct {
	fragments  []string
	identities map[Platform]map[string]struct{}
	echoes     *EchoCache
}

// NewLoopGuard builds a LoopGuard from cfg.
func NewLoopGuard(cfg LoopGuardConfig) *LoopGuard {
	fragments := cfg.NameFragments
	if fragments == nil {
		fragments = DefaultBotNameFragments
	}
	g := &LoopGuard{
		identities: make(map[Platform]map[string]struct{}, len(cfg.Identities)),
		echoes:     cfg.Echoes,
	}
	for _, f := range fragments {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			g.fragments = append(g.fragments, f)
		}
	}
	for platform, ids := range cfg.Identities {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				set[id] = struct{}{}
			}
		}
		g.identities[platform] = set
	}
	return g
}

// IsRoutable reports whether msg may be relayed.
func (g *LoopGuard) IsRoutable(msg *Message) bool {
	ok, _ := g.Check(msg)
	return ok
}

// Check is IsRoutable with the reason for a rejection.
func (g *LoopGuard) Check(msg *Message) (ok bool, reason string) {
	switch {
	case msg.Author.IsBot:
		return false, ReasonBotFlag
	case g.isRelayIdentity(msg.Source, msg.Author.ID):
		return false, ReasonRelayAccount
	case isBotName(msg.Author.Name, g.fragments):
		return false, ReasonBotName
	case g.echoes.Seen(msg.ID):
		return false, ReasonEcho
	default:
		return true, ""
	}
}

// Remember records a message the relay just posted so its echo is dropped.
func (g *LoopGuard) Remember(platform Platform, nativeID string) {
	if nativeID == "" {
		return
	}
	g.echoes.Remember(MakeMessageID(platform, nativeID))
}

func (g *LoopGuard) isRelayIdentity(platform Platform, authorID string) bool {
	if authorID == "" {
		return false
	}
	_, ok := g.identities[platform][authorID]
	return ok
}

// isBotName reports whether name contains one of the lowercased fragments.
func isBotName(name string, fragments []string) bool {
	lower := strings.ToLower(name)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
