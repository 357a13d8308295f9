// Copyright 2024-2026 Aiku AI

package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.mau.fi/util/jsontime"
)

// UnknownUser is the author name used when no name field resolves.
const UnknownUser = "Unknown User"

// fallbackIDSpace namespaces deterministic ids for payloads without a native id.
var fallbackIDSpace = uuid.MustParse("6f0c2b5e-3d1a-4c8e-9b7a-2e5d8f1c4a90")

// Normalizer converts platform-native payloads into canonical messages.
// It holds no mutable state and may be shared between goroutines.
type Normalizer struct {
	log zerolog.Logger
	now func() time.Time
}

// NewNormalizer creates a Normalizer that uses the wall clock for payloads
// without a timestamp.
func NewNormalizer(log zerolog.Logger) *Normalizer {
	return &Normalizer{
		log: log.With().Str("component", "normalizer").Logger(),
		now: time.Now,
	}
}

// Normalize decodes a raw JSON payload from the given platform and converts
// it into a canonical message. It returns ErrNotRoutable for messages without
// text or attachments and ErrMissingChannel for payloads without a
// destination id. The payload slice is never modified.
func (n *Normalizer) Normalize(platform Platform, payload []byte) (*Message, error) {
	switch platform {
	case PlatformDiscord:
		var msg discordgo.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode discord message: %w", err)
		}
		return n.NormalizeDiscord(&msg)
	case PlatformTelegram:
		msg, err := decodeTelegramPayload(payload)
		if err != nil {
			return nil, err
		}
		return n.NormalizeTelegram(msg)
	case PlatformCometChat:
		if !gjson.ValidBytes(payload) {
			return nil, fmt.Errorf("failed to decode cometchat payload: invalid JSON")
		}
		return n.NormalizeCometChat(gjson.ParseBytes(payload))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}
}

// firstNonEmpty returns the first candidate that is not blank.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	return ""
}

// resolveName applies the author name fallback chain.
func resolveName(candidates ...string) string {
	if name := firstNonEmpty(candidates...); name != "" {
		return name
	}
	return UnknownUser
}

// timestampFromUnix converts a native epoch value into the canonical
// millisecond timestamp. Values that already look like milliseconds are
// kept as-is; zero falls back to now.
func (n *Normalizer) timestampFromUnix(value int64) jsontime.UnixMilli {
	switch {
	case value <= 0:
		return jsontime.UM(n.now())
	case value >= 1e12:
		return jsontime.UMInt(value)
	default:
		return jsontime.UM(time.Unix(value, 0))
	}
}

// timestampFromTime converts a decoded time, falling back to now when unset.
func (n *Normalizer) timestampFromTime(t time.Time) jsontime.UnixMilli {
	if t.IsZero() {
		return jsontime.UM(n.now())
	}
	return jsontime.UM(t)
}

// fallbackNativeID derives a stable id from the payload so that repeated
// normalization of the same payload yields the same message id.
func fallbackNativeID(raw []byte) string {
	return uuid.NewSHA1(fallbackIDSpace, raw).String()
}
