// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"strings"

	"go.mau.fi/util/jsontime"
)

// Platform identifies one of the bridged chat networks.
type Platform string

const (
	PlatformDiscord   Platform = "discord"
	PlatformTelegram  Platform = "telegram"
	PlatformCometChat Platform = "cometchat"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformDiscord, PlatformTelegram, PlatformCometChat}

// ParsePlatform converts a config or URL value into a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformDiscord, PlatformTelegram, PlatformCometChat:
		return true
	default:
		return false
	}
}

// DisplayName returns the human readable platform name used in prefixes.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformDiscord:
		return "Discord"
	case PlatformTelegram:
		return "Telegram"
	case PlatformCometChat:
		return "CometChat"
	default:
		return string(p)
	}
}

// Author is the sender of a canonical message.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsBot bool   `json:"isBot"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Content holds the text and attachments of a message.
type Content struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// Empty reports whether the content has neither text nor attachments.
func (c Content) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && len(c.Attachments) == 0
}

// Channel is the platform-native destination a message was posted to.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Message is the platform-agnostic representation routed between bridges.
type Message struct {
	ID        string             `json:"id"`
	Source    Platform           `json:"source"`
	Author    Author             `json:"author"`
	Content   Content            `json:"content"`
	Channel   Channel            `json:"channel"`
	Timestamp jsontime.UnixMilli `json:"timestamp"`
}

// NativeID returns the platform-native part of the message ID.
func (m *Message) NativeID() string {
	_, native := ParseMessageID(m.ID)
	return native
}

// Validate checks that a message has the fields the router relies on.
func (m *Message) Validate() error {
	switch {
	case m == nil:
		return fmt.Errorf("nil message")
	case !m.Source.Valid():
		return fmt.Errorf("%w: %q", ErrUnsupportedPlatform, m.Source)
	case m.Author.ID == "" && m.Author.Name == "":
		return fmt.Errorf("message %s has no author", m.ID)
	case m.Channel.ID == "":
		return ErrMissingChannel
	case m.Content.Empty():
		return ErrNotRoutable
	}
	return nil
}

// MakeMessageID namespaces a native message id by its source platform.
func MakeMessageID(source Platform, nativeID string) string {
	return string(source) + "_" + nativeID
}

// ParseMessageID splits a canonical message id into platform and native id.
// Unknown prefixes return an empty platform and the input unchanged.
func ParseMessageID(id string) (Platform, string) {
	prefix, native, ok := strings.Cut(id, "_")
	if !ok || !Platform(prefix).Valid() {
		return "", id
	}
	return Platform(prefix), native
}
