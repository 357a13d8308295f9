// Copyright 2024-2026 Aiku AI

package relay

import (
	"strings"
	"unicode/utf8"

	"github.com/aiku/chatrelay/pkg/relay/telegramfmt"
)

// Platform hard limits on message text, in characters.
const (
	DiscordMaxLength   = 2000
	TelegramMaxLength  = 4096
	CometChatMaxLength = 10000
)

// truncationMarker is appended to text cut at the length limit.
const truncationMarker = "…"

// FormattedMessage is a message rendered for one target platform.
type FormattedMessage struct {
	Text string
	// ParseMode is the Telegram parse mode of Text. Empty for plain text.
	ParseMode   string
	Attachments []Attachment
}

// MaxLength returns the hard text limit of a platform.
func (p Platform) MaxLength() int {
	switch p {
	case PlatformDiscord:
		return DiscordMaxLength
	case PlatformTelegram:
		return TelegramMaxLength
	case PlatformCometChat:
		return CometChatMaxLength
	default:
		return 0
	}
}

// FormatFor renders msg for the target platform. The author attribution is
// applied per target; the bridge's MaxMessageLength, or the platform limit
// when unset, bounds the whole relayed text. Attachment lines give way
// before the body does; when the attribution alone is too long the text is
// cut as plain text.
func FormatFor(target Platform, msg *Message, settings BridgeSettings) FormattedMessage {
	limit := target.MaxLength()
	if settings.MaxMessageLength > 0 && (limit == 0 || settings.MaxMessageLength < limit) {
		limit = settings.MaxMessageLength
	}

	source := msg.Source.DisplayName()
	name := msg.Author.Name
	text := msg.Content.Text

	// visiblePrefix is the prefix as the reader sees it, which is what the
	// platforms count against their limits.
	var prefix, visiblePrefix string
	out := FormattedMessage{Attachments: msg.Content.Attachments}
	switch target {
	case PlatformDiscord:
		prefix = "**[" + source + "] " + escapeDiscord(name) + ":** "
		visiblePrefix = prefix
	case PlatformTelegram:
		out.ParseMode = telegramfmt.ParseModeHTML
		prefix = "<b>[" + source + "] " + telegramfmt.Escape(name) + ":</b> "
		visiblePrefix = "[" + source + "] " + name + ": "
	default:
		prefix = "[" + source + "] " + name + ": "
		visiblePrefix = prefix
	}

	lines := attachmentLines(msg.Content.Attachments)
	body := text
	if limit > 0 {
		minBody := 0
		if text != "" {
			minBody = 1
		}
		room := limit - utf8.RuneCountInString(visiblePrefix) - minBody
		for len(lines) > 0 && runeCount(lines) > room {
			lines = lines[:len(lines)-1]
		}
		budget := limit - utf8.RuneCountInString(visiblePrefix) - runeCount(lines)
		if budget <= 0 {
			body = ""
		} else {
			body = Truncate(text, budget)
		}
	}
	attachments := strings.Join(lines, "")

	visible := visiblePrefix + body
	if target == PlatformTelegram {
		body = telegramfmt.Parse(body)
		attachments = telegramfmt.Escape(attachments)
	}
	out.Text = prefix + body
	if body == "" {
		out.Text = strings.TrimRight(out.Text, " ")
		visible = strings.TrimRight(visible, " ")
	}
	out.Text += attachments
	visible += strings.Join(lines, "")

	if limit > 0 && utf8.RuneCountInString(visible) > limit {
		// Only the attribution is left and it does not fit. Cutting markup
		// could leave a broken tag, so send the visible text instead.
		out.Text = Truncate(visible, limit)
		out.ParseMode = ""
	}
	return out
}

// attachmentLines renders attachments as "\n📎 name: url" lines.
func attachmentLines(attachments []Attachment) []string {
	lines := make([]string, 0, len(attachments))
	for _, a := range attachments {
		line := "\n📎 " + firstNonEmpty(a.Name, a.ContentType, "attachment")
		if a.URL != "" {
			line += ": " + a.URL
		}
		lines = append(lines, line)
	}
	return lines
}

func runeCount(lines []string) int {
	n := 0
	for _, l := range lines {
		n += utf8.RuneCountInString(l)
	}
	return n
}

// Truncate cuts text to at most limit runes, marking the cut. A
// non-positive limit returns text unchanged.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	markerLen := utf8.RuneCountInString(truncationMarker)
	if limit <= markerLen {
		return string([]rune(text)[:limit])
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:limit-markerLen]), " \n") + truncationMarker
}

var discordEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
	`~`, `\~`,
	`|`, `\|`,
)

// escapeDiscord escapes markdown in names so they cannot break the
// attribution prefix.
func escapeDiscord(s string) string {
	return discordEscaper.Replace(s)
}
