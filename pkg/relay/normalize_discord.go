// Copyright 2024-2026 Aiku AI

package relay

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// NormalizeDiscord converts a Discord gateway message into a canonical message.
func (n *Normalizer) NormalizeDiscord(msg *discordgo.Message) (*Message, error) {
	if msg == nil || msg.ChannelID == "" {
		return nil, ErrMissingChannel
	}

	content := Content{
		Text:        discordText(msg),
		Attachments: discordAttachments(msg.Attachments),
	}
	if content.Empty() {
		return nil, ErrNotRoutable
	}

	author := Author{Name: UnknownUser, IsBot: true}
	if msg.Author != nil {
		nick := ""
		if msg.Member != nil {
			nick = msg.Member.Nick
		}
		author = Author{
			ID:   msg.Author.ID,
			Name: resolveName(nick, msg.Author.GlobalName, msg.Author.Username),
			// Webhook posts are how other bridges typically write to Discord.
			IsBot: msg.Author.Bot || msg.Author.System || msg.WebhookID != "",
		}
	} else {
		n.log.Debug().
			Str("message_id", msg.ID).
			Str("channel_id", msg.ChannelID).
			Msg("Discord message has no author, treating as bot")
	}

	channelType := "guild"
	if msg.GuildID == "" {
		channelType = "dm"
	}

	nativeID := msg.ID
	if nativeID == "" {
		var ts string
		if !msg.Timestamp.IsZero() {
			ts = msg.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		nativeID = fallbackNativeID([]byte(msg.ChannelID + "\x00" + author.ID + "\x00" + ts + "\x00" + content.Text))
	}

	return &Message{
		ID:      MakeMessageID(PlatformDiscord, nativeID),
		Source:  PlatformDiscord,
		Author:  author,
		Content: content,
		Channel: Channel{
			ID:   msg.ChannelID,
			Type: channelType,
		},
		Timestamp: n.timestampFromTime(msg.Timestamp),
	}, nil
}

// discordText tries the message content first and falls back to the first
// embed description, which is where some integrations put their text.
func discordText(msg *discordgo.Message) string {
	if text := firstNonEmpty(msg.Content); text != "" {
		return text
	}
	for _, embed := range msg.Embeds {
		if embed == nil {
			continue
		}
		if text := firstNonEmpty(embed.Description, embed.Title); text != "" {
			return text
		}
	}
	return ""
}

func discordAttachments(in []*discordgo.MessageAttachment) []Attachment {
	out := make([]Attachment, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		out = append(out, Attachment{
			ID:          a.ID,
			Name:        a.Filename,
			URL:         firstNonEmpty(a.URL, a.ProxyURL),
			Size:        int64(a.Size),
			ContentType: a.ContentType,
		})
	}
	return out
}
