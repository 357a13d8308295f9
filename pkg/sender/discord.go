// Copyright 2024-2026 Aiku AI

package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

// DiscordAPI is the part of *discordgo.Session the sender uses.
type DiscordAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSender posts messages to Discord channels through the bot account.
type DiscordSender struct {
	api     DiscordAPI
	timeout time.Duration
	log     zerolog.Logger
}

var _ relay.Sender = (*DiscordSender)(nil)

// NewDiscordSender creates a sender backed by api, usually a
// *discordgo.Session.
func NewDiscordSender(api DiscordAPI, timeout time.Duration, log zerolog.Logger) *DiscordSender {
	return &DiscordSender{
		api:     api,
		timeout: timeout,
		log:     log.With().Str("sender", string(relay.PlatformDiscord)).Logger(),
	}
}

// Platform implements relay.Sender.
func (s *DiscordSender) Platform() relay.Platform {
	return relay.PlatformDiscord
}

// Deliver implements relay.Sender. Mentions in relayed text are never
// resolved, so a relayed "@everyone" stays plain text.
func (s *DiscordSender) Deliver(ctx context.Context, channelID string, msg relay.FormattedMessage) (string, error) {
	if channelID == "" {
		return "", fmt.Errorf("%w: empty discord channel id", ErrInvalidDestination)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	sent, err := s.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send discord message to %s: %w", channelID, err)
	}
	if sent == nil || sent.ID == "" {
		return "", fmt.Errorf("discord channel %s: %w", channelID, ErrEmptyResponse)
	}
	s.log.Trace().Str("channel_id", channelID).Str("discord_message_id", sent.ID).Msg("Sent message")
	return sent.ID, nil
}
