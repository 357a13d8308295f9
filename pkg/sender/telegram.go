// Copyright 2024-2026 Aiku AI

package sender

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

// TelegramAPI is the part of *telego.Bot the sender uses.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramSender posts messages to Telegram chats through the bot account.
type TelegramSender struct {
	api     TelegramAPI
	timeout time.Duration
	log     zerolog.Logger
}

var _ relay.Sender = (*TelegramSender)(nil)

// NewTelegramSender creates a sender backed by api, usually a *telego.Bot.
func NewTelegramSender(api TelegramAPI, timeout time.Duration, log zerolog.Logger) *TelegramSender {
	return &TelegramSender{
		api:     api,
		timeout: timeout,
		log:     log.With().Str("sender", string(relay.PlatformTelegram)).Logger(),
	}
}

// Platform implements relay.Sender.
func (s *TelegramSender) Platform() relay.Platform {
	return relay.PlatformTelegram
}

// Deliver implements relay.Sender. The returned id is chat-qualified, the
// same way the normalizer builds Telegram message ids.
func (s *TelegramSender) Deliver(ctx context.Context, chatID string, msg relay.FormattedMessage) (string, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return "", fmt.Errorf("%w: telegram chat id %q", ErrInvalidDestination, chatID)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	sent, err := s.api.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: id},
		Text:      msg.Text,
		ParseMode: msg.ParseMode,
		LinkPreviewOptions: &telego.LinkPreviewOptions{
			IsDisabled: len(msg.Attachments) == 0,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send telegram message to %s: %w", chatID, err)
	}
	if sent == nil || sent.MessageID == 0 {
		return "", fmt.Errorf("telegram chat %s: %w", chatID, ErrEmptyResponse)
	}
	chat := sent.Chat.ID
	if chat == 0 {
		chat = id
	}
	nativeID := relay.TelegramNativeID(chat, sent.MessageID)
	s.log.Trace().Str("chat_id", chatID).Str("telegram_message_id", nativeID).Msg("Sent message")
	return nativeID, nil
}
