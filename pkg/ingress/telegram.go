// Copyright 2024-2026 Aiku AI

package ingress

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

// TelegramAllowedUpdates are the update kinds requested from getUpdates.
var TelegramAllowedUpdates = []string{"message", "edited_message", "channel_post", "edited_channel_post"}

// TelegramUpdates is the part of *telego.Bot the poller uses.
type TelegramUpdates interface {
	UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, options ...telego.LongPollingOption) (<-chan telego.Update, error)
}

// TelegramPoller relays updates fetched with long polling, for deployments
// that cannot expose the webhook listener.
type TelegramPoller struct {
	bot        TelegramUpdates
	normalizer *relay.Normalizer
	router     Router
	log        zerolog.Logger
}

// NewTelegramPoller creates a poller.
func NewTelegramPoller(bot TelegramUpdates, normalizer *relay.Normalizer, router Router, log zerolog.Logger) *TelegramPoller {
	return &TelegramPoller{
		bot:        bot,
		normalizer: normalizer,
		router:     router,
		log:        log.With().Str("component", "telegram_poller").Logger(),
	}
}

// Run polls until ctx is done. Updates are handled one at a time so that
// messages of a chat are relayed in order.
func (p *TelegramPoller) Run(ctx context.Context) error {
	updates, err := p.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: TelegramAllowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("failed to start telegram long polling: %w", err)
	}
	p.log.Info().Msg("Started Telegram long polling")
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Stopped Telegram long polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.HandleUpdate(ctx, &update)
		}
	}
}

// HandleUpdate normalizes and routes one update.
func (p *TelegramPoller) HandleUpdate(ctx context.Context, update *telego.Update) Outcome {
	log := p.log.With().Int("update_id", update.UpdateID).Logger()
	msg := relay.TelegramUpdateMessage(update)
	if msg == nil {
		log.Trace().Msg("Ignoring update without a message")
		return Outcome{Status: StatusIgnored, Reason: relay.ErrNotRoutable.Error()}
	}
	normalized, err := p.normalizer.NormalizeTelegram(msg)
	return dispatch(context.WithoutCancel(ctx), p.router, log, normalized, err)
}
