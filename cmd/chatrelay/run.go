// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/chatrelay/pkg/config"
	"github.com/aiku/chatrelay/pkg/ingress"
	"github.com/aiku/chatrelay/pkg/relay"
	"github.com/aiku/chatrelay/pkg/sender"
)

// telegoLogger routes telego's logging into zerolog.
type telegoLogger struct {
	log zerolog.Logger
}

func (l telegoLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(format, args...)
}

func (l telegoLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

// run connects the enabled platforms, builds the relay core and serves until
// ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	logPtr, err := cfg.Logger()
	if err != nil {
		return err
	}
	log := *logPtr

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	platforms := cfg.EnabledPlatforms()
	if len(platforms) == 0 {
		return config.ErrNoPlatforms
	}
	warnUnusedDestinations(log, cfg, registry)

	var (
		senders        []relay.Sender
		identities     = make(map[relay.Platform][]string)
		discordSession *discordgo.Session
		telegramBot    *telego.Bot
	)

	if cfg.Discord.Enabled {
		discordSession, err = ingress.NewDiscordSession(cfg.Discord.Token)
		if err != nil {
			return err
		}
		botID, err := ingress.DiscordBotUserID(discordSession)
		if err != nil {
			return err
		}
		log.Info().Str("user_id", botID).Msg("Authenticated with Discord")
		identities[relay.PlatformDiscord] = append(identities[relay.PlatformDiscord], botID)
		senders = append(senders, sender.NewDiscordSender(discordSession, cfg.Sender.Timeout, log))
	}

	if cfg.Telegram.Enabled {
		telegramBot, err = telego.NewBot(cfg.Telegram.Token, telego.WithLogger(telegoLogger{
			log: log.With().Str("component", "telego").Logger(),
		}))
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		me, err := telegramBot.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("failed to get telegram bot info: %w", err)
		}
		log.Info().Int64("user_id", me.ID).Str("username", me.Username).Msg("Connected to Telegram")
		identities[relay.PlatformTelegram] = append(identities[relay.PlatformTelegram], strconv.FormatInt(me.ID, 10))
		senders = append(senders, sender.NewTelegramSender(telegramBot, cfg.Sender.Timeout, log))
	}

	if cfg.CometChat.Enabled {
		senders = append(senders, sender.NewCometChatSender(cfg.SenderCometChat(), &http.Client{}, log))
	}

	if cfg.Sender.Breaker.Enabled {
		for i, s := range senders {
			senders[i] = sender.WithBreaker(s, cfg.SenderBreaker(), log)
		}
	}

	echoes := relay.NewEchoCache(cfg.Relay.EchoSize, cfg.Relay.EchoTTL)
	guard := relay.NewLoopGuard(cfg.LoopGuardConfig(echoes, identities))
	router := relay.NewRouter(registry, guard, log, senders...)
	normalizer := relay.NewNormalizer(log)

	log.Info().
		Int("bridges", registry.Len()).
		Interface("platforms", platforms).
		Msg("Starting relay")

	g, ctx := errgroup.WithContext(ctx)

	// The listener takes every webhook platform except Discord, which
	// delivers over the gateway.
	var webhookPlatforms []relay.Platform
	if cfg.Telegram.Enabled && cfg.Telegram.Mode == config.TelegramModeWebhook {
		webhookPlatforms = append(webhookPlatforms, relay.PlatformTelegram)
	}
	if cfg.CometChat.Enabled {
		webhookPlatforms = append(webhookPlatforms, relay.PlatformCometChat)
	}
	if len(webhookPlatforms) > 0 {
		handler := ingress.NewWebhookHandler(normalizer, router, cfg.Listen.MaxBodyBytes, log, webhookPlatforms...)
		server := ingress.NewServer(cfg.Listen.Address, handler.Routes(), log)
		g.Go(func() error { return server.Run(ctx) })
	}

	if discordSession != nil {
		gateway := ingress.NewDiscordGateway(discordSession, normalizer, router, log)
		g.Go(func() error { return gateway.Run(ctx) })
	}

	if telegramBot != nil && cfg.Telegram.Mode == config.TelegramModePolling {
		poller := ingress.NewTelegramPoller(telegramBot, normalizer, router, log)
		g.Go(func() error { return poller.Run(ctx) })
	}

	err = g.Wait()
	log.Info().Msg("Relay stopped")
	return err
}

// warnUnusedDestinations logs bridge destinations on platforms that are not
// enabled. Messages for them fail with relay.ErrNoSender.
func warnUnusedDestinations(log zerolog.Logger, cfg *config.Config, registry *relay.Registry) {
	for _, b := range registry.Bridges() {
		for p, dest := range b.Platforms {
			if !cfg.PlatformEnabled(p) {
				log.Warn().
					Str("bridge_id", b.ID).
					Str("platform", string(p)).
					Str("destination_id", dest).
					Msg("Bridge destination is on a disabled platform")
			}
		}
	}
}
