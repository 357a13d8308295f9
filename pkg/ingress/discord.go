// Copyright 2024-2026 Aiku AI

package ingress

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

// DiscordIntents are the gateway intents the relay needs to read messages.
const DiscordIntents = discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// NewDiscordSession creates a bot session requesting DiscordIntents. The
// session is not connected yet.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents |= DiscordIntents
	return session, nil
}

// DiscordUserAPI looks up Discord users over REST.
type DiscordUserAPI interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// DiscordBotUserID returns the id of the bot user behind the session token.
// It works before the gateway is connected.
func DiscordBotUserID(api DiscordUserAPI) (string, error) {
	user, err := api.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to get discord bot user: %w", err)
	}
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("discord returned no bot user")
	}
	return user.ID, nil
}

// DiscordConn is the part of *discordgo.Session the gateway drives.
type DiscordConn interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// DiscordGateway relays messages received over the Discord gateway.
type DiscordGateway struct {
	conn       DiscordConn
	normalizer *relay.Normalizer
	router     Router
	log        zerolog.Logger
}

// NewDiscordGateway registers the message handler on conn. The connection
// is opened by Run, so no message arrives before the handler is in place.
func NewDiscordGateway(conn DiscordConn, normalizer *relay.Normalizer, router Router, log zerolog.Logger) *DiscordGateway {
	g := &DiscordGateway{
		conn:       conn,
		normalizer: normalizer,
		router:     router,
		log:        log.With().Str("component", "discord_gateway").Logger(),
	}
	conn.AddHandler(g.onMessageCreate)
	return g
}

// Run connects to the gateway and keeps it open until ctx is done, then
// closes the connection.
func (g *DiscordGateway) Run(ctx context.Context) error {
	if err := g.conn.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	g.log.Info().Msg("Listening for Discord messages")
	<-ctx.Done()
	if err := g.conn.Close(); err != nil {
		return fmt.Errorf("failed to close discord gateway: %w", err)
	}
	g.log.Info().Msg("Disconnected from Discord gateway")
	return nil
}

func (g *DiscordGateway) onMessageCreate(_ *discordgo.Session, evt *discordgo.MessageCreate) {
	if evt == nil || evt.Message == nil {
		return
	}
	g.HandleMessage(context.Background(), evt.Message)
}

// HandleMessage normalizes and routes one gateway message.
func (g *DiscordGateway) HandleMessage(ctx context.Context, msg *discordgo.Message) Outcome {
	log := g.log.With().Str("discord_message_id", msg.ID).Str("channel_id", msg.ChannelID).Logger()
	normalized, err := g.normalizer.NormalizeDiscord(msg)
	return dispatch(ctx, g.router, log, normalized, err)
}
