// Copyright 2024-2026 Aiku AI

// Package config loads the relay configuration from YAML, with credentials
// overlaid from the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"github.com/aiku/chatrelay/pkg/relay"
	"github.com/aiku/chatrelay/pkg/sender"
)

//go:embed example-config.yaml
var ExampleConfig string

// Telegram update intake modes.
const (
	TelegramModeWebhook = "webhook"
	TelegramModePolling = "polling"
)

const (
	DefaultListenAddress = ":29330"
	DefaultMaxBodyBytes  = 1 << 20
)

// ErrNoPlatforms is returned when no platform is enabled.
var ErrNoPlatforms = errors.New("no platform is enabled")

// Config is the root of the relay configuration file.
type Config struct {
	Logging   zeroconfig.Config `yaml:"logging"`
	Listen    ListenConfig      `yaml:"listen"`
	Discord   DiscordConfig     `yaml:"discord"`
	Telegram  TelegramConfig    `yaml:"telegram"`
	CometChat CometChatConfig   `yaml:"cometchat"`
	Relay     RelayConfig       `yaml:"relay"`
	Sender    SenderConfig      `yaml:"sender"`
	Bridges   []BridgeConfig    `yaml:"bridges"`
}

// ListenConfig is the webhook intake listener.
type ListenConfig struct {
	Address      string `yaml:"address" env:"CHATRELAY_LISTEN_ADDRESS"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// DiscordConfig holds the Discord bot settings.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled" env:"CHATRELAY_DISCORD_ENABLED"`
	Token   string `yaml:"token" env:"CHATRELAY_DISCORD_TOKEN"`
}

// TelegramConfig holds the Telegram bot settings.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" env:"CHATRELAY_TELEGRAM_ENABLED"`
	Token   string `yaml:"token" env:"CHATRELAY_TELEGRAM_TOKEN"`
	// Mode is "webhook" (updates are POSTed to the intake listener) or
	// "polling" (the relay calls getUpdates itself).
	Mode string `yaml:"mode" env:"CHATRELAY_TELEGRAM_MODE"`
}

// CometChatConfig holds the CometChat REST credentials.
type CometChatConfig struct {
	Enabled bool   `yaml:"enabled" env:"CHATRELAY_COMETCHAT_ENABLED"`
	AppID   string `yaml:"app_id" env:"CHATRELAY_COMETCHAT_APP_ID"`
	Region  string `yaml:"region" env:"CHATRELAY_COMETCHAT_REGION"`
	APIKey  string `yaml:"api_key" env:"CHATRELAY_COMETCHAT_API_KEY"`
	// BotUID is the CometChat user the relay posts as.
	BotUID  string `yaml:"bot_uid" env:"CHATRELAY_COMETCHAT_BOT_UID"`
	BaseURL string `yaml:"base_url" env:"CHATRELAY_COMETCHAT_BASE_URL"`
}

// RelayConfig configures echo prevention.
type RelayConfig struct {
	// BotNameDenylist replaces the default bot name fragments when set.
	BotNameDenylist []string `yaml:"bot_name_denylist"`
	// Identities lists extra user ids per platform whose messages are never
	// relayed, such as other bridges' bot accounts.
	Identities map[string][]string `yaml:"identities"`
	EchoTTL    time.Duration       `yaml:"echo_ttl"`
	// EchoSize bounds how many relayed ids are remembered at once.
	EchoSize int `yaml:"echo_size"`
}

// SenderConfig configures outbound delivery.
type SenderConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"CHATRELAY_SENDER_TIMEOUT"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the optional per-platform circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// BridgeConfig is one bridge entry of the config file.
type BridgeConfig struct {
	ID               string            `yaml:"id"`
	Platforms        map[string]string `yaml:"platforms"`
	SyncMessages     bool              `yaml:"sync_messages"`
	MaxMessageLength int               `yaml:"max_message_length"`
}

// UnmarshalYAML defaults sync_messages to true.
func (b *BridgeConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawBridgeConfig BridgeConfig
	raw := rawBridgeConfig{SyncMessages: true}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*b = BridgeConfig(raw)
	return nil
}

// Load reads a .env file from the working directory if there is one, then
// the YAML config at path, then the environment overlay.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies the environment overlay and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for _, section := range []any{&cfg.Listen, &cfg.Discord, &cfg.Telegram, &cfg.CometChat, &cfg.Sender} {
		if err := env.Parse(section); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess fills defaults and validates the config.
func (c *Config) PostProcess() error {
	if c.Listen.Address == "" {
		c.Listen.Address = DefaultListenAddress
	}
	if c.Listen.MaxBodyBytes <= 0 {
		c.Listen.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Sender.Timeout <= 0 {
		c.Sender.Timeout = sender.DefaultTimeout
	}
	if c.Relay.EchoTTL <= 0 {
		c.Relay.EchoTTL = relay.DefaultEchoTTL
	}
	if c.Relay.EchoSize <= 0 {
		c.Relay.EchoSize = relay.DefaultEchoSize
	}
	c.Telegram.Mode = strings.ToLower(strings.TrimSpace(c.Telegram.Mode))
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = TelegramModeWebhook
	}
	if len(c.Logging.Writers) == 0 {
		c.Logging.Writers = []zeroconfig.WriterConfig{{
			Type:   zeroconfig.WriterTypeStdout,
			Format: zeroconfig.LogFormatPrettyColored,
		}}
	}

	var errs []error
	if c.Discord.Enabled && c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required when discord is enabled"))
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram is enabled"))
	}
	if c.Telegram.Mode != TelegramModeWebhook && c.Telegram.Mode != TelegramModePolling {
		errs = append(errs, fmt.Errorf("telegram.mode must be %q or %q, got %q", TelegramModeWebhook, TelegramModePolling, c.Telegram.Mode))
	}
	if c.CometChat.Enabled {
		if c.CometChat.APIKey == "" {
			errs = append(errs, errors.New("cometchat.api_key is required when cometchat is enabled"))
		}
		if c.CometChat.BaseURL == "" && (c.CometChat.AppID == "" || c.CometChat.Region == "") {
			errs = append(errs, errors.New("cometchat.app_id and cometchat.region are required when cometchat.base_url is not set"))
		}
	}
	for name := range c.Relay.Identities {
		if _, err := relay.ParsePlatform(name); err != nil {
			errs = append(errs, fmt.Errorf("relay.identities: %w", err))
		}
	}
	if _, err := relay.NewRegistry(c.RelayBridges()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EnabledPlatforms returns the platforms with credentials configured, in
// relay.Platforms order.
func (c *Config) EnabledPlatforms() []relay.Platform {
	var out []relay.Platform
	for _, p := range relay.Platforms {
		if c.PlatformEnabled(p) {
			out = append(out, p)
		}
	}
	return out
}

// PlatformEnabled reports whether p is enabled.
func (c *Config) PlatformEnabled(p relay.Platform) bool {
	switch p {
	case relay.PlatformDiscord:
		return c.Discord.Enabled
	case relay.PlatformTelegram:
		return c.Telegram.Enabled
	case relay.PlatformCometChat:
		return c.CometChat.Enabled
	default:
		return false
	}
}

// RelayBridges converts the bridge entries into relay bridges. Platform
// names are passed through as written; NewRegistry validates them.
func (c *Config) RelayBridges() []relay.Bridge {
	out := make([]relay.Bridge, 0, len(c.Bridges))
	for _, b := range c.Bridges {
		platforms := make(map[relay.Platform]string, len(b.Platforms))
		for name, dest := range b.Platforms {
			platforms[relay.Platform(strings.ToLower(strings.TrimSpace(name)))] = dest
		}
		out = append(out, relay.Bridge{
			ID:        b.ID,
			Platforms: platforms,
			Settings: relay.BridgeSettings{
				SyncMessages:     b.SyncMessages,
				MaxMessageLength: b.MaxMessageLength,
			},
		})
	}
	return out
}

// Registry builds the bridge registry.
func (c *Config) Registry() (*relay.Registry, error) {
	return relay.NewRegistry(c.RelayBridges())
}

// LoopGuardConfig builds the loop guard settings. extra adds identities
// learned at runtime, such as the bot user ids reported by the platforms.
func (c *Config) LoopGuardConfig(echoes *relay.EchoCache, extra map[relay.Platform][]string) relay.LoopGuardConfig {
	identities := make(map[relay.Platform][]string)
	for name, ids := range c.Relay.Identities {
		p, err := relay.ParsePlatform(name)
		if err != nil {
			continue
		}
		identities[p] = append(identities[p], ids...)
	}
	if c.CometChat.BotUID != "" {
		identities[relay.PlatformCometChat] = append(identities[relay.PlatformCometChat], c.CometChat.BotUID)
	}
	for p, ids := range extra {
		identities[p] = append(identities[p], ids...)
	}
	var fragments []string
	if len(c.Relay.BotNameDenylist) > 0 {
		fragments = c.Relay.BotNameDenylist
	}
	return relay.LoopGuardConfig{
		NameFragments: fragments,
		Identities:    identities,
		Echoes:        echoes,
	}
}

// Logger compiles the logging section.
func (c *Config) Logger() (*zerolog.Logger, error) {
	log, err := c.Logging.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// SenderCometChat returns the CometChat sender settings.
func (c *Config) SenderCometChat() sender.CometChatConfig {
	return sender.CometChatConfig{
		AppID:   c.CometChat.AppID,
		Region:  c.CometChat.Region,
		APIKey:  c.CometChat.APIKey,
		BotUID:  c.CometChat.BotUID,
		BaseURL: c.CometChat.BaseURL,
		Timeout: c.Sender.Timeout,
	}
}

// SenderBreaker returns the circuit breaker settings.
func (c *Config) SenderBreaker() sender.BreakerSettings {
	return sender.BreakerSettings{
		MaxFailures: c.Sender.Breaker.MaxFailures,
		Interval:    c.Sender.Breaker.Interval,
		Timeout:     c.Sender.Breaker.Timeout,
	}
}
