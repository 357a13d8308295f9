// Copyright 2024-2026 Aiku AI

package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/aiku/chatrelay/pkg/relay"
)

// maxCometChatResponse caps how much of a REST response is read.
const maxCometChatResponse = 1 << 20

// CometChatConfig holds the REST credentials of the relay's CometChat app.
type CometChatConfig struct {
	AppID  string
	Region string
	APIKey string
	// BotUID is the user the relay posts as (onBehalfOf).
	BotUID string
	// BaseURL overrides the host derived from AppID and Region.
	BaseURL string
	Timeout time.Duration
}

// CometChatBaseURL returns the REST host of an app.
func CometChatBaseURL(appID, region string) string {
	return fmt.Sprintf("https://%s.api-%s.cometchat.io", appID, region)
}

// APIError is a non-2xx answer from the CometChat REST API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("cometchat api returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("cometchat api returned %d: %s", e.StatusCode, e.Message)
}

// CometChatSender posts messages through the CometChat REST API.
type CometChatSender struct {
	client  *http.Client
	baseURL string
	apiKey  string
	botUID  string
	timeout time.Duration
	log     zerolog.Logger
}

var _ relay.Sender = (*CometChatSender)(nil)

// NewCometChatSender creates a sender. A nil client uses http.DefaultClient.
func NewCometChatSender(cfg CometChatConfig, client *http.Client, log zerolog.Logger) *CometChatSender {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = CometChatBaseURL(cfg.AppID, cfg.Region)
	}
	return &CometChatSender{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		botUID:  cfg.BotUID,
		timeout: cfg.Timeout,
		log:     log.With().Str("sender", string(relay.PlatformCometChat)).Logger(),
	}
}

// Platform implements relay.Sender.
func (s *CometChatSender) Platform() relay.Platform {
	return relay.PlatformCometChat
}

type cometChatMetadata struct {
	Relay bool `json:"relay"`
}

type cometChatData struct {
	Text     string            `json:"text"`
	Metadata cometChatMetadata `json:"metadata"`
}

type cometChatSendRequest struct {
	Receiver     string        `json:"receiver"`
	ReceiverType string        `json:"receiverType"`
	Category     string        `json:"category"`
	Type         string        `json:"type"`
	Data         cometChatData `json:"data"`
	MUID         string        `json:"muid"`
}

// Deliver implements relay.Sender. Destinations prefixed with "user:" are
// sent as direct messages, everything else goes to a group.
func (s *CometChatSender) Deliver(ctx context.Context, destinationID string, msg relay.FormattedMessage) (string, error) {
	receiver, receiverType := destinationID, "group"
	if uid, ok := strings.CutPrefix(destinationID, relay.CometChatUserPrefix); ok {
		receiver, receiverType = uid, "user"
	}
	if receiver == "" {
		return "", fmt.Errorf("%w: empty cometchat receiver", ErrInvalidDestination)
	}

	body, err := json.Marshal(&cometChatSendRequest{
		Receiver:     receiver,
		ReceiverType: receiverType,
		Category:     "message",
		Type:         "text",
		Data: cometChatData{
			Text:     msg.Text,
			Metadata: cometChatMetadata{Relay: true},
		},
		MUID: uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode cometchat message: %w", err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build cometchat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", s.apiKey)
	if s.botUID != "" {
		req.Header.Set("onBehalfOf", s.botUID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send cometchat message to %s: %w", destinationID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxCometChatResponse))
	if err != nil {
		return "", fmt.Errorf("failed to read cometchat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Code:       gjson.GetBytes(respBody, "error.code").String(),
			Message:    firstNonEmpty(gjson.GetBytes(respBody, "error.message").String(), http.StatusText(resp.StatusCode)),
		}
	}

	id := gjson.GetBytes(respBody, "data.id").String()
	if id == "" {
		return "", fmt.Errorf("cometchat receiver %s: %w", destinationID, ErrEmptyResponse)
	}
	s.log.Trace().Str("receiver", destinationID).Str("cometchat_message_id", id).Msg("Sent message")
	return id, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
