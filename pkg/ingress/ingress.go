// Copyright 2024-2026 Aiku AI

// Package ingress feeds platform events into the relay: an HTTP listener
// for webhook deliveries, the Discord gateway and Telegram long polling.
package ingress

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

// Router is the part of *relay.Router the intake paths use.
type Router interface {
	Route(ctx context.Context, msg *relay.Message) []relay.Delivery
}

// Outcome statuses reported for an inbound event.
const (
	StatusRelayed  = "relayed"
	StatusIgnored  = "ignored"
	StatusRejected = "rejected"
)

// Outcome summarizes what happened to one inbound event.
type Outcome struct {
	Status     string           `json:"status"`
	MessageID  string           `json:"message_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Deliveries []DeliveryResult `json:"deliveries,omitempty"`
}

// DeliveryResult is the JSON form of a relay.Delivery.
type DeliveryResult struct {
	Platform      relay.Platform `json:"platform"`
	DestinationID string         `json:"destination_id"`
	DeliveredID   string         `json:"delivered_id,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// dispatch routes a normalization result. Not-routable messages are
// ignored; any other normalization error rejects the event.
func dispatch(ctx context.Context, router Router, log zerolog.Logger, msg *relay.Message, err error) Outcome {
	if errors.Is(err, relay.ErrNotRoutable) {
		log.Debug().Msg("Ignoring event without routable content")
		return Outcome{Status: StatusIgnored, Reason: err.Error()}
	} else if err != nil {
		log.Warn().Err(err).Msg("Failed to normalize event")
		return Outcome{Status: StatusRejected, Reason: err.Error()}
	}

	deliveries := router.Route(ctx, msg)
	out := Outcome{Status: StatusRelayed, MessageID: msg.ID}
	if len(deliveries) == 0 {
		out.Status = StatusIgnored
		return out
	}
	out.Deliveries = make([]DeliveryResult, len(deliveries))
	for i, d := range deliveries {
		out.Deliveries[i] = DeliveryResult{
			Platform:      d.Platform,
			DestinationID: d.DestinationID,
			DeliveredID:   d.DeliveredID,
		}
		if d.Err != nil {
			out.Deliveries[i].Error = d.Err.Error()
		}
	}
	return out
}
