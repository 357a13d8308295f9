// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sender delivers formatted messages to one platform. Implementations apply
// their own timeout to each call.
type Sender interface {
	Platform() Platform
	// Deliver posts msg to destinationID and returns the native id of the
	// created message, in the same form the normalizer uses for that
	// platform's inbound messages.
	Deliver(ctx context.Context, destinationID string, msg FormattedMessage) (string, error)
}

// Delivery is the outcome of one send to one target.
type Delivery struct {
	Platform      Platform
	DestinationID string
	DeliveredID   string
	Err           error
	Duration      time.Duration
}

// OK reports whether the delivery succeeded.
func (d Delivery) OK() bool {
	return d.Err == nil
}

// Router resolves bridge targets for canonical messages and fans the sends
// out. It holds no per-message state; concurrent Route calls are safe.
type Router struct {
	registry *Registry
	guard    *LoopGuard
	senders  map[Platform]Sender
	log      zerolog.Logger
}

// NewRouter creates a router. A later sender for the same platform
// replaces an earlier one. A nil guard uses the default name denylist
// without an echo cache.
func NewRouter(registry *Registry, guard *LoopGuard, log zerolog.Logger, senders ...Sender) *Router {
	if guard == nil {
		guard = NewLoopGuard(LoopGuardConfig{})
	}
	r := &Router{
		registry: registry,
		guard:    guard,
		senders:  make(map[Platform]Sender, len(senders)),
		log:      log.With().Str("component", "router").Logger(),
	}
	for _, s := range senders {
		if s != nil {
			r.senders[s.Platform()] = s
		}
	}
	return r
}

// Route relays msg to every other destination of its bridge and returns
// once all deliveries have finished. Skipped messages return nil. Delivery
// failures are logged and reported in the result, never returned as errors.
func (r *Router) Route(ctx context.Context, msg *Message) []Delivery {
	if err := msg.Validate(); err != nil {
		r.log.Debug().Err(err).Msg("Skipping structurally invalid message")
		return nil
	}

	log := r.log.With().
		Str("message_id", msg.ID).
		Str("source", string(msg.Source)).
		Str("channel_id", msg.Channel.ID).
		Logger()

	if ok, reason := r.guard.Check(msg); !ok {
		log.Debug().
			Str("tag", "loop_guard").
			Str("reason", reason).
			Str("author_id", msg.Author.ID).
			Str("author_name", msg.Author.Name).
			Msg("Skipping message (echo prevention)")
		return nil
	}

	bridge, ok := r.registry.FindBridge(msg.Source, msg.Channel.ID)
	if !ok {
		log.Debug().Msg("No bridge for channel")
		return nil
	}
	if !bridge.Settings.SyncMessages {
		log.Debug().Str("bridge_id", bridge.ID).Msg("Bridge has message sync disabled")
		return nil
	}

	targets := bridge.targets(msg.Source)
	if len(targets) == 0 {
		return nil
	}

	deliveries := make([]Delivery, len(targets))
	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			deliveries[i] = r.deliver(ctx, msg, bridge, target)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, d := range deliveries {
		if !d.OK() {
			failed++
		}
	}
	log.Info().
		Str("bridge_id", bridge.ID).
		Int("targets", len(targets)).
		Int("failed", failed).
		Msg("Relayed message")

	return deliveries
}

// deliver performs one send. Panics in a sender are recovered into a failed
// delivery so siblings are unaffected.
func (r *Router) deliver(ctx context.Context, msg *Message, bridge *Bridge, target Target) (d Delivery) {
	d = Delivery{Platform: target.Platform, DestinationID: target.DestinationID}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			d.Err = fmt.Errorf("sender panicked: %v", p)
		}
		d.Duration = time.Since(start)
		if d.Err != nil {
			r.log.Warn().Err(d.Err).
				Str("message_id", msg.ID).
				Str("bridge_id", bridge.ID).
				Str("target_platform", string(target.Platform)).
				Str("destination_id", target.DestinationID).
				Dur("duration", d.Duration).
				Msg("Failed to deliver message")
		}
	}()

	sender, ok := r.senders[target.Platform]
	if !ok {
		d.Err = fmt.Errorf("%w: %s", ErrNoSender, target.Platform)
		return d
	}

	formatted := FormatFor(target.Platform, msg, bridge.Settings)
	deliveredID, err := sender.Deliver(ctx, target.DestinationID, formatted)
	if err != nil {
		d.Err = err
		return d
	}
	d.DeliveredID = deliveredID
	r.guard.Remember(target.Platform, deliveredID)

	r.log.Debug().
		Str("message_id", msg.ID).
		Str("target_platform", string(target.Platform)).
		Str("destination_id", target.DestinationID).
		Str("delivered_id", deliveredID).
		Msg("Delivered message")
	return d
}
