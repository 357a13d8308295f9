// Copyright 2024-2026 Aiku AI

package sender

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aiku/chatrelay/pkg/relay"
)

// BreakerSettings configures a circuit breaker around a sender.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit.
	MaxFailures uint32
	// Interval resets the failure counts while closed. 0 never resets.
	Interval time.Duration
	// Timeout is how long the circuit stays open before a probe is let
	// through.
	Timeout time.Duration
}

// BreakerSender fails fast while its platform keeps failing, so one dead
// platform does not hold every Route call for the full send timeout.
type BreakerSender struct {
	next relay.Sender
	cb   *gobreaker.CircuitBreaker
}

var _ relay.Sender = (*BreakerSender)(nil)

// WithBreaker wraps next in a circuit breaker.
func WithBreaker(next relay.Sender, settings BreakerSettings, log zerolog.Logger) *BreakerSender {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	name := string(next.Platform())
	return &BreakerSender{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    settings.Interval,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("sender", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			},
		}),
	}
}

// Platform implements relay.Sender.
func (b *BreakerSender) Platform() relay.Platform {
	return b.next.Platform()
}

// State returns the current breaker state.
func (b *BreakerSender) State() gobreaker.State {
	return b.cb.State()
}

// Deliver implements relay.Sender. While the circuit is open it returns
// gobreaker.ErrOpenState without calling the wrapped sender.
func (b *BreakerSender) Deliver(ctx context.Context, destinationID string, msg relay.FormattedMessage) (string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		id, err := b.next.Deliver(ctx, destinationID, msg)
		return id, err
	})
	if err != nil {
		return "", err
	}
	id, _ := res.(string)
	return id, nil
}
