// Copyright 2024-2026 Aiku AI

// Package sender implements relay.Sender for Discord, Telegram and
// CometChat. Each sender posts as the relay's own account and bounds every
// call with its configured timeout.
package sender

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds a single delivery when no timeout is configured.
const DefaultTimeout = 10 * time.Second

var (
	// ErrInvalidDestination is returned for destination ids the platform
	// cannot address.
	ErrInvalidDestination = errors.New("invalid destination id")
	// ErrEmptyResponse is returned when the platform accepted a message but
	// did not report its id.
	ErrEmptyResponse = errors.New("platform returned no message")
)

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
