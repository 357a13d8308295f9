// Copyright 2024-2026 Aiku AI

package relay

import "errors"

var (
	// ErrNotRoutable is returned by the normalizer for messages that carry
	// neither text nor attachments. Callers treat it as a no-op.
	ErrNotRoutable = errors.New("message has no routable content")
	// ErrMissingChannel is returned when a payload has no destination id.
	ErrMissingChannel = errors.New("payload has no channel id")
	// ErrUnsupportedPlatform is returned for unknown platform tags.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNoSender is recorded on a delivery whose platform has no sender.
	ErrNoSender = errors.New("no sender registered for platform")
	// ErrInvalidBridge is returned when a bridge record fails validation.
	ErrInvalidBridge = errors.New("invalid bridge")
)
