// Copyright 2024-2026 Aiku AI

package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/chatrelay/pkg/relay"
)

func TestTelegramSender_Deliver(t *testing.T) {
	t.Parallel()
	api := &fakeTelegram{messageID: 42}
	s := NewTelegramSender(api, time.Second, zerolog.Nop())

	id, err := s.Deliver(context.Background(), "-100123", relay.FormattedMessage{
		Text:      "<b>[Discord] Bob:</b> hi",
		ParseMode: "HTML",
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if want := relay.TelegramNativeID(-100123, 42); id != want {
		t.Errorf("id = %q, want %q", id, want)
	}
	if len(api.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(api.calls))
	}
	params := api.calls[0]
	if params.ChatID.ID != -100123 {
		t.Errorf("chat id = %d", params.ChatID.ID)
	}
	if params.ParseMode != "HTML" {
		t.Errorf("parse mode = %q, want HTML", params.ParseMode)
	}
	if params.LinkPreviewOptions == nil || !params.LinkPreviewOptions.IsDisabled {
		t.Error("link previews should be disabled for text-only messages")
	}
}

func TestTelegramSender_PreviewWithAttachments(t *testing.T) {
	t.Parallel()
	api := &fakeTelegram{messageID: 7}
	s := NewTelegramSender(api, time.Second, zerolog.Nop())

	_, err := s.Deliver(context.Background(), "12", relay.FormattedMessage{
		Text:        "pic",
		Attachments: []relay.Attachment{{Name: "a.png", URL: "https://example.com/a.png"}},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if api.calls[0].LinkPreviewOptions.IsDisabled {
		t.Error("link previews should stay enabled when attachments are linked")
	}
}

func TestTelegramSender_InvalidChatID(t *testing.T) {
	t.Parallel()
	for _, chatID := range []string{"", "abc", "0", "12.5"} {
		api := &fakeTelegram{messageID: 1}
		s := NewTelegramSender(api, time.Second, zerolog.Nop())
		_, err := s.Deliver(context.Background(), chatID, relay.FormattedMessage{Text: "x"})
		if !errors.Is(err, ErrInvalidDestination) {
			t.Errorf("chat %q: err = %v, want ErrInvalidDestination", chatID, err)
		}
		if len(api.calls) != 0 {
			t.Errorf("chat %q: api should not be called", chatID)
		}
	}
}

func TestTelegramSender_Errors(t *testing.T) {
	t.Parallel()
	s := NewTelegramSender(&fakeTelegram{err: errFake}, time.Second, zerolog.Nop())
	if _, err := s.Deliver(context.Background(), "1", relay.FormattedMessage{Text: "x"}); !errors.Is(err, errFake) {
		t.Errorf("err = %v, want wrapped errFake", err)
	}

	s = NewTelegramSender(&fakeTelegram{noMessage: true}, time.Second, zerolog.Nop())
	if _, err := s.Deliver(context.Background(), "1", relay.FormattedMessage{Text: "x"}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}
