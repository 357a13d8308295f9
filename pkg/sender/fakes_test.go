// Copyright 2024-2026 Aiku AI

package sender

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/mymmrac/telego"

	"github.com/aiku/chatrelay/pkg/relay"
)

var errFake = errors.New("fake failure")

// fakeDiscord records ChannelMessageSendComplex calls.
type fakeDiscord struct {
	mu    sync.Mutex
	calls []discordCall
	err   error
	id    string
}

type discordCall struct {
	channelID string
	data      *discordgo.MessageSend
	options   int
}

func (f *fakeDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, discordCall{channelID: channelID, data: data, options: len(options)})
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: f.id, ChannelID: channelID, Content: data.Content}, nil
}

// fakeTelegram records SendMessage calls.
type fakeTelegram struct {
	mu        sync.Mutex
	calls     []*telego.SendMessageParams
	err       error
	messageID int
	noMessage bool
}

func (f *fakeTelegram) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	if f.noMessage {
		return nil, nil
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("no deadline on context")
	}
	return &telego.Message{
		MessageID: f.messageID,
		Chat:      telego.Chat{ID: params.ChatID.ID},
		Text:      params.Text,
	}, nil
}

// fakeSender is a relay.Sender with a scripted error.
type fakeSender struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSender) Platform() relay.Platform { return relay.PlatformDiscord }

func (f *fakeSender) Deliver(_ context.Context, _ string, _ relay.FormattedMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "delivered", nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
