// Copyright 2024-2026 Aiku AI

package relay

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	n := NewNormalizer(zerolog.Nop())
	n.now = func() time.Time { return fixedNow }
	return n
}

const (
	telegramScenario = `{"message_id":42,"text":"hello","from":{"id":7,"username":"bob","is_bot":false},"chat":{"id":-100123,"type":"supergroup"},"date":1700000000}`
	telegramBotMsg   = `{"message_id":42,"text":"hello","from":{"id":7,"username":"bob","is_bot":true},"chat":{"id":-100123,"type":"supergroup"},"date":1700000000}`
	discordPayload   = `{"id":"1001","channel_id":"555","guild_id":"9","content":"hi there","timestamp":"2024-01-02T03:04:05Z","author":{"id":"2","username":"alice","global_name":"Alice A"},"member":{"nick":"Ali"}}`
	cometChatNested  = `{"data":{"id":"55","receiver":"grp1","receiverType":"group","sentAt":1700000000,"data":{"text":"hi","entities":{"sender":{"entity":{"uid":"carol","name":"Carol"}}}}}}`
	cometChatWebhook = `{"trigger":"after_message","data":{"id":"56","sender":"dave","senderName":"Dave","receiver":"grp1","receiverType":"group","category":"message","type":"text","sentAt":1700000000123,"data":{"text":"yo"}}}`
)

func TestNormalize_TelegramScenario(t *testing.T) {
	t.Parallel()
	msg, err := newTestNormalizer().Normalize(PlatformTelegram, []byte(telegramScenario))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.ID != "telegram_-100123:42" {
		t.Errorf("ID = %q", msg.ID)
	}
	if msg.Source != PlatformTelegram {
		t.Errorf("Source = %q", msg.Source)
	}
	if msg.Channel.ID != "-100123" || msg.Channel.Type != "supergroup" {
		t.Errorf("Channel = %+v", msg.Channel)
	}
	if msg.Author != (Author{ID: "7", Name: "bob"}) {
		t.Errorf("Author = %+v", msg.Author)
	}
	if msg.Content.Text != "hello" {
		t.Errorf("Text = %q", msg.Content.Text)
	}
	if got := msg.Timestamp.UnixMilli(); got != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", got)
	}
	if msg.NativeID() != "-100123:42" {
		t.Errorf("NativeID = %q", msg.NativeID())
	}
}

func TestNormalize_TelegramUpdateWrappers(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	for _, key := range []string{"message", "edited_message", "channel_post", "edited_channel_post"} {
		payload := `{"update_id":1,"` + key + `":{"message_id":5,"text":"x","from":{"id":1,"first_name":"A","is_bot":false},"chat":{"id":77,"type":"group"},"date":1}}`
		msg, err := n.Normalize(PlatformTelegram, []byte(payload))
		if err != nil {
			t.Errorf("%s: %v", key, err)
			continue
		}
		if msg.Channel.ID != "77" {
			t.Errorf("%s: channel = %q", key, msg.Channel.ID)
		}
	}

	_, err := n.Normalize(PlatformTelegram, []byte(`{"update_id":2,"callback_query":{"id":"q"}}`))
	if !errors.Is(err, ErrNotRoutable) {
		t.Errorf("update without message: err = %v, want ErrNotRoutable", err)
	}
}

func TestNormalizeTelegram_AuthorFallbacks(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	tests := []struct {
		name    string
		payload string
		want    Author
	}{
		{
			name:    "first and last name",
			payload: `{"message_id":1,"text":"x","from":{"id":3,"first_name":"Ada","last_name":"Lovelace","username":"ada"},"chat":{"id":1,"type":"group"}}`,
			want:    Author{ID: "3", Name: "Ada Lovelace"},
		},
		{
			name:    "bot flag",
			payload: telegramBotMsg,
			want:    Author{ID: "7", Name: "bob", IsBot: true},
		},
		{
			name:    "channel post without user",
			payload: `{"message_id":1,"text":"x","sender_chat":{"id":-100,"title":"News","type":"channel"},"chat":{"id":-100,"type":"channel"}}`,
			want:    Author{ID: "-100", Name: "News", IsBot: true},
		},
		{
			name:    "no author at all",
			payload: `{"message_id":1,"text":"x","chat":{"id":1,"type":"group"}}`,
			want:    Author{Name: UnknownUser, IsBot: true},
		},
		{
			name:    "user without names",
			payload: `{"message_id":1,"text":"x","from":{"id":4},"chat":{"id":1,"type":"group"}}`,
			want:    Author{ID: "4", Name: UnknownUser},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := n.Normalize(PlatformTelegram, []byte(tt.payload))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if msg.Author != tt.want {
				t.Errorf("Author = %+v, want %+v", msg.Author, tt.want)
			}
		})
	}
}

func TestNormalizeTelegram_CaptionEntitiesAndPhoto(t *testing.T) {
	t.Parallel()
	payload := `{"message_id":9,"caption":"look here","caption_entities":[{"type":"bold","offset":0,"length":4}],` +
		`"photo":[{"file_id":"small","file_unique_id":"s","width":90,"height":90,"file_size":100},{"file_id":"big","file_unique_id":"b","width":800,"height":800,"file_size":5000}],` +
		`"from":{"id":1,"first_name":"A"},"chat":{"id":1,"type":"private"},"date":1700000000}`
	msg, err := newTestNormalizer().Normalize(PlatformTelegram, []byte(payload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Content.Text != "**look** here" {
		t.Errorf("Text = %q", msg.Content.Text)
	}
	if len(msg.Content.Attachments) != 1 {
		t.Fatalf("attachments = %+v", msg.Content.Attachments)
	}
	a := msg.Content.Attachments[0]
	if a.ID != "big" || a.Size != 5000 || a.ContentType != "image/jpeg" {
		t.Errorf("attachment = %+v", a)
	}
}

func TestNormalize_Discord(t *testing.T) {
	t.Parallel()
	msg, err := newTestNormalizer().Normalize(PlatformDiscord, []byte(discordPayload))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.ID != "discord_1001" || msg.Channel.ID != "555" || msg.Channel.Type != "guild" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Author != (Author{ID: "2", Name: "Ali"}) {
		t.Errorf("Author = %+v", msg.Author)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	if got := msg.Timestamp.UnixMilli(); got != want {
		t.Errorf("Timestamp = %d, want %d", got, want)
	}
}

func TestNormalizeDiscord_Variants(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	tests := []struct {
		name     string
		msg      *discordgo.Message
		wantErr  error
		wantBot  bool
		wantName string
		wantText string
	}{
		{
			name:     "global name without nick",
			msg:      &discordgo.Message{ID: "1", ChannelID: "5", Content: "x", Author: &discordgo.User{ID: "2", Username: "u", GlobalName: "Global"}},
			wantName: "Global",
			wantText: "x",
		},
		{
			name:     "bot author",
			msg:      &discordgo.Message{ID: "1", ChannelID: "5", Content: "x", Author: &discordgo.User{ID: "2", Username: "b", Bot: true}},
			wantBot:  true,
			wantName: "b",
			wantText: "x",
		},
		{
			name:     "webhook post",
			msg:      &discordgo.Message{ID: "1", ChannelID: "5", Content: "x", WebhookID: "77", Author: &discordgo.User{ID: "77", Username: "hook"}},
			wantBot:  true,
			wantName: "hook",
			wantText: "x",
		},
		{
			name:     "no author",
			msg:      &discordgo.Message{ID: "1", ChannelID: "5", Content: "x"},
			wantBot:  true,
			wantName: UnknownUser,
			wantText: "x",
		},
		{
			name:     "embed only",
			msg:      &discordgo.Message{ID: "1", ChannelID: "5", Embeds: []*discordgo.MessageEmbed{nil, {Description: "from embed"}}, Author: &discordgo.User{ID: "2", Username: "u"}},
			wantName: "u",
			wantText: "from embed",
		},
		{
			name:    "empty",
			msg:     &discordgo.Message{ID: "1", ChannelID: "5", Content: "   ", Author: &discordgo.User{ID: "2"}},
			wantErr: ErrNotRoutable,
		},
		{
			name:    "no channel",
			msg:     &discordgo.Message{ID: "1", Content: "x", Author: &discordgo.User{ID: "2"}},
			wantErr: ErrMissingChannel,
		},
		{
			name:    "nil",
			wantErr: ErrMissingChannel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := n.NormalizeDiscord(tt.msg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeDiscord: %v", err)
			}
			if msg.Author.IsBot != tt.wantBot || msg.Author.Name != tt.wantName || msg.Content.Text != tt.wantText {
				t.Errorf("got author %+v text %q", msg.Author, msg.Content.Text)
			}
			if msg.Channel.Type != "dm" {
				t.Errorf("message without guild should be a dm, got %q", msg.Channel.Type)
			}
			if !msg.Timestamp.Equal(fixedNow) {
				t.Errorf("missing timestamp should fall back to now, got %s", msg.Timestamp.Time)
			}
		})
	}
}

func TestNormalizeDiscord_AttachmentOnly(t *testing.T) {
	t.Parallel()
	msg, err := newTestNormalizer().NormalizeDiscord(&discordgo.Message{
		ID:        "1",
		ChannelID: "5",
		Author:    &discordgo.User{ID: "2", Username: "u"},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "cat.png", URL: "https://cdn.example.com/cat.png", Size: 1234, ContentType: "image/png"},
		},
	})
	if err != nil {
		t.Fatalf("NormalizeDiscord: %v", err)
	}
	want := []Attachment{{ID: "a1", Name: "cat.png", URL: "https://cdn.example.com/cat.png", Size: 1234, ContentType: "image/png"}}
	if !reflect.DeepEqual(msg.Content.Attachments, want) {
		t.Errorf("attachments = %+v", msg.Content.Attachments)
	}
}

func TestNormalize_CometChatNestedSender(t *testing.T) {
	t.Parallel()
	msg, err := newTestNormalizer().Normalize(PlatformCometChat, []byte(cometChatNested))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Author.ID != "carol" {
		t.Errorf("Author.ID = %q, want carol", msg.Author.ID)
	}
	if msg.Author.Name != "Carol" || msg.Author.IsBot {
		t.Errorf("Author = %+v", msg.Author)
	}
	if msg.Content.Text != "hi" || msg.Channel.ID != "grp1" || msg.ID != "cometchat_55" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestNormalize_CometChatWebhook(t *testing.T) {
	t.Parallel()
	msg, err := newTestNormalizer().Normalize(PlatformCometChat, []byte(cometChatWebhook))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Author != (Author{ID: "dave", Name: "Dave"}) {
		t.Errorf("Author = %+v", msg.Author)
	}
	if msg.Content.Text != "yo" {
		t.Errorf("Text = %q", msg.Content.Text)
	}
	if got := msg.Timestamp.UnixMilli(); got != 1700000000123 {
		t.Errorf("millisecond sentAt should be kept, got %d", got)
	}
}

func TestNormalizeCometChat_Variants(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	tests := []struct {
		name        string
		payload     string
		wantErr     error
		wantChannel string
		wantText    string
		wantAuthor  Author
	}{
		{
			name:        "sdk message object",
			payload:     `{"id":"1","text":"plain","sender":{"uid":"erin","name":"Erin"},"receiver":{"guid":"grp2"},"receiverType":"group"}`,
			wantChannel: "grp2",
			wantText:    "plain",
			wantAuthor:  Author{ID: "erin", Name: "Erin"},
		},
		{
			name:        "direct message",
			payload:     `{"id":"1","text":"dm","sender":"erin","receiver":"frank","receiverType":"user"}`,
			wantChannel: "user:frank",
			wantText:    "dm",
			wantAuthor:  Author{ID: "erin", Name: UnknownUser},
		},
		{
			name:        "raw string data",
			payload:     `{"trigger":"after_message","data":{"id":"1","sender":"erin","receiver":"grp1","data":"raw text"}}`,
			wantChannel: "grp1",
			wantText:    "raw text",
			wantAuthor:  Author{ID: "erin", Name: UnknownUser},
		},
		{
			name:        "bot role",
			payload:     `{"id":"1","text":"beep","sender":{"uid":"helper","name":"Helper","role":"bot"},"receiver":"grp1"}`,
			wantChannel: "grp1",
			wantText:    "beep",
			wantAuthor:  Author{ID: "helper", Name: "Helper", IsBot: true},
		},
		{
			name:        "posted by the relay",
			payload:     `{"trigger":"after_message","data":{"id":"9","sender":"relaybot","receiver":"grp1","data":{"text":"[Discord] Ann: hi","metadata":{"relay":true}}}}`,
			wantChannel: "grp1",
			wantText:    "[Discord] Ann: hi",
			wantAuthor:  Author{ID: "relaybot", Name: UnknownUser, IsBot: true},
		},
		{
			name:        "no sender",
			payload:     `{"id":"1","text":"who","receiver":"grp1"}`,
			wantChannel: "grp1",
			wantText:    "who",
			wantAuthor:  Author{Name: UnknownUser, IsBot: true},
		},
		{
			name:    "action message",
			payload: `{"id":"1","category":"action","text":"joined","sender":"erin","receiver":"grp1"}`,
			wantErr: ErrNotRoutable,
		},
		{
			name:    "empty text",
			payload: `{"id":"1","text":"  ","sender":"erin","receiver":"grp1"}`,
			wantErr: ErrNotRoutable,
		},
		{
			name:    "no receiver",
			payload: `{"id":"1","text":"x","sender":"erin"}`,
			wantErr: ErrMissingChannel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := n.Normalize(PlatformCometChat, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if msg.Channel.ID != tt.wantChannel {
				t.Errorf("Channel.ID = %q, want %q", msg.Channel.ID, tt.wantChannel)
			}
			if msg.Content.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", msg.Content.Text, tt.wantText)
			}
			if msg.Author != tt.wantAuthor {
				t.Errorf("Author = %+v, want %+v", msg.Author, tt.wantAuthor)
			}
		})
	}
}

func TestNormalizeCometChat_Attachments(t *testing.T) {
	t.Parallel()
	payload := `{"id":"1","type":"image","sender":"erin","receiver":"grp1","data":{"attachments":[{"name":"cat.png","url":"https://files.example.com/cat.png","size":10,"mimeType":"image/png"},{"name":"nourl"}]}}`
	msg, err := newTestNormalizer().NormalizeCometChat(gjson.Parse(payload))
	if err != nil {
		t.Fatalf("NormalizeCometChat: %v", err)
	}
	want := []Attachment{{Name: "cat.png", URL: "https://files.example.com/cat.png", Size: 10, ContentType: "image/png"}}
	if !reflect.DeepEqual(msg.Content.Attachments, want) {
		t.Errorf("attachments = %+v", msg.Content.Attachments)
	}

	legacy := `{"id":"2","type":"file","sender":"erin","receiver":"grp1","data":{"url":"https://files.example.com/a.pdf"}}`
	msg, err = newTestNormalizer().NormalizeCometChat(gjson.Parse(legacy))
	if err != nil {
		t.Fatalf("NormalizeCometChat: %v", err)
	}
	if len(msg.Content.Attachments) != 1 || msg.Content.Attachments[0].URL != "https://files.example.com/a.pdf" {
		t.Errorf("legacy attachment = %+v", msg.Content.Attachments)
	}
}

func TestNormalize_EmptyIsNotRoutable(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	payloads := map[Platform]string{
		PlatformTelegram:  `{"message_id":1,"from":{"id":1,"first_name":"A"},"chat":{"id":1,"type":"group"}}`,
		PlatformDiscord:   `{"id":"1","channel_id":"5","author":{"id":"2","username":"u"}}`,
		PlatformCometChat: `{"id":"1","sender":"erin","receiver":"grp1"}`,
	}
	for platform, payload := range payloads {
		if _, err := n.Normalize(platform, []byte(payload)); !errors.Is(err, ErrNotRoutable) {
			t.Errorf("%s: err = %v, want ErrNotRoutable", platform, err)
		}
	}
}

func TestNormalize_ChannelIDRoundTrip(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	tests := []struct {
		platform Platform
		payload  string
		want     string
	}{
		{PlatformTelegram, telegramScenario, "-100123"},
		{PlatformDiscord, discordPayload, "555"},
		{PlatformCometChat, cometChatNested, "grp1"},
		{PlatformCometChat, cometChatWebhook, "grp1"},
	}
	for _, tt := range tests {
		msg, err := n.Normalize(tt.platform, []byte(tt.payload))
		if err != nil {
			t.Errorf("%s: %v", tt.platform, err)
			continue
		}
		if msg.Channel.ID != tt.want {
			t.Errorf("%s: Channel.ID = %q, want %q", tt.platform, msg.Channel.ID, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()
	n := NewNormalizer(zerolog.Nop())
	payloads := map[Platform]string{
		PlatformTelegram:  telegramScenario,
		PlatformDiscord:   discordPayload,
		PlatformCometChat: cometChatNested,
	}
	for platform, payload := range payloads {
		raw := []byte(payload)
		orig := bytes.Clone(raw)
		first, err := n.Normalize(platform, raw)
		if err != nil {
			t.Fatalf("%s: %v", platform, err)
		}
		second, err := n.Normalize(platform, raw)
		if err != nil {
			t.Fatalf("%s: %v", platform, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: repeated normalization differs:\n%+v\n%+v", platform, first, second)
		}
		if !bytes.Equal(raw, orig) {
			t.Errorf("%s: payload was modified", platform)
		}
	}
}

func TestNormalize_FallbackIDIsStable(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	payload := []byte(`{"text":"no id","sender":"erin","receiver":"grp1"}`)
	first, err := n.Normalize(PlatformCometChat, payload)
	if err != nil {
		t.Fatal(err)
	}
	second, err := n.Normalize(PlatformCometChat, payload)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("fallback ids differ: %q vs %q", first.ID, second.ID)
	}
	other, err := n.Normalize(PlatformCometChat, []byte(`{"text":"other","sender":"erin","receiver":"grp1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Error("different payloads should get different fallback ids")
	}
	if !first.Timestamp.Equal(fixedNow) {
		t.Errorf("missing sentAt should fall back to now, got %s", first.Timestamp.Time)
	}
}

func TestNormalize_DiscordFallbackID(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	first, err := n.Normalize(PlatformDiscord, []byte(`{"channel_id":"555","content":"one","author":{"id":"2","username":"alice"}}`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := n.Normalize(PlatformDiscord, []byte(`{"channel_id":"555","content":"two","author":{"id":"2","username":"alice"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "discord_" || first.NativeID() == "" {
		t.Fatalf("id-less message got an empty native id: %q", first.ID)
	}
	if first.ID == second.ID {
		t.Errorf("distinct id-less messages share id %q", first.ID)
	}
	again, err := n.Normalize(PlatformDiscord, []byte(`{"channel_id":"555","content":"one","author":{"id":"2","username":"alice"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("fallback id is not stable: %q vs %q", first.ID, again.ID)
	}
}

func TestNormalize_Errors(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer()
	if _, err := n.Normalize(Platform("irc"), []byte(`{}`)); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("unknown platform: err = %v", err)
	}
	for _, p := range Platforms {
		if _, err := n.Normalize(p, []byte(`{broken`)); err == nil {
			t.Errorf("%s: invalid JSON should fail", p)
		}
	}
	if _, err := n.Normalize(PlatformTelegram, []byte(`{"message_id":1,"text":"x"}`)); !errors.Is(err, ErrMissingChannel) {
		t.Errorf("telegram without chat: err = %v, want ErrMissingChannel", err)
	}
}
