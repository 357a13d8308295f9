// Copyright 2024-2026 Aiku AI

package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	"github.com/tidwall/gjson"

	"github.com/aiku/chatrelay/pkg/relay/entityfmt"
)

// decodeTelegramPayload accepts either a full Bot API update or a bare
// message object.
func decodeTelegramPayload(payload []byte) (*telego.Message, error) {
	if gjson.GetBytes(payload, "message_id").Exists() {
		var msg telego.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode telegram message: %w", err)
		}
		return &msg, nil
	}

	var update telego.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, fmt.Errorf("failed to decode telegram update: %w", err)
	}
	msg := TelegramUpdateMessage(&update)
	if msg == nil {
		return nil, ErrNotRoutable
	}
	return msg, nil
}

// TelegramUpdateMessage unwraps the message carried by an update. Only
// message-bearing update kinds are relayed; others return nil.
func TelegramUpdateMessage(update *telego.Update) *telego.Message {
	if update == nil {
		return nil
	}
	for _, msg := range []*telego.Message{
		update.Message,
		update.EditedMessage,
		update.ChannelPost,
		update.EditedChannelPost,
	} {
		if msg != nil {
			return msg
		}
	}
	return nil
}

// NormalizeTelegram converts a Telegram Bot API message into a canonical message.
func (n *Normalizer) NormalizeTelegram(msg *telego.Message) (*Message, error) {
	if msg == nil || msg.Chat.ID == 0 {
		return nil, ErrMissingChannel
	}

	content := Content{
		Text:        telegramText(msg),
		Attachments: telegramAttachments(msg),
	}
	if content.Empty() {
		return nil, ErrNotRoutable
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	var author Author
	switch {
	case msg.From != nil:
		author = Author{
			ID: strconv.FormatInt(msg.From.ID, 10),
			Name: resolveName(
				strings.TrimSpace(msg.From.FirstName+" "+msg.From.LastName),
				msg.From.Username,
				senderChatTitle(msg.SenderChat),
			),
			IsBot: msg.From.IsBot,
		}
	default:
		// Channel posts and anonymous admins carry no user, so there is no
		// bot flag to trust.
		author = Author{
			Name:  resolveName(senderChatTitle(msg.SenderChat)),
			IsBot: true,
		}
		if msg.SenderChat != nil {
			author.ID = strconv.FormatInt(msg.SenderChat.ID, 10)
		}
		n.log.Debug().
			Int("message_id", msg.MessageID).
			Str("chat_id", chatID).
			Msg("Telegram message has no sender user, treating as bot")
	}

	nativeID := TelegramNativeID(msg.Chat.ID, msg.MessageID)
	if msg.MessageID == 0 {
		nativeID = fallbackNativeID([]byte(chatID + "\x00" + strconv.FormatInt(msg.Date, 10) + "\x00" + content.Text))
	}

	return &Message{
		ID:      MakeMessageID(PlatformTelegram, nativeID),
		Source:  PlatformTelegram,
		Author:  author,
		Content: content,
		Channel: Channel{
			ID:   chatID,
			Name: firstNonEmpty(msg.Chat.Title, msg.Chat.Username, strings.TrimSpace(msg.Chat.FirstName+" "+msg.Chat.LastName)),
			Type: msg.Chat.Type,
		},
		Timestamp: n.timestampFromUnix(msg.Date),
	}, nil
}

// TelegramNativeID builds the native id of a Telegram message. Telegram
// message ids are only unique within a chat, so the chat id is included.
func TelegramNativeID(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func senderChatTitle(chat *telego.Chat) string {
	if chat == nil {
		return ""
	}
	return firstNonEmpty(chat.Title, chat.Username)
}

// telegramText prefers the message text and falls back to the media
// caption. Formatting entities are carried over as markdown.
func telegramText(msg *telego.Message) string {
	if strings.TrimSpace(msg.Text) != "" {
		return strings.TrimSpace(entityfmt.Markdown(msg.Text, telegramEntities(msg.Entities)))
	}
	if strings.TrimSpace(msg.Caption) != "" {
		return strings.TrimSpace(entityfmt.Markdown(msg.Caption, telegramEntities(msg.CaptionEntities)))
	}
	return ""
}

func telegramEntities(in []telego.MessageEntity) []entityfmt.Entity {
	out := make([]entityfmt.Entity, 0, len(in))
	for _, e := range in {
		out = append(out, entityfmt.Entity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		})
	}
	return out
}

// telegramAttachments collects file references. Telegram only exposes file
// ids in updates; download URLs need a getFile call with the bot token, so
// URL stays empty here.
func telegramAttachments(msg *telego.Message) []Attachment {
	var out []Attachment
	if len(msg.Photo) > 0 {
		// Sizes are ordered smallest first.
		photo := msg.Photo[len(msg.Photo)-1]
		out = append(out, Attachment{
			ID:          photo.FileID,
			Name:        "photo.jpg",
			Size:        int64(photo.FileSize),
			ContentType: "image/jpeg",
		})
	}
	if doc := msg.Document; doc != nil {
		out = append(out, Attachment{
			ID:          doc.FileID,
			Name:        firstNonEmpty(doc.FileName, "document"),
			Size:        int64(doc.FileSize),
			ContentType: doc.MimeType,
		})
	}
	if video := msg.Video; video != nil {
		out = append(out, Attachment{
			ID:          video.FileID,
			Name:        firstNonEmpty(video.FileName, "video.mp4"),
			Size:        int64(video.FileSize),
			ContentType: firstNonEmpty(video.MimeType, "video/mp4"),
		})
	}
	if voice := msg.Voice; voice != nil {
		out = append(out, Attachment{
			ID:          voice.FileID,
			Name:        "voice.ogg",
			Size:        int64(voice.FileSize),
			ContentType: firstNonEmpty(voice.MimeType, "audio/ogg"),
		})
	}
	return out
}
