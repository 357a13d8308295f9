// Copyright 2024-2026 Aiku AI

package relay

import (
	"strings"

	"github.com/tidwall/gjson"
)

// CometChatUserPrefix marks destination ids that address a user rather than
// a group.
const CometChatUserPrefix = "user:"

// cometChatSystemCategories are message categories generated by CometChat
// itself (member joins, calls) rather than by a person.
var cometChatSystemCategories = map[string]bool{
	"action": true,
	"call":   true,
}

// cometChatMessage returns the message object of a CometChat payload. Webhook
// deliveries wrap it as {"trigger": ..., "data": {...}}, SDK listeners hand
// over the message itself.
func cometChatMessage(root gjson.Result) gjson.Result {
	data := root.Get("data")
	if !data.IsObject() {
		return root
	}
	if root.Get("trigger").Exists() {
		return data
	}
	if !root.Get("receiver").Exists() && data.Get("receiver").Exists() {
		return data
	}
	return root
}

// firstPath returns the first candidate path holding a non-empty string.
func firstPath(obj gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := obj.Get(p)
		if v.Type == gjson.String || v.Type == gjson.Number {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// NormalizeCometChat converts a CometChat webhook or SDK message into a
// canonical message.
func (n *Normalizer) NormalizeCometChat(root gjson.Result) (*Message, error) {
	msg := cometChatMessage(root)

	channel := cometChatChannel(msg)
	if channel.ID == "" {
		return nil, ErrMissingChannel
	}

	category := strings.ToLower(msg.Get("category").String())
	if cometChatSystemCategories[category] {
		return nil, ErrNotRoutable
	}

	content := Content{
		Text:        cometChatText(msg),
		Attachments: cometChatAttachments(msg),
	}
	if content.Empty() {
		return nil, ErrNotRoutable
	}

	author := cometChatAuthor(msg)
	if author.ID == "" {
		n.log.Debug().
			Str("channel_id", channel.ID).
			Msg("CometChat message has no sender id, treating as bot")
	}

	nativeID := firstPath(msg, "id")
	if nativeID == "" {
		nativeID = fallbackNativeID([]byte(msg.Raw))
	}

	return &Message{
		ID:        MakeMessageID(PlatformCometChat, nativeID),
		Source:    PlatformCometChat,
		Author:    author,
		Content:   content,
		Channel:   channel,
		Timestamp: n.timestampFromUnix(msg.Get("sentAt").Int()),
	}, nil
}

// cometChatText tries the direct text field, then the nested data wrapper,
// then a raw string data field.
func cometChatText(msg gjson.Result) string {
	if text := firstPath(msg, "text", "data.text"); text != "" {
		return text
	}
	if data := msg.Get("data"); data.Type == gjson.String {
		return strings.TrimSpace(data.String())
	}
	return ""
}

func cometChatAuthor(msg gjson.Result) Author {
	id := ""
	if sender := msg.Get("sender"); sender.Type == gjson.String {
		id = strings.TrimSpace(sender.String())
	}
	if id == "" {
		id = firstPath(msg, "sender.uid", "data.entities.sender.entity.uid")
	}

	name := resolveName(
		firstPath(msg, "senderName"),
		firstPath(msg, "sender.name"),
		firstPath(msg, "data.entities.sender.entity.name"),
	)

	role := strings.ToLower(firstPath(msg, "sender.role", "data.entities.sender.entity.role"))
	// Messages posted by the relay carry metadata.relay=true.
	relayed := msg.Get("metadata.relay").Bool() || msg.Get("data.metadata.relay").Bool()
	return Author{
		ID:    id,
		Name:  name,
		IsBot: id == "" || role == "bot" || relayed,
	}
}

func cometChatChannel(msg gjson.Result) Channel {
	receiverType := strings.ToLower(firstPath(msg, "receiverType", "data.entities.receiver.entityType"))

	var id string
	if receiver := msg.Get("receiver"); receiver.Type == gjson.String {
		id = strings.TrimSpace(receiver.String())
	}
	if id == "" {
		id = firstPath(msg, "receiver.guid", "receiver.uid", "data.entities.receiver.entity.guid", "data.entities.receiver.entity.uid")
	}
	if id == "" {
		return Channel{}
	}
	if receiverType == "" {
		receiverType = "group"
	}
	if receiverType == "user" {
		id = CometChatUserPrefix + id
	}

	return Channel{
		ID:   id,
		Name: firstPath(msg, "receiver.name", "data.entities.receiver.entity.name"),
		Type: receiverType,
	}
}

// cometChatAttachments reads data.attachments and falls back to the single
// data.url of older media messages.
func cometChatAttachments(msg gjson.Result) []Attachment {
	var out []Attachment
	msg.Get("data.attachments").ForEach(func(_, a gjson.Result) bool {
		url := firstPath(a, "url")
		if url == "" {
			return true
		}
		out = append(out, Attachment{
			ID:          firstPath(a, "id"),
			Name:        firstPath(a, "name"),
			URL:         url,
			Size:        a.Get("size").Int(),
			ContentType: firstPath(a, "mimeType", "extension"),
		})
		return true
	})
	if len(out) == 0 {
		if url := firstPath(msg, "data.url"); url != "" {
			out = append(out, Attachment{
				Name:        firstPath(msg, "type"),
				URL:         url,
				ContentType: firstPath(msg, "type"),
			})
		}
	}
	return out
}
