// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package entityfmt converts Telegram message entities to chat markdown.
package entityfmt

import (
	"sort"
	"unicode/utf16"
)

// Entity is a formatting span of a Telegram message. Offset and Length are
// measured in UTF-16 code units, as the Bot API sends them.
type Entity struct {
	Type     string
	Offset   int
	Length   int
	URL      string
	Language string
}

// markers returns the markdown placed around an entity, or ok=false for
// entity types that carry no formatting (mentions, hashtags, plain urls).
func markers(e Entity) (open, close string, ok bool) {
	switch e.Type {
	case "bold":
		return "**", "**", true
	case "italic":
		return "_", "_", true
	case "underline":
		return "__", "__", true
	case "strikethrough":
		return "~~", "~~", true
	case "spoiler":
		return "||", "||", true
	case "code":
		return "`", "`", true
	case "pre":
		return "```" + e.Language + "\n", "\n```", true
	case "blockquote", "expandable_blockquote":
		return "> ", "", true
	case "text_link":
		if e.URL == "" {
			return "", "", false
		}
		return "[", "](" + e.URL + ")", true
	default:
		return "", "", false
	}
}

type span struct {
	start, end  int
	open, close string
	literal     bool
}

// Markdown renders text with its entities as markdown. Entities that are
// out of range are ignored. Spans inside code are left unformatted.
func Markdown(text string, entities []Entity) string {
	if len(entities) == 0 {
		return text
	}

	units := utf16.Encode([]rune(text))
	var spans []span
	for _, e := range entities {
		open, close, ok := markers(e)
		if !ok || e.Length <= 0 || e.Offset < 0 || e.Offset > len(units) || e.Length > len(units)-e.Offset {
			continue
		}
		spans = append(spans, span{
			start:   e.Offset,
			end:     e.Offset + e.Length,
			open:    open,
			close:   close,
			literal: e.Type == "code" || e.Type == "pre",
		})
	}
	if len(spans) == 0 {
		return text
	}

	// Outer spans first: earlier start, then longer.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	out := make([]uint16, 0, len(units)+len(spans)*4)
	emit := func(s string) {
		out = append(out, utf16.Encode([]rune(s))...)
	}

	var stack []span
	next := 0
	literalDepth := 0
	for i := 0; i <= len(units); i++ {
		// Close spans ending here, innermost first.
		for len(stack) > 0 && stack[len(stack)-1].end <= i {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			emit(top.close)
			if top.literal {
				literalDepth--
			}
		}
		for next < len(spans) && spans[next].start == i {
			s := spans[next]
			next++
			if literalDepth > 0 {
				continue
			}
			// Overlapping spans that are not nested inside the current top
			// would produce broken markdown; drop them.
			if len(stack) > 0 && s.end > stack[len(stack)-1].end {
				continue
			}
			emit(s.open)
			if s.literal {
				literalDepth++
			}
			stack = append(stack, s)
		}
		if i < len(units) {
			out = append(out, units[i])
		}
	}
	return string(utf16.Decode(out))
}
