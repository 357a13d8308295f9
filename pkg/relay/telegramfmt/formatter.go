// Copyright 2024-2026 Aiku AI

// Package telegramfmt converts chat markdown to Telegram Bot API HTML.
package telegramfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ParseModeHTML is the Bot API parse_mode for the output of Parse.
const ParseModeHTML = "HTML"

var (
	codeRe       = regexp.MustCompile("`([^`\n]+)`")
	codeBlockRe  = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	linkRe       = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
	headingRe    = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	blockquoteRe = regexp.MustCompile(`^&gt;\s?(.*)$`)
	listItemRe   = regexp.MustCompile(`^[-*]\s+(.+)$`)
)

// inlineTags maps inline markdown delimiters to Telegram tags. Two-rune
// delimiters are matched before single ones.
var inlineTags = map[string]string{
	"**": "b",
	"__": "u",
	"~~": "s",
	"||": "tg-spoiler",
	"*":  "i",
	"_":  "i",
}

// codeSpan holds extracted code data.
type codeSpan struct {
	lang    string
	content string
	block   bool
}

// Escape escapes text for Telegram HTML.
func Escape(text string) string {
	return html.EscapeString(text)
}

// Parse converts markdown text to Telegram HTML. The result is always safe
// to send with ParseModeHTML, formatted or not: tags nest properly, and
// delimiters that would cross an open span stay literal.
func Parse(text string) string {
	if text == "" {
		return ""
	}

	// Step 1: Pull code out so nothing inside it is formatted.
	var spans []codeSpan
	placeholder := func(s codeSpan) string {
		idx := len(spans)
		spans = append(spans, s)
		return "\x00CODE" + strconv.Itoa(idx) + "\x00"
	}
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		return placeholder(codeSpan{lang: parts[1], content: strings.TrimSuffix(parts[2], "\n"), block: true})
	})
	processed = codeRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := codeRe.FindStringSubmatch(match)
		return placeholder(codeSpan{content: parts[1]})
	})

	// Step 2: Escape, then pull links out, only with safe URL schemes.
	processed = html.EscapeString(processed)
	var links []string
	processed = linkRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		label, href := formatInline(parts[1]), parts[2]
		if !safeLink(href) {
			return label
		}
		idx := len(links)
		links = append(links, `<a href="`+href+`">`+label+`</a>`)
		return "\x00LINK" + strconv.Itoa(idx) + "\x00"
	})

	// Step 3: Line structure, with inline formatting inside each line.
	var result []string
	var quote []string

	flushQuote := func() {
		if len(quote) == 0 {
			return
		}
		result = append(result, "<blockquote>"+strings.Join(quote, "\n")+"</blockquote>")
		quote = nil
	}

	for _, line := range strings.Split(processed, "\n") {
		if m := blockquoteRe.FindStringSubmatch(line); m != nil {
			quote = append(quote, formatInline(m[1]))
			continue
		}
		flushQuote()

		if m := headingRe.FindStringSubmatch(line); m != nil {
			result = append(result, "<b>"+formatInline(m[1])+"</b>")
			continue
		}
		if m := listItemRe.FindStringSubmatch(line); m != nil {
			result = append(result, "• "+formatInline(m[1]))
			continue
		}
		result = append(result, formatInline(line))
	}
	flushQuote()

	formatted := strings.Join(result, "\n")

	// Step 4: Restore links, then code.
	for i, link := range links {
		formatted = strings.Replace(formatted, "\x00LINK"+strconv.Itoa(i)+"\x00", link, 1)
	}
	for i, cs := range spans {
		ph := "\x00CODE" + strconv.Itoa(i) + "\x00"
		escaped := html.EscapeString(cs.content)
		var replacement string
		switch {
		case !cs.block:
			replacement = "<code>" + escaped + "</code>"
		case cs.lang != "":
			replacement = `<pre><code class="language-` + html.EscapeString(cs.lang) + `">` + escaped + `</code></pre>`
		default:
			replacement = "<pre>" + escaped + "</pre>"
		}
		formatted = strings.Replace(formatted, ph, replacement, 1)
	}

	return formatted
}

func safeLink(href string) bool {
	lower := strings.ToLower(href)
	for _, scheme := range []string{"http://", "https://", "mailto:", "tg://"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// opener is an inline delimiter waiting for its closing pair. piece is its
// index in the output, which holds the literal delimiter until it is
// matched.
type opener struct {
	delim string
	piece int
}

// formatInline converts inline delimiters of one line. A closing delimiter
// only matches an open span of the same kind; spans opened after that one
// and still unclosed are left literal, so tags never cross.
func formatInline(line string) string {
	runes := []rune(line)
	var pieces []string
	var stack []opener
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			pieces = append(pieces, text.String())
			text.Reset()
		}
	}

	for i := 0; i < len(runes); {
		delim := delimiterAt(runes, i)
		if delim == "" {
			text.WriteRune(runes[i])
			i++
			continue
		}
		n := len(delim)
		prev, next := runeAt(runes, i-1), runeAt(runes, i+n)
		i += n

		if idx := findOpener(stack, delim); idx >= 0 && canClose(delim, prev, next) {
			flush()
			tag := inlineTags[delim]
			pieces[stack[idx].piece] = "<" + tag + ">"
			pieces = append(pieces, "</"+tag+">")
			stack = stack[:idx]
			continue
		}
		if canOpen(delim, prev, next) {
			flush()
			stack = append(stack, opener{delim: delim, piece: len(pieces)})
			pieces = append(pieces, delim)
			continue
		}
		text.WriteString(delim)
	}
	flush()
	return strings.Join(pieces, "")
}

func delimiterAt(runes []rune, i int) string {
	if i+1 < len(runes) && runes[i] == runes[i+1] {
		if d := string(runes[i : i+2]); inlineTags[d] != "" {
			return d
		}
	}
	if d := string(runes[i]); inlineTags[d] != "" {
		return d
	}
	return ""
}

func findOpener(stack []opener, delim string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].delim == delim {
			return i
		}
	}
	return -1
}

// runeAt returns 0 outside the line.
func runeAt(runes []rune, i int) rune {
	if i < 0 || i >= len(runes) {
		return 0
	}
	return runes[i]
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isSpace(r rune) bool {
	return r == 0 || unicode.IsSpace(r)
}

// canOpen requires text right after the delimiter. Single-rune italics must
// also start a word, so snake_case and 2*3*4 stay untouched.
func canOpen(delim string, prev, next rune) bool {
	if isSpace(next) {
		return false
	}
	return len(delim) == 2 || !isWord(prev)
}

func canClose(delim string, prev, next rune) bool {
	if isSpace(prev) {
		return false
	}
	return len(delim) == 2 || !isWord(next)
}
