package handlers

import (
	"sort"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memegen-bot/internal/args"
)

// commandNodes splits the command body into parser nodes, turning
// text_mention entities into user references and leaving everything
// else as plain text. Entity offsets are UTF-16 code units, so the
// body is sliced in that encoding.
func commandNodes(body string, bodyOffset int, entities []tgbotapi.MessageEntity) []args.Node {
	if body == "" {
		return nil
	}

	units := utf16.Encode([]rune(body))

	mentions := make([]tgbotapi.MessageEntity, 0, len(entities))
	for _, e := range entities {
		if e.Type != "text_mention" || e.User == nil {
			continue
		}
		start := e.Offset - bodyOffset
		if start < 0 || start+e.Length > len(units) {
			continue
		}
		e.Offset = start
		mentions = append(mentions, e)
	}
	sort.Slice(mentions, func(i, j int) bool {
		return mentions[i].Offset < mentions[j].Offset
	})

	var nodes []args.Node
	pos := 0
	for _, m := range mentions {
		if text := string(utf16.Decode(units[pos:m.Offset])); strings.TrimSpace(text) != "" {
			nodes = append(nodes, args.Text(text))
		}
		nodes = append(nodes, args.Mention{UserID: m.User.ID})
		pos = m.Offset + m.Length
	}
	if text := string(utf16.Decode(units[pos:])); strings.TrimSpace(text) != "" {
		nodes = append(nodes, args.Text(text))
	}

	return nodes
}

// splitCommand separates "/cmd@bot rest of line" into the bare command
// name and its argument string. Works for text and caption commands
// alike.
func splitCommand(text string) (command, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, tail, _ := strings.Cut(text[1:], " ")
	if head == "" {
		return "", "", false
	}
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}

	return head, strings.TrimSpace(tail), true
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// bestPhoto picks the largest size of a Telegram photo.
func bestPhoto(sizes []tgbotapi.PhotoSize) (string, bool) {
	if len(sizes) == 0 {
		return "", false
	}
	return sizes[len(sizes)-1].FileID, true
}
