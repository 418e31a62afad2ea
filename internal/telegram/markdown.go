package telegram

import "strings"

// maxMessageLen is the Telegram hard limit on message text length.
const maxMessageLen = 4096

// markdownV2Replacer escapes every character the MarkdownV2 parse mode
// treats as special. Used by the second stage of the send degradation chain
// when plain Markdown parsing fails.
var markdownV2Replacer = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdownV2 escapes all MarkdownV2 special characters in text.
func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

// SplitMessage splits text into chunks of at most limit runes, preferring to
// break at a newline, then at a space, falling back to a hard cut. Telegram
// rejects messages longer than 4096 characters outright.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageLen
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])
		if i := strings.LastIndex(window, "\n"); i > 0 {
			cut = len([]rune(window[:i]))
		} else if i := strings.LastIndex(window, " "); i > 0 {
			cut = len([]rune(window[:i]))
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == ' ' || runes[0] == '\n') {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
