package scheduler

import (
	"strings"

	"github.com/icceey/pixivbot-sub000/internal/tagfilter"
)

// markdownV2Special is the set of characters Telegram's MarkdownV2 parse
// mode requires literal (non-markup) occurrences of to be backslash-escaped.
const markdownV2Special = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 escapes s for safe inclusion in a MarkdownV2 message,
// with no characters left to interpret as markup.
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatTagsEscaped renders an illust's tags as a trailing hashtag line:
// "\n\n#tag1  #tag2", each tag stripped to hashtag-safe characters and
// MarkdownV2-escaped. Returns "" for no tags.
func FormatTagsEscaped(tagNames []string) string {
	if len(tagNames) == 0 {
		return ""
	}
	escaped := make([]string, 0, len(tagNames))
	for _, name := range tagNames {
		stripped := tagfilter.Hashtag(name)
		if stripped == "" {
			continue
		}
		escaped = append(escaped, EscapeMarkdownV2("#"+stripped))
	}
	if len(escaped) == 0 {
		return ""
	}
	return "\n\n" + strings.Join(escaped, "  ")
}
