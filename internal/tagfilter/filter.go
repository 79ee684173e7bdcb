// Package tagfilter implements the include/exclude tag matching and
// composition rules used by subscriptions and chat-level exclusions.
package tagfilter

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// nonWord matches every rune that is not a Unicode letter, digit, or
// underscore. Normalization strips these before lowercasing, so "R-18",
// "R_18" and "r18" all compare equal.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]`)

// Normalize produces the comparison form of a tag: non-word characters
// stripped, then lowercased. Idempotent (R2): Normalize(Normalize(t)) == Normalize(t).
func Normalize(tag string) string {
	return strings.ToLower(nonWord.ReplaceAllString(tag, ""))
}

// Hashtag strips the same non-word characters Normalize does, but without
// lowercasing, so the result still reads naturally as a Telegram hashtag
// ("Genshin Impact" -> "GenshinImpact").
func Hashtag(tag string) string {
	return nonWord.ReplaceAllString(tag, "")
}

// TagFilter is a pair of raw tag strings, matched after normalization.
// Tags are stored verbatim for display; normalization happens only at
// comparison time.
type TagFilter struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// IsEmpty reports whether the filter has no restrictions at all (B5: an
// empty filter matches every illust).
func (f TagFilter) IsEmpty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// ParseArgs parses command-style tokens: "+tag" → include, "-tag" →
// exclude, bare "tag" → include. Empty tokens (after stripping the prefix)
// are ignored.
func ParseArgs(args []string) TagFilter {
	var f TagFilter
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "+"):
			if rest := arg[1:]; rest != "" {
				f.Include = append(f.Include, rest)
			}
		case strings.HasPrefix(arg, "-"):
			if rest := arg[1:]; rest != "" {
				f.Exclude = append(f.Exclude, rest)
			}
		case arg != "":
			f.Include = append(f.Include, arg)
		}
	}
	return f
}

// FromExcludedTags builds an exclude-only filter from a chat's
// excluded_tags list, used as the synthetic half of the composed filter.
func FromExcludedTags(excluded []string) TagFilter {
	if len(excluded) == 0 {
		return TagFilter{}
	}
	return TagFilter{Exclude: append([]string(nil), excluded...)}
}

// Matches reports whether a set of raw illust tags satisfies this filter:
// none of the normalized tags appear in Exclude, and (if Include is
// non-empty) at least one appears in Include.
func (f TagFilter) Matches(illustTags []string) bool {
	if f.IsEmpty() {
		return true
	}

	normalized := make([]string, len(illustTags))
	for i, t := range illustTags {
		normalized[i] = Normalize(t)
	}

	for _, exclude := range f.Exclude {
		ne := Normalize(exclude)
		for _, t := range normalized {
			if t == ne {
				return false
			}
		}
	}

	if len(f.Include) == 0 {
		return true
	}
	for _, include := range f.Include {
		ni := Normalize(include)
		for _, t := range normalized {
			if t == ni {
				return true
			}
		}
	}
	return false
}

// Merge appends other's lists onto f's (in place).
func (f *TagFilter) Merge(other TagFilter) {
	f.Include = append(f.Include, other.Include...)
	f.Exclude = append(f.Exclude, other.Exclude...)
}

// Merged returns a new filter combining f and other without mutating
// either.
func (f TagFilter) Merged(other TagFilter) TagFilter {
	merged := TagFilter{
		Include: append([]string(nil), f.Include...),
		Exclude: append([]string(nil), f.Exclude...),
	}
	merged.Merge(other)
	return merged
}

// FormatForDisplay renders a lossless, escaped form suitable for echoing
// back to users: "+tag1 +tag2 -tag3", each token escaped for the chat
// platform's MarkdownV2-like markup.
func (f TagFilter) FormatForDisplay(escape func(string) string) string {
	var parts []string
	if len(f.Include) > 0 {
		toks := make([]string, len(f.Include))
		for i, t := range f.Include {
			toks[i] = escape("+" + t)
		}
		parts = append(parts, strings.Join(toks, " "))
	}
	if len(f.Exclude) > 0 {
		toks := make([]string, len(f.Exclude))
		for i, t := range f.Exclude {
			toks[i] = escape("-" + t)
		}
		parts = append(parts, strings.Join(toks, " "))
	}
	return strings.Join(parts, " ")
}

// Value implements driver.Valuer so TagFilter can be stored as a JSON
// column via sqlx.
func (f TagFilter) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements sql.Scanner for the JSON column.
func (f *TagFilter) Scan(src interface{}) error {
	if src == nil {
		*f = TagFilter{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("tagfilter: cannot scan %T into TagFilter", src)
	}
	if len(raw) == 0 {
		*f = TagFilter{}
		return nil
	}
	return json.Unmarshal(raw, f)
}
