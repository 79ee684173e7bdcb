// Package sensitive implements the spoiler/blur policy applied to illusts
// whose tags match a chat's configured sensitive_tags list.
package sensitive

import "github.com/icceey/pixivbot-sub000/internal/tagfilter"

// ContainsSensitiveTags reports whether any of illustTags matches any of
// sensitiveTags after normalization (case- and punctuation-insensitive).
func ContainsSensitiveTags(illustTags, sensitiveTags []string) bool {
	if len(sensitiveTags) == 0 || len(illustTags) == 0 {
		return false
	}

	normalizedIllust := make([]string, len(illustTags))
	for i, t := range illustTags {
		normalizedIllust[i] = tagfilter.Normalize(t)
	}

	for _, sensitive := range sensitiveTags {
		ns := tagfilter.Normalize(sensitive)
		for _, t := range normalizedIllust {
			if t == ns {
				return true
			}
		}
	}
	return false
}

// ShouldBlur decides whether a push should send images as spoilered
// media, given the chat's blur setting and whether the illust carries any
// of the chat's sensitive tags.
func ShouldBlur(blurEnabled bool, illustTags, sensitiveTags []string) bool {
	return blurEnabled && ContainsSensitiveTags(illustTags, sensitiveTags)
}
