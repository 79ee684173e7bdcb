// Package scheduler runs the poll-and-push engines: one tick fetches from
// an upstream (Pixiv author illusts, Pixiv ranking, E-Hentai galleries),
// the other dispatches the result to every subscription watching that
// task, applying filters, spoiler rules, and retry bookkeeping along the
// way.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
	"github.com/icceey/pixivbot-sub000/internal/repository"
	"github.com/icceey/pixivbot-sub000/internal/sensitive"
)

// maxPerGroup mirrors notifier's Telegram media-group chunk size; the
// continuation caption's batch-number display depends on the caller
// chunking sends the same way.
const maxPerGroup = 10

// PushResult reports the outcome of pushing one illust's remaining pages.
// Exactly one of the three states applies, discriminated by Partial/Failed.
type PushResult struct {
	IllustID       uint64
	Failed         bool
	Partial        bool
	SentPages      []int // only meaningful when Partial
	TotalPages     int   // only meaningful when Partial
	FirstMessageID *int64
}

// Success reports a clean, complete send.
func (r PushResult) Success() bool { return !r.Failed && !r.Partial }

// AuthorContext carries the per-subscription state an author-task push
// needs beyond the illust itself.
type AuthorContext struct {
	Subscription model.Subscription
	Chat         model.Chat
	State        *model.AuthorState
}

// RankingContext is the ranking-task analogue of AuthorContext.
type RankingContext struct {
	Subscription model.Subscription
	Chat         model.Chat
	State        *model.RankingState
}

// GetChatIfShouldNotify fetches chatID and reports whether it should
// currently receive pushes: the chat must exist, and must be either
// enabled or have its (chat-id-as-user-id, for a private chat) requester
// recognized as an admin or owner. Returns (nil, nil) to mean "skip,
// don't notify" without that being an error.
func GetChatIfShouldNotify(ctx context.Context, repo repository.Repository, chatID int64) (*model.Chat, error) {
	chat, err := repo.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("scheduler: get chat %d: %w", chatID, err)
	}
	if chat == nil {
		return nil, nil
	}
	if chat.Enabled {
		return chat, nil
	}
	user, err := repo.GetUser(ctx, chatID)
	if err != nil || user == nil || !user.Role.IsAdmin() {
		return nil, nil
	}
	return chat, nil
}

// ProcessIllustPush sends the pages of illust not already covered by
// alreadySentPages, building a first-send or continuation caption as
// appropriate, and reports the resulting push state.
func ProcessIllustPush(ctx context.Context, n *notifier.Notifier, chat model.Chat, illust pixiv.Illust, alreadySentPages []int, size pixiv.ImageSize) (PushResult, error) {
	allURLs := illust.AllImageURLs(size)
	totalPages := len(allURLs)

	sentSet := make(map[int]bool, len(alreadySentPages))
	for _, p := range alreadySentPages {
		sentSet[p] = true
	}

	var pagesToSend []int
	for i := 0; i < totalPages; i++ {
		if !sentSet[i] {
			pagesToSend = append(pagesToSend, i)
		}
	}
	if len(pagesToSend) == 0 {
		return PushResult{IllustID: illust.ID}, nil
	}

	images := make([]notifier.Image, 0, len(pagesToSend))
	spoiler := chat.BlurSensitiveTags && sensitive.ContainsSensitiveTags(pixiv.TagNames(illust.Tags), chat.SensitiveTags)
	for _, idx := range pagesToSend {
		images = append(images, notifier.Image{URL: allURLs[idx], Spoiler: spoiler})
	}

	caption := buildIllustCaption(illust, alreadySentPages, totalPages)

	sendResult, err := n.SendImages(ctx, chat.ID, images, caption)
	if err != nil {
		return PushResult{}, fmt.Errorf("scheduler: send illust %d: %w", illust.ID, err)
	}

	return mapSendResultToPushResult(illust.ID, sendResult, alreadySentPages, pagesToSend, totalPages), nil
}

func buildIllustCaption(illust pixiv.Illust, alreadySentPages []int, totalPages int) string {
	tags := FormatTagsEscaped(pixiv.TagNames(illust.Tags))

	if len(alreadySentPages) == 0 {
		pageInfo := ""
		if illust.IsMultiPage() {
			pageInfo = fmt.Sprintf(" \\(%d photos\\)", illust.PageCount)
		}
		return fmt.Sprintf(
			"🎨 %s%s\nby *%s* \\(ID: `%d`\\)\n\n👀 %d \\| ❤️ %d \\| 🔗 [来源](https://pixiv\\.net/artworks/%d)%s",
			EscapeMarkdownV2(illust.Title), pageInfo, EscapeMarkdownV2(illust.User.Name), illust.User.ID,
			illust.TotalView, illust.TotalBookmarks, illust.ID, tags,
		)
	}

	totalBatches := (totalPages + maxPerGroup - 1) / maxPerGroup
	currentBatch := len(alreadySentPages)/maxPerGroup + 1
	return fmt.Sprintf(
		"🎨 %s \\(continued %d/%d\\)\nby *%s*\n\n🔗 [来源](https://pixiv\\.net/artworks/%d)%s",
		EscapeMarkdownV2(illust.Title), currentBatch, totalBatches, EscapeMarkdownV2(illust.User.Name), illust.ID, tags,
	)
}

func mapSendResultToPushResult(illustID uint64, sendResult notifier.BatchSendResult, alreadySent, attemptedPages []int, totalPages int) PushResult {
	if sendResult.IsCompleteSuccess() {
		allSent := mergeSortedDedup(alreadySent, attemptedPages)
		if len(allSent) == totalPages {
			return PushResult{IllustID: illustID, FirstMessageID: sendResult.FirstMessageID}
		}
		return PushResult{IllustID: illustID, Partial: true, SentPages: allSent, TotalPages: totalPages, FirstMessageID: sendResult.FirstMessageID}
	}
	if sendResult.IsCompleteFailure() {
		return PushResult{IllustID: illustID, Failed: true}
	}

	newlySent := make([]int, 0, len(sendResult.SucceededIndices))
	for _, idx := range sendResult.SucceededIndices {
		if idx >= 0 && idx < len(attemptedPages) {
			newlySent = append(newlySent, attemptedPages[idx])
		}
	}
	allSent := mergeSortedDedup(alreadySent, newlySent)
	return PushResult{IllustID: illustID, Partial: true, SentPages: allSent, TotalPages: totalPages, FirstMessageID: sendResult.FirstMessageID}
}

func mergeSortedDedup(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	merged := make([]int, 0, len(a)+len(b))
	for _, s := range [][]int{a, b} {
		for _, v := range s {
			if !seen[v] {
				seen[v] = true
				merged = append(merged, v)
			}
		}
	}
	sort.Ints(merged)
	return merged
}
