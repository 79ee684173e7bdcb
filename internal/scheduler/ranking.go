package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/metrics"
	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
	"github.com/icceey/pixivbot-sub000/internal/repository"
	"github.com/icceey/pixivbot-sub000/internal/sensitive"
	"github.com/icceey/pixivbot-sub000/internal/tagfilter"
)

// RankingEngine fires once a day at a configured wall-clock time and
// sends every ranking subscription its not-yet-seen illusts in one
// batched push, tracked by a rolling pushed_ids cursor rather than a
// highest-seen-id cursor (ranking composition reshuffles day to day, so
// there is no monotonic id to follow).
type RankingEngine struct {
	repo     repository.Repository
	pixiv    PixivClient
	notifier *notifier.Notifier
	metrics  *metrics.Registry
	log      zerolog.Logger

	schedule        dailySchedule
	executionHour   int
	executionMinute int
}

// NewRankingEngine builds a RankingEngine firing daily at hour:minute in
// the local timezone. Panics if hour/minute don't form a valid cron
// expression (i.e. are out of their normal 0-23/0-59 range) — a
// configuration error, not a runtime condition to recover from. m may be
// nil to disable metrics reporting.
func NewRankingEngine(repo repository.Repository, client PixivClient, n *notifier.Notifier, m *metrics.Registry, executionHour, executionMinute int, log zerolog.Logger) *RankingEngine {
	sched, err := newDailySchedule(executionHour, executionMinute)
	if err != nil {
		panic(err)
	}
	return &RankingEngine{
		repo:            repo,
		pixiv:           client,
		notifier:        n,
		metrics:         m,
		log:             log.With().Str("engine", "ranking").Logger(),
		schedule:        sched,
		executionHour:   executionHour,
		executionMinute: executionMinute,
	}
}

// Run blocks, firing execute once per day until ctx is canceled.
func (e *RankingEngine) Run(ctx context.Context) {
	e.log.Info().Int("hour", e.executionHour).Int("minute", e.executionMinute).Msg("ranking engine started")

	for {
		next := e.nextExecutionTime()
		wait := time.Until(next)
		e.log.Info().Time("next_execution", next).Msg("scheduled next ranking execution")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := e.executeAll(ctx); err != nil {
			e.log.Error().Err(err).Msg("ranking execution error")
		}

		// Avoid re-firing within the same minute the wait above lands on.
		select {
		case <-ctx.Done():
			return
		case <-time.After(60 * time.Second):
		}
	}
}

func (e *RankingEngine) nextExecutionTime() time.Time {
	next, dstAmbiguous := e.schedule.next(time.Now())
	if dstAmbiguous {
		e.log.Warn().Time("computed", next).Msg("daily schedule landed on a DST-ambiguous instant, retrying in an hour")
		return time.Now().Add(time.Hour)
	}
	return next
}

func (e *RankingEngine) executeAll(ctx context.Context) error {
	e.metrics.IncEngineTick("ranking")
	tasks, err := e.repo.GetAllTasksByType(ctx, model.TaskRanking)
	if err != nil {
		return fmt.Errorf("scheduler: list ranking tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}
	e.log.Info().Int("count", len(tasks)).Msg("executing ranking tasks")

	for _, task := range tasks {
		e.metrics.IncTaskExecution("ranking")
		if err := e.executeTask(ctx, task); err != nil {
			e.metrics.IncEngineError("ranking")
			e.log.Error().Err(err).Int32("task_id", task.ID).Msg("ranking task failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

func (e *RankingEngine) executeTask(ctx context.Context, task model.Task) error {
	mode := task.Value
	ranking, err := e.pixiv.IllustRanking(ctx, mode, "", 0)
	if err != nil {
		return fmt.Errorf("fetch ranking %q: %w", mode, err)
	}
	if len(ranking.Illusts) == 0 {
		return e.scheduleNextPoll(ctx, task.ID)
	}

	subs, err := e.repo.ListSubscriptionsByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("list subscriptions for task %d: %w", task.ID, err)
	}
	if len(subs) == 0 {
		return e.scheduleNextPoll(ctx, task.ID)
	}

	for _, sub := range subs {
		chat, err := GetChatIfShouldNotify(ctx, e.repo, sub.ChatID)
		if err != nil {
			e.log.Error().Err(err).Int64("chat_id", sub.ChatID).Msg("failed to resolve chat")
			continue
		}
		if chat == nil {
			continue
		}

		var state *model.RankingState
		if sub.LatestData.Ranking != nil {
			state = sub.LatestData.Ranking
		}
		rctx := RankingContext{Subscription: sub, Chat: *chat, State: state}

		if err := e.processSingleRankingSub(ctx, rctx, ranking.Illusts, mode); err != nil {
			e.log.Error().Err(err).Int32("subscription_id", sub.ID).Msg("failed to process ranking subscription")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}

	return e.scheduleNextPoll(ctx, task.ID)
}

func (e *RankingEngine) scheduleNextPoll(ctx context.Context, taskID int32) error {
	return e.repo.UpdateTaskAfterPoll(ctx, taskID, e.nextExecutionTime())
}

// processSingleRankingSub implements the ranking dispatch for one
// subscription: filter out already-pushed ids, apply the combined tag
// filter, and batch-send what remains with one shared title prefix.
func (e *RankingEngine) processSingleRankingSub(ctx context.Context, rctx RankingContext, illusts []pixiv.Illust, mode string) error {
	var pushedIDs []uint64
	if rctx.State != nil {
		pushedIDs = rctx.State.PushedIDs
	}
	pushedSet := make(map[uint64]bool, len(pushedIDs))
	for _, id := range pushedIDs {
		pushedSet[id] = true
	}

	var newIllusts []pixiv.Illust
	for _, illust := range illusts {
		if !pushedSet[illust.ID] {
			newIllusts = append(newIllusts, illust)
		}
	}
	if len(newIllusts) == 0 {
		return nil
	}

	chatFilter := tagfilter.FromExcludedTags(rctx.Chat.ExcludedTags)
	combined := rctx.Subscription.FilterTags.Merged(chatFilter)

	var filtered []pixiv.Illust
	for _, illust := range newIllusts {
		if combined.Matches(pixiv.TagNames(illust.Tags)) {
			filtered = append(filtered, illust)
		}
	}

	allNewIDs := make([]uint64, len(newIllusts))
	for i, illust := range newIllusts {
		allNewIDs[i] = illust.ID
	}

	if len(filtered) == 0 {
		return e.markRankingIllustsAsPushed(ctx, rctx.Subscription.ID, pushedIDs, allNewIDs)
	}

	title := fmt.Sprintf("📊 *%s Ranking* \\- %d new\\!\n\n",
		EscapeMarkdownV2(strings.ToUpper(strings.ReplaceAll(mode, "_", " "))), len(filtered))

	hasSpoiler := false
	if rctx.Chat.BlurSensitiveTags {
		for _, illust := range filtered {
			if sensitive.ContainsSensitiveTags(pixiv.TagNames(illust.Tags), rctx.Chat.SensitiveTags) {
				hasSpoiler = true
				break
			}
		}
	}

	images := make([]notifier.Image, len(filtered))
	captions := make([]string, len(filtered))
	illustIDs := make([]uint64, len(filtered))

	for i, illust := range filtered {
		illustIDs[i] = illust.ID
		images[i] = notifier.Image{URL: illust.FirstImageURL(), Spoiler: hasSpoiler}

		tags := FormatTagsEscaped(pixiv.TagNames(illust.Tags))
		caption := fmt.Sprintf(
			"%s\nby *%s* \\(ID: `%d`\\)\n\n❤️ %d \\| 🔗 [来源](https://pixiv\\.net/artworks/%d)%s",
			EscapeMarkdownV2(illust.Title), EscapeMarkdownV2(illust.User.Name), illust.User.ID,
			illust.TotalBookmarks, illust.ID, tags,
		)
		if i == 0 {
			caption = title + caption
		}
		captions[i] = caption
	}

	sendResult, err := e.notifier.SendIndividualCaptions(ctx, rctx.Subscription.ChatID, images, captions)
	if err != nil {
		return fmt.Errorf("send ranking batch: %w", err)
	}

	if sendResult.IsCompleteFailure() {
		e.metrics.IncPushFailed("ranking")
		e.log.Error().Int64("chat_id", rctx.Subscription.ChatID).Msg("failed to send ranking batch, will retry next poll")
		return nil
	}

	if len(sendResult.FailedIndices) > 0 {
		e.metrics.IncPushRetry()
	} else {
		e.metrics.IncPushSent("ranking")
	}

	successIDs := make([]uint64, 0, len(sendResult.SucceededIndices))
	for _, idx := range sendResult.SucceededIndices {
		if idx >= 0 && idx < len(illustIDs) {
			successIDs = append(successIDs, illustIDs[idx])
		}
	}
	newPushed := append(append([]uint64(nil), pushedIDs...), successIDs...)
	return e.trimAndUpdatePushedIDs(ctx, rctx.Subscription.ID, newPushed)
}

func (e *RankingEngine) trimAndUpdatePushedIDs(ctx context.Context, subscriptionID int32, pushedIDs []uint64) error {
	trimmed := model.TrimPushedIDs(pushedIDs)
	state := model.SubscriptionState{Ranking: &model.RankingState{PushedIDs: trimmed}}
	if err := e.repo.UpdateSubscriptionLatestData(ctx, subscriptionID, state); err != nil {
		return fmt.Errorf("update ranking state for subscription %d: %w", subscriptionID, err)
	}
	return nil
}

func (e *RankingEngine) markRankingIllustsAsPushed(ctx context.Context, subscriptionID int32, pushedIDs, newIDs []uint64) error {
	merged := append(append([]uint64(nil), pushedIDs...), newIDs...)
	return e.trimAndUpdatePushedIDs(ctx, subscriptionID, merged)
}
