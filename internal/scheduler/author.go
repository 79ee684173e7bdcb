package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/metrics"
	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
	"github.com/icceey/pixivbot-sub000/internal/repository"
	"github.com/icceey/pixivbot-sub000/internal/tagfilter"
)

// AuthorEngine polls one due author task per tick, and for each of its
// subscriptions either resumes a pending (partially-sent) illust or
// pushes the single oldest not-yet-seen illust — one push per
// subscription per tick, to keep a burst of new uploads from flooding a
// chat all at once.
type AuthorEngine struct {
	repo     repository.Repository
	pixiv    PixivClient
	notifier *notifier.Notifier
	metrics  *metrics.Registry
	log      zerolog.Logger

	tickInterval    time.Duration
	minTaskInterval time.Duration
	maxTaskInterval time.Duration
	maxRetryCount   int
	imageSize       pixiv.ImageSize
}

// NewAuthorEngine builds an AuthorEngine. maxRetryCount <= 0 disables
// retry entirely: a partial send is abandoned on its very next tick. m may
// be nil to disable metrics reporting.
func NewAuthorEngine(repo repository.Repository, client PixivClient, n *notifier.Notifier, m *metrics.Registry, tickInterval, minTaskInterval, maxTaskInterval time.Duration, maxRetryCount int, imageSize pixiv.ImageSize, log zerolog.Logger) *AuthorEngine {
	return &AuthorEngine{
		repo:            repo,
		pixiv:           client,
		notifier:        n,
		metrics:         m,
		log:             log.With().Str("engine", "author").Logger(),
		tickInterval:    tickInterval,
		minTaskInterval: minTaskInterval,
		maxTaskInterval: maxTaskInterval,
		maxRetryCount:   maxRetryCount,
		imageSize:       imageSize,
	}
}

// Run blocks, ticking every tickInterval until ctx is canceled.
func (e *AuthorEngine) Run(ctx context.Context) {
	e.log.Info().Msg("author engine started")
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.log.Error().Err(err).Msg("author engine tick error")
			}
		}
	}
}

func (e *AuthorEngine) tick(ctx context.Context) error {
	e.metrics.IncEngineTick("author")
	tasks, err := e.repo.GetPendingTasksByType(ctx, model.TaskAuthor, 1)
	if err != nil {
		return fmt.Errorf("get pending author tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}
	task := tasks[0]

	e.log.Info().Int32("task_id", task.ID).Str("value", task.Value).Msg("executing author task")
	e.metrics.IncTaskExecution("author")
	if err := e.executeAuthorTask(ctx, task); err != nil {
		e.metrics.IncEngineError("author")
		e.log.Error().Err(err).Int32("task_id", task.ID).Msg("author task execution failed")
		// Still advance next_poll_at so a persistently failing task
		// doesn't get retried on every single tick.
		return e.repo.UpdateTaskAfterPoll(ctx, task.ID, time.Now().Add(e.randomInterval()))
	}
	return nil
}

func (e *AuthorEngine) randomInterval() time.Duration {
	span := e.maxTaskInterval - e.minTaskInterval
	if span <= 0 {
		return e.minTaskInterval
	}
	return e.minTaskInterval + time.Duration(rand.Int63n(int64(span)+1))
}

func (e *AuthorEngine) executeAuthorTask(ctx context.Context, task model.Task) error {
	authorID, err := model.ParseAuthorID(task.Value)
	if err != nil {
		return err
	}

	illusts, err := e.pixiv.UserIllusts(ctx, uint64(authorID), "illust", 0)
	if err != nil {
		return fmt.Errorf("fetch illusts for author %d: %w", authorID, err)
	}
	if len(illusts.Illusts) == 0 {
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

		var state *model.AuthorState
		if sub.LatestData.Author != nil {
			state = sub.LatestData.Author
		}
		actx := AuthorContext{Subscription: sub, Chat: *chat, State: state}

		newState, err := e.processSingleAuthorSub(ctx, actx, illusts.Illusts)
		if err != nil {
			e.log.Error().Err(err).Int32("subscription_id", sub.ID).Msg("failed to process subscription")
		} else if newState != nil {
			wire := model.SubscriptionState{Author: newState}
			if err := e.repo.UpdateSubscriptionLatestData(ctx, sub.ID, wire); err != nil {
				e.log.Error().Err(err).Int32("subscription_id", sub.ID).Msg("failed to persist subscription state")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}

	return e.scheduleNextPoll(ctx, task.ID)
}

func (e *AuthorEngine) scheduleNextPoll(ctx context.Context, taskID int32) error {
	return e.repo.UpdateTaskAfterPoll(ctx, taskID, time.Now().Add(e.randomInterval()))
}

// processSingleAuthorSub dispatches between resuming a pending push and
// looking for new illusts. Returns the state to persist, or nil for "no
// change".
func (e *AuthorEngine) processSingleAuthorSub(ctx context.Context, actx AuthorContext, illusts []pixiv.Illust) (*model.AuthorState, error) {
	if actx.State != nil && actx.State.Pending != nil {
		return e.handleExistingPending(ctx, actx, illusts, actx.State.Pending)
	}
	return e.handleNewIllusts(ctx, actx, illusts)
}

func (e *AuthorEngine) handleExistingPending(ctx context.Context, actx AuthorContext, illusts []pixiv.Illust, pending *model.PendingIllust) (*model.AuthorState, error) {
	state := actx.State

	if e.maxRetryCount <= 0 || int(pending.RetryCount) >= e.maxRetryCount {
		e.log.Warn().Uint64("illust_id", pending.IllustID).Msg("abandoning pending illust, retry limit reached")
		return &model.AuthorState{LatestIllustID: state.LatestIllustID}, nil
	}

	var illust *pixiv.Illust
	for i := range illusts {
		if illusts[i].ID == pending.IllustID {
			illust = &illusts[i]
			break
		}
	}
	if illust == nil {
		// The pending illust has already scrolled off the first page of the
		// author's feed (enough newer uploads landed between ticks); fetch
		// it directly instead of abandoning a partially-sent push.
		detail, err := e.pixiv.IllustDetail(ctx, pending.IllustID)
		if err != nil {
			e.log.Warn().Err(err).Uint64("illust_id", pending.IllustID).Msg("pending illust not found in feed and detail fetch failed, abandoning")
			return &model.AuthorState{LatestIllustID: state.LatestIllustID}, nil
		}
		illust = &detail.Illust
	}

	totalPages := len(illust.AllImageURLs(e.imageSize))
	sentSet := make(map[int]bool, len(pending.SentPages))
	for _, p := range pending.SentPages {
		sentSet[p] = true
	}
	remaining := false
	for i := 0; i < totalPages; i++ {
		if !sentSet[i] {
			remaining = true
			break
		}
	}
	if !remaining {
		return &model.AuthorState{LatestIllustID: pending.IllustID}, nil
	}

	result, err := ProcessIllustPush(ctx, e.notifier, actx.Chat, *illust, pending.SentPages, e.imageSize)
	if err != nil {
		return nil, err
	}
	return e.applyPushResult(ctx, actx.Subscription.ID, actx.Chat.ID, result, state.LatestIllustID, pending), nil
}

func (e *AuthorEngine) saveMessage(ctx context.Context, subscriptionID int32, chatID int64, result PushResult) {
	if result.FirstMessageID == nil {
		return
	}
	illustID := result.IllustID
	if err := e.repo.SaveMessage(ctx, chatID, *result.FirstMessageID, subscriptionID, &illustID); err != nil {
		e.log.Warn().Err(err).Int64("chat_id", chatID).Int64("message_id", *result.FirstMessageID).Msg("failed to save message record")
	}
}

func (e *AuthorEngine) applyPushResult(ctx context.Context, subscriptionID int32, chatID int64, result PushResult, currentLatest uint64, pending *model.PendingIllust) *model.AuthorState {
	switch {
	case result.Success():
		e.metrics.IncPushSent("author")
		e.log.Info().Uint64("illust_id", result.IllustID).Int64("chat_id", chatID).Msg("completed pending illust")
		e.saveMessage(ctx, subscriptionID, chatID, result)
		return &model.AuthorState{LatestIllustID: result.IllustID}
	case result.Partial:
		e.metrics.IncPushRetry()
		e.log.Warn().Uint64("illust_id", result.IllustID).Int("sent", len(result.SentPages)).Int("total", result.TotalPages).Msg("partially sent illust")
		e.saveMessage(ctx, subscriptionID, chatID, result)
		return &model.AuthorState{
			LatestIllustID: currentLatest,
			Pending: &model.PendingIllust{
				IllustID:   result.IllustID,
				SentPages:  result.SentPages,
				TotalPages: result.TotalPages,
				RetryCount: pending.RetryCount + 1,
			},
		}
	default: // failed
		newRetry := pending.RetryCount + 1
		if e.maxRetryCount > 0 && int(newRetry) >= e.maxRetryCount {
			e.metrics.IncPushFailed("author")
			e.log.Error().Uint64("illust_id", result.IllustID).Msg("failed to send pending illust, max retries reached, abandoning")
			return &model.AuthorState{LatestIllustID: currentLatest}
		}
		e.metrics.IncPushRetry()
		e.log.Error().Uint64("illust_id", result.IllustID).Msg("failed to send pending illust, will retry")
		return &model.AuthorState{
			LatestIllustID: currentLatest,
			Pending: &model.PendingIllust{
				IllustID:   pending.IllustID,
				SentPages:  pending.SentPages,
				TotalPages: pending.TotalPages,
				RetryCount: newRetry,
			},
		}
	}
}

func (e *AuthorEngine) handleNewIllusts(ctx context.Context, actx AuthorContext, illusts []pixiv.Illust) (*model.AuthorState, error) {
	var lastID *uint64
	if actx.State != nil {
		lastID = &actx.State.LatestIllustID
	}

	var newIllusts []pixiv.Illust
	if lastID != nil {
		for _, illust := range illusts {
			if illust.ID <= *lastID {
				break
			}
			newIllusts = append(newIllusts, illust)
		}
	} else if len(illusts) > 0 {
		// First run for this subscription: only the latest upload, not the
		// whole backlog.
		newIllusts = illusts[:1]
	}

	if len(newIllusts) == 0 {
		return nil, nil
	}

	newestID := newIllusts[0].ID

	chatFilter := tagfilter.FromExcludedTags(actx.Chat.ExcludedTags)
	combined := actx.Subscription.FilterTags.Merged(chatFilter)

	var filtered []pixiv.Illust
	for _, illust := range newIllusts {
		if combined.Matches(pixiv.TagNames(illust.Tags)) {
			filtered = append(filtered, illust)
		}
	}

	if len(filtered) == 0 {
		return &model.AuthorState{LatestIllustID: newestID}, nil
	}

	// Only the oldest of the new, filtered illusts is pushed this tick;
	// the rest are picked up on subsequent ticks as the cursor advances.
	illust := filtered[len(filtered)-1]

	result, err := ProcessIllustPush(ctx, e.notifier, actx.Chat, illust, nil, e.imageSize)
	if err != nil {
		return nil, err
	}

	switch {
	case result.Success():
		e.metrics.IncPushSent("author")
		e.log.Info().Uint64("illust_id", result.IllustID).Int64("chat_id", actx.Chat.ID).Msg("sent new illust")
		e.saveMessage(ctx, actx.Subscription.ID, actx.Chat.ID, result)
		return &model.AuthorState{LatestIllustID: result.IllustID}, nil
	case result.Partial:
		e.metrics.IncPushRetry()
		e.log.Warn().Uint64("illust_id", result.IllustID).Msg("partially sent new illust")
		e.saveMessage(ctx, actx.Subscription.ID, actx.Chat.ID, result)
		latest := uint64(0)
		if lastID != nil {
			latest = *lastID
		}
		return &model.AuthorState{
			LatestIllustID: latest,
			Pending: &model.PendingIllust{
				IllustID:   result.IllustID,
				SentPages:  result.SentPages,
				TotalPages: result.TotalPages,
			},
		}, nil
	default:
		e.metrics.IncPushFailed("author")
		e.log.Error().Uint64("illust_id", result.IllustID).Msg("failed to send illust, will retry next poll")
		return nil, nil
	}
}
