package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/ehentai"
	"github.com/icceey/pixivbot-sub000/internal/metrics"
	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/repository"
	"github.com/icceey/pixivbot-sub000/internal/sensitive"
	"github.com/icceey/pixivbot-sub000/internal/tagfilter"
)

// EhClient is the subset of *ehentai.Client the engine depends on. An
// interface here lets engine tests substitute a fake instead of a live
// authenticated client, the same pattern as PixivClient.
type EhClient interface {
	GetGallery(ctx context.Context, gid uint64, token string) (ehentai.GalleryMetadata, error)
	ResolveLatest(ctx context.Context, meta ehentai.GalleryMetadata) (ehentai.GalleryMetadata, error)
	Search(ctx context.Context, params ehentai.SearchParams) (ehentai.SearchResult, error)
}

// EhEngine polls e-hentai gallery and search tasks, analogous in shape to
// AuthorEngine but over two task types sharing one continuous tick: one
// due gallery task (update detection via the parent_gid chain) and one
// due search task (new-result pagination) per tick.
type EhEngine struct {
	repo     repository.Repository
	eh       EhClient
	notifier *notifier.Notifier
	metrics  *metrics.Registry
	log      zerolog.Logger

	tickInterval    time.Duration
	minTaskInterval time.Duration
	maxTaskInterval time.Duration
}

// NewEhEngine builds an EhEngine. m may be nil to disable metrics
// reporting.
func NewEhEngine(repo repository.Repository, client EhClient, n *notifier.Notifier, m *metrics.Registry, tickInterval, minTaskInterval, maxTaskInterval time.Duration, log zerolog.Logger) *EhEngine {
	return &EhEngine{
		repo:            repo,
		eh:              client,
		notifier:        n,
		metrics:         m,
		log:             log.With().Str("engine", "ehentai").Logger(),
		tickInterval:    tickInterval,
		minTaskInterval: minTaskInterval,
		maxTaskInterval: maxTaskInterval,
	}
}

// Run blocks, ticking every tickInterval until ctx is canceled.
func (e *EhEngine) Run(ctx context.Context) {
	e.log.Info().Msg("e-hentai engine started")
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.log.Error().Err(err).Msg("e-hentai engine tick error")
			}
		}
	}
}

func (e *EhEngine) tick(ctx context.Context) error {
	e.metrics.IncEngineTick("ehentai")
	if err := e.tickGallery(ctx); err != nil {
		e.log.Error().Err(err).Msg("gallery task tick error")
	}
	return e.tickSearch(ctx)
}

func (e *EhEngine) randomInterval() time.Duration {
	span := e.maxTaskInterval - e.minTaskInterval
	if span <= 0 {
		return e.minTaskInterval
	}
	return e.minTaskInterval + time.Duration(rand.Int63n(int64(span)+1))
}

func (e *EhEngine) scheduleNextPoll(ctx context.Context, taskID int32) error {
	return e.repo.UpdateTaskAfterPoll(ctx, taskID, time.Now().Add(e.randomInterval()))
}

// --- gallery update detection ---

func (e *EhEngine) tickGallery(ctx context.Context) error {
	tasks, err := e.repo.GetPendingTasksByType(ctx, model.TaskEhGallery, 1)
	if err != nil {
		return fmt.Errorf("get pending eh_gallery tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}
	task := tasks[0]

	e.log.Info().Int32("task_id", task.ID).Str("value", task.Value).Msg("executing eh_gallery task")
	e.metrics.IncTaskExecution("eh_gallery")
	if err := e.executeGalleryTask(ctx, task); err != nil {
		e.metrics.IncEngineError("ehentai")
		e.log.Error().Err(err).Int32("task_id", task.ID).Msg("eh_gallery task execution failed")
		return e.scheduleNextPoll(ctx, task.ID)
	}
	return nil
}

func (e *EhEngine) executeGalleryTask(ctx context.Context, task model.Task) error {
	gv, err := model.ParseEhGalleryValue(task.Value)
	if err != nil {
		return err
	}

	meta, err := e.eh.GetGallery(ctx, uint64(gv.GID), gv.Token)
	if err != nil {
		return fmt.Errorf("fetch gallery %d: %w", gv.GID, err)
	}
	latest, err := e.eh.ResolveLatest(ctx, meta)
	if err != nil {
		return fmt.Errorf("resolve latest gallery for %d: %w", gv.GID, err)
	}

	subs, err := e.repo.ListSubscriptionsByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("list subscriptions for task %d: %w", task.ID, err)
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

		if err := e.processGallerySub(ctx, sub, *chat, latest); err != nil {
			e.log.Error().Err(err).Int32("subscription_id", sub.ID).Msg("failed to process gallery subscription")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}

	return e.scheduleNextPoll(ctx, task.ID)
}

// processGallerySub pushes a single update notification when the
// gallery's resolved (newest) gid differs from what this subscription was
// last notified about. A subscription seeing the gallery for the first
// time only records the baseline — there is no "update" to report yet,
// since the tracked gallery is already known by definition of being
// subscribed.
func (e *EhEngine) processGallerySub(ctx context.Context, sub model.Subscription, chat model.Chat, latest ehentai.GalleryMetadata) error {
	state := sub.LatestData.EhGallery
	if state != nil && state.LastKnownGID == latest.GID {
		return nil
	}

	newState := model.SubscriptionState{EhGallery: &model.EhGalleryState{LastKnownGID: latest.GID, LastKnownToken: latest.Token}}
	if state == nil {
		return e.repo.UpdateSubscriptionLatestData(ctx, sub.ID, newState)
	}

	chatFilter := tagfilter.FromExcludedTags(chat.ExcludedTags)
	combined := sub.FilterTags.Merged(chatFilter)
	if !combined.Matches(latest.FlatTagNames()) {
		return e.repo.UpdateSubscriptionLatestData(ctx, sub.ID, newState)
	}

	caption := buildGalleryCaption(latest)
	spoiler := chat.BlurSensitiveTags && sensitive.ContainsSensitiveTags(latest.FlatTagNames(), chat.SensitiveTags)
	_, err := e.notifier.SendImages(ctx, chat.ID, []notifier.Image{{URL: latest.Thumb, Spoiler: spoiler}}, caption)
	if err != nil {
		e.metrics.IncPushFailed("eh_gallery")
		return fmt.Errorf("send gallery update %d: %w", latest.GID, err)
	}
	e.metrics.IncPushSent("eh_gallery")

	return e.repo.UpdateSubscriptionLatestData(ctx, sub.ID, newState)
}

// --- search pagination ---

func (e *EhEngine) tickSearch(ctx context.Context) error {
	tasks, err := e.repo.GetPendingTasksByType(ctx, model.TaskEhSearch, 1)
	if err != nil {
		return fmt.Errorf("get pending eh_search tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}
	task := tasks[0]

	e.log.Info().Int32("task_id", task.ID).Str("value", task.Value).Msg("executing eh_search task")
	e.metrics.IncTaskExecution("eh_search")
	if err := e.executeSearchTask(ctx, task); err != nil {
		e.metrics.IncEngineError("ehentai")
		e.log.Error().Err(err).Int32("task_id", task.ID).Msg("eh_search task execution failed")
		return e.scheduleNextPoll(ctx, task.ID)
	}
	return nil
}

func (e *EhEngine) executeSearchTask(ctx context.Context, task model.Task) error {
	params, err := model.ParseEhSearchParams(task.Value)
	if err != nil {
		return err
	}

	result, err := e.eh.Search(ctx, ehentai.SearchParams{
		Query:      params.Query,
		Categories: toEhCategories(params.Categories),
		MinRating:  params.MinRating,
	})
	if err != nil {
		return fmt.Errorf("search %q: %w", params.Query, err)
	}
	if len(result.Galleries) == 0 {
		return e.scheduleNextPoll(ctx, task.ID)
	}

	subs, err := e.repo.ListSubscriptionsByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("list subscriptions for task %d: %w", task.ID, err)
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

		if err := e.processSearchSub(ctx, sub, *chat, result.Galleries); err != nil {
			e.log.Error().Err(err).Int32("subscription_id", sub.ID).Msg("failed to process search subscription")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}

	return e.scheduleNextPoll(ctx, task.ID)
}

func toEhCategories(raw []string) []ehentai.Category {
	out := make([]ehentai.Category, len(raw))
	for i, r := range raw {
		out[i] = ehentai.Category(r)
	}
	return out
}

// processSearchSub mirrors RankingEngine.processSingleRankingSub: filter
// out already-pushed galleries, apply the composed tag filter, batch-send
// what remains with per-gallery captions, and extend pushed_ids with
// every gallery (filtered-out or successfully sent) so none are
// reconsidered on a later page of the same search.
func (e *EhEngine) processSearchSub(ctx context.Context, sub model.Subscription, chat model.Chat, galleries []ehentai.GalleryMetadata) error {
	var pushedIDs []uint64
	if sub.LatestData.EhSearch != nil {
		pushedIDs = sub.LatestData.EhSearch.PushedIDs
	}
	pushedSet := make(map[uint64]bool, len(pushedIDs))
	for _, id := range pushedIDs {
		pushedSet[id] = true
	}

	var newGalleries []ehentai.GalleryMetadata
	for _, g := range galleries {
		if !pushedSet[g.GID] {
			newGalleries = append(newGalleries, g)
		}
	}
	if len(newGalleries) == 0 {
		return nil
	}

	chatFilter := tagfilter.FromExcludedTags(chat.ExcludedTags)
	combined := sub.FilterTags.Merged(chatFilter)

	var filtered []ehentai.GalleryMetadata
	for _, g := range newGalleries {
		if combined.Matches(g.FlatTagNames()) {
			filtered = append(filtered, g)
		}
	}

	allNewIDs := make([]uint64, len(newGalleries))
	for i, g := range newGalleries {
		allNewIDs[i] = g.GID
	}

	if len(filtered) == 0 {
		return e.updatePushedIDs(ctx, sub.ID, append(append([]uint64(nil), pushedIDs...), allNewIDs...))
	}

	images := make([]notifier.Image, len(filtered))
	captions := make([]string, len(filtered))
	galleryIDs := make([]uint64, len(filtered))
	for i, g := range filtered {
		galleryIDs[i] = g.GID
		spoiler := chat.BlurSensitiveTags && sensitive.ContainsSensitiveTags(g.FlatTagNames(), chat.SensitiveTags)
		images[i] = notifier.Image{URL: g.Thumb, Spoiler: spoiler}
		captions[i] = buildGalleryCaption(g)
	}

	sendResult, err := e.notifier.SendIndividualCaptions(ctx, chat.ID, images, captions)
	if err != nil {
		return fmt.Errorf("send search batch: %w", err)
	}
	if sendResult.IsCompleteFailure() {
		e.metrics.IncPushFailed("eh_search")
		e.log.Error().Int64("chat_id", chat.ID).Msg("failed to send search batch, will retry next poll")
		return nil
	}
	if len(sendResult.FailedIndices) > 0 {
		e.metrics.IncPushRetry()
	} else {
		e.metrics.IncPushSent("eh_search")
	}

	successIDs := make([]uint64, 0, len(sendResult.SucceededIndices))
	for _, idx := range sendResult.SucceededIndices {
		if idx >= 0 && idx < len(galleryIDs) {
			successIDs = append(successIDs, galleryIDs[idx])
		}
	}
	return e.updatePushedIDs(ctx, sub.ID, append(append([]uint64(nil), pushedIDs...), successIDs...))
}

func (e *EhEngine) updatePushedIDs(ctx context.Context, subscriptionID int32, ids []uint64) error {
	trimmed := model.TrimPushedIDs(ids)
	state := model.SubscriptionState{EhSearch: &model.EhSearchState{PushedIDs: trimmed}}
	if err := e.repo.UpdateSubscriptionLatestData(ctx, subscriptionID, state); err != nil {
		return fmt.Errorf("update eh_search state for subscription %d: %w", subscriptionID, err)
	}
	return nil
}

func buildGalleryCaption(g ehentai.GalleryMetadata) string {
	tags := FormatTagsEscaped(g.FlatTagNames())
	return fmt.Sprintf(
		"📚 %s\n🏷️ %s \\| ⭐ %s\n🔗 [%s](%s)%s",
		EscapeMarkdownV2(g.Title), EscapeMarkdownV2(g.Category), EscapeMarkdownV2(strconv.FormatFloat(g.RatingValue(), 'f', 2, 64)),
		EscapeMarkdownV2(g.Title), g.URL(), tags,
	)
}
