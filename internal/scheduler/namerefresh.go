package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/metrics"
	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/repository"
)

// NameRefreshEngine fires once a day and refreshes the cached display
// name recorded on every author task, so `/list` and subscription
// confirmations can show a human-readable name instead of a bare numeric
// author id.
type NameRefreshEngine struct {
	repo    repository.Repository
	pixiv   PixivClient
	metrics *metrics.Registry
	log     zerolog.Logger

	schedule        dailySchedule
	executionHour   int
	executionMinute int
}

// NewNameRefreshEngine builds a NameRefreshEngine firing daily at
// hour:minute in the local timezone. Panics on an out-of-range hour/minute,
// a configuration error rather than a runtime condition. m may be nil to
// disable metrics reporting.
func NewNameRefreshEngine(repo repository.Repository, client PixivClient, m *metrics.Registry, executionHour, executionMinute int, log zerolog.Logger) *NameRefreshEngine {
	sched, err := newDailySchedule(executionHour, executionMinute)
	if err != nil {
		panic(err)
	}
	return &NameRefreshEngine{
		repo:            repo,
		pixiv:           client,
		metrics:         m,
		log:             log.With().Str("engine", "name_refresh").Logger(),
		schedule:        sched,
		executionHour:   executionHour,
		executionMinute: executionMinute,
	}
}

// Run blocks, firing update once per day until ctx is canceled.
func (e *NameRefreshEngine) Run(ctx context.Context) {
	e.log.Info().Msg("name refresh engine started")

	for {
		next := e.nextExecutionTime()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if err := e.updateAllAuthorNames(ctx); err != nil {
			e.log.Error().Err(err).Msg("author name update error")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(60 * time.Second):
		}
	}
}

func (e *NameRefreshEngine) nextExecutionTime() time.Time {
	next, dstAmbiguous := e.schedule.next(time.Now())
	if dstAmbiguous {
		e.log.Warn().Time("computed", next).Msg("daily schedule landed on a DST-ambiguous instant, retrying in an hour")
		return time.Now().Add(time.Hour)
	}
	return next
}

func (e *NameRefreshEngine) updateAllAuthorNames(ctx context.Context) error {
	e.metrics.IncEngineTick("name_refresh")
	tasks, err := e.repo.GetAllTasksByType(ctx, model.TaskAuthor)
	if err != nil {
		e.metrics.IncEngineError("name_refresh")
		return fmt.Errorf("scheduler: list author tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}
	e.log.Info().Int("count", len(tasks)).Msg("refreshing author names")

	updated, failed := 0, 0
	for _, task := range tasks {
		authorID, err := model.ParseAuthorID(task.Value)
		if err != nil {
			e.log.Warn().Err(err).Int32("task_id", task.ID).Msg("invalid author id in task")
			failed++
			continue
		}

		detail, err := e.pixiv.UserDetail(ctx, uint64(authorID))
		if err != nil {
			e.log.Warn().Err(err).Int64("author_id", authorID).Msg("failed to fetch author info")
			failed++
		} else if task.AuthorName == nil || *task.AuthorName != detail.User.Name {
			name := detail.User.Name
			if err := e.repo.UpdateTaskAuthorName(ctx, task.ID, &name); err != nil {
				e.log.Error().Err(err).Int32("task_id", task.ID).Msg("failed to update author name")
				failed++
			} else {
				updated++
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}

	e.log.Info().Int("updated", updated).Int("failed", failed).Msg("author name update completed")
	return nil
}
