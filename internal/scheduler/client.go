package scheduler

import (
	"context"

	"github.com/icceey/pixivbot-sub000/internal/pixiv"
)

// PixivClient is the subset of *pixiv.Client the engines depend on. An
// interface here lets engine tests substitute a fake instead of a live
// authenticated client.
type PixivClient interface {
	UserIllusts(ctx context.Context, userID uint64, illustType string, offset int) (pixiv.UserIllusts, error)
	IllustRanking(ctx context.Context, mode, date string, offset int) (pixiv.Ranking, error)
	UserDetail(ctx context.Context, userID uint64) (pixiv.UserDetail, error)
	IllustDetail(ctx context.Context, illustID uint64) (pixiv.IllustDetail, error)
}
