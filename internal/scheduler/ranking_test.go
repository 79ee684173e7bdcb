package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
	"github.com/icceey/pixivbot-sub000/internal/tagfilter"
)

func newTestRankingEngine(t *testing.T, chat notifier.ChatClient) *RankingEngine {
	t.Helper()
	cache := notifier.NewFileCache(context.Background(), t.TempDir(), 7, zerolog.Nop())
	n := notifier.New(chat, cache, nil, notifier.Config{GlobalRPS: 1000, ChatRPS: 1000, ChatBurst: 100}, zerolog.Nop())
	return NewRankingEngine(newFakeRepo(), nil, n, nil, 9, 0, zerolog.Nop())
}

func rankingTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessSingleRankingSubSendsNewIllusts(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestRankingEngine(t, chat)
	srv := rankingTestServer(t)

	illusts := []pixiv.Illust{newTestIllust(1), newTestIllust(2)}
	for i := range illusts {
		url := srv.URL + "/a.jpg"
		illusts[i].MetaSinglePage.OriginalImageURL = &url
	}

	rctx := RankingContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        nil,
	}

	err := e.processSingleRankingSub(context.Background(), rctx, illusts, "day")
	if err != nil {
		t.Fatalf("processSingleRankingSub: %v", err)
	}
	if len(chat.groups) != 1 || len(chat.groups[0]) != 2 {
		t.Fatalf("expected one media group of 2, got %+v", chat.groups)
	}
	if chat.groups[0][0].Caption == "" || chat.groups[0][1].Caption == "" {
		t.Fatalf("expected every item to carry its own caption, got %+v", chat.groups[0])
	}
}

func TestProcessSingleRankingSubSkipsAlreadyPushed(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestRankingEngine(t, chat)

	illusts := []pixiv.Illust{newTestIllust(1)}
	rctx := RankingContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        &model.RankingState{PushedIDs: []uint64{1}},
	}

	err := e.processSingleRankingSub(context.Background(), rctx, illusts, "day")
	if err != nil {
		t.Fatalf("processSingleRankingSub: %v", err)
	}
	if chat.photos != 0 {
		t.Fatalf("expected no sends for already-pushed illust, got %d photos", chat.photos)
	}
}

func TestMarkRankingIllustsAsPushedWithoutSending(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestRankingEngine(t, chat)
	repo := newFakeRepo()
	e.repo = repo

	illusts := []pixiv.Illust{newTestIllust(1)}
	illusts[0].Tags = []pixiv.Tag{{Name: "excluded"}}

	rctx := RankingContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1, FilterTags: tagfilter.TagFilter{Exclude: []string{"excluded"}}},
		Chat:         model.Chat{ID: 1},
		State:        nil,
	}

	err := e.processSingleRankingSub(context.Background(), rctx, illusts, "day")
	if err != nil {
		t.Fatalf("processSingleRankingSub: %v", err)
	}
	if chat.photos != 0 || len(chat.groups) != 0 {
		t.Fatalf("expected no sends for fully filtered ranking, got photos=%d groups=%d", chat.photos, len(chat.groups))
	}
	state, ok := repo.updatedStates[1]
	if !ok || state.Ranking == nil || len(state.Ranking.PushedIDs) != 1 || state.Ranking.PushedIDs[0] != 1 {
		t.Fatalf("expected illust 1 marked as pushed despite being filtered, got %+v", state)
	}
}
