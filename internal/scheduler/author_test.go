package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
	"github.com/icceey/pixivbot-sub000/internal/tagfilter"
)

func newTestAuthorEngine(t *testing.T, chat notifier.ChatClient) *AuthorEngine {
	t.Helper()
	cache := notifier.NewFileCache(context.Background(), t.TempDir(), 7, zerolog.Nop())
	n := notifier.New(chat, cache, nil, notifier.Config{GlobalRPS: 1000, ChatRPS: 1000, ChatBurst: 100}, zerolog.Nop())
	return NewAuthorEngine(newFakeRepo(), &fakePixivClient{}, n, nil, time.Minute, time.Minute, time.Minute, 3, pixiv.SizeOriginal, zerolog.Nop())
}

func withServerIllustURL(t *testing.T, illust pixiv.Illust) pixiv.Illust {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img-bytes"))
	}))
	t.Cleanup(srv.Close)
	url := srv.URL + "/a.jpg"
	illust.MetaSinglePage.OriginalImageURL = &url
	return illust
}

func TestHandleNewIllustsFirstRunSendsOnlyLatest(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestAuthorEngine(t, chat)

	illusts := []pixiv.Illust{withServerIllustURL(t, newTestIllust(3)), newTestIllust(2), newTestIllust(1)}
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        nil,
	}

	state, err := e.handleNewIllusts(context.Background(), actx, illusts)
	if err != nil {
		t.Fatalf("handleNewIllusts: %v", err)
	}
	if state == nil || state.LatestIllustID != 3 {
		t.Fatalf("expected cursor advanced to newest illust 3, got %+v", state)
	}
	if chat.photos != 1 {
		t.Fatalf("expected exactly 1 photo sent on first run, got %d", chat.photos)
	}
}

func TestHandleNewIllustsPicksOldestOfNewBatch(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestAuthorEngine(t, chat)

	illusts := []pixiv.Illust{newTestIllust(5), newTestIllust(4), newTestIllust(3), newTestIllust(2)}
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        &model.AuthorState{LatestIllustID: 2},
	}

	state, err := e.handleNewIllusts(context.Background(), actx, illusts)
	if err != nil {
		t.Fatalf("handleNewIllusts: %v", err)
	}
	// new illusts are 5,4,3 (all > 2); push the oldest (3), cursor doesn't
	// advance past what was actually pushed.
	if state == nil || state.LatestIllustID != 3 {
		t.Fatalf("expected cursor at pushed illust 3, got %+v", state)
	}
}

func TestHandleNewIllustsSavesMessageOnSuccessfulSend(t *testing.T) {
	chat := &fakeChatClient{}
	cache := notifier.NewFileCache(context.Background(), t.TempDir(), 7, zerolog.Nop())
	n := notifier.New(chat, cache, nil, notifier.Config{GlobalRPS: 1000, ChatRPS: 1000, ChatBurst: 100}, zerolog.Nop())
	repo := newFakeRepo()
	e := NewAuthorEngine(repo, &fakePixivClient{}, n, nil, time.Minute, time.Minute, time.Minute, 3, pixiv.SizeOriginal, zerolog.Nop())

	illust := withServerIllustURL(t, newTestIllust(3))
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 7, ChatID: 42},
		Chat:         model.Chat{ID: 42},
		State:        nil,
	}

	if _, err := e.handleNewIllusts(context.Background(), actx, []pixiv.Illust{illust}); err != nil {
		t.Fatalf("handleNewIllusts: %v", err)
	}

	if len(repo.savedMessages) != 1 {
		t.Fatalf("expected 1 saved message, got %d: %+v", len(repo.savedMessages), repo.savedMessages)
	}
	saved := repo.savedMessages[0]
	if saved.ChatID != 42 || saved.SubscriptionID != 7 || saved.IllustID == nil || *saved.IllustID != 3 {
		t.Fatalf("unexpected saved message %+v", saved)
	}
}

func TestHandleNewIllustsNoneNewReturnsNilState(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestAuthorEngine(t, chat)

	illusts := []pixiv.Illust{newTestIllust(1)}
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        &model.AuthorState{LatestIllustID: 5},
	}

	state, err := e.handleNewIllusts(context.Background(), actx, illusts)
	if err != nil {
		t.Fatalf("handleNewIllusts: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no state change, got %+v", state)
	}
	if chat.photos != 0 {
		t.Fatalf("expected no sends, got %d", chat.photos)
	}
}

func TestHandleNewIllustsAllFilteredOutStillAdvancesCursor(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestAuthorEngine(t, chat)

	illusts := []pixiv.Illust{newTestIllust(2)}
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1, FilterTags: tagfilter.TagFilter{Exclude: []string{"genshinimpact"}}},
		Chat:         model.Chat{ID: 1},
		State:        &model.AuthorState{LatestIllustID: 1},
	}

	state, err := e.handleNewIllusts(context.Background(), actx, illusts)
	if err != nil {
		t.Fatalf("handleNewIllusts: %v", err)
	}
	if state == nil || state.LatestIllustID != 2 || state.Pending != nil {
		t.Fatalf("expected cursor advanced with no pending, got %+v", state)
	}
	if chat.photos != 0 {
		t.Fatalf("expected no sends for filtered-out illust, got %d", chat.photos)
	}
}

func TestHandleExistingPendingAbandonsAfterMaxRetries(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestAuthorEngine(t, chat)
	e.maxRetryCount = 2

	pending := &model.PendingIllust{IllustID: 1, RetryCount: 2, TotalPages: 1}
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        &model.AuthorState{LatestIllustID: 1, Pending: pending},
	}

	state, err := e.handleExistingPending(context.Background(), actx, []pixiv.Illust{newTestIllust(1)}, pending)
	if err != nil {
		t.Fatalf("handleExistingPending: %v", err)
	}
	if state == nil || state.Pending != nil {
		t.Fatalf("expected pending abandoned, got %+v", state)
	}
}

func TestHandleExistingPendingNotFoundAbandons(t *testing.T) {
	chat := &fakeChatClient{}
	e := newTestAuthorEngine(t, chat)

	pending := &model.PendingIllust{IllustID: 99, TotalPages: 1}
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        &model.AuthorState{LatestIllustID: 1, Pending: pending},
	}

	state, err := e.handleExistingPending(context.Background(), actx, []pixiv.Illust{newTestIllust(1)}, pending)
	if err != nil {
		t.Fatalf("handleExistingPending: %v", err)
	}
	if state == nil || state.Pending != nil {
		t.Fatalf("expected pending abandoned when illust no longer present, got %+v", state)
	}
}

func TestHandleExistingPendingFallsBackToIllustDetailWhenOffPage(t *testing.T) {
	chat := &fakeChatClient{}
	cache := notifier.NewFileCache(context.Background(), t.TempDir(), 7, zerolog.Nop())
	n := notifier.New(chat, cache, nil, notifier.Config{GlobalRPS: 1000, ChatRPS: 1000, ChatBurst: 100}, zerolog.Nop())
	scrolledOff := withServerIllustURL(t, newTestIllust(99))
	e := NewAuthorEngine(newFakeRepo(), &fakePixivClient{illustDetail: map[uint64]pixiv.Illust{99: scrolledOff}}, n, nil, time.Minute, time.Minute, time.Minute, 3, pixiv.SizeOriginal, zerolog.Nop())

	pending := &model.PendingIllust{IllustID: 99, TotalPages: 1}
	actx := AuthorContext{
		Subscription: model.Subscription{ID: 1, ChatID: 1},
		Chat:         model.Chat{ID: 1},
		State:        &model.AuthorState{LatestIllustID: 1, Pending: pending},
	}

	// Feed page no longer contains illust 99 (newer uploads pushed it off),
	// so the engine must fall back to a direct detail fetch instead of
	// abandoning the pending push outright.
	state, err := e.handleExistingPending(context.Background(), actx, []pixiv.Illust{newTestIllust(1)}, pending)
	if err != nil {
		t.Fatalf("handleExistingPending: %v", err)
	}
	if state == nil || state.LatestIllustID != 99 {
		t.Fatalf("expected pending illust 99 completed via detail fallback, got %+v", state)
	}
	if chat.photos != 1 {
		t.Fatalf("expected one photo sent via detail fallback, got %d", chat.photos)
	}
}
