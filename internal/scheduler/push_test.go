package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
)

func TestEscapeMarkdownV2(t *testing.T) {
	got := EscapeMarkdownV2("Hello! (test)")
	want := `Hello\! \(test\)`
	if got != want {
		t.Errorf("EscapeMarkdownV2 = %q, want %q", got, want)
	}
}

func TestFormatTagsEscapedEmpty(t *testing.T) {
	if got := FormatTagsEscaped(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestFormatTagsEscapedStripsAndJoins(t *testing.T) {
	got := FormatTagsEscaped([]string{"Genshin Impact", "R-18"})
	if !strings.HasPrefix(got, "\n\n") {
		t.Fatalf("expected leading blank line, got %q", got)
	}
	if !strings.Contains(got, "#GenshinImpact") || !strings.Contains(got, "#R18") {
		t.Errorf("expected hashtags preserved, got %q", got)
	}
}

func TestGetChatIfShouldNotifyMissingChat(t *testing.T) {
	repo := newFakeRepo()
	chat, err := GetChatIfShouldNotify(context.Background(), repo, 1)
	if err != nil || chat != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", chat, err)
	}
}

func TestGetChatIfShouldNotifyEnabledChat(t *testing.T) {
	repo := newFakeRepo()
	repo.chats[1] = model.Chat{ID: 1, Enabled: true}
	chat, err := GetChatIfShouldNotify(context.Background(), repo, 1)
	if err != nil || chat == nil {
		t.Fatalf("expected enabled chat, got (%+v, %v)", chat, err)
	}
}

func TestGetChatIfShouldNotifyDisabledNonAdminSkips(t *testing.T) {
	repo := newFakeRepo()
	repo.chats[1] = model.Chat{ID: 1, Enabled: false}
	repo.users[1] = model.User{ID: 1, Role: model.RoleUser}
	chat, err := GetChatIfShouldNotify(context.Background(), repo, 1)
	if err != nil || chat != nil {
		t.Fatalf("expected skip, got (%+v, %v)", chat, err)
	}
}

func TestGetChatIfShouldNotifyDisabledAdminNotifies(t *testing.T) {
	repo := newFakeRepo()
	repo.chats[1] = model.Chat{ID: 1, Enabled: false}
	repo.users[1] = model.User{ID: 1, Role: model.RoleAdmin}
	chat, err := GetChatIfShouldNotify(context.Background(), repo, 1)
	if err != nil || chat == nil {
		t.Fatalf("expected admin override to notify, got (%+v, %v)", chat, err)
	}
}

func TestMapSendResultToPushResultCompleteSuccess(t *testing.T) {
	result := mapSendResultToPushResult(1, notifier.BatchSendResult{SucceededIndices: []int{0, 1}}, nil, []int{0, 1}, 2)
	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestMapSendResultToPushResultCompleteFailure(t *testing.T) {
	result := mapSendResultToPushResult(1, notifier.BatchSendResult{FailedIndices: []int{0}}, nil, []int{0}, 1)
	if !result.Failed {
		t.Fatalf("expected failure, got %+v", result)
	}
}

func TestMapSendResultToPushResultPartialMergesPreviouslySent(t *testing.T) {
	result := mapSendResultToPushResult(1,
		notifier.BatchSendResult{SucceededIndices: []int{0}, FailedIndices: []int{1}},
		[]int{3}, []int{1, 2}, 4)
	if !result.Partial {
		t.Fatalf("expected partial, got %+v", result)
	}
	want := []int{1, 3}
	if len(result.SentPages) != len(want) {
		t.Fatalf("expected sent pages %v, got %v", want, result.SentPages)
	}
	for i, v := range want {
		if result.SentPages[i] != v {
			t.Fatalf("expected sent pages %v, got %v", want, result.SentPages)
		}
	}
}

func newTestIllust(id uint64) pixiv.Illust {
	original := "https://i.pximg.net/img/original.jpg"
	return pixiv.Illust{
		ID:             id,
		Title:          "Test! Title",
		User:           pixiv.User{ID: 99, Name: "Artist"},
		Tags:           []pixiv.Tag{{Name: "Genshin Impact"}},
		TotalView:      100,
		TotalBookmarks: 10,
		PageCount:      1,
		MetaSinglePage: pixiv.MetaSinglePage{OriginalImageURL: &original},
	}
}

func TestProcessIllustPushFirstSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img-bytes"))
	}))
	defer srv.Close()

	illust := newTestIllust(1)
	original := srv.URL + "/a.jpg"
	illust.MetaSinglePage.OriginalImageURL = &original

	chat := &fakeChatClient{}
	cache := notifier.NewFileCache(context.Background(), t.TempDir(), 7, zerolog.Nop())
	n := notifier.New(chat, cache, nil, notifier.Config{GlobalRPS: 1000, ChatRPS: 1000, ChatBurst: 100}, zerolog.Nop())

	result, err := ProcessIllustPush(context.Background(), n, model.Chat{ID: 1}, illust, nil, pixiv.SizeOriginal)
	if err != nil {
		t.Fatalf("ProcessIllustPush: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
	if chat.photos != 1 {
		t.Fatalf("expected 1 photo, got %d", chat.photos)
	}
}

func TestProcessIllustPushAllPagesAlreadySent(t *testing.T) {
	illust := newTestIllust(1)
	chat := &fakeChatClient{}
	cache := notifier.NewFileCache(context.Background(), t.TempDir(), 7, zerolog.Nop())
	n := notifier.New(chat, cache, nil, notifier.Config{GlobalRPS: 1000, ChatRPS: 1000, ChatBurst: 100}, zerolog.Nop())

	result, err := ProcessIllustPush(context.Background(), n, model.Chat{ID: 1}, illust, []int{0}, pixiv.SizeOriginal)
	if err != nil {
		t.Fatalf("ProcessIllustPush: %v", err)
	}
	if !result.Success() || chat.photos != 0 {
		t.Fatalf("expected no-op success, got %+v (photos=%d)", result, chat.photos)
	}
}
