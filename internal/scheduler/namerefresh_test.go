package scheduler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/icceey/pixivbot-sub000/internal/model"
)

func newTestNameRefreshEngine(client PixivClient) *NameRefreshEngine {
	return NewNameRefreshEngine(nil, client, nil, 4, 30, zerolog.Nop())
}

func TestUpdateAllAuthorNamesUpdatesChangedNames(t *testing.T) {
	repo := newFakeRepo()
	old := "Old Name"
	repo.tasks[1] = model.Task{ID: 1, Type: model.TaskAuthor, Value: "100", AuthorName: &old}

	e := newTestNameRefreshEngine(&fakePixivClient{userDetail: map[uint64]string{100: "New Name"}})
	e.repo = repo

	if err := e.updateAllAuthorNames(context.Background()); err != nil {
		t.Fatalf("updateAllAuthorNames: %v", err)
	}
	if name := repo.tasks[1].AuthorName; name == nil || *name != "New Name" {
		t.Fatalf("expected author name updated to %q, got %v", "New Name", name)
	}
}

func TestUpdateAllAuthorNamesSkipsUnchanged(t *testing.T) {
	repo := newFakeRepo()
	name := "Same Name"
	repo.tasks[1] = model.Task{ID: 1, Type: model.TaskAuthor, Value: "100", AuthorName: &name}

	e := newTestNameRefreshEngine(&fakePixivClient{userDetail: map[uint64]string{100: "Same Name"}})
	e.repo = repo

	if err := e.updateAllAuthorNames(context.Background()); err != nil {
		t.Fatalf("updateAllAuthorNames: %v", err)
	}
	if got := *repo.tasks[1].AuthorName; got != "Same Name" {
		t.Fatalf("expected name left unchanged, got %q", got)
	}
}

func TestUpdateAllAuthorNamesSkipsInvalidTaskValue(t *testing.T) {
	repo := newFakeRepo()
	repo.tasks[1] = model.Task{ID: 1, Type: model.TaskAuthor, Value: "not-a-number"}

	e := newTestNameRefreshEngine(&fakePixivClient{})
	e.repo = repo

	if err := e.updateAllAuthorNames(context.Background()); err != nil {
		t.Fatalf("updateAllAuthorNames: %v", err)
	}
}
