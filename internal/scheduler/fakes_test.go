package scheduler

import (
	"context"
	"time"

	"github.com/icceey/pixivbot-sub000/internal/ehentai"
	"github.com/icceey/pixivbot-sub000/internal/model"
	"github.com/icceey/pixivbot-sub000/internal/notifier"
	"github.com/icceey/pixivbot-sub000/internal/pixiv"
)

// fakeChatClient records every outbound send instead of hitting Telegram.
// Each accepted send is assigned the next sequential message ID, mimicking
// the platform handing back a real message ID per delivery.
type fakeChatClient struct {
	texts     []string
	photos    int
	groups    [][]notifier.MediaItem
	fail      bool
	nextMsgID int64
}

func (f *fakeChatClient) newMessageID() int64 {
	f.nextMsgID++
	return f.nextMsgID
}

func (f *fakeChatClient) SendText(chatID int64, text string) (int64, error) {
	f.texts = append(f.texts, text)
	return f.newMessageID(), nil
}
func (f *fakeChatClient) SendPhoto(chatID int64, path, caption string, spoiler bool) (int64, error) {
	if f.fail {
		return 0, errFakeSendFailed
	}
	f.photos++
	return f.newMessageID(), nil
}
func (f *fakeChatClient) SendMediaGroup(chatID int64, items []notifier.MediaItem) ([]int64, error) {
	if f.fail {
		return nil, errFakeSendFailed
	}
	f.groups = append(f.groups, items)
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = f.newMessageID()
	}
	return ids, nil
}

type fakeSendError struct{ msg string }

func (e *fakeSendError) Error() string { return e.msg }

var errFakeSendFailed = &fakeSendError{"send failed"}

// fakeRepo is an in-memory repository.Repository for engine and push
// tests. Only the methods the scheduler package actually calls are
// exercised meaningfully; the rest are present to satisfy the interface.
type fakeRepo struct {
	chats map[int64]model.Chat
	users map[int64]model.User
	tasks map[int32]model.Task
	subs  map[int32]model.Subscription

	updatedStates map[int32]model.SubscriptionState
	polledTasks   map[int32]time.Time
	savedMessages []model.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		chats:         map[int64]model.Chat{},
		users:         map[int64]model.User{},
		tasks:         map[int32]model.Task{},
		subs:          map[int32]model.Subscription{},
		updatedStates: map[int32]model.SubscriptionState{},
		polledTasks:   map[int32]time.Time{},
	}
}

func (r *fakeRepo) GetChat(ctx context.Context, chatID int64) (*model.Chat, error) {
	c, ok := r.chats[chatID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
func (r *fakeRepo) UpsertChat(ctx context.Context, chat model.Chat) error {
	r.chats[chat.ID] = chat
	return nil
}
func (r *fakeRepo) UpdateChatSettings(ctx context.Context, chat model.Chat) error {
	r.chats[chat.ID] = chat
	return nil
}

func (r *fakeRepo) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
func (r *fakeRepo) UpsertUser(ctx context.Context, user model.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeRepo) GetTask(ctx context.Context, id int32) (*model.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}
func (r *fakeRepo) GetOrCreateTask(ctx context.Context, taskType model.TaskType, value string) (model.Task, error) {
	for _, t := range r.tasks {
		if t.Type == taskType && t.Value == value {
			return t, nil
		}
	}
	t := model.Task{ID: int32(len(r.tasks) + 1), Type: taskType, Value: value}
	r.tasks[t.ID] = t
	return t, nil
}
func (r *fakeRepo) GetPendingTasksByType(ctx context.Context, taskType model.TaskType, limit int) ([]model.Task, error) {
	var out []model.Task
	for _, t := range r.tasks {
		if t.Type == taskType {
			out = append(out, t)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (r *fakeRepo) GetAllTasksByType(ctx context.Context, taskType model.TaskType) ([]model.Task, error) {
	var out []model.Task
	for _, t := range r.tasks {
		if t.Type == taskType {
			out = append(out, t)
		}
	}
	return out, nil
}
func (r *fakeRepo) UpdateTaskAfterPoll(ctx context.Context, taskID int32, nextPollAt time.Time) error {
	r.polledTasks[taskID] = nextPollAt
	return nil
}
func (r *fakeRepo) UpdateTaskAuthorName(ctx context.Context, taskID int32, name *string) error {
	t := r.tasks[taskID]
	t.AuthorName = name
	r.tasks[taskID] = t
	return nil
}
func (r *fakeRepo) DeleteTask(ctx context.Context, id int32) error {
	delete(r.tasks, id)
	return nil
}

func (r *fakeRepo) GetSubscription(ctx context.Context, id int32) (*model.Subscription, error) {
	s, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
func (r *fakeRepo) ListSubscriptionsByTask(ctx context.Context, taskID int32) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, s := range r.subs {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (r *fakeRepo) ListSubscriptionsByChat(ctx context.Context, chatID int64) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, s := range r.subs {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (r *fakeRepo) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	sub.ID = int32(len(r.subs) + 1)
	r.subs[sub.ID] = sub
	return sub, nil
}
func (r *fakeRepo) DeleteSubscription(ctx context.Context, id int32) error {
	delete(r.subs, id)
	return nil
}
func (r *fakeRepo) UpdateSubscriptionLatestData(ctx context.Context, id int32, state model.SubscriptionState) error {
	r.updatedStates[id] = state
	sub := r.subs[id]
	sub.LatestData = state
	r.subs[id] = sub
	return nil
}

func (r *fakeRepo) SaveMessage(ctx context.Context, chatID, messageID int64, subscriptionID int32, illustID *uint64) error {
	r.savedMessages = append(r.savedMessages, model.Message{
		ChatID:         chatID,
		MessageID:      messageID,
		SubscriptionID: subscriptionID,
		IllustID:       illustID,
	})
	return nil
}
func (r *fakeRepo) GetMessage(ctx context.Context, chatID, messageID int64) (*model.Message, error) {
	return nil, nil
}

// fakePixivClient serves canned responses for the three upstream calls the
// engines make.
type fakePixivClient struct {
	userIllusts  map[uint64][]pixiv.Illust
	ranking      []pixiv.Illust
	userDetail   map[uint64]string
	illustDetail map[uint64]pixiv.Illust
	detailErr    error
}

func (c *fakePixivClient) UserIllusts(ctx context.Context, userID uint64, illustType string, offset int) (pixiv.UserIllusts, error) {
	return pixiv.UserIllusts{Illusts: c.userIllusts[userID]}, nil
}
func (c *fakePixivClient) IllustRanking(ctx context.Context, mode, date string, offset int) (pixiv.Ranking, error) {
	return pixiv.Ranking{Illusts: c.ranking}, nil
}
func (c *fakePixivClient) UserDetail(ctx context.Context, userID uint64) (pixiv.UserDetail, error) {
	return pixiv.UserDetail{User: pixiv.User{ID: userID, Name: c.userDetail[userID]}}, nil
}
func (c *fakePixivClient) IllustDetail(ctx context.Context, illustID uint64) (pixiv.IllustDetail, error) {
	if c.detailErr != nil {
		return pixiv.IllustDetail{}, c.detailErr
	}
	illust, ok := c.illustDetail[illustID]
	if !ok {
		return pixiv.IllustDetail{}, errFakeIllustNotFound
	}
	return pixiv.IllustDetail{Illust: illust}, nil
}

var errFakeIllustNotFound = &fakeSendError{"illust not found"}

// fakeEhClient serves canned responses for the two upstream calls EhEngine
// makes, keyed by (gid,token) for galleries and returning a fixed result
// list for every search regardless of params.
type fakeEhClient struct {
	galleries map[uint64]ehentai.GalleryMetadata
	latest    map[uint64]ehentai.GalleryMetadata // resolved chain head, keyed by the gid passed to ResolveLatest
	search    []ehentai.GalleryMetadata
	searchErr error
}

func (c *fakeEhClient) GetGallery(ctx context.Context, gid uint64, token string) (ehentai.GalleryMetadata, error) {
	return c.galleries[gid], nil
}
func (c *fakeEhClient) ResolveLatest(ctx context.Context, meta ehentai.GalleryMetadata) (ehentai.GalleryMetadata, error) {
	if latest, ok := c.latest[meta.GID]; ok {
		return latest, nil
	}
	return meta, nil
}
func (c *fakeEhClient) Search(ctx context.Context, params ehentai.SearchParams) (ehentai.SearchResult, error) {
	if c.searchErr != nil {
		return ehentai.SearchResult{}, c.searchErr
	}
	return ehentai.SearchResult{Galleries: c.search}, nil
}
