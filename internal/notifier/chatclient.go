package notifier

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatClient is the outbound send surface the Notifier needs. It is an
// interface so tests can substitute a recording fake instead of hitting
// the real Telegram API. Every send returns the platform message ID(s) of
// what it delivered, so a caller can record which message a reply-based
// unsubscribe should match against.
type ChatClient interface {
	SendText(chatID int64, text string) (int64, error)
	SendPhoto(chatID int64, path, caption string, spoiler bool) (int64, error)
	SendMediaGroup(chatID int64, items []MediaItem) ([]int64, error)
}

// MediaItem is one photo in a batched media-group send.
type MediaItem struct {
	Path    string
	Caption string
	Spoiler bool
}

// TelegramClient implements ChatClient over the Telegram Bot API.
type TelegramClient struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramClient logs in with token and returns a ready client.
func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notifier: telegram login: %w", err)
	}
	return &TelegramClient{bot: bot}, nil
}

func (c *TelegramClient) SendText(chatID int64, text string) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return int64(sent.MessageID), nil
}

func (c *TelegramClient) SendPhoto(chatID int64, path, caption string, spoiler bool) (int64, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	photo.HasSpoiler = spoiler
	sent, err := c.bot.Send(photo)
	if err != nil {
		return 0, err
	}
	return int64(sent.MessageID), nil
}

func (c *TelegramClient) SendMediaGroup(chatID int64, items []MediaItem) ([]int64, error) {
	group := make([]interface{}, len(items))
	for i, item := range items {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(item.Path))
		photo.Caption = item.Caption
		photo.ParseMode = tgbotapi.ModeMarkdownV2
		photo.HasSpoiler = item.Spoiler
		group[i] = photo
	}
	cfg := tgbotapi.NewMediaGroup(chatID, group)
	sent, err := c.bot.SendMediaGroup(cfg)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(sent))
	for i, m := range sent {
		ids[i] = int64(m.MessageID)
	}
	return ids, nil
}
