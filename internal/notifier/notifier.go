// Package notifier delivers illust pushes to chat rooms: it downloads and
// caches source images, throttles outbound sends per chat, and reports a
// per-image success/failure breakdown so callers can drive retry state.
package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Image is one page to push: a source URL and whether it should be sent
// spoilered (sensitive-tag blur).
type Image struct {
	URL     string
	Spoiler bool
}

// Notifier composes the outbound chat client, a global and a per-chat
// throttle, the on-disk image cache, and the Redis-backed URL index that
// lets repeated illusts across subscriptions skip a redundant download.
type Notifier struct {
	chat  ChatClient
	cache *FileCache
	index *URLIndex
	http  *http.Client
	log   zerolog.Logger

	global *rate.Limiter

	mu       sync.Mutex
	perChat  map[int64]*rate.Limiter
	chatRPS  float64
	chatBurst int
}

// Config configures outbound throttling.
type Config struct {
	GlobalRPS float64
	ChatRPS   float64
	ChatBurst int
}

// New builds a Notifier.
func New(chat ChatClient, cache *FileCache, index *URLIndex, cfg Config, log zerolog.Logger) *Notifier {
	return &Notifier{
		chat:      chat,
		cache:     cache,
		index:     index,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log.With().Str("component", "notifier").Logger(),
		global:    rate.NewLimiter(rate.Limit(cfg.GlobalRPS), int(cfg.GlobalRPS*2)+1),
		perChat:   make(map[int64]*rate.Limiter),
		chatRPS:   cfg.ChatRPS,
		chatBurst: cfg.ChatBurst,
	}
}

func (n *Notifier) limiterFor(chatID int64) *rate.Limiter {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.perChat[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(n.chatRPS), n.chatBurst)
		n.perChat[chatID] = l
	}
	return l
}

func (n *Notifier) throttle(ctx context.Context, chatID int64) error {
	if err := n.global.Wait(ctx); err != nil {
		return err
	}
	return n.limiterFor(chatID).Wait(ctx)
}

// resolve downloads (or reuses the cached copy of) img.URL, returning its
// local path.
func (n *Notifier) resolve(ctx context.Context, img Image) (string, error) {
	if path, ok := n.cache.Get(img.URL); ok {
		return path, nil
	}
	if n.index != nil {
		if path, ok, err := n.index.Lookup(ctx, img.URL); err == nil && ok {
			if _, statOK := n.cache.Get(path); statOK {
				return path, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return "", fmt.Errorf("notifier: build download request: %w", err)
	}
	req.Header.Set("Referer", "https://www.pixiv.net/")

	resp, err := n.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("notifier: download %s: %w", img.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("notifier: download %s: status %d", img.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("notifier: read %s: %w", img.URL, err)
	}

	path, err := n.cache.Save(img.URL, data)
	if err != nil {
		return "", err
	}
	if n.index != nil {
		_ = n.index.Record(ctx, img.URL, path)
	}
	return path, nil
}

// SendImages pushes a set of pages to chatID as one text message (single
// page with no caption needed beyond it), a single photo, or chunked
// media groups (multi-page, 10 per Telegram's limit). A per-image download
// failure falls back to a plain-text message carrying that image's URL,
// rather than dropping it silently.
func (n *Notifier) SendImages(ctx context.Context, chatID int64, images []Image, caption string) (BatchSendResult, error) {
	if len(images) == 0 {
		return BatchSendResult{}, fmt.Errorf("notifier: no images to send")
	}
	if err := n.throttle(ctx, chatID); err != nil {
		return BatchSendResult{}, err
	}

	if len(images) == 1 {
		return n.sendSingle(ctx, chatID, images[0], caption), nil
	}
	return n.sendGroups(ctx, chatID, images, caption), nil
}

func (n *Notifier) sendSingle(ctx context.Context, chatID int64, img Image, caption string) BatchSendResult {
	path, err := n.resolve(ctx, img)
	if err != nil {
		n.log.Warn().Err(err).Str("url", img.URL).Msg("image download failed, falling back to text")
		msgID, textErr := n.chat.SendText(chatID, fmt.Sprintf("%s\n%s", caption, img.URL))
		if textErr != nil {
			return BatchSendResult{FailedIndices: []int{0}}
		}
		return BatchSendResult{SucceededIndices: []int{0}, FirstMessageID: &msgID}
	}
	msgID, err := n.chat.SendPhoto(chatID, path, caption, img.Spoiler)
	if err != nil {
		return BatchSendResult{FailedIndices: []int{0}}
	}
	return BatchSendResult{SucceededIndices: []int{0}, FirstMessageID: &msgID}
}

func (n *Notifier) sendGroups(ctx context.Context, chatID int64, images []Image, caption string) BatchSendResult {
	captions := make([]string, len(images))
	if len(captions) > 0 {
		captions[0] = caption
	}
	return n.sendChunked(ctx, chatID, images, captions)
}

// SendIndividualCaptions pushes images as one or more media groups (chunked
// at Telegram's 10-per-group limit), each item keeping its own caption
// rather than only the first item of the whole batch. Used for ranking
// pushes, where every illust is a distinct artwork with its own credit
// line instead of continuation pages of one illust.
func (n *Notifier) SendIndividualCaptions(ctx context.Context, chatID int64, images []Image, captions []string) (BatchSendResult, error) {
	if len(images) == 0 {
		return BatchSendResult{}, fmt.Errorf("notifier: no images to send")
	}
	if len(captions) != len(images) {
		return BatchSendResult{}, fmt.Errorf("notifier: captions/images length mismatch")
	}
	if err := n.throttle(ctx, chatID); err != nil {
		return BatchSendResult{}, err
	}
	if len(images) == 1 {
		return n.sendSingle(ctx, chatID, images[0], captions[0]), nil
	}
	return n.sendChunked(ctx, chatID, images, captions), nil
}

func (n *Notifier) sendChunked(ctx context.Context, chatID int64, images []Image, captions []string) BatchSendResult {
	var result BatchSendResult

	for start := 0; start < len(images); start += mediaGroupLimit {
		end := start + mediaGroupLimit
		if end > len(images) {
			end = len(images)
		}
		chunk := images[start:end]

		items := make([]MediaItem, 0, len(chunk))
		chunkIdx := make([]int, 0, len(chunk))
		for i, img := range chunk {
			path, err := n.resolve(ctx, img)
			if err != nil {
				n.log.Warn().Err(err).Str("url", img.URL).Msg("page download failed, dropped from media group")
				result.FailedIndices = append(result.FailedIndices, start+i)
				continue
			}
			items = append(items, MediaItem{Path: path, Caption: captions[start+i], Spoiler: img.Spoiler})
			chunkIdx = append(chunkIdx, start+i)
		}

		if len(items) == 0 {
			continue
		}
		msgIDs, err := n.chat.SendMediaGroup(chatID, items)
		if err != nil {
			n.log.Warn().Err(err).Msg("media group send failed")
			result.FailedIndices = append(result.FailedIndices, chunkIdx...)
			continue
		}
		result.SucceededIndices = append(result.SucceededIndices, chunkIdx...)
		if result.FirstMessageID == nil && len(msgIDs) > 0 {
			id := msgIDs[0]
			result.FirstMessageID = &id
		}
	}

	return result
}
