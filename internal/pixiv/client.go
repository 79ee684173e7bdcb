package pixiv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/icceey/pixivbot-sub000/internal/provider"
	"github.com/rs/zerolog"
)

const appAPIHost = "https://app-api.pixiv.net"

// tokenState is the cached access token and its expiry, refreshed 60
// seconds early to dodge edge-of-expiry races.
type tokenState struct {
	accessToken string
	expiresAt   time.Time
}

func (t *tokenState) expired() bool {
	if t == nil {
		return true
	}
	return time.Now().After(t.expiresAt.Add(-60 * time.Second))
}

// Client talks to the Pixiv mobile app API. A single Client is shared
// across every author/ranking poll, so token refresh is guarded by an
// RWMutex: the common case (valid token) only ever takes the read lock.
type Client struct {
	http         *http.Client
	refreshToken string
	log          zerolog.Logger

	mu    sync.RWMutex
	token *tokenState

	refreshOnce sync.Mutex // serializes concurrent refreshes past the RWMutex check

	limiter *provider.RateLimiter
	breaker *provider.CircuitBreaker
}

// New builds a Client. refreshToken is the long-lived Pixiv OAuth refresh
// token issued out of band (the bot never performs interactive login).
func New(refreshToken string, log zerolog.Logger) *Client {
	return &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		refreshToken: refreshToken,
		log:          log.With().Str("component", "pixiv").Logger(),
		limiter:      provider.NewRateLimiter("pixiv", provider.Limits{RequestsPerSecond: 2, BurstLimit: 4}),
		breaker:      provider.NewCircuitBreaker(provider.DefaultBreakerConfig("pixiv")),
	}
}

// Login performs (or refreshes) the OAuth token exchange.
func (c *Client) Login(ctx context.Context) error {
	resp, err := authWithRefreshToken(ctx, c.http, c.refreshToken)
	if err != nil {
		return fmt.Errorf("pixiv: login: %w", err)
	}

	c.mu.Lock()
	c.token = &tokenState{
		accessToken: resp.AccessToken,
		expiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	c.mu.Unlock()

	c.log.Info().Int64("expires_in", resp.ExpiresIn).Msg("token refreshed")
	return nil
}

// ensureToken refreshes the access token if it is missing or near expiry.
// refreshOnce collapses concurrent callers into a single HTTP round trip.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	stale := c.token.expired()
	c.mu.RUnlock()
	if !stale {
		return nil
	}

	c.refreshOnce.Lock()
	defer c.refreshOnce.Unlock()

	c.mu.RLock()
	stale = c.token.expired()
	c.mu.RUnlock()
	if !stale {
		return nil
	}
	return c.Login(ctx)
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return ""
	}
	return c.token.accessToken
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	return c.breaker.Call(ctx, func(ctx context.Context) error {
		reqURL := appAPIHost + path
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("pixiv: build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("App-OS", "ios")
		req.Header.Set("App-OS-Version", "14.6")
		req.Header.Set("Authorization", "Bearer "+c.accessToken())

		resp, err := c.http.Do(req)
		if err != nil {
			return &provider.Error{Provider: "pixiv", Code: provider.ErrCodeNetworkError, Message: err.Error(), Temporary: true, Cause: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &provider.Error{Provider: "pixiv", Code: provider.ErrCodeNetworkError, Message: err.Error(), Temporary: true, Cause: err}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &provider.Error{Provider: "pixiv", Code: provider.ErrCodeAuthentication, Message: string(body), HTTPStatus: resp.StatusCode, Temporary: true}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &provider.Error{Provider: "pixiv", Code: provider.ErrCodeRateLimit, Message: string(body), HTTPStatus: resp.StatusCode, RateLimited: true, Temporary: true}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &provider.Error{Provider: "pixiv", Code: provider.ErrCodeAPIError, Message: string(body), HTTPStatus: resp.StatusCode, Temporary: resp.StatusCode >= 500}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return &provider.Error{Provider: "pixiv", Code: provider.ErrCodeInvalidData, Message: err.Error(), Cause: err}
		}
		return nil
	})
}

// UserIllusts lists an author's illusts, newest first. illustType filters
// to "illust" or "manga"; empty means both.
func (c *Client) UserIllusts(ctx context.Context, userID uint64, illustType string, offset int) (UserIllusts, error) {
	params := url.Values{
		"user_id": {strconv.FormatUint(userID, 10)},
		"filter":  {"for_ios"},
	}
	if illustType != "" {
		params.Set("type", illustType)
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	var out UserIllusts
	err := c.get(ctx, "/v1/user/illusts", params, &out)
	return out, err
}

// IllustRanking fetches one page of a daily ranking mode ("day", "week",
// "month", "day_male", "day_female", ...). date, if non-empty, is
// YYYY-MM-DD; empty means the latest available ranking.
func (c *Client) IllustRanking(ctx context.Context, mode, date string, offset int) (Ranking, error) {
	params := url.Values{
		"mode":   {mode},
		"filter": {"for_ios"},
	}
	if date != "" {
		params.Set("date", date)
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	var out Ranking
	err := c.get(ctx, "/v1/illust/ranking", params, &out)
	return out, err
}

// UserDetail fetches an author's current display name and account.
func (c *Client) UserDetail(ctx context.Context, userID uint64) (UserDetail, error) {
	params := url.Values{
		"user_id": {strconv.FormatUint(userID, 10)},
		"filter":  {"for_ios"},
	}
	var out UserDetail
	err := c.get(ctx, "/v1/user/detail", params, &out)
	return out, err
}

// IllustDetail fetches a single illust by id, used to re-check a pending
// push's page count and tags without waiting for the next author-feed poll.
func (c *Client) IllustDetail(ctx context.Context, illustID uint64) (IllustDetail, error) {
	params := url.Values{
		"illust_id": {strconv.FormatUint(illustID, 10)},
		"filter":    {"for_ios"},
	}
	var out IllustDetail
	err := c.get(ctx, "/v1/illust/detail", params, &out)
	return out, err
}

func decodeAuthResponse(resp *http.Response) (authResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return authResponse{}, fmt.Errorf("pixiv: read auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return authResponse{}, &provider.Error{
			Provider: "pixiv", Code: provider.ErrCodeAuthentication,
			Message: string(body), HTTPStatus: resp.StatusCode,
		}
	}
	var out authResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return authResponse{}, fmt.Errorf("pixiv: decode auth response: %w", err)
	}
	return out, nil
}
