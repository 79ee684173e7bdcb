package ehentai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/icceey/pixivbot-sub000/internal/provider"
	"github.com/rs/zerolog"
)

// Source picks which mirror a client talks to. ExHentai requires
// Credentials; EHentai works anonymously but hides some galleries.
type Source int

const (
	SourceEHentai Source = iota
	SourceExHentai
)

func (s Source) host() string {
	if s == SourceExHentai {
		return "https://exhentai.org"
	}
	return "https://e-hentai.org"
}

const apiURL = "https://api.e-hentai.org/api.php"
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36"

// Credentials are the three ipb_* cookies exhentai.org requires.
type Credentials struct {
	MemberID string
	PassHash string
	Igneous  string // optional
}

// Config configures a Client.
type Config struct {
	Source      Source
	Credentials *Credentials
}

// Client talks to e-hentai.org/exhentai.org: the gdata JSON API for
// gallery metadata, and the site's search HTML for keyword search.
type Client struct {
	http    *http.Client
	source  Source
	log     zerolog.Logger
	limiter *provider.RateLimiter
	breaker *provider.CircuitBreaker
}

// New builds a Client. ExHentai requires non-nil Credentials; EHentai
// ignores them.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Source == SourceExHentai && cfg.Credentials == nil {
		return nil, fmt.Errorf("ehentai: exhentai source requires credentials")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("ehentai: build cookie jar: %w", err)
	}
	if cfg.Credentials != nil {
		for _, host := range []string{"https://e-hentai.org", "https://exhentai.org"} {
			u, _ := url.Parse(host)
			cookies := []*http.Cookie{
				{Name: "ipb_member_id", Value: cfg.Credentials.MemberID},
				{Name: "ipb_pass_hash", Value: cfg.Credentials.PassHash},
			}
			if cfg.Credentials.Igneous != "" {
				cookies = append(cookies, &http.Cookie{Name: "igneous", Value: cfg.Credentials.Igneous})
			}
			jar.SetCookies(u, cookies)
		}
	}

	return &Client{
		http:    &http.Client{Jar: jar},
		source:  cfg.Source,
		log:     log.With().Str("component", "ehentai").Logger(),
		limiter: provider.NewRateLimiter("ehentai", provider.Limits{RequestsPerSecond: 1, BurstLimit: 2}),
		breaker: provider.NewCircuitBreaker(provider.DefaultBreakerConfig("ehentai")),
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/json,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// GetGalleryMetadata batches gallery lookups through the gdata API,
// chunking to 25 per request per the API's documented limit.
func (c *Client) GetGalleryMetadata(ctx context.Context, ids []GalleryID) ([]GalleryMetadata, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var all []GalleryMetadata
	for start := 0; start < len(ids); start += 25 {
		end := start + 25
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := c.gdataChunk(ctx, ids[start:end])
		if err != nil {
			return all, err
		}
		all = append(all, chunk...)
	}
	return all, nil
}

// GalleryID identifies a gallery for the gdata API.
type GalleryID struct {
	GID   uint64
	Token string
}

func (c *Client) gdataChunk(ctx context.Context, ids []GalleryID) ([]GalleryMetadata, error) {
	gidlist := make([][2]interface{}, len(ids))
	for i, id := range ids {
		gidlist[i] = [2]interface{}{id.GID, id.Token}
	}
	body, err := json.Marshal(map[string]interface{}{
		"method":    "gdata",
		"gidlist":   gidlist,
		"namespace": 1,
	})
	if err != nil {
		return nil, fmt.Errorf("ehentai: encode gdata request: %w", err)
	}

	var out galleryMetadataResponse
	err = c.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("ehentai: build gdata request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return &provider.Error{Provider: "ehentai", Code: provider.ErrCodeNetworkError, Message: err.Error(), Temporary: true, Cause: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &provider.Error{Provider: "ehentai", Code: provider.ErrCodeNetworkError, Message: err.Error(), Temporary: true, Cause: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &provider.Error{Provider: "ehentai", Code: provider.ErrCodeAPIError, Message: string(respBody), HTTPStatus: resp.StatusCode, Temporary: resp.StatusCode >= 500}
		}
		if err := json.Unmarshal(respBody, &out); err != nil {
			return &provider.Error{Provider: "ehentai", Code: provider.ErrCodeInvalidData, Message: err.Error(), Cause: err}
		}
		return nil
	})
	return out.GMetadata, err
}

// GetGallery fetches metadata for exactly one gallery.
func (c *Client) GetGallery(ctx context.Context, gid uint64, token string) (GalleryMetadata, error) {
	results, err := c.GetGalleryMetadata(ctx, []GalleryID{{GID: gid, Token: token}})
	if err != nil {
		return GalleryMetadata{}, err
	}
	if len(results) == 0 {
		return GalleryMetadata{}, &provider.Error{Provider: "ehentai", Code: provider.ErrCodeNotFound, Message: fmt.Sprintf("gallery %d/%s not found", gid, token)}
	}
	return results[0], nil
}

// SearchParams configures a keyword search.
type SearchParams struct {
	Query      string
	Categories []Category // empty means all categories
	MinRating  *int       // 2-5; out-of-range values are dropped
	Page       int
}

// Search fetches one page of search results and resolves full metadata
// for every gallery link found on the page.
func (c *Client) Search(ctx context.Context, params SearchParams) (SearchResult, error) {
	host := c.source.host()
	q := url.Values{"f_search": {params.Query}}
	if cats := CategoryFilterBits(params.Categories); cats > 0 {
		q.Set("f_cats", strconv.FormatUint(uint64(cats), 10))
	}
	if params.MinRating != nil && *params.MinRating >= 2 && *params.MinRating <= 5 {
		q.Set("f_srdd", strconv.Itoa(*params.MinRating))
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	reqURL := host + "/?" + q.Encode()

	var html string
	err := c.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("ehentai: build search request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return &provider.Error{Provider: "ehentai", Code: provider.ErrCodeNetworkError, Message: err.Error(), Temporary: true, Cause: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &provider.Error{Provider: "ehentai", Code: provider.ErrCodeNetworkError, Message: err.Error(), Temporary: true, Cause: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &provider.Error{Provider: "ehentai", Code: provider.ErrCodeAPIError, Message: string(body), HTTPStatus: resp.StatusCode, Temporary: resp.StatusCode >= 500}
		}
		html = string(body)
		return nil
	})
	if err != nil {
		return SearchResult{}, err
	}

	if IsAccessDenied(html) {
		return SearchResult{}, &provider.Error{Provider: "ehentai", Code: provider.ErrCodeBanned, Message: "exhentai access denied (sadpanda)"}
	}

	ids, hasNext, err := parseSearchLinks(html, params.Page)
	if err != nil {
		return SearchResult{}, fmt.Errorf("ehentai: parse search results: %w", err)
	}

	var galleries []GalleryMetadata
	if len(ids) > 0 {
		galleries, err = c.GetGalleryMetadata(ctx, ids)
		if err != nil {
			return SearchResult{}, err
		}
	}

	return SearchResult{Galleries: galleries, HasNext: hasNext, Page: params.Page}, nil
}

// IsAccessDenied detects e-hentai's "sadpanda" soft-block page: either the
// sadpanda.jpg image is embedded, or the response body is implausibly
// short to be a real search results page.
func IsAccessDenied(html string) bool {
	return strings.Contains(html, "sadpanda.jpg") || len(html) < 1000
}

// parseSearchLinks extracts unique (gid, token) pairs from gallery links
// on a search results page, in page order, and reports whether a "Next"
// page link is present.
func parseSearchLinks(html string, page int) ([]GalleryID, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, err
	}

	seen := make(map[uint64]bool)
	var ids []GalleryID
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		gid, token, ok := parseGalleryLink(href)
		if !ok || seen[gid] {
			return
		}
		seen[gid] = true
		ids = append(ids, GalleryID{GID: gid, Token: token})
	})

	hasNext := false
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == "Next" {
			hasNext = true
			return false
		}
		return true
	})
	if !hasNext {
		hasNext = strings.Contains(html, fmt.Sprintf("page=%d", page+1))
	}

	return ids, hasNext, nil
}

// parseGalleryLink extracts (gid, token) from an "/g/{gid}/{token}/" href
// on either e-hentai.org or exhentai.org.
func parseGalleryLink(href string) (gid uint64, token string, ok bool) {
	u, err := url.Parse(href)
	if err != nil {
		return 0, "", false
	}
	if u.Host != "e-hentai.org" && u.Host != "exhentai.org" {
		return 0, "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "g" {
		return 0, "", false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, parts[2], true
}

func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.breaker.Call(ctx, fn)
}
