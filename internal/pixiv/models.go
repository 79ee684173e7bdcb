// Package pixiv is a client for the undocumented Pixiv mobile app API,
// covering only the endpoints the poller needs: author illusts, daily
// ranking, and user detail.
package pixiv

import "encoding/json"

// User is the author embedded in an Illust.
type User struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Account    string `json:"account"`
	IsFollowed *bool  `json:"is_followed,omitempty"`
}

// ImageURLs holds the size variants the app API returns per page.
type ImageURLs struct {
	SquareMedium string  `json:"square_medium"`
	Medium       string  `json:"medium"`
	Large        string  `json:"large"`
	Original     *string `json:"original,omitempty"`
}

// MetaSinglePage carries the original-size URL for single-page illusts.
type MetaSinglePage struct {
	OriginalImageURL *string `json:"original_image_url,omitempty"`
}

// MetaPage is one page of a multi-page illust.
type MetaPage struct {
	ImageURLs ImageURLs `json:"image_urls"`
}

// Tag is an illust tag; TranslatedName is absent for untranslated tags.
type Tag struct {
	Name           string  `json:"name"`
	TranslatedName *string `json:"translated_name,omitempty"`
}

// TagNames extracts the raw tag name from each entry, in order.
func TagNames(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// Illust is a single artwork as returned by the app API.
type Illust struct {
	ID              uint64          `json:"id"`
	Title           string          `json:"title"`
	Type            string          `json:"type"`
	ImageURLs       ImageURLs       `json:"image_urls"`
	Caption         string          `json:"caption"`
	Restrict        int             `json:"restrict"`
	User            User            `json:"user"`
	Tags            []Tag           `json:"tags"`
	CreateDate      string          `json:"create_date"`
	PageCount       int             `json:"page_count"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	SanityLevel     int             `json:"sanity_level"`
	XRestrict       int             `json:"x_restrict"`
	Series          json.RawMessage `json:"series,omitempty"`
	MetaSinglePage  MetaSinglePage  `json:"meta_single_page"`
	MetaPages       []MetaPage      `json:"meta_pages,omitempty"`
	TotalView       uint64          `json:"total_view"`
	TotalBookmarks  uint64          `json:"total_bookmarks"`
	IsBookmarked    bool            `json:"is_bookmarked"`
	Visible         bool            `json:"visible"`
	IsMuted         bool            `json:"is_muted"`
	TotalComments   *uint64         `json:"total_comments,omitempty"`
}

// ImageSize selects which URL variant AllImageURLs returns.
type ImageSize int

const (
	SizeOriginal ImageSize = iota
	SizeLarge
	SizeMedium
	SizeSquareMedium
)

// IsMultiPage reports whether the illust has more than one page.
func (i Illust) IsMultiPage() bool { return i.PageCount > 1 }

// AllImageURLs returns one URL per page at the requested size. Single-page
// illusts fall back to image_urls.large when the requested size has no
// original URL recorded, matching the app API's own omission of
// meta_single_page.original_image_url for some restricted illusts.
func (i Illust) AllImageURLs(size ImageSize) []string {
	if i.IsMultiPage() {
		urls := make([]string, len(i.MetaPages))
		for idx, page := range i.MetaPages {
			urls[idx] = selectImageURL(page.ImageURLs, size)
		}
		return urls
	}
	var url string
	switch size {
	case SizeOriginal:
		if i.MetaSinglePage.OriginalImageURL != nil {
			url = *i.MetaSinglePage.OriginalImageURL
		} else {
			url = i.ImageURLs.Large
		}
	default:
		url = selectImageURL(i.ImageURLs, size)
	}
	return []string{url}
}

func selectImageURL(urls ImageURLs, size ImageSize) string {
	switch size {
	case SizeOriginal:
		if urls.Original != nil {
			return *urls.Original
		}
		return urls.Large
	case SizeLarge:
		return urls.Large
	case SizeMedium:
		return urls.Medium
	case SizeSquareMedium:
		return urls.SquareMedium
	default:
		return urls.Large
	}
}

// FirstImageURL returns the single preview URL used for notification
// thumbnails and cache keys ahead of a full download.
func (i Illust) FirstImageURL() string {
	if i.MetaSinglePage.OriginalImageURL != nil {
		return *i.MetaSinglePage.OriginalImageURL
	}
	return i.ImageURLs.Large
}

// IllustDetail wraps a single-illust response.
type IllustDetail struct {
	Illust Illust `json:"illust"`
}

// UserIllusts wraps the author-illusts list response.
type UserIllusts struct {
	Illusts []Illust `json:"illusts"`
	NextURL *string  `json:"next_url,omitempty"`
}

// Ranking wraps the daily-ranking list response.
type Ranking struct {
	Illusts []Illust `json:"illusts"`
	NextURL *string  `json:"next_url,omitempty"`
}

// UserDetail wraps the user-detail response.
type UserDetail struct {
	User User `json:"user"`
}
