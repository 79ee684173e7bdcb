// Package ehentai is a client for the E-Hentai/ExHentai gallery API and
// search HTML, covering gallery metadata lookup, update detection via
// parent_gid chains, and keyword search.
package ehentai

import "strconv"

// Category is an e-hentai content category, used to build the f_cats
// search filter bitmask.
type Category string

const (
	CategoryDoujinshi Category = "doujinshi"
	CategoryManga     Category = "manga"
	CategoryArtistCG  Category = "artist cg"
	CategoryGameCG    Category = "game cg"
	CategoryWestern   Category = "western"
	CategoryNonH      Category = "non-h"
	CategoryImageSet  Category = "image set"
	CategoryCosplay   Category = "cosplay"
	CategoryAsianPorn Category = "asian porn"
	CategoryMisc      Category = "misc"
)

// categoryBitmask is e-hentai's internal bit assignment per category.
func categoryBitmask(cat Category) uint32 {
	switch cat {
	case CategoryDoujinshi:
		return 2
	case CategoryManga:
		return 4
	case CategoryArtistCG:
		return 8
	case CategoryGameCG:
		return 16
	case CategoryImageSet:
		return 32
	case CategoryCosplay:
		return 64
	case CategoryAsianPorn:
		return 128
	case CategoryNonH:
		return 256
	case CategoryWestern:
		return 512
	case CategoryMisc:
		return 1
	default:
		return 0
	}
}

// CategoryFilterBits computes the f_cats query value for a set of
// categories to include. e-hentai's f_cats is an EXCLUDE mask, so the
// selected bits are inverted against the full 1023 (all ten bits) mask.
func CategoryFilterBits(include []Category) uint32 {
	var mask uint32
	for _, c := range include {
		mask |= categoryBitmask(c)
	}
	if mask == 0 {
		return 0
	}
	return 1023 ^ mask
}

// GalleryMetadata is one gallery entry from the gdata API response.
type GalleryMetadata struct {
	GID          uint64   `json:"gid"`
	Token        string   `json:"token"`
	ArchiverKey  *string  `json:"archiver_key,omitempty"`
	Title        string   `json:"title"`
	TitleJpn     *string  `json:"title_jpn,omitempty"`
	Category     string   `json:"category"`
	Thumb        string   `json:"thumb"`
	Uploader     string   `json:"uploader"`
	Posted       string   `json:"posted"`
	FileCount    string   `json:"filecount"`
	FileSize     uint64   `json:"filesize"`
	Expunged     bool     `json:"expunged"`
	Rating       string   `json:"rating"`
	TorrentCount string   `json:"torrentcount"`
	ParentGID    *string  `json:"parent_gid,omitempty"`
	ParentKey    *string  `json:"parent_key,omitempty"`
	FirstGID     *string  `json:"first_gid,omitempty"`
	FirstKey     *string  `json:"first_key,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// URL returns the canonical e-hentai.org gallery page URL.
func (g GalleryMetadata) URL() string {
	return "https://e-hentai.org/g/" + strconv.FormatUint(g.GID, 10) + "/" + g.Token + "/"
}

// ExhentaiURL returns the exhentai.org mirror of the gallery page.
func (g GalleryMetadata) ExhentaiURL() string {
	return "https://exhentai.org/g/" + strconv.FormatUint(g.GID, 10) + "/" + g.Token + "/"
}

// RatingValue parses the string rating ("4.50") to a float, 0 on failure.
func (g GalleryMetadata) RatingValue() float64 {
	v, err := strconv.ParseFloat(g.Rating, 64)
	if err != nil {
		return 0
	}
	return v
}

// PostedAt parses the posted unix-timestamp string, 0 on failure.
func (g GalleryMetadata) PostedAt() int64 {
	v, err := strconv.ParseInt(g.Posted, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// HasParent reports whether this gallery metadata records a newer
// republished version: parent_gid must be present, non-zero, and
// different from this gallery's own gid. A parent_gid equal to gid is
// not an update.
func (g GalleryMetadata) HasParent() bool {
	if g.ParentGID == nil || *g.ParentGID == "" || *g.ParentGID == "0" {
		return false
	}
	return *g.ParentGID != strconv.FormatUint(g.GID, 10)
}

// GalleryTag is a parsed "namespace:tag" entry.
type GalleryTag struct {
	Namespace string
	Tag       string
}

// ParsedTags splits each raw "namespace:tag" string; entries with no
// namespace are bucketed under "misc", matching the site's own display
// convention for untagged entries.
func (g GalleryMetadata) ParsedTags() []GalleryTag {
	out := make([]GalleryTag, 0, len(g.Tags))
	for _, t := range g.Tags {
		ns, tag, ok := splitNamespace(t)
		if !ok {
			ns, tag = "misc", t
		}
		out = append(out, GalleryTag{Namespace: ns, Tag: tag})
	}
	return out
}

func splitNamespace(t string) (ns, tag string, ok bool) {
	for i := 0; i < len(t); i++ {
		if t[i] == ':' {
			return t[:i], t[i+1:], true
		}
	}
	return "", "", false
}

// FlatTagNames returns every tag's bare name (without namespace prefix),
// the form used for tag-filter matching.
func (g GalleryMetadata) FlatTagNames() []string {
	parsed := g.ParsedTags()
	names := make([]string, len(parsed))
	for i, t := range parsed {
		names[i] = t.Tag
	}
	return names
}

type galleryMetadataResponse struct {
	GMetadata []GalleryMetadata `json:"gmetadata"`
}

// SearchResult is one page of search results.
type SearchResult struct {
	Galleries []GalleryMetadata
	HasNext   bool
	Page      int
}
