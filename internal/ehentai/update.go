package ehentai

import (
	"context"
	"strconv"
)

// maxParentHops bounds ResolveLatest against a malformed or cyclic
// parent_gid chain; no real gallery chain on e-hentai is this long.
const maxParentHops = 16

// ResolveLatest follows a gallery's parent_gid chain forward to the newest
// republished version. A gallery task polls the tracked GID directly, but
// e-hentai republishes edited doujinshi under a new gid pointing back at
// the original via parent_gid/parent_key — so the newest version must be
// fetched through that chain, not by re-resolving the tracked gid.
func (c *Client) ResolveLatest(ctx context.Context, meta GalleryMetadata) (GalleryMetadata, error) {
	current := meta
	for hop := 0; hop < maxParentHops; hop++ {
		if !current.HasParent() {
			return current, nil
		}
		gid, err := strconv.ParseUint(*current.ParentGID, 10, 64)
		if err != nil {
			return current, nil
		}
		var token string
		if current.ParentKey != nil {
			token = *current.ParentKey
		}
		next, err := c.GetGallery(ctx, gid, token)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}
