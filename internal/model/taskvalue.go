package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EhSearchParams is the decoded form of an eh_search task's Value.
//
// Encoding: "query|stars=N|cats=a,b" — pipe-separated, first segment is the
// free text, subsequent key=value segments sorted by key. The category
// list within `cats=` is NOT sorted (spec §9 open question (a)): two
// searches differing only in category-list order collide under the
// (type,value) uniqueness constraint. That is a known, accepted risk, not
// a bug — left as-is per the spec's explicit instruction not to guess.
type EhSearchParams struct {
	Query      string
	MinRating  *int
	Categories []string // raw category tokens, order as supplied by the caller
}

// Encode produces the canonical eh_search task value for these params.
func (p EhSearchParams) Encode() string {
	segs := []string{p.Query}
	kv := map[string]string{}
	if p.MinRating != nil {
		kv["stars"] = strconv.Itoa(*p.MinRating)
	}
	if len(p.Categories) > 0 {
		kv["cats"] = strings.Join(p.Categories, ",")
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		segs = append(segs, fmt.Sprintf("%s=%s", k, kv[k]))
	}
	return strings.Join(segs, "|")
}

// ParseEhSearchParams decodes a task value produced by Encode.
func ParseEhSearchParams(value string) (EhSearchParams, error) {
	segs := strings.Split(value, "|")
	if len(segs) == 0 {
		return EhSearchParams{}, fmt.Errorf("model: empty eh_search task value")
	}
	params := EhSearchParams{Query: segs[0]}
	for _, seg := range segs[1:] {
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			return EhSearchParams{}, fmt.Errorf("model: malformed eh_search segment %q", seg)
		}
		switch k {
		case "stars":
			n, err := strconv.Atoi(v)
			if err != nil {
				return EhSearchParams{}, fmt.Errorf("model: invalid stars segment %q: %w", seg, err)
			}
			params.MinRating = &n
		case "cats":
			if v != "" {
				params.Categories = strings.Split(v, ",")
			}
		default:
			return EhSearchParams{}, fmt.Errorf("model: unknown eh_search key %q", k)
		}
	}
	return params, nil
}

// EhGalleryValue encodes/decodes an eh_gallery task value: "gid" or
// "gid/token".
type EhGalleryValue struct {
	GID   int64
	Token string // empty when the task value carries no token
}

func (g EhGalleryValue) Encode() string {
	if g.Token == "" {
		return strconv.FormatInt(g.GID, 10)
	}
	return fmt.Sprintf("%d/%s", g.GID, g.Token)
}

func ParseEhGalleryValue(value string) (EhGalleryValue, error) {
	gid, token, ok := strings.Cut(value, "/")
	id, err := strconv.ParseInt(gid, 10, 64)
	if err != nil {
		return EhGalleryValue{}, fmt.Errorf("model: invalid eh_gallery gid %q: %w", gid, err)
	}
	if !ok {
		return EhGalleryValue{GID: id}, nil
	}
	return EhGalleryValue{GID: id, Token: token}, nil
}

// ParseAuthorID decodes an author task's decimal author-id value.
func ParseAuthorID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("model: invalid author task value %q: %w", value, err)
	}
	return id, nil
}
