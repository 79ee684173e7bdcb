package ehentai

import "testing"

func TestCategoryFilterBitsInvertsSelection(t *testing.T) {
	bits := CategoryFilterBits([]Category{CategoryDoujinshi, CategoryManga})
	want := uint32(1023 ^ (2 | 4))
	if bits != want {
		t.Fatalf("got %d, want %d", bits, want)
	}
}

func TestCategoryFilterBitsEmptyMeansNoFilter(t *testing.T) {
	if bits := CategoryFilterBits(nil); bits != 0 {
		t.Fatalf("expected 0, got %d", bits)
	}
}

func TestIsAccessDeniedDetectsSadpanda(t *testing.T) {
	if !IsAccessDenied(`<img src="sadpanda.jpg">`) {
		t.Fatal("expected sadpanda image to be detected")
	}
}

func TestIsAccessDeniedDetectsShortBody(t *testing.T) {
	if !IsAccessDenied("too short") {
		t.Fatal("expected short body to be treated as access denied")
	}
}

func TestIsAccessDeniedAllowsNormalPage(t *testing.T) {
	long := make([]byte, 1500)
	for i := range long {
		long[i] = 'a'
	}
	if IsAccessDenied(string(long)) {
		t.Fatal("did not expect a long ordinary page to be flagged")
	}
}

func TestParsedTagsSplitsNamespace(t *testing.T) {
	g := GalleryMetadata{Tags: []string{"artist:foo", "language:english", "noNamespace"}}
	tags := g.ParsedTags()
	if len(tags) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(tags))
	}
	if tags[0].Namespace != "artist" || tags[0].Tag != "foo" {
		t.Fatalf("unexpected first tag: %+v", tags[0])
	}
	if tags[2].Namespace != "misc" || tags[2].Tag != "noNamespace" {
		t.Fatalf("unexpected fallback tag: %+v", tags[2])
	}
}

func TestHasParentRejectsZeroAndEmpty(t *testing.T) {
	zero := "0"
	empty := ""
	g := GalleryMetadata{ParentGID: &zero}
	if g.HasParent() {
		t.Fatal("gid \"0\" should not count as a parent")
	}
	g.ParentGID = &empty
	if g.HasParent() {
		t.Fatal("empty parent gid should not count as a parent")
	}
}

func TestHasParentRejectsSelfReference(t *testing.T) {
	self := "555"
	g := GalleryMetadata{GID: 555, ParentGID: &self}
	if g.HasParent() {
		t.Fatal("parent_gid equal to gid should not count as a parent")
	}

	other := "556"
	g.ParentGID = &other
	if !g.HasParent() {
		t.Fatal("parent_gid different from gid should count as a parent")
	}
}

func TestParseGalleryLink(t *testing.T) {
	gid, token, ok := parseGalleryLink("https://e-hentai.org/g/123456/abcdef0123/")
	if !ok || gid != 123456 || token != "abcdef0123" {
		t.Fatalf("got gid=%d token=%q ok=%v", gid, token, ok)
	}
	if _, _, ok := parseGalleryLink("https://e-hentai.org/s/abcd/123-1"); ok {
		t.Fatal("expected non-gallery link to be rejected")
	}
}
