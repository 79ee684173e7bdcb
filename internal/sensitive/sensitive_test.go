package sensitive

import "testing"

func TestContainsSensitiveTagsMatchesNormalized(t *testing.T) {
	illustTags := []string{"R-18", "Genshin Impact"}
	sensitiveTags := []string{"r18"}
	if !ContainsSensitiveTags(illustTags, sensitiveTags) {
		t.Fatal("expected normalized match between R-18 and r18")
	}
}

func TestContainsSensitiveTagsNoMatch(t *testing.T) {
	illustTags := []string{"landscape"}
	sensitiveTags := []string{"r18", "nsfw"}
	if ContainsSensitiveTags(illustTags, sensitiveTags) {
		t.Fatal("did not expect a match")
	}
}

func TestContainsSensitiveTagsEmptyInputs(t *testing.T) {
	if ContainsSensitiveTags(nil, []string{"r18"}) {
		t.Fatal("no illust tags should never match")
	}
	if ContainsSensitiveTags([]string{"r18"}, nil) {
		t.Fatal("no sensitive tags configured should never match")
	}
}

func TestShouldBlurRespectsBlurToggle(t *testing.T) {
	illustTags := []string{"r18"}
	sensitiveTags := []string{"r18"}
	if ShouldBlur(false, illustTags, sensitiveTags) {
		t.Fatal("blur disabled should never blur")
	}
	if !ShouldBlur(true, illustTags, sensitiveTags) {
		t.Fatal("blur enabled with a sensitive-tag match should blur")
	}
}
