package tagfilter

import "testing"

func TestNormalizeStripsPunctuationAndLowercases(t *testing.T) {
	cases := map[string]string{
		"R-18":            "r18",
		"R_18":             "r_18",
		"Genshin Impact":  "genshinimpact",
		"原神":               "原神",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, tag := range []string{"R-18", "Genshin Impact", "已经是normalized"} {
		once := Normalize(tag)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", tag, once, twice)
		}
	}
}

func TestHashtagStripsWithoutLowercasing(t *testing.T) {
	cases := map[string]string{
		"Genshin Impact": "GenshinImpact",
		"R-18":           "R18",
		"test_tag":       "test_tag",
		"原神":             "原神",
	}
	for in, want := range cases {
		if got := Hashtag(in); got != want {
			t.Errorf("Hashtag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	f := ParseArgs([]string{"+foo", "-bar", "baz", "+", "-"})
	if len(f.Include) != 2 || f.Include[0] != "foo" || f.Include[1] != "baz" {
		t.Fatalf("unexpected include: %v", f.Include)
	}
	if len(f.Exclude) != 1 || f.Exclude[0] != "bar" {
		t.Fatalf("unexpected exclude: %v", f.Exclude)
	}
}

func TestMatchesEmptyFilterMatchesEverything(t *testing.T) {
	var f TagFilter
	if !f.Matches([]string{"anything"}) {
		t.Fatal("empty filter should match everything")
	}
	if !f.Matches(nil) {
		t.Fatal("empty filter should match even with no tags")
	}
}

func TestMatchesExcludeWins(t *testing.T) {
	f := TagFilter{Include: []string{"art"}, Exclude: []string{"r18"}}
	if f.Matches([]string{"art", "R-18"}) {
		t.Fatal("exclude should take priority over include")
	}
}

func TestMatchesRequiresOneInclude(t *testing.T) {
	f := TagFilter{Include: []string{"art", "photo"}}
	if !f.Matches([]string{"unrelated", "Photo"}) {
		t.Fatal("expected a normalized include match")
	}
	if f.Matches([]string{"unrelated"}) {
		t.Fatal("expected no match when no include tag is present")
	}
}

func TestMergedDoesNotMutateOriginals(t *testing.T) {
	a := TagFilter{Include: []string{"x"}}
	b := TagFilter{Exclude: []string{"y"}}
	merged := a.Merged(b)
	if len(a.Include) != 1 || len(a.Exclude) != 0 {
		t.Fatal("Merged mutated receiver")
	}
	if len(merged.Include) != 1 || len(merged.Exclude) != 1 {
		t.Fatalf("unexpected merged filter: %+v", merged)
	}
}

func TestValueScanRoundTrip(t *testing.T) {
	f := TagFilter{Include: []string{"a"}, Exclude: []string{"b"}}
	v, err := f.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var out TagFilter
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out.Include) != 1 || out.Include[0] != "a" || len(out.Exclude) != 1 || out.Exclude[0] != "b" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestScanNil(t *testing.T) {
	f := TagFilter{Include: []string{"a"}}
	if err := f.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !f.IsEmpty() {
		t.Fatal("Scan(nil) should reset to empty filter")
	}
}
