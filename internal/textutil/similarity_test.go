package textutil

import (
	"strings"
	"testing"
)

func TestNormalizeStripsQualifiersAndTrackNumbers(t *testing.T) {
	cases := map[string]string{
		"  Here Comes The Sun  ":        "here comes the sun",
		"Here Comes The Sun [Remastered]": "here comes the sun",
		"Here Comes The Sun (Live)":     "here comes the sun",
		"07 - Here Comes The Sun":       "here comes the sun",
		"Beyoncé":                       "beyonce",
		"Motörhead":                     "motorhead",
	}
	for input, want := range cases {
		if got := Normalize(input); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSimilarityIdenticalAndDisjoint(t *testing.T) {
	if got := Similarity("Here Comes The Sun", "here comes the sun [remastered]"); got != 1 {
		t.Fatalf("normalized-identical strings should score 1, got %f", got)
	}
	if got := Similarity("", "anything"); got != 0 {
		t.Fatalf("empty input should score 0, got %f", got)
	}
}

func TestSimilarityTypoTolerance(t *testing.T) {
	got := Similarity("Here Comes th Sun", "Here Comes The Sun")
	if got < 0.85 {
		t.Fatalf("small typo should keep similarity high, got %f", got)
	}
	unrelated := Similarity("Here Comes The Sun", "Smells Like Teen Spirit")
	if unrelated >= got {
		t.Fatalf("unrelated titles (%f) should score below a typo (%f)", unrelated, got)
	}
}

func TestSimilarityWordReordering(t *testing.T) {
	if got := Similarity("Sun The Comes Here", "Here Comes The Sun"); got < 0.6 {
		t.Fatalf("reordered words should stay similar, got %f", got)
	}
}

func TestBestMatch(t *testing.T) {
	choices := []string{"June 27th", "9 Fo Shit", "Wineberry Over Gold"}
	match, ok := BestMatch("june 27", choices, 0.7)
	if !ok || match != "June 27th" {
		t.Fatalf("BestMatch = %q (%v), want June 27th", match, ok)
	}
	if _, ok := BestMatch("completely different", choices, 0.9); ok {
		t.Fatal("expected no match above threshold")
	}
}

func TestSanitizeFileNameReservedAndInvalid(t *testing.T) {
	if got := SanitizeFileName(`AC/DC: Back <in> Black?`); strings.ContainsAny(got, `<>:"/\|?*`) {
		t.Fatalf("invalid characters survived: %q", got)
	}
	for _, reserved := range []string{"CON", "con.mp3", "LPT1"} {
		got := SanitizeFileName(reserved)
		if strings.EqualFold(strings.SplitN(got, ".", 2)[0], strings.SplitN(reserved, ".", 2)[0]) {
			t.Errorf("reserved name %q not guarded: %q", reserved, got)
		}
	}
	if got := SanitizeFileName("   "); got != "Unknown" {
		t.Fatalf("blank name should become Unknown, got %q", got)
	}
}

func TestSanitizeFileNameLengthCap(t *testing.T) {
	long := strings.Repeat("a", 400)
	if got := SanitizeFileName(long); len(got) > 240 {
		t.Fatalf("component length %d exceeds cap", len(got))
	}
}

func TestEnforcePathLengthPreservesExtension(t *testing.T) {
	long := "/library/artist/" + strings.Repeat("x", 300) + ".mp3"
	got := EnforcePathLength(long, 255)
	if len(got) > 255 {
		t.Fatalf("path still too long: %d", len(got))
	}
	if !strings.HasSuffix(got, ".mp3") {
		t.Fatalf("extension lost: %q", got)
	}
}

func TestSmartTitleCase(t *testing.T) {
	cases := map[string]string{
		"here comes the sun": "Here Comes the Sun",
		"dj screw":           "DJ Screw",
		"2pac":               "2Pac",
		"straight outta compton": "Straight Outta Compton",
	}
	for input, want := range cases {
		if got := SmartTitleCase(input); got != want {
			t.Errorf("SmartTitleCase(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeArtistNameOverrides(t *testing.T) {
	if got := NormalizeArtistName("n.w.a"); got != "N.W.A" {
		t.Fatalf("override not applied: %q", got)
	}
}
