package textutil

import "strings"

// Words that stay lowercase in title case unless first or last.
var smallWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "but": {}, "or": {}, "nor": {},
	"for": {}, "yet": {}, "so": {}, "at": {}, "by": {}, "in": {}, "of": {},
	"on": {}, "to": {}, "up": {}, "as": {}, "if": {}, "is": {}, "it": {},
	"da": {}, "tha": {},
}

// Abbreviations that stay ALL CAPS.
var uppercaseWords = map[string]struct{}{
	"dj": {}, "mc": {}, "ii": {}, "iii": {}, "iv": {}, "vi": {}, "vii": {},
	"viii": {}, "ix": {}, "xl": {}, "ep": {}, "lp": {}, "cd": {}, "uk": {},
	"us": {}, "usa": {}, "nyc": {}, "la": {}, "og": {}, "aka": {}, "ft": {},
	"feat": {}, "vs": {},
}

// Known artist names with official capitalization that plain title casing
// would mangle.
var artistOverrides = map[string]string{
	"2pac":              "2Pac",
	"outkast":           "OutKast",
	"dmx":               "DMX",
	"nas":               "Nas",
	"jay-z":             "Jay-Z",
	"jay z":             "Jay-Z",
	"dr. dre":           "Dr. Dre",
	"dr dre":            "Dr. Dre",
	"notorious b.i.g.":  "The Notorious B.I.G.",
	"nwa":               "N.W.A",
	"n.w.a":             "N.W.A",
	"tlc":               "TLC",
	"run dmc":           "Run-DMC",
	"run-dmc":           "Run-DMC",
	"dj screw":          "DJ Screw",
	"djscrew":           "DJ Screw",
	"dj_screw":          "DJ Screw",
	"e.s.g.":            "E.S.G.",
	"e.s.g":             "E.S.G.",
	"esg":               "E.S.G.",
	"lil keke":          "Lil' Keke",
	"lil' keke":         "Lil' Keke",
	"lil flip":          "Lil' Flip",
	"lil' flip":         "Lil' Flip",
	"z-ro":              "Z-Ro",
	"zro":               "Z-Ro",
	"s.u.c.":            "S.U.C.",
	"suc":               "S.U.C.",
	"al d":              "Al-D",
	"al-d":              "Al-D",
	"too $hort":         "Too $hort",
	"too short":         "Too $hort",
	"bone thugs-n-harmony": "Bone Thugs-N-Harmony",
	"bone thugs n harmony": "Bone Thugs-N-Harmony",
}

// SmartTitleCase applies title casing with music-aware rules: small words
// stay lowercase mid-title, known abbreviations stay ALL CAPS, mid-title
// words already in ALL CAPS are left alone, and known artist names use their
// official capitalization. The first and last words are always capitalized
// with the rest of the word lowercased.
func SmartTitleCase(text string) string {
	if text == "" {
		return text
	}
	if override, ok := artistOverrides[strings.ToLower(strings.TrimSpace(text))]; ok {
		return override
	}

	words := strings.Fields(text)
	lastIdx := len(words) - 1
	for i, word := range words {
		stripped := strings.Trim(word, "()[].,!?'\"")
		strippedLower := strings.ToLower(stripped)
		_, allCaps := uppercaseWords[strippedLower]
		_, small := smallWords[strippedLower]

		switch {
		case allCaps:
			words[i] = strings.Replace(word, stripped, strings.ToUpper(stripped), 1)
		case i == 0 || i == lastIdx:
			words[i] = capitalize(word)
		case small:
			words[i] = strings.ToLower(word)
		case stripped == strings.ToUpper(stripped) && len(stripped) >= 2:
			// Already ALL CAPS, could be intentional.
		default:
			words[i] = capitalize(word)
		}
	}
	return strings.Join(words, " ")
}

// NormalizeArtistName checks known artist overrides first, then applies
// smart title case.
func NormalizeArtistName(name string) string {
	if name == "" {
		return name
	}
	if override, ok := artistOverrides[strings.ToLower(strings.TrimSpace(name))]; ok {
		return override
	}
	return SmartTitleCase(name)
}

func capitalize(word string) string {
	runes := []rune(strings.ToLower(word))
	for i, r := range runes {
		if r >= 'a' && r <= 'z' {
			runes[i] = r - ('a' - 'A')
			break
		}
		if r >= '0' && r <= '9' {
			break
		}
	}
	return string(runes)
}
