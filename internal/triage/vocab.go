package triage

import "strings"

// Fixed vocabularies used by the extractor and the ranker. All entries are
// lowercase; matching is case-insensitive.

type durationUnit struct {
	token  string
	factor int // minutes per unit
}

// durationUnits is ordered longest first so "minutes" wins over "min" and "m"
// at the same position.
var durationUnits = []durationUnit{
	{"minutes", 1},
	{"minute", 1},
	{"hours", 60},
	{"mins", 1},
	{"hour", 60},
	{"min", 1},
	{"hrs", 60},
	{"hr", 60},
	{"m", 1},
	{"h", 60},
}

// UnitMinutes reports the minutes per unit for a bare duration word such as
// "min" or "hours".
func UnitMinutes(word string) (int, bool) {
	for _, u := range durationUnits {
		if strings.EqualFold(word, u.token) {
			return u.factor, true
		}
	}
	return 0, false
}

// deadlineMarkers introduce a deadline token ("due friday", "deadline: 5/3", "by today").
var deadlineMarkers = []string{"deadline", "due", "by"}

var (
	immediateDeadlines = wordSet("today", "urgent", "now", "asap")
	nearDeadlines      = wordSet("tomorrow", "soon")
)

var (
	urgencyKeywords = []string{"urgent", "important", "critical", "asap", "priority", "blocking"}
	easyKeywords    = []string{"review", "check", "quick", "simple", "bug", "fix"}
)

// bulletGlyphs split candidate lines anywhere; '-' and '*' only count when leading.
var bulletGlyphs = map[rune]struct{}{
	'•': {}, '◦': {}, '‣': {}, '▪': {}, '●': {}, '·': {},
}

func isBulletGlyph(r rune) bool {
	_, ok := bulletGlyphs[r]
	return ok
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
