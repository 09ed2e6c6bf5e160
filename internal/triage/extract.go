package triage

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// minLineRunes discards fragments like "ok" or "a)" after marker stripping.
	minLineRunes = 3
	// maxDurationDigits keeps hour conversions far away from int overflow.
	maxDurationDigits = 5
)

// titleCutset is trimmed from both ends of a title once detections are removed.
const titleCutset = " \t-*•:,;."

type candidate struct {
	text      string
	completed bool
}

// Extract parses free-form task text into task records, one per qualifying
// line, in order of appearance. It never fails: text without tasks yields an
// empty slice.
func Extract(raw string) []Task {
	out := []Task{}
	for _, c := range candidateLines(raw) {
		if t, ok := extractLine(c); ok {
			out = append(out, t)
		}
	}
	return out
}

// candidateLines splits on newlines and bullet glyphs, then strips leading
// list markers ("-", "*", "1.", "2)", "[ ]", "[x]").
func candidateLines(raw string) []candidate {
	var out []candidate
	for _, line := range strings.Split(raw, "\n") {
		for _, piece := range strings.FieldsFunc(line, isBulletGlyph) {
			text, done := stripLeadingMarkers(piece)
			if utf8.RuneCountInString(text) < minLineRunes {
				continue
			}
			out = append(out, candidate{text: text, completed: done})
		}
	}
	return out
}

func stripLeadingMarkers(s string) (string, bool) {
	done := false
	for {
		s = strings.TrimSpace(s)
		if s == "" {
			return s, done
		}
		switch {
		case s[0] == '-' || s[0] == '*':
			s = s[1:]
		case hasCheckbox(s):
			done = done || s[1] == 'x' || s[1] == 'X'
			s = s[3:]
		default:
			n := numberingLen(s)
			if n == 0 {
				return s, done
			}
			s = s[n:]
		}
	}
}

func hasCheckbox(s string) bool {
	if len(s) < 3 || s[0] != '[' || s[2] != ']' {
		return false
	}
	switch s[1] {
	case ' ', 'x', 'X':
		return true
	}
	return false
}

// numberingLen returns the length of a leading "12." or "3)" marker, or 0.
// The marker must be followed by whitespace or end the string, so "3.5h" is
// left alone.
func numberingLen(s string) int {
	i := 0
	for i < len(s) && isASCIIDigit(s[i]) {
		i++
	}
	if i == 0 || i >= len(s) || (s[i] != '.' && s[i] != ')') {
		return 0
	}
	if i+1 < len(s) && s[i+1] != ' ' && s[i+1] != '\t' {
		return 0
	}
	return i + 1
}

func extractLine(c candidate) (Task, bool) {
	minutes, text := detectDuration(c.text)
	deadline, text := detectDeadline(text)
	title := cleanTitle(text)
	if title == "" {
		return Task{}, false
	}
	return Task{
		Title:            title,
		EstimatedMinutes: minutes,
		Deadline:         deadline,
		Completed:        c.completed,
	}, true
}

// detectDuration finds the first "<int><unit>" phrase, e.g. "15 min", "2h",
// "1 hour". It returns the estimate in minutes and s without the phrase.
func detectDuration(s string) (int, string) {
	for i := 0; i < len(s); i++ {
		if !isASCIIDigit(s[i]) || !numberStart(s, i) {
			continue
		}
		j := i
		for j < len(s) && isASCIIDigit(s[j]) {
			j++
		}
		if j-i > maxDurationDigits {
			i = j
			continue
		}
		k := skipBlanks(s, j)
		unit, ok := matchUnit(s[k:])
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s[i:j])
		if err != nil || n <= 0 {
			continue
		}
		end := k + len(unit.token)
		return n * unit.factor, s[:i] + " " + s[end:]
	}
	return DefaultMinutes, s
}

func matchUnit(rest string) (durationUnit, bool) {
	for _, u := range durationUnits {
		n := len(u.token)
		if len(rest) < n || !strings.EqualFold(rest[:n], u.token) {
			continue
		}
		if wordEnd(rest, n) {
			return u, true
		}
	}
	return durationUnit{}, false
}

// detectDeadline finds the first marker word followed by a token, e.g.
// "due friday", "deadline: 2025-01-31", "by today". Chained markers such as
// "due by monday" are consumed as one phrase.
func detectDeadline(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if !wordStart(s, i) {
			continue
		}
		q, ok := matchMarker(s, i)
		if !ok {
			continue
		}
		for {
			q = skipBlanks(s, q)
			if q < len(s) && s[q] == ':' {
				q = skipBlanks(s, q+1)
			}
			next, chained := matchMarker(s, q)
			if !chained {
				break
			}
			q = next
		}
		start := q
		for q < len(s) {
			r, size := utf8.DecodeRuneInString(s[q:])
			if !isTokenRune(r) {
				break
			}
			q += size
		}
		tok := strings.TrimRight(s[start:q], "-/.")
		if tok == "" {
			continue
		}
		end := start + len(tok)
		return tok, s[:i] + " " + s[end:]
	}
	return "", s
}

// matchMarker reports whether a deadline marker starts at i and returns the
// index just past it.
func matchMarker(s string, i int) (int, bool) {
	for _, m := range deadlineMarkers {
		n := len(m)
		if len(s)-i < n || !strings.EqualFold(s[i:i+n], m) {
			continue
		}
		if wordEnd(s, i+n) {
			return i + n, true
		}
	}
	return i, false
}

var bracketPairs = map[byte]byte{'(': ')', '[': ']', '{': '}'}

func cleanTitle(s string) string {
	s = dropEmptyBrackets(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, titleCutset)
}

// dropEmptyBrackets removes "()", "( )", "[ , ]" left behind after the
// duration and deadline phrases were cut out.
func dropEmptyBrackets(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if closer, ok := bracketPairs[s[i]]; ok {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == ',' || s[j] == ';') {
				j++
			}
			if j < len(s) && s[j] == closer {
				b.WriteByte(' ')
				i = j
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func skipBlanks(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func isASCIIDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '/' || r == '.'
}

func wordStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func wordEnd(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

// numberStart rejects digits glued to a word ("Q4") or a decimal ("1.5h").
func numberStart(s string, i int) bool {
	if !wordStart(s, i) {
		return false
	}
	if i == 0 {
		return true
	}
	prev := s[i-1]
	return prev != '.' && prev != ','
}
