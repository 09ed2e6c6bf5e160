package triage

import (
	"sort"
	"strings"
)

// Scoring weights. Discrete bonuses are whole numbers and the duration
// tie-break stays within (0, tieBreakScale], so it can only order tasks whose
// discrete bonuses are equal.
const (
	bonusImmediateDeadline = 30.0
	bonusNearDeadline      = 20.0
	bonusOtherDeadline     = 10.0

	quickWinMinutes = 10
	shortMinutes    = 15
	bonusQuickWin   = 5.0
	bonusShort      = 2.0

	bonusUrgentTitle = 15.0
	bonusEasyTitle   = 3.0

	tieBreakScale = 0.5
)

// Rank scores every task and returns a new slice ordered by descending
// score, then ascending duration, then input order. The input slice is not
// modified. Tasks without an estimate are treated as DefaultMinutes.
func Rank(tasks []Task) ([]Task, error) {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		nt, err := t.normalized(i)
		if err != nil {
			return nil, err
		}
		nt.PriorityScore = Score(nt)
		out[i] = nt
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].Minutes() < out[j].Minutes()
	})
	return out, nil
}

// Score computes the additive priority of a single task. It depends only on
// the task itself.
func Score(t Task) float64 {
	score := 0.0

	if dl := strings.ToLower(strings.TrimSpace(t.Deadline)); dl != "" {
		switch {
		case inSet(immediateDeadlines, dl):
			score += bonusImmediateDeadline
		case inSet(nearDeadlines, dl):
			score += bonusNearDeadline
		default:
			score += bonusOtherDeadline
		}
	}

	mins := t.Minutes()
	switch {
	case mins <= quickWinMinutes:
		score += bonusQuickWin
	case mins <= shortMinutes:
		score += bonusShort
	}

	title := strings.ToLower(t.Title)
	if containsAny(title, urgencyKeywords) {
		score += bonusUrgentTitle
	}
	if containsAny(title, easyKeywords) {
		score += bonusEasyTitle
	}

	return score + tieBreakScale/float64(mins)
}

func inSet(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
