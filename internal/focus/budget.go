package focus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errBudgetRange = errors.New("budget out of range")

// parseBudget accepts whole minutes ("45") or a Go duration ("1h30m").
func parseBudget(s string, maxMinutes int) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		d, derr := time.ParseDuration(s)
		if derr != nil {
			return 0, fmt.Errorf("not a number of minutes: %q", s)
		}
		n = int(d / time.Minute)
	}
	if n <= 0 || n > maxMinutes {
		return 0, fmt.Errorf("%w: %d (allowed 1-%d)", errBudgetRange, n, maxMinutes)
	}
	return n, nil
}

// looksLikeBudget reports whether the first argument was meant as a budget
// rather than the start of a task line.
func looksLikeBudget(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.Atoi(s); err == nil {
		return true
	}
	_, err := time.ParseDuration(s)
	return err == nil
}
