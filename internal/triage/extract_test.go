package triage

import (
	"strings"
	"testing"
)

func TestExtractMixedList(t *testing.T) {
	t.Parallel()
	got := Extract("- Fix bug (15 min)\n- Write docs\n- Reply to urgent email due today")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (%+v)", len(got), got)
	}
	if got[0].Title != "Fix bug" || got[0].EstimatedMinutes != 15 {
		t.Fatalf("task 0 = %+v, want Fix bug / 15", got[0])
	}
	if got[1].Title != "Write docs" || got[1].EstimatedMinutes != DefaultMinutes || got[1].Deadline != "" {
		t.Fatalf("task 1 = %+v, want Write docs / default / no deadline", got[1])
	}
	if !strings.Contains(got[2].Deadline, "today") {
		t.Fatalf("task 2 deadline = %q, want today", got[2].Deadline)
	}
	if got[2].Title != "Reply to urgent email" {
		t.Fatalf("task 2 title = %q", got[2].Title)
	}
}

func TestExtractIndentedBullets(t *testing.T) {
	t.Parallel()
	raw := `
    - Review 3 pull requests
    - Fix authentication bug (15 min)
    - Write API documentation
    - Reply to Sarah about Q4 planning
    `
	got := Extract(raw)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4 (%+v)", len(got), got)
	}
	want := []struct {
		title string
		mins  int
	}{
		{"Review 3 pull requests", 10},
		{"Fix authentication bug", 15},
		{"Write API documentation", 10},
		{"Reply to Sarah about Q4 planning", 10},
	}
	for i, w := range want {
		if got[i].Title != w.title || got[i].EstimatedMinutes != w.mins {
			t.Fatalf("task %d = %q/%d, want %q/%d", i, got[i].Title, got[i].EstimatedMinutes, w.title, w.mins)
		}
	}
}

func TestExtractDurations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		line  string
		title string
		mins  int
	}{
		{name: "hours short", line: "Deep work 2h", title: "Deep work", mins: 120},
		{name: "hour word", line: "Call mom 1 hour", title: "Call mom", mins: 60},
		{name: "hours word", line: "Migrate db 2 Hours", title: "Migrate db", mins: 120},
		{name: "hrs", line: "Plan quarter 3 hrs", title: "Plan quarter", mins: 180},
		{name: "minutes short", line: "Stretch 5m", title: "Stretch", mins: 5},
		{name: "mins glued", line: "Inbox zero 30mins", title: "Inbox zero", mins: 30},
		{name: "minutes word", line: "Meditate 12 minutes", title: "Meditate", mins: 12},
		{name: "first match wins", line: "Write tests 20 min then 1h refactor", title: "Write tests then 1h refactor", mins: 20},
		{name: "unit must end word", line: "Read 5 meetings notes", title: "Read 5 meetings notes", mins: DefaultMinutes},
		{name: "hotfixes is not hours", line: "Review 3 hotfixes", title: "Review 3 hotfixes", mins: DefaultMinutes},
		{name: "glued to word", line: "Q4 planning", title: "Q4 planning", mins: DefaultMinutes},
		{name: "zero ignored", line: "Nap 0 min", title: "Nap 0 min", mins: DefaultMinutes},
		{name: "decimal hours not parsed", line: "Study 1.5h", title: "Study 1.5h", mins: DefaultMinutes},
		{name: "parenthesised", line: "Fix login (45 min)", title: "Fix login", mins: 45},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.line)
			if len(got) != 1 {
				t.Fatalf("Extract(%q) len = %d, want 1", tt.line, len(got))
			}
			if got[0].Title != tt.title {
				t.Fatalf("Title = %q, want %q", got[0].Title, tt.title)
			}
			if got[0].EstimatedMinutes != tt.mins {
				t.Fatalf("EstimatedMinutes = %d, want %d", got[0].EstimatedMinutes, tt.mins)
			}
		})
	}
}

func TestExtractDeadlines(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		line     string
		title    string
		deadline string
	}{
		{name: "due word", line: "Submit report due friday", title: "Submit report", deadline: "friday"},
		{name: "deadline colon date", line: "File taxes deadline: 2025-04-15", title: "File taxes", deadline: "2025-04-15"},
		{name: "by relative", line: "Call bank by tomorrow.", title: "Call bank", deadline: "tomorrow"},
		{name: "chained markers", line: "Ship release due by monday", title: "Ship release", deadline: "monday"},
		{name: "due colon", line: "Update documentation due: today", title: "Update documentation", deadline: "today"},
		{name: "slash date", line: "Book flights by 5/3", title: "Book flights", deadline: "5/3"},
		{name: "marker inside word", line: "Goodbye party prep", title: "Goodbye party prep", deadline: ""},
		{name: "dangling marker", line: "Things to finish by", title: "Things to finish by", deadline: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.line)
			if len(got) != 1 {
				t.Fatalf("Extract(%q) len = %d, want 1", tt.line, len(got))
			}
			if got[0].Title != tt.title {
				t.Fatalf("Title = %q, want %q", got[0].Title, tt.title)
			}
			if got[0].Deadline != tt.deadline {
				t.Fatalf("Deadline = %q, want %q", got[0].Deadline, tt.deadline)
			}
		})
	}
}

func TestExtractDurationAndDeadline(t *testing.T) {
	t.Parallel()
	got := Extract("Reply to urgent email (15 min) due today")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Title != "Reply to urgent email" || got[0].EstimatedMinutes != 15 || got[0].Deadline != "today" {
		t.Fatalf("task = %+v", got[0])
	}
}

func TestExtractMarkers(t *testing.T) {
	t.Parallel()
	raw := "1. First task\n2) Second task\n* third task\n• fourth • fifth task\n- [x] Pay rent\n- [ ] Buy milk"
	got := Extract(raw)
	want := []string{"First task", "Second task", "third task", "fourth", "fifth task", "Pay rent", "Buy milk"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%+v)", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Title != w {
			t.Fatalf("task %d title = %q, want %q", i, got[i].Title, w)
		}
	}
	if !got[5].Completed || got[6].Completed {
		t.Fatalf("checkbox state = %v/%v, want true/false", got[5].Completed, got[6].Completed)
	}
}

func TestExtractDiscardsNoise(t *testing.T) {
	t.Parallel()
	tests := []string{
		"",
		"   \n\t\n",
		"ok\n-\n--\nab",
		"- 30 min",
		"- due today",
		"* (15 min)",
	}
	for _, raw := range tests {
		got := Extract(raw)
		if got == nil {
			t.Fatalf("Extract(%q) = nil, want empty slice", raw)
		}
		if len(got) != 0 {
			t.Fatalf("Extract(%q) = %+v, want none", raw, got)
		}
	}
}

func TestExtractRecordsAlwaysValid(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"- a\n- bb\n- ccc\n- 1h\n- due\n- by by by\n",
		"9999999 minutes of silence\n12345 h marathon",
		"• • • ••\n---\n***\n1.\n2)\n[x]\n",
		"Fix:: ,, ;; ()[]{} bug 1m",
		"émail café 5 min due demain",
		"0h 0m 00 mins",
	}
	for _, raw := range inputs {
		for _, task := range Extract(raw) {
			if strings.TrimSpace(task.Title) == "" || task.Title != strings.TrimSpace(task.Title) {
				t.Fatalf("Extract(%q) produced bad title %q", raw, task.Title)
			}
			if task.EstimatedMinutes <= 0 {
				t.Fatalf("Extract(%q) produced non-positive estimate %d", raw, task.EstimatedMinutes)
			}
		}
	}
}
