package task

import (
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	dayLayout,
}

// ParseDate parses a sheet date. Values without an offset are read as UTC,
// values with one are converted to UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// OnlyForDate keeps tasks whose date falls on the given YYYY-MM-DD day.
// An empty day returns tasks unchanged; otherwise unparsable dates drop out.
func OnlyForDate(tasks []Task, day string) []Task {
	if day == "" {
		return tasks
	}
	return Where(tasks, func(t Task) bool {
		d, ok := ParseDate(t.DateISO)
		return ok && d.Format(dayLayout) == day
	})
}

type StatusMode string

const (
	StatusAll     StatusMode = "all"
	StatusPending StatusMode = "pending"
	StatusDone    StatusMode = "done"
)

// ParseStatusMode maps a control value to a mode; anything unknown is "all".
func ParseStatusMode(s string) StatusMode {
	switch StatusMode(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending
	case StatusDone:
		return StatusDone
	default:
		return StatusAll
	}
}

// Next cycles all -> pending -> done -> all.
func (m StatusMode) Next() StatusMode {
	switch m {
	case StatusAll:
		return StatusPending
	case StatusPending:
		return StatusDone
	default:
		return StatusAll
	}
}

// ViewState is the full set of filter inputs for one daily render. It is a
// value: every control change yields a new ViewState.
type ViewState struct {
	Date   string
	Status StatusMode
	Search string
}

func (vs ViewState) WithDate(day string) ViewState {
	vs.Date = day
	return vs
}

func (vs ViewState) WithStatus(m StatusMode) ViewState {
	vs.Status = m
	return vs
}

func (vs ViewState) WithSearch(q string) ViewState {
	vs.Search = q
	return vs
}

// Query is the normalized search text.
func (vs ViewState) Query() string {
	return strings.ToLower(strings.TrimSpace(vs.Search))
}

// Where returns the tasks satisfying pred, preserving order.
func Where(tasks []Task, pred func(Task) bool) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// StatusPredicate selects by completion under the given variant.
func StatusPredicate(mode StatusMode, v Variant) func(Task) bool {
	switch mode {
	case StatusPending:
		return func(t Task) bool { return !t.IsDone(v) }
	case StatusDone:
		return func(t Task) bool { return t.IsDone(v) }
	default:
		return func(Task) bool { return true }
	}
}

// SearchPredicate matches q (already trimmed and lowercased) against the
// task name and the goal id.
func SearchPredicate(q string) func(Task) bool {
	if q == "" {
		return func(Task) bool { return true }
	}
	return func(t Task) bool {
		return strings.Contains(strings.ToLower(t.TaskName), q) ||
			strings.Contains(strings.ToLower(t.MonthlyTaskID), q)
	}
}

// Apply runs the date, status and search filters.
func Apply(tasks []Task, vs ViewState, v Variant) []Task {
	status := StatusPredicate(vs.Status, v)
	search := SearchPredicate(vs.Query())
	return Where(OnlyForDate(tasks, vs.Date), func(t Task) bool {
		return status(t) && search(t)
	})
}
