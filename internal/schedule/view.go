package schedule

import (
	"strings"
	"time"
)

const (
	All = "ALL"
	Now = "NOW"
)

// ViewState holds the timeline filter inputs.
type ViewState struct {
	Goal   string
	Month  string
	Search string
}

// Normalized fills empty selectors with ALL.
func (vs ViewState) Normalized() ViewState {
	if vs.Goal == "" {
		vs.Goal = All
	}
	if vs.Month == "" {
		vs.Month = All
	}
	return vs
}

func (vs ViewState) WithGoal(g string) ViewState {
	vs.Goal = g
	return vs
}

func (vs ViewState) WithMonth(m string) ViewState {
	vs.Month = m
	return vs
}

func (vs ViewState) WithSearch(q string) ViewState {
	vs.Search = q
	return vs
}

// Card is one entry as drawn inside a goal group.
type Card struct {
	Entry Entry
	Style Style
}

// Anchor is the element id for entries that carry one.
func (c Card) Anchor() string {
	if c.Entry.ID == "" {
		return ""
	}
	return "task-" + c.Entry.ID
}

type GoalGroup struct {
	Goal  string
	Style Style
	Cards []Card
}

type MonthSection struct {
	Key    string
	Pretty string
	IsNow  bool
	Goals  []GoalGroup
}

// Summary counts the filtered set.
type Summary struct {
	Tasks  int
	Months int
	Goals  int
}

// Option is one entry of a filter dropdown.
type Option struct {
	Value string
	Label string
	Style Style
}

// View is everything the timeline page needs to draw.
type View struct {
	State        ViewState
	NowKey       string
	NowPretty    string
	GoalOptions  []Option
	MonthOptions []Option
	Sections     []MonthSection
	Summary      Summary
}

func (v View) Empty() bool {
	return v.Summary.Tasks == 0
}

// Build filters entries and groups them into month sections. Colours are
// assigned over the unfiltered goal order so filtering never recolours a
// goal. now decides which month is current.
func Build(entries []Entry, vs ViewState, now time.Time) View {
	vs = vs.Normalized()
	nowKey := MonthKey(now)
	goals := Goals(entries)
	styles := StyleMap(goals)

	view := View{
		State:     vs,
		NowKey:    nowKey,
		NowPretty: PrettyMonth(nowKey),
	}
	view.GoalOptions = append(view.GoalOptions, Option{Value: All, Label: "All Goals"})
	for _, g := range goals {
		view.GoalOptions = append(view.GoalOptions, Option{Value: g, Label: g, Style: styles[g]})
	}
	view.MonthOptions = append(view.MonthOptions,
		Option{Value: All, Label: "All Months"},
		Option{Value: Now, Label: "Current Month (" + view.NowPretty + ")"},
	)
	for _, k := range MonthKeys(entries) {
		view.MonthOptions = append(view.MonthOptions, Option{Value: k, Label: PrettyMonth(k)})
	}

	rows := Filter(entries, vs, nowKey)
	view.Summary = Summarize(rows)

	byMonth := map[string][]Entry{}
	var keys []string
	for _, e := range rows {
		k := e.MonthKey()
		if _, ok := byMonth[k]; !ok {
			keys = append(keys, k)
		}
		byMonth[k] = append(byMonth[k], e)
	}

	for _, k := range SortMonthKeys(keys) {
		section := MonthSection{Key: k, Pretty: PrettyMonth(k), IsNow: k == nowKey}
		groupIdx := map[string]int{}
		for _, e := range byMonth[k] {
			i, ok := groupIdx[e.Goal]
			if !ok {
				i = len(section.Goals)
				groupIdx[e.Goal] = i
				section.Goals = append(section.Goals, GoalGroup{Goal: e.Goal, Style: styleFor(styles, e.Goal)})
			}
			section.Goals[i].Cards = append(section.Goals[i].Cards, Card{Entry: e, Style: styleFor(styles, e.Goal)})
		}
		view.Sections = append(view.Sections, section)
	}
	return view
}

// Filter applies the goal, month and search selectors. nowKey resolves the
// NOW month selector.
func Filter(entries []Entry, vs ViewState, nowKey string) []Entry {
	vs = vs.Normalized()
	q := strings.ToLower(strings.TrimSpace(vs.Search))
	month := vs.Month
	if month == Now {
		month = nowKey
	}
	month = strings.ToLower(month)

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if vs.Goal != All && e.Goal != vs.Goal {
			continue
		}
		if vs.Month != All && e.MonthKey() != month {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.ToDo+" "+e.Goal+" "+e.MonthYear), q) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summarize counts tasks, distinct non-empty months, and distinct goals.
func Summarize(rows []Entry) Summary {
	months := map[string]struct{}{}
	goals := map[string]struct{}{}
	for _, e := range rows {
		if k := e.MonthKey(); k != "" {
			months[k] = struct{}{}
		}
		goals[e.Goal] = struct{}{}
	}
	return Summary{Tasks: len(rows), Months: len(months), Goals: len(goals)}
}
