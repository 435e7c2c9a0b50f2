// Package schedule builds the monthly timeline: entries grouped by month and
// goal, with a stable colour per goal and the current month highlighted.
package schedule

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/milkdiary/internal/task"
)

// Entry is one row of the monthly sheet.
type Entry struct {
	ToDo      string `json:"to_do"`
	Goal      string `json:"Goals"`
	MonthYear string `json:"month_year"`
	PrepPhase string `json:"prep_phase,omitempty"`
	ID        string `json:"id,omitempty"`
}

// MonthKey is the lowercased month_year grouping key.
func (e Entry) MonthKey() string {
	return strings.ToLower(e.MonthYear)
}

// Coerce maps array-form rows to entries. The first row is always the
// header; cells are matched to fields by header name.
func Coerce(rows [][]any) []Entry {
	if len(rows) == 0 {
		return []Entry{}
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = task.CellString(h)
	}
	objects := make([]map[string]any, 0, len(rows)-1)
	for _, r := range rows[1:] {
		obj := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(r) {
				obj[h] = r[i]
			}
		}
		objects = append(objects, obj)
	}
	return FromObjects(objects)
}

// FromObjects maps key-value rows to entries.
func FromObjects(rows []map[string]any) []Entry {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			ToDo:      task.CellString(r["to_do"]),
			Goal:      task.CellString(r["Goals"]),
			MonthYear: task.CellString(r["month_year"]),
			PrepPhase: task.CellString(r["prep_phase"]),
			ID:        task.CellString(r["id"]),
		})
	}
	return out
}

// Decode parses a JSON document holding either form of rows.
func Decode(data []byte) ([]Entry, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if len(raw) == 0 {
		return []Entry{}, nil
	}
	var arrays [][]any
	if err := json.Unmarshal(data, &arrays); err == nil {
		return Coerce(arrays), nil
	}
	var objects []map[string]any
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("schedule rows are neither arrays nor objects: %w", err)
	}
	return FromObjects(objects), nil
}

// Months is the month abbreviation table used for keys and ordering.
var Months = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sept", "oct", "nov", "dec"}

var monthNames = map[string]string{
	"jan": "January", "feb": "February", "mar": "March", "apr": "April",
	"may": "May", "jun": "June", "jul": "July", "aug": "August",
	"sept": "September", "oct": "October", "nov": "November", "dec": "December",
}

const unknownMonth = 99

// MonthKey formats t as a month_year key, e.g. "sept_2024".
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%s_%d", Months[int(t.Month())-1], t.Year())
}

// PrettyMonth renders a key as "October 2024"; unknown abbreviations are
// shown as-is.
func PrettyMonth(key string) string {
	if key == "" {
		return ""
	}
	m, y, _ := strings.Cut(key, "_")
	name, ok := monthNames[m]
	if !ok {
		name = m
	}
	return name + " " + y
}

func monthIndex(m string) int {
	for i, abbr := range Months {
		if abbr == m {
			return i
		}
	}
	return unknownMonth
}

func yearOf(y string) int {
	n, err := strconv.Atoi(y)
	if err != nil {
		return math.MaxInt
	}
	return n
}

// SortMonthKeys orders keys by year, then by month table position. Keys
// with an unknown abbreviation sort last within their year.
func SortMonthKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.SliceStable(out, func(i, j int) bool {
		mi, yi, _ := strings.Cut(out[i], "_")
		mj, yj, _ := strings.Cut(out[j], "_")
		if a, b := yearOf(yi), yearOf(yj); a != b {
			return a < b
		}
		return monthIndex(mi) < monthIndex(mj)
	})
	return out
}

// Goals returns the distinct non-empty goals in first-seen order.
func Goals(entries []Entry) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range entries {
		if e.Goal == "" {
			continue
		}
		if _, ok := seen[e.Goal]; ok {
			continue
		}
		seen[e.Goal] = struct{}{}
		out = append(out, e.Goal)
	}
	return out
}

// MonthKeys returns the distinct non-empty month keys in chronological order.
func MonthKeys(entries []Entry) []string {
	seen := map[string]struct{}{}
	var keys []string
	for _, e := range entries {
		k := e.MonthKey()
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return SortMonthKeys(keys)
}
