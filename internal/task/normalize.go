package task

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const headerMarker = "id"

// HasHeader reports whether the first row is a header row, i.e. its first
// cell is the literal string "id".
func HasHeader(rows [][]any) bool {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return false
	}
	s, ok := rows[0][0].(string)
	return ok && s == headerMarker
}

// Normalize maps array-form rows to tasks. Cells 0..5 are positional
// (id, monthly_task_id, week_no, date_iso, task_name, status). When a header
// row is present it is dropped and the stage columns are located by name.
func Normalize(rows [][]any) []Task {
	if len(rows) == 0 {
		return []Task{}
	}

	data := rows
	stageIdx := map[Stage]int{}
	if HasHeader(rows) {
		data = rows[1:]
		for i, cell := range rows[0] {
			if s, ok := cell.(string); ok {
				if st, ok := ParseStage(s); ok {
					if _, seen := stageIdx[st]; !seen {
						stageIdx[st] = i
					}
				}
			}
		}
	}

	out := make([]Task, 0, len(data))
	for _, r := range data {
		t := Task{
			ID:            CellString(cell(r, 0)),
			MonthlyTaskID: CellString(cell(r, 1)),
			WeekNo:        CellString(cell(r, 2)),
			DateISO:       CellString(cell(r, 3)),
			TaskName:      CellString(cell(r, 4)),
			StatusRaw:     CellString(cell(r, 5)),
		}
		for st, i := range stageIdx {
			t = t.WithStage(st, IsOne(cell(r, i)))
		}
		out = append(out, t)
	}
	return out
}

// NormalizeObjects maps key-value rows to tasks.
func NormalizeObjects(rows []map[string]any) []Task {
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		t := Task{
			ID:            CellString(r["id"]),
			MonthlyTaskID: CellString(r["monthly_task_id"]),
			WeekNo:        CellString(r["week_no"]),
			DateISO:       CellString(firstKey(r, "date_iso", "DateISO", "Date")),
			TaskName:      CellString(r["task_name"]),
			StatusRaw:     CellString(firstKey(r, "status_raw", "status", "Status")),
		}
		for _, st := range Stages {
			t = t.WithStage(st, IsOne(r[string(st)]))
		}
		out = append(out, t)
	}
	return out
}

// Decode parses a JSON document holding either form of rows.
func Decode(data []byte) ([]Task, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if len(raw) == 0 {
		return []Task{}, nil
	}

	var arrays [][]any
	if err := json.Unmarshal(data, &arrays); err == nil {
		return Normalize(arrays), nil
	}

	var objects []map[string]any
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("rows are neither arrays nor objects: %w", err)
	}
	return NormalizeObjects(objects), nil
}

func cell(r []any, i int) any {
	if i < 0 || i >= len(r) {
		return nil
	}
	return r[i]
}

func firstKey(r map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// IsOne reports whether a raw cell is the number one. Strings and booleans
// never count, even when they look truthy.
func IsOne(v any) bool {
	switch n := v.(type) {
	case float64:
		return n == 1
	case float32:
		return n == 1
	case int:
		return n == 1
	case int64:
		return n == 1
	case int32:
		return n == 1
	case uint64:
		return n == 1
	case json.Number:
		f, err := n.Float64()
		return err == nil && f == 1
	}
	return false
}

// CellString renders a raw cell the way it reads in the sheet: integral
// numbers without a fraction, nil as the empty string.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
