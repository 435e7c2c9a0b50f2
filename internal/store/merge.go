package store

import (
	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/task"
)

// MergeCompletions overlays local completions on cached sheet rows and
// returns new rows; the input is not modified.
//
// Daily rows gain (or have overwritten) first_read, notes and revision
// columns, and Status becomes "done" only when all three are set or the
// row was completed through the single flag. Monthly
// rows take Status from the single completed flag; a sheet-side done token
// without a local record is reset to "Pending".
//
// Rows without an "id" header column are returned unchanged.
func MergeCompletions(rows [][]any, completions map[string]model.Completion, taskType model.TaskType) [][]any {
	if len(rows) == 0 {
		return rows
	}
	header := rows[0]
	idIdx := indexOf(header, "id")
	if idIdx < 0 {
		return rows
	}
	statusIdx := indexOf(header, "Status")

	if taskType == model.TaskTypeDaily {
		return mergeDaily(rows, completions, idIdx, statusIdx)
	}
	return mergeMonthly(rows, completions, idIdx, statusIdx)
}

func mergeDaily(rows [][]any, completions map[string]model.Completion, idIdx, statusIdx int) [][]any {
	header := append([]any(nil), rows[0]...)
	stageIdx := make([]int, len(task.Stages))
	for i, st := range task.Stages {
		stageIdx[i] = indexOf(header, string(st))
		if stageIdx[i] < 0 {
			stageIdx[i] = len(header)
			header = append(header, string(st))
		}
	}

	out := make([][]any, 0, len(rows))
	out = append(out, header)
	for _, row := range rows[1:] {
		r := append([]any(nil), row...)
		if idIdx >= len(r) {
			out = append(out, r)
			continue
		}
		c := completions[model.CompletionKey(model.TaskTypeDaily, task.CellString(r[idIdx]))]
		for len(r) < len(header) {
			r = append(r, nil)
		}
		for i, st := range task.Stages {
			r[stageIdx[i]] = boolInt(stageOf(c, st))
		}
		if statusIdx >= 0 {
			if c.AllStages() || c.Completed {
				r[statusIdx] = "done"
			} else {
				r[statusIdx] = "Pending"
			}
		}
		out = append(out, r)
	}
	return out
}

func mergeMonthly(rows [][]any, completions map[string]model.Completion, idIdx, statusIdx int) [][]any {
	out := make([][]any, 0, len(rows))
	out = append(out, append([]any(nil), rows[0]...))
	width := len(rows[0])

	for _, row := range rows[1:] {
		r := append([]any(nil), row...)
		if idIdx >= len(r) {
			out = append(out, r)
			continue
		}
		c, ok := completions[model.CompletionKey(model.TaskTypeMonthly, task.CellString(r[idIdx]))]
		switch {
		case ok && c.Completed && statusIdx >= 0 && statusIdx < len(r):
			r[statusIdx] = "done"
		case ok && c.Completed && statusIdx < 0 && len(r) == width:
			r = append(r, "done")
		case !ok && statusIdx >= 0 && statusIdx < len(r):
			if task.IsDoneValue(task.CellString(r[statusIdx])) {
				r[statusIdx] = "Pending"
			}
		}
		out = append(out, r)
	}
	return out
}

func stageOf(c model.Completion, st task.Stage) bool {
	switch st {
	case task.StageFirstRead:
		return c.FirstRead
	case task.StageNotes:
		return c.Notes
	case task.StageRevision:
		return c.Revision
	}
	return false
}

func indexOf(header []any, name string) int {
	for i, c := range header {
		if s, ok := c.(string); ok && s == name {
			return i
		}
	}
	return -1
}
