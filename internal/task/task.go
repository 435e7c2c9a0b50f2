// Package task turns sheet rows into daily task records and derives the
// filtered, card-shaped views that the web and terminal renderers draw.
package task

import (
	"strings"
)

// Variant selects which completion representation is authoritative.
type Variant string

const (
	VariantSingle     Variant = "single"
	VariantThreeStage Variant = "three_stage"
	VariantReadOnly   Variant = "readonly"
)

// ParseVariant maps a config value to a Variant. Unknown values fall back
// to the three-stage variant.
func ParseVariant(s string) Variant {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantSingle:
		return VariantSingle
	case VariantReadOnly:
		return VariantReadOnly
	default:
		return VariantThreeStage
	}
}

// Interactive reports whether cards of this variant carry toggle controls.
func (v Variant) Interactive() bool {
	return v != VariantReadOnly
}

type Stage string

const (
	StageFirstRead Stage = "first_read"
	StageNotes     Stage = "notes"
	StageRevision  Stage = "revision"
)

// Stages lists the three checkpoints in display order.
var Stages = []Stage{StageFirstRead, StageNotes, StageRevision}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, bool) {
	switch Stage(s) {
	case StageFirstRead, StageNotes, StageRevision:
		return Stage(s), true
	}
	return "", false
}

// Label is the button caption for the stage.
func (s Stage) Label() string {
	switch s {
	case StageFirstRead:
		return "First Read"
	case StageNotes:
		return "Notes"
	case StageRevision:
		return "Revision"
	}
	return string(s)
}

var doneTokens = map[string]struct{}{
	"done": {}, "completed": {}, "finished": {}, "1": {}, "true": {}, "yes": {}, "y": {},
}

// IsDoneValue reports whether a free-form status string is one of the done
// tokens. Matching is case-insensitive and ignores surrounding whitespace.
func IsDoneValue(s string) bool {
	_, ok := doneTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Task is one normalized daily row.
type Task struct {
	ID            string `json:"id"`
	MonthlyTaskID string `json:"monthly_task_id"`
	WeekNo        string `json:"week_no"`
	DateISO       string `json:"date_iso"`
	TaskName      string `json:"task_name"`
	StatusRaw     string `json:"status_raw"`
	FirstRead     bool   `json:"first_read"`
	Notes         bool   `json:"notes"`
	Revision      bool   `json:"revision"`
}

// Stage returns the flag for one checkpoint.
func (t Task) Stage(s Stage) bool {
	switch s {
	case StageFirstRead:
		return t.FirstRead
	case StageNotes:
		return t.Notes
	case StageRevision:
		return t.Revision
	}
	return false
}

// WithStage returns a copy of t with one checkpoint set.
func (t Task) WithStage(s Stage, done bool) Task {
	switch s {
	case StageFirstRead:
		t.FirstRead = done
	case StageNotes:
		t.Notes = done
	case StageRevision:
		t.Revision = done
	}
	return t
}

// StagesDone counts completed checkpoints (0..3).
func (t Task) StagesDone() int {
	n := 0
	for _, s := range Stages {
		if t.Stage(s) {
			n++
		}
	}
	return n
}

func (t Task) FullyDone() bool {
	return t.FirstRead && t.Notes && t.Revision
}

// IsDone evaluates completion using the representation the variant treats
// as authoritative: the three flags for three-stage, status_raw otherwise.
func (t Task) IsDone(v Variant) bool {
	if v == VariantThreeStage {
		return t.FullyDone()
	}
	return IsDoneValue(t.StatusRaw)
}
