package task

import "fmt"

// Control identifies one toggle button: a task, plus a stage for the
// three-stage variant.
type Control struct {
	TaskID string
	Stage  Stage
}

// Key is a stable string form used for element ids and in-flight tracking.
func (c Control) Key() string {
	if c.Stage == "" {
		return "task-" + c.TaskID
	}
	return fmt.Sprintf("task-%s-%s", c.TaskID, c.Stage)
}

// Button is one rendered action control.
type Button struct {
	Control   Control
	Label     string
	Completed bool
	InFlight  bool
}

// Card is the renderer-neutral shape of one task in the list.
type Card struct {
	Task        Task
	Title       string
	Complete    bool
	StatusLabel string
	Week        string
	Goal        string
	Buttons     []Button
}

// View is everything a daily page needs to draw.
type View struct {
	State    ViewState
	Variant  Variant
	Cards    []Card
	Progress Progress
}

// Empty reports whether the filtered set has no tasks.
func (v View) Empty() bool {
	return len(v.Cards) == 0
}

// InFlightFunc reports whether a control currently has a request pending.
type InFlightFunc func(Control) bool

// Render filters tasks by vs and builds the cards and progress for them.
// It is pure: the same inputs always give the same view.
func Render(tasks []Task, vs ViewState, v Variant, inFlight InFlightFunc) View {
	filtered := Apply(tasks, vs, v)
	cards := make([]Card, 0, len(filtered))
	for _, t := range filtered {
		cards = append(cards, BuildCard(t, v, inFlight))
	}
	return View{
		State:    vs,
		Variant:  v,
		Cards:    cards,
		Progress: Summarize(filtered, v),
	}
}

// BuildCard renders one task.
func BuildCard(t Task, v Variant, inFlight InFlightFunc) Card {
	if inFlight == nil {
		inFlight = func(Control) bool { return false }
	}

	c := Card{
		Task:     t,
		Title:    orDefault(t.TaskName, "(Untitled Task)"),
		Complete: t.IsDone(v),
		Week:     orDefault(t.WeekNo, "-"),
		Goal:     orDefault(t.MonthlyTaskID, "-"),
	}

	switch v {
	case VariantThreeStage:
		if c.Complete {
			c.StatusLabel = "All Done"
		} else {
			c.StatusLabel = fmt.Sprintf("%d/3 stages", t.StagesDone())
		}
		for _, s := range Stages {
			ctrl := Control{TaskID: t.ID, Stage: s}
			b := Button{Control: ctrl, Completed: t.Stage(s), InFlight: inFlight(ctrl)}
			switch {
			case b.InFlight:
				b.Label = "..."
			case b.Completed:
				b.Label = "✓ " + s.Label()
			default:
				b.Label = s.Label()
			}
			c.Buttons = append(c.Buttons, b)
		}
	case VariantSingle:
		c.StatusLabel = statusLabel(c.Complete)
		ctrl := Control{TaskID: t.ID}
		b := Button{Control: ctrl, Completed: c.Complete, InFlight: inFlight(ctrl)}
		switch {
		case b.InFlight:
			b.Label = "..."
		case b.Completed:
			b.Label = "✓ Completed"
		default:
			b.Label = "Mark as Done"
		}
		c.Buttons = append(c.Buttons, b)
	default:
		c.StatusLabel = statusLabel(c.Complete)
	}
	return c
}

func statusLabel(done bool) string {
	if done {
		return "Done"
	}
	return "Pending"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
