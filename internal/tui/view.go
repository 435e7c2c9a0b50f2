package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/milkdiary/internal/schedule"
	"github.com/dukerupert/milkdiary/internal/task"
)

const barWidth = 24

func (m Model) View() string {
	var b strings.Builder
	if m.screen == screenSchedule {
		b.WriteString(m.renderSchedule())
	} else {
		b.WriteString(m.renderDaily())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderDaily() string {
	var b strings.Builder
	view := m.view()

	day := m.vs.Date
	if day == "" {
		day = "all days"
	}
	b.WriteString(titleStyle.Render("Milk Diary · Daily"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(fmt.Sprintf("%s · %s", day, m.vs.Status)))
	b.WriteString("\n")
	if m.searching || m.vs.Search != "" {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	b.WriteString(renderStats(view.Progress))
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(mutedStyle.Render("Loading tasks..."))
		b.WriteString("\n")
		return b.String()
	}
	if view.Empty() {
		b.WriteString(mutedStyle.Render("No tasks for this view."))
		b.WriteString("\n")
		return b.String()
	}
	for i, c := range view.Cards {
		b.WriteString(m.renderCard(c, i == m.cursor))
		b.WriteString("\n")
	}
	return b.String()
}

func renderStats(p task.Progress) string {
	filled := barWidth * p.Percent / 100
	bar := doneStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", barWidth-filled))
	line := fmt.Sprintf("Total %d · Done %d · Pending %d  %s %d%%", p.Total, p.Done, p.Pending, bar, p.Percent)
	if p.Win {
		line += "  " + winStyle.Render("All done for today!")
	}
	return line
}

func (m Model) renderCard(c task.Card, selected bool) string {
	status := pendingStyle.Render(c.StatusLabel)
	if c.Complete {
		status = doneStyle.Render(c.StatusLabel)
	}
	lines := []string{
		titleStyle.Render(c.Title),
		lipgloss.JoinHorizontal(lipgloss.Top,
			status, " ",
			badgeStyle.Render("Week "+c.Week), " ",
			badgeStyle.Render("Goal: "+c.Goal),
		),
	}

	if len(c.Buttons) > 0 {
		buttons := make([]string, 0, len(c.Buttons))
		for i, btn := range c.Buttons {
			style := buttonStyle
			switch {
			case btn.InFlight:
				style = buttonInFlightStyle
			case btn.Completed:
				style = buttonDoneStyle
			}
			label := style.Render(btn.Label)
			if selected && (len(c.Buttons) == 1 || i == m.stage) {
				label = buttonFocusStyle.Render(label)
			}
			buttons = append(buttons, label)
		}
		lines = append(lines, strings.Join(buttons, " "))
	}

	box := cardStyle
	if selected {
		box = selectedCardStyle
	}
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func (m Model) renderSchedule() string {
	var b strings.Builder
	view := m.scheduleView()

	b.WriteString(titleStyle.Render("Milk Diary · Schedule"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(fmt.Sprintf("goal: %s · month: %s · now: %s",
		optionLabel(view.GoalOptions, view.State.Goal),
		optionLabel(view.MonthOptions, view.State.Month),
		view.NowPretty)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d tasks · %d months · %d goals",
		view.Summary.Tasks, view.Summary.Months, view.Summary.Goals)))
	b.WriteString("\n\n")

	if view.Empty() {
		b.WriteString(mutedStyle.Render("Nothing scheduled for this view."))
		b.WriteString("\n")
		return b.String()
	}
	for _, sec := range view.Sections {
		heading := sec.Pretty
		if sec.IsNow {
			heading += " " + winStyle.Render("NOW")
		}
		b.WriteString(titleStyle.Render(heading))
		b.WriteString("\n")
		for _, g := range sec.Goals {
			b.WriteString("  ")
			b.WriteString(goalDot(g.Style))
			b.WriteString(" ")
			b.WriteString(labelStyle.Render(orNone(g.Goal)))
			b.WriteString("\n")
			for _, c := range g.Cards {
				line := "    - " + c.Entry.ToDo
				if c.Entry.PrepPhase != "" {
					line += mutedStyle.Render(" (phase " + c.Entry.PrepPhase + ")")
				}
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func goalDot(s schedule.Style) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(s.Term)).Render("●")
}

func optionLabel(opts []schedule.Option, value string) string {
	for _, o := range opts {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

func orNone(goal string) string {
	if goal == "" {
		return "(No goal)"
	}
	return goal
}

func (m Model) renderFooter() string {
	keys := "↑/↓ move · ←/→ stage · space toggle · s status · [/] day · t today · a all · / search · r reload · tab schedule · q quit"
	if m.screen == screenSchedule {
		keys = "g goal · m month · r reload · tab daily · q quit"
	}
	var parts []string
	if m.alert != "" {
		parts = append(parts, alertStyle.Render(m.alert))
	}
	if m.status != "" {
		parts = append(parts, labelStyle.Render(m.status))
	}
	if m.updatedAt != "" {
		parts = append(parts, mutedStyle.Render("synced "+m.updatedAt))
	}
	return mutedStyle.Render(keys) + "\n" + strings.Join(parts, " · ")
}
