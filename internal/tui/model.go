// Package tui is a terminal client for a milkdiary server: the daily task
// list with its filters and stage toggles, and the monthly schedule.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/mutator"
	"github.com/dukerupert/milkdiary/internal/schedule"
	"github.com/dukerupert/milkdiary/internal/task"
)

const requestTimeout = 15 * time.Second

// Client is the server API the terminal needs; *mutator.Client implements it.
type Client interface {
	mutator.Sender
	Tables(ctx context.Context) (*model.Tables, error)
	Completion(ctx context.Context, taskType model.TaskType, rowID string) (model.Completion, error)
}

type Options struct {
	Variant  task.Variant
	Location *time.Location
	Now      func() time.Time
}

type screen int

const (
	screenDaily screen = iota
	screenSchedule
)

type loadedMsg struct {
	tables *model.Tables
	err    error
}

type toggledMsg struct {
	control task.Control
	err     error
}

// inbox collects what the mutator reports while a toggle runs in a
// command goroutine; Update drains it when the toggle finishes.
type inbox struct {
	client Client

	mu     sync.Mutex
	alerts []string
	rows   map[string]model.Completion
}

func (b *inbox) Alert(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, msg)
}

// Refresh re-reads one daily row's completion from the server.
func (b *inbox) Refresh(ctx context.Context, rowID string) error {
	c, err := b.client.Completion(ctx, model.TaskTypeDaily, rowID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[rowID] = c
	return nil
}

func (b *inbox) drain() ([]string, map[string]model.Completion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	alerts, rows := b.alerts, b.rows
	b.alerts = nil
	b.rows = make(map[string]model.Completion)
	return alerts, rows
}

type Model struct {
	client  Client
	mut     *mutator.Mutator
	inbox   *inbox
	variant task.Variant
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger

	screen    screen
	tasks     []task.Task
	entries   []schedule.Entry
	updatedAt string
	loading   bool

	vs        task.ViewState
	sched     schedule.ViewState
	cursor    int
	stage     int
	search    textinput.Model
	searching bool

	status string
	alert  string
	width  int
}

func New(client Client, opts Options, logger *slog.Logger) Model {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	box := &inbox{client: client, rows: make(map[string]model.Completion)}

	ti := textinput.New()
	ti.Placeholder = "Task or goal id"
	ti.CharLimit = 128
	ti.Width = 30
	ti.Prompt = "/ "

	m := Model{
		client:  client,
		inbox:   box,
		mut:     mutator.New(client, box, box, logger),
		variant: opts.Variant,
		loc:     opts.Location,
		now:     opts.Now,
		logger:  logger.With("component", "tui"),
		search:  ti,
		sched:   schedule.ViewState{}.Normalized(),
		loading: true,
		status:  "Loading...",
	}
	m.vs = task.ViewState{}.WithDate(m.today()).WithStatus(task.StatusAll)
	return m
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, client Client, opts Options, logger *slog.Logger) error {
	p := tea.NewProgram(New(client, opts, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) today() string {
	return m.now().In(m.loc).Format("2006-01-02")
}

func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) load() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		t, err := client.Tables(ctx)
		return loadedMsg{tables: t, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.search.Width = max(10, msg.Width/3)
		return m, nil
	case loadedMsg:
		return m.applyLoaded(msg), nil
	case toggledMsg:
		return m.applyToggled(msg), nil
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.screen == screenSchedule {
			return m.updateSchedule(msg.String())
		}
		return m.updateDaily(msg.String())
	}
	return m, nil
}

func (m Model) applyLoaded(msg loadedMsg) Model {
	m.loading = false
	if msg.err != nil {
		m.logger.Error("load tables", "error", msg.err)
		m.alert = "Network error. Please check your connection."
		m.status = ""
		return m
	}
	m.tasks = task.Normalize(msg.tables.Daily)
	m.entries = schedule.Coerce(msg.tables.Monthly)
	m.updatedAt = msg.tables.UpdatedAt
	m.alert = ""
	m.status = fmt.Sprintf("Loaded %d tasks", len(m.tasks))
	return m.clamp()
}

// applyToggled patches refreshed rows in place and surfaces any alert.
// A failed control keeps its in-flight state until the next reload.
func (m Model) applyToggled(msg toggledMsg) Model {
	alerts, rows := m.inbox.drain()
	if len(alerts) > 0 {
		m.alert = alerts[len(alerts)-1]
	}
	if len(rows) > 0 {
		tasks := make([]task.Task, len(m.tasks))
		copy(tasks, m.tasks)
		for i, t := range tasks {
			if c, ok := rows[t.ID]; ok {
				tasks[i] = patch(t, c)
			}
		}
		m.tasks = tasks
	}
	if msg.err != nil {
		m.logger.Warn("toggle", "control", msg.control.Key(), "error", msg.err)
		m.status = ""
	} else {
		m.status = "Saved"
	}
	return m.clamp()
}

// patch applies a completion record the same way the server merges it into
// sheet rows.
func patch(t task.Task, c model.Completion) task.Task {
	t = t.WithStage(task.StageFirstRead, c.FirstRead).
		WithStage(task.StageNotes, c.Notes).
		WithStage(task.StageRevision, c.Revision)
	if c.AllStages() || c.Completed {
		t.StatusRaw = "done"
	} else {
		t.StatusRaw = "Pending"
	}
	return t
}

func (m Model) view() task.View {
	return task.Render(m.tasks, m.vs, m.variant, m.mut.InFlight)
}

func (m Model) clamp() Model {
	n := len(m.view().Cards)
	switch {
	case n == 0:
		m.cursor = 0
	case m.cursor >= n:
		m.cursor = n - 1
	case m.cursor < 0:
		m.cursor = 0
	}
	return m
}

func (m Model) updateDaily(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "down", "j":
		m.cursor++
		return m.clamp(), nil
	case "up", "k":
		m.cursor--
		return m.clamp(), nil
	case "right", "l":
		if m.stage < len(task.Stages)-1 {
			m.stage++
		}
	case "left", "h":
		if m.stage > 0 {
			m.stage--
		}
	case "s":
		m.vs = m.vs.WithStatus(m.vs.Status.Next())
		return m.clamp(), nil
	case "]":
		m.vs = m.vs.WithDate(m.shiftDay(1))
		return m.clamp(), nil
	case "[":
		m.vs = m.vs.WithDate(m.shiftDay(-1))
		return m.clamp(), nil
	case "t":
		m.vs = m.vs.WithDate(m.today())
		return m.clamp(), nil
	case "a":
		m.vs = m.vs.WithDate("")
		return m.clamp(), nil
	case "/":
		m.searching = true
		m.search.Focus()
		return m, textinput.Blink
	case "r":
		m.mut.Reset()
		m.loading = true
		m.status = "Loading..."
		m.alert = ""
		return m, m.load()
	case "tab":
		m.screen = screenSchedule
	case " ", "enter":
		return m.toggle()
	}
	return m, nil
}

// shiftDay moves the date filter; from "all days" it starts at today.
func (m Model) shiftDay(n int) string {
	day, ok := task.ParseDate(m.vs.Date)
	if !ok {
		day, _ = task.ParseDate(m.today())
	}
	return day.AddDate(0, 0, n).Format("2006-01-02")
}

// toggle disables the focused control right away so the label changes to
// the pending one, then sends the request as a command.
func (m Model) toggle() (tea.Model, tea.Cmd) {
	if !m.variant.Interactive() {
		m.status = "Read-only list"
		return m, nil
	}
	cards := m.view().Cards
	if len(cards) == 0 {
		return m, nil
	}
	t := cards[m.cursor].Task

	var stage task.Stage
	if m.variant == task.VariantThreeStage {
		stage = task.Stages[m.stage]
	}
	c := task.Control{TaskID: t.ID, Stage: stage}
	if err := m.mut.Disable(c); err != nil {
		return m, nil
	}
	req := mutator.Request(t, stage, m.variant)
	m.status = "Saving..."

	mut := m.mut
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return toggledMsg{control: c, err: mut.Send(ctx, c, req)}
	}
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		m.vs = m.vs.WithSearch("")
		return m.clamp(), nil
	case "enter":
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.vs = m.vs.WithSearch(m.search.Value())
	return m.clamp(), cmd
}

func (m Model) updateSchedule(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		m.screen = screenDaily
	case "g":
		m.sched = m.sched.WithGoal(nextOption(m.scheduleView().GoalOptions, m.sched.Goal))
	case "m":
		m.sched = m.sched.WithMonth(nextOption(m.scheduleView().MonthOptions, m.sched.Month))
	case "r":
		m.loading = true
		m.status = "Loading..."
		return m, m.load()
	}
	return m, nil
}

func (m Model) scheduleView() schedule.View {
	return schedule.Build(m.entries, m.sched, m.now().In(m.loc))
}

// nextOption cycles through a selector's options.
func nextOption(opts []schedule.Option, current string) string {
	if len(opts) == 0 {
		return schedule.All
	}
	for i, o := range opts {
		if o.Value == current {
			return opts[(i+1)%len(opts)].Value
		}
	}
	return opts[0].Value
}
