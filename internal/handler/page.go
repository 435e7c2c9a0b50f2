package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/schedule"
	"github.com/dukerupert/milkdiary/internal/store"
	"github.com/dukerupert/milkdiary/internal/task"
	"github.com/dukerupert/milkdiary/internal/websocket"
	"github.com/dukerupert/milkdiary/web"
)

const appTitle = "Milk Diary"

var statusModes = []task.StatusMode{task.StatusAll, task.StatusPending, task.StatusDone}

// PageHandler renders the daily and schedule pages and their HTMX partials.
type PageHandler struct {
	rows        *Rows
	completions *store.CompletionStore
	hub         Broadcaster
	variant     task.Variant
	loc         *time.Location
	now         func() time.Time
	pages       map[string]*template.Template
	partials    *template.Template
	logger      *slog.Logger
}

// NewPageHandler parses the embedded templates. loc decides what "today"
// means for the default daily filter.
func NewPageHandler(rows *Rows, completions *store.CompletionStore, hub Broadcaster, variant task.Variant, loc *time.Location, logger *slog.Logger) (*PageHandler, error) {
	fsys := web.Templates()
	base, err := template.ParseFS(fsys, "layout.html", "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{"daily.html", "schedule.html"} {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone templates: %w", err)
		}
		if _, err := clone.ParseFS(fsys, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = clone
	}

	if loc == nil {
		loc = time.UTC
	}
	return &PageHandler{
		rows:        rows,
		completions: completions,
		hub:         hub,
		variant:     variant,
		loc:         loc,
		now:         time.Now,
		pages:       pages,
		partials:    base,
		logger:      logger.With("component", "pages"),
	}, nil
}

type dailyPage struct {
	Title       string
	Nav         string
	UpdatedAt   string
	View        task.View
	StatusModes []task.StatusMode
}

type schedulePage struct {
	Title     string
	Nav       string
	UpdatedAt string
	View      schedule.View
}

// dailyState reads the filter form. An absent date means today; an empty
// one means every day.
func (h *PageHandler) dailyState(r *http.Request) task.ViewState {
	q := r.URL.Query()
	day := h.now().In(h.loc).Format("2006-01-02")
	if q.Has("date") {
		day = q.Get("date")
	}
	return task.ViewState{}.
		WithDate(day).
		WithStatus(task.ParseStatusMode(q.Get("status"))).
		WithSearch(q.Get("q"))
}

func scheduleState(r *http.Request) schedule.ViewState {
	q := r.URL.Query()
	return schedule.ViewState{}.
		WithGoal(q.Get("goal")).
		WithMonth(q.Get("month")).
		WithSearch(q.Get("q")).
		Normalized()
}

func (h *PageHandler) dailyView(r *http.Request) (task.View, string, error) {
	tasks, updatedAt, err := h.rows.Tasks()
	if err != nil {
		return task.View{}, "", err
	}
	return task.Render(tasks, h.dailyState(r), h.variant, nil), updatedAt, nil
}

// Daily handles GET / and GET /daily.
func (h *PageHandler) Daily(w http.ResponseWriter, r *http.Request) {
	view, updatedAt, err := h.dailyView(r)
	if err != nil {
		h.logger.Error("load tasks", "error", err)
		http.Error(w, "failed to load tasks", http.StatusInternalServerError)
		return
	}
	h.render(w, "daily.html", dailyPage{
		Title:       appTitle,
		Nav:         "daily",
		UpdatedAt:   updatedAt,
		View:        view,
		StatusModes: statusModes,
	})
}

// DailyList handles GET /partials/daily.
func (h *PageHandler) DailyList(w http.ResponseWriter, r *http.Request) {
	view, _, err := h.dailyView(r)
	if err != nil {
		h.logger.Error("load tasks", "error", err)
		http.Error(w, "failed to load tasks", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "daily-list", view)
}

// DailyStats handles GET /partials/daily/stats.
func (h *PageHandler) DailyStats(w http.ResponseWriter, r *http.Request) {
	view, _, err := h.dailyView(r)
	if err != nil {
		h.logger.Error("load tasks", "error", err)
		http.Error(w, "failed to load tasks", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "stats", view.Progress)
}

func (h *PageHandler) scheduleView(r *http.Request) (schedule.View, string, error) {
	entries, updatedAt, err := h.rows.Entries()
	if err != nil {
		return schedule.View{}, "", err
	}
	return schedule.Build(entries, scheduleState(r), h.now().In(h.loc)), updatedAt, nil
}

// Schedule handles GET /schedule.
func (h *PageHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	view, updatedAt, err := h.scheduleView(r)
	if err != nil {
		h.logger.Error("load schedule", "error", err)
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	h.render(w, "schedule.html", schedulePage{
		Title:     "Schedule · " + appTitle,
		Nav:       "schedule",
		UpdatedAt: updatedAt,
		View:      view,
	})
}

// ScheduleTimeline handles GET /partials/schedule.
func (h *PageHandler) ScheduleTimeline(w http.ResponseWriter, r *http.Request) {
	view, _, err := h.scheduleView(r)
	if err != nil {
		h.logger.Error("load schedule", "error", err)
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "schedule-timeline", view)
}

// ToggleStage handles POST /partials/task/{id}/stage/{stage} and answers
// with the re-rendered card.
func (h *PageHandler) ToggleStage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stage, ok := task.ParseStage(r.PathValue("stage"))
	if !ok {
		http.Error(w, "unknown stage", http.StatusBadRequest)
		return
	}
	done, err := strconv.ParseBool(r.FormValue("completed"))
	if err != nil {
		http.Error(w, "completed must be true or false", http.StatusBadRequest)
		return
	}

	key := model.CompletionKey(model.TaskTypeDaily, id)
	if _, err := h.completions.MarkStage(key, model.TaskTypeDaily, stage, done, nil); err != nil {
		h.logger.Error("mark stage", "task_id", key, "stage", stage, "error", err)
		http.Error(w, "failed to update task", http.StatusInternalServerError)
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.StageUpdated(id, string(stage), done))
	}
	h.renderCard(w, id)
}

// ToggleComplete handles POST /partials/task/{id}/complete.
func (h *PageHandler) ToggleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	done, err := strconv.ParseBool(r.FormValue("completed"))
	if err != nil {
		http.Error(w, "completed must be true or false", http.StatusBadRequest)
		return
	}

	key := model.CompletionKey(model.TaskTypeDaily, id)
	if _, err := h.completions.MarkComplete(key, model.TaskTypeDaily, done, nil); err != nil {
		h.logger.Error("mark complete", "task_id", key, "error", err)
		http.Error(w, "failed to update task", http.StatusInternalServerError)
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.TaskCompleted(string(model.TaskTypeDaily), id, done))
	}
	h.renderCard(w, id)
}

// renderCard re-reads one task and swaps its card. The HX-Trigger header
// makes the stats panel reload itself.
func (h *PageHandler) renderCard(w http.ResponseWriter, id string) {
	t, err := h.rows.Task(id)
	if err != nil {
		h.logger.Error("load task", "id", id, "error", err)
		http.Error(w, "failed to load task", http.StatusInternalServerError)
		return
	}
	if t == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	w.Header().Set("HX-Trigger", "progress-changed")
	h.renderPartial(w, "task-card", task.BuildCard(*t, h.variant, nil))
}

func (h *PageHandler) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages[page].ExecuteTemplate(w, "layout", data); err != nil {
		h.logger.Error("template error", "page", page, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *PageHandler) renderPartial(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.partials.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template error", "partial", name, "error", err)
		fmt.Fprint(w, `<div class="alert alert-error">Template error</div>`)
	}
}
