package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/store"
	"github.com/dukerupert/milkdiary/internal/task"
	"github.com/dukerupert/milkdiary/internal/websocket"
)

// SheetRefresher reloads the sheet cache from its source.
type SheetRefresher interface {
	Refresh(ctx context.Context) (time.Time, error)
}

// TaskHandler is the JSON completion API.
type TaskHandler struct {
	rows        *Rows
	completions *store.CompletionStore
	refresher   SheetRefresher
	hub         Broadcaster
	logger      *slog.Logger
}

// NewTaskHandler accepts a nil refresher (refresh disabled) and a nil hub.
func NewTaskHandler(rows *Rows, completions *store.CompletionStore, refresher SheetRefresher, hub Broadcaster, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		rows:        rows,
		completions: completions,
		refresher:   refresher,
		hub:         hub,
		logger:      logger,
	}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func decodeRequest(r *http.Request) (model.CompletionRequest, string) {
	var req model.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "invalid JSON"
	}
	req.TaskID = model.RowID(strings.TrimSpace(string(req.TaskID)))
	if req.TaskID == "" {
		return req, "task_id is required"
	}
	if req.TaskType == "" {
		req.TaskType = model.TaskTypeDaily
	}
	if _, ok := model.ParseTaskType(string(req.TaskType)); !ok {
		return req, "task_type must be daily or monthly"
	}
	return req, ""
}

// rowID strips the type prefix from a completion key.
func rowID(key string, t model.TaskType) string {
	return strings.TrimPrefix(key, string(t)+"_")
}

// Stage handles POST /api/task/stage.
func (h *TaskHandler) Stage(w http.ResponseWriter, r *http.Request) {
	req, msg := decodeRequest(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	stage, ok := task.ParseStage(req.Stage)
	if !ok {
		writeError(w, http.StatusBadRequest, "stage must be first_read, notes, or revision")
		return
	}

	key := req.Key()
	c, err := h.completions.MarkStage(key, req.TaskType, stage, req.Completed, req.MonthYear)
	if err != nil {
		h.logger.Error("mark stage", "task_id", key, "stage", stage, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.broadcast(websocket.StageUpdated(rowID(key, req.TaskType), string(stage), req.Completed))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "completion": c})
}

// Complete handles POST /api/task/complete. Clearing a completion deletes
// its record.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	req, msg := decodeRequest(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	key := req.Key()
	c, err := h.completions.MarkComplete(key, req.TaskType, req.Completed, req.MonthYear)
	if err != nil {
		h.logger.Error("mark complete", "task_id", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if c == nil {
		c = &model.Completion{TaskID: key, TaskType: req.TaskType}
	}

	h.broadcast(websocket.TaskCompleted(string(req.TaskType), rowID(key, req.TaskType), req.Completed))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "completion": c})
}

// Get handles GET /api/task/{type}/{id}. Rows without a record get a zero
// completion rather than 404, since "not yet touched" is a valid state.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	tt, ok := model.ParseTaskType(r.PathValue("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "task_type must be daily or monthly")
		return
	}
	req := model.CompletionRequest{TaskID: model.RowID(r.PathValue("id")), TaskType: tt}
	key := req.Key()

	c, err := h.completions.Get(key)
	if err != nil {
		h.logger.Error("get completion", "task_id", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if c == nil {
		c = &model.Completion{TaskID: key, TaskType: tt}
	}
	writeJSON(w, http.StatusOK, c)
}

// Tables handles GET /api/tables.
func (h *TaskHandler) Tables(w http.ResponseWriter, r *http.Request) {
	t, err := h.rows.Tables()
	if err != nil {
		h.logger.Error("load tables", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load tables")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Progress handles GET /api/progress?date=YYYY-MM-DD.
func (h *TaskHandler) Progress(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if !validDate(date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	p, err := h.completions.Progress(date)
	if err != nil {
		h.logger.Error("task progress", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute progress")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Stats handles GET /api/completions/stats?month_year=.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	monthYear := strings.TrimSpace(r.URL.Query().Get("month_year"))
	s, err := h.completions.Stats(monthYear)
	if err != nil {
		h.logger.Error("completion stats", "month_year", monthYear, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count completions")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Refresh handles POST /api/refresh. Clients learn about the new snapshot
// through the refresher's notification, not from this handler.
func (h *TaskHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "no sheet source configured")
		return
	}
	stamp, err := h.refresher.Refresh(r.Context())
	if err != nil {
		h.logger.Error("refresh sheet", "error", err)
		writeError(w, http.StatusBadGateway, "failed to refresh sheet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"updated_at": stamp.Format(time.RFC3339)})
}
