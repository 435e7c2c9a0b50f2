// Package handler serves the JSON completion API, the daily and schedule
// pages with their HTMX partials, and the installable-app assets.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/schedule"
	"github.com/dukerupert/milkdiary/internal/store"
	"github.com/dukerupert/milkdiary/internal/task"
	"github.com/dukerupert/milkdiary/internal/websocket"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Broadcaster is satisfied by *websocket.Hub.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Rows reads the cached sheet with local completions merged in.
type Rows struct {
	sheets      *store.SheetStore
	completions *store.CompletionStore
}

func NewRows(sheets *store.SheetStore, completions *store.CompletionStore) *Rows {
	return &Rows{sheets: sheets, completions: completions}
}

// Tables returns both sheets merged with completions.
func (r *Rows) Tables() (*model.Tables, error) {
	t, err := r.sheets.Tables()
	if err != nil {
		return nil, err
	}
	byKey, err := r.completions.ByKey()
	if err != nil {
		return nil, err
	}
	return &model.Tables{
		Monthly:   store.MergeCompletions(t.Monthly, byKey, model.TaskTypeMonthly),
		Daily:     store.MergeCompletions(t.Daily, byKey, model.TaskTypeDaily),
		UpdatedAt: t.UpdatedAt,
	}, nil
}

// Tasks returns the merged daily rows as tasks, plus the refresh stamp.
func (r *Rows) Tasks() ([]task.Task, string, error) {
	t, err := r.Tables()
	if err != nil {
		return nil, "", err
	}
	return task.Normalize(t.Daily), t.UpdatedAt, nil
}

// Task finds one daily task by row id, or nil.
func (r *Rows) Task(id string) (*task.Task, error) {
	tasks, _, err := r.Tasks()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

// Entries returns the monthly schedule rows.
func (r *Rows) Entries() ([]schedule.Entry, string, error) {
	t, err := r.Tables()
	if err != nil {
		return nil, "", err
	}
	return schedule.Coerce(t.Monthly), t.UpdatedAt, nil
}

// validDate accepts "" or YYYY-MM-DD.
func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
