package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type TaskType string

const (
	TaskTypeDaily   TaskType = "daily"
	TaskTypeMonthly TaskType = "monthly"
)

// ParseTaskType validates a task type from a request.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(s) {
	case TaskTypeDaily, TaskTypeMonthly:
		return TaskType(s), true
	}
	return "", false
}

// CompletionKey is the task_completions primary key for a sheet row id,
// e.g. "daily_12".
func CompletionKey(t TaskType, rowID string) string {
	return string(t) + "_" + rowID
}

type Completion struct {
	TaskID      string     `json:"task_id"`
	TaskType    TaskType   `json:"task_type"`
	Completed   bool       `json:"completed"`
	FirstRead   bool       `json:"first_read"`
	Notes       bool       `json:"notes"`
	Revision    bool       `json:"revision"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	MonthYear   *string    `json:"month_year,omitempty"`
}

// AllStages reports whether every daily checkpoint is set.
func (c Completion) AllStages() bool {
	return c.FirstRead && c.Notes && c.Revision
}

type CompletionStats struct {
	Completed int `json:"completed"`
}

type TaskProgress struct {
	TotalTasks      int     `json:"total_tasks"`
	TotalStages     int     `json:"total_stages"`
	CompletedStages int     `json:"completed_stages"`
	Percentage      float64 `json:"percentage"`
}

// CompletionRequest is the body of the stage and complete endpoints.
// MonthYear is always sent, as null when unset.
type CompletionRequest struct {
	TaskID    RowID    `json:"task_id"`
	TaskType  TaskType `json:"task_type"`
	Stage     string   `json:"stage,omitempty"`
	Completed bool     `json:"completed"`
	MonthYear *string  `json:"month_year"`
}

// Key resolves the completion primary key. Clients send the bare sheet row
// id; an already prefixed id is kept.
func (r CompletionRequest) Key() string {
	id := string(r.TaskID)
	if strings.HasPrefix(id, string(r.TaskType)+"_") {
		return id
	}
	return CompletionKey(r.TaskType, id)
}

// RowID is a sheet row id. It decodes from a JSON string or number, since
// sheet ids are usually numeric cells.
type RowID string

func (id *RowID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task_id must be a string or number: %w", err)
	}
	*id = RowID(n.String())
	return nil
}
