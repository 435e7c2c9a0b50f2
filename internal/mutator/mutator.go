// Package mutator sends completion toggles to the server and tracks which
// controls are waiting on a reply.
package mutator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/task"
)

// ErrInFlight is returned when a control is activated while disabled.
var ErrInFlight = errors.New("control is disabled")

const (
	msgFailed  = "Failed to update task. Please try again."
	msgNetwork = "Network error. Please check your connection."
)

// Sender delivers one mutation; *Client implements it.
type Sender interface {
	Send(ctx context.Context, req model.CompletionRequest) error
}

// Alerter surfaces a failure to the user.
type Alerter interface {
	Alert(msg string)
}

// Refresher re-reads the affected row after a successful mutation.
type Refresher interface {
	Refresh(ctx context.Context, rowID string) error
}

type Mutator struct {
	sender  Sender
	alert   Alerter
	refresh Refresher
	logger  *slog.Logger

	mu       sync.Mutex
	disabled map[string]struct{}
}

func New(sender Sender, alert Alerter, refresh Refresher, logger *slog.Logger) *Mutator {
	return &Mutator{
		sender:   sender,
		alert:    alert,
		refresh:  refresh,
		logger:   logger.With("component", "mutator"),
		disabled: make(map[string]struct{}),
	}
}

// Request builds the toggle for one control: the desired value is the
// inverse of the current one. stage is empty for single-status cards.
func Request(t task.Task, stage task.Stage, v task.Variant) model.CompletionRequest {
	current := t.IsDone(v)
	if stage != "" {
		current = t.Stage(stage)
	}
	return model.CompletionRequest{
		TaskID:    model.RowID(t.ID),
		TaskType:  model.TaskTypeDaily,
		Stage:     string(stage),
		Completed: !current,
	}
}

// InFlight reports whether a control is disabled. It matches
// task.InFlightFunc so renderers can pass it straight through.
func (m *Mutator) InFlight(c task.Control) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.disabled[c.Key()]
	return ok
}

// Disable marks a control as submitting. It fails with ErrInFlight if the
// control is already disabled, so a control sends at most one request.
func (m *Mutator) Disable(c task.Control) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.disabled[c.Key()]; ok {
		return ErrInFlight
	}
	m.disabled[c.Key()] = struct{}{}
	return nil
}

// Toggle flips one control. Only that control is disabled while the request
// runs. On success the control is re-enabled and the row refreshed. On
// failure the user is alerted once and the control stays disabled until
// Reset; nothing is retried.
func (m *Mutator) Toggle(ctx context.Context, t task.Task, stage task.Stage, v task.Variant) error {
	c := task.Control{TaskID: t.ID, Stage: stage}
	if err := m.Disable(c); err != nil {
		return err
	}
	return m.Send(ctx, c, Request(t, stage, v))
}

// Send delivers a request for a control previously passed to Disable.
func (m *Mutator) Send(ctx context.Context, c task.Control, req model.CompletionRequest) error {
	if err := m.sender.Send(ctx, req); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			m.alert.Alert(msgFailed)
		} else {
			m.alert.Alert(msgNetwork)
		}
		m.logger.Warn("mutation failed", "control", c.Key(), "error", err)
		return fmt.Errorf("toggle %s: %w", c.Key(), err)
	}

	m.mu.Lock()
	delete(m.disabled, c.Key())
	m.mu.Unlock()

	if err := m.refresh.Refresh(ctx, c.TaskID); err != nil {
		return fmt.Errorf("refresh %s: %w", c.TaskID, err)
	}
	return nil
}

// Reset re-enables every control, the equivalent of reloading the page.
func (m *Mutator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = make(map[string]struct{})
}
