// Package websocket pushes change notifications to open pages so they can
// re-request their partials.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message is one change notification. Type is "<entity>_<action>".
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// StageUpdated announces a checkpoint change of a daily row.
func StageUpdated(rowID, stage string, done bool) Message {
	return NewMessage("task_stage", "updated", rowID, map[string]any{"stage": stage, "completed": done})
}

// TaskCompleted announces a single-flag completion change.
func TaskCompleted(taskType, rowID string, done bool) Message {
	return NewMessage("task", "completed", rowID, map[string]any{"task_type": taskType, "completed": done})
}

// SheetRefreshed announces a new sheet snapshot.
func SheetRefreshed(stamp time.Time) Message {
	return NewMessage("sheet", "refreshed", "", map[string]any{"updated_at": stamp.Format(time.RFC3339)})
}

// BackupStatus reports the backup manager's state.
func BackupStatus(state string, lastBackup *time.Time, errMsg string) Message {
	extra := map[string]any{"state": state}
	if lastBackup != nil {
		extra["last_backup"] = lastBackup.Format(time.RFC3339)
	}
	if errMsg != "" {
		extra["error"] = errMsg
	}
	return NewMessage("backup", "status", "", extra)
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client. Clients whose buffer is full miss
// the message rather than blocking the sender.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("broadcast dropped", "type", msg.Type, "clients", dropped)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
