package mutator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/task"
)

type recordingAlerter struct {
	mu   sync.Mutex
	msgs []string
}

func (a *recordingAlerter) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

type recordingRefresher struct {
	ids []string
}

func (r *recordingRefresher) Refresh(ctx context.Context, rowID string) error {
	r.ids = append(r.ids, rowID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupMutator(t *testing.T, h http.HandlerFunc) (*Mutator, *recordingAlerter, *recordingRefresher) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	alert := &recordingAlerter{}
	refresh := &recordingRefresher{}
	return New(NewClient(srv.URL, nil), alert, refresh, testLogger()), alert, refresh
}

func TestToggleStageSendsInverse(t *testing.T) {
	var got map[string]any
	var path string
	m, alert, refresh := setupMutator(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	tk := task.Task{ID: "7", FirstRead: true}
	if err := m.Toggle(context.Background(), tk, task.StageFirstRead, task.VariantThreeStage); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if path != "/api/task/stage" {
		t.Errorf("path = %q, want /api/task/stage", path)
	}
	if got["task_id"] != "7" || got["task_type"] != "daily" || got["stage"] != "first_read" {
		t.Errorf("body = %v", got)
	}
	if got["completed"] != false {
		t.Errorf("completed = %v, want inverse of current true", got["completed"])
	}
	if v, ok := got["month_year"]; !ok || v != nil {
		t.Errorf("month_year = %v (present %v), want explicit null", v, ok)
	}
	if len(alert.msgs) != 0 {
		t.Errorf("alerts = %v, want none", alert.msgs)
	}
	if len(refresh.ids) != 1 || refresh.ids[0] != "7" {
		t.Errorf("refreshed = %v, want [7]", refresh.ids)
	}
	if m.InFlight(task.Control{TaskID: "7", Stage: task.StageFirstRead}) {
		t.Error("control should be re-enabled after success")
	}
}

func TestToggleSingleUsesCompleteEndpoint(t *testing.T) {
	var path string
	var got map[string]any
	m, _, _ := setupMutator(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
	})

	tk := task.Task{ID: "3", StatusRaw: "Pending"}
	if err := m.Toggle(context.Background(), tk, "", task.VariantSingle); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if path != "/api/task/complete" {
		t.Errorf("path = %q", path)
	}
	if got["completed"] != true {
		t.Errorf("completed = %v, want true", got["completed"])
	}
	if _, ok := got["stage"]; ok {
		t.Error("stage should be omitted for single-status toggles")
	}
}

func TestToggleFailureAlertsWithoutRefresh(t *testing.T) {
	m, alert, refresh := setupMutator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	tk := task.Task{ID: "7"}
	err := m.Toggle(context.Background(), tk, task.StageNotes, task.VariantThreeStage)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("err = %v, want StatusError 500", err)
	}
	if len(alert.msgs) != 1 || alert.msgs[0] != msgFailed {
		t.Errorf("alerts = %v, want one failure alert", alert.msgs)
	}
	if len(refresh.ids) != 0 {
		t.Errorf("refreshed = %v, want none", refresh.ids)
	}

	ctl := task.Control{TaskID: "7", Stage: task.StageNotes}
	if !m.InFlight(ctl) {
		t.Error("control should stay disabled after failure")
	}
	if err := m.Toggle(context.Background(), tk, task.StageNotes, task.VariantThreeStage); !errors.Is(err, ErrInFlight) {
		t.Errorf("second toggle err = %v, want ErrInFlight", err)
	}
	if len(alert.msgs) != 1 {
		t.Error("disabled control must not send or alert again")
	}

	// Other controls stay usable.
	if m.InFlight(task.Control{TaskID: "7", Stage: task.StageRevision}) {
		t.Error("sibling control should not be disabled")
	}

	m.Reset()
	if m.InFlight(ctl) {
		t.Error("reset should re-enable the control")
	}
}

func TestToggleNetworkError(t *testing.T) {
	alert := &recordingAlerter{}
	refresh := &recordingRefresher{}
	m := New(NewClient("http://127.0.0.1:1", nil), alert, refresh, testLogger())

	if err := m.Toggle(context.Background(), task.Task{ID: "1"}, "", task.VariantSingle); err == nil {
		t.Fatal("expected error")
	}
	if len(alert.msgs) != 1 || alert.msgs[0] != msgNetwork {
		t.Errorf("alerts = %v, want network alert", alert.msgs)
	}
	if len(refresh.ids) != 0 {
		t.Error("no refresh on failure")
	}
}

func TestRowIDDecodesNumbers(t *testing.T) {
	var req model.CompletionRequest
	if err := json.Unmarshal([]byte(`{"task_id": 12, "task_type": "daily"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.TaskID != "12" || req.Key() != "daily_12" {
		t.Errorf("id = %q, key = %q", req.TaskID, req.Key())
	}
	req.TaskID = "daily_12"
	if req.Key() != "daily_12" {
		t.Errorf("prefixed key = %q", req.Key())
	}
}

func TestClientCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/task/daily/4" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(model.Completion{TaskID: "daily_4", Notes: true})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", nil).Completion(context.Background(), model.TaskTypeDaily, "4")
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if !c.Notes || c.TaskID != "daily_4" {
		t.Errorf("completion = %+v", c)
	}
}
