package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/milkdiary/internal/database"
	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/task"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func dailyRows() [][]any {
	return [][]any{
		{"id", "monthly_task_id", "week_no", "Date", "task_name", "Status"},
		{float64(1), "G-1", float64(1), "2024-10-05", "Read chapter 1", "Pending"},
		{float64(2), "G-1", float64(1), "2024-10-05", "Read chapter 2", "Pending"},
		{float64(3), "G-2", float64(1), "2024-10-06", "Flashcards", "done"},
	}
}

func monthlyRows() [][]any {
	return [][]any{
		{"id", "Goals", "to_do", "month_year", "Status"},
		{float64(7), "Fitness", "Run", "oct_2024", "done"},
		{float64(8), "Reading", "Novel", "oct_2024", "Pending"},
	}
}

func TestSheetReplaceAndTables(t *testing.T) {
	s := NewSheetStore(setupTestDB(t))

	empty, err := s.Tables()
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if len(empty.Daily) != 0 || len(empty.Monthly) != 0 || empty.UpdatedAt != "" {
		t.Errorf("empty cache = %+v", empty)
	}

	stamp := time.Date(2024, 10, 5, 6, 30, 0, 0, time.UTC)
	if err := s.ReplaceRows(monthlyRows(), dailyRows(), stamp); err != nil {
		t.Fatalf("replace: %v", err)
	}
	tables, err := s.Tables()
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if len(tables.Daily) != 4 || len(tables.Monthly) != 3 {
		t.Errorf("daily = %d, monthly = %d, want 4 and 3", len(tables.Daily), len(tables.Monthly))
	}
	if tables.Daily[1][4] != "Read chapter 1" {
		t.Errorf("row order not kept: %v", tables.Daily[1])
	}
	if tables.UpdatedAt != "2024-10-05T06:30:00Z" {
		t.Errorf("updated_at = %q", tables.UpdatedAt)
	}

	// A second refresh replaces rather than appends.
	if err := s.ReplaceRows(monthlyRows()[:1], dailyRows()[:2], stamp.Add(time.Hour)); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	tables, _ = s.Tables()
	if len(tables.Daily) != 2 || len(tables.Monthly) != 1 {
		t.Errorf("after second refresh daily = %d, monthly = %d", len(tables.Daily), len(tables.Monthly))
	}
}

func TestCompletionMarkStage(t *testing.T) {
	cs := NewCompletionStore(setupTestDB(t))

	c, err := cs.MarkStage("daily_1", model.TaskTypeDaily, task.StageFirstRead, true, nil)
	if err != nil {
		t.Fatalf("mark stage: %v", err)
	}
	if !c.FirstRead || c.Notes || c.Revision || c.Completed {
		t.Errorf("completion = %+v, want first_read only", c)
	}
	if c.CompletedAt == nil {
		t.Error("completed_at should be set")
	}

	cs.MarkStage("daily_1", model.TaskTypeDaily, task.StageNotes, true, nil)
	c, _ = cs.MarkStage("daily_1", model.TaskTypeDaily, task.StageRevision, true, nil)
	if !c.AllStages() || !c.Completed {
		t.Errorf("completion = %+v, want all stages and completed", c)
	}

	c, _ = cs.MarkStage("daily_1", model.TaskTypeDaily, task.StageNotes, false, nil)
	if c.Notes || c.Completed {
		t.Errorf("completion = %+v, want notes cleared", c)
	}

	if _, err := cs.MarkStage("daily_1", model.TaskTypeDaily, task.Stage("bogus"), true, nil); err == nil {
		t.Error("expected error for invalid stage")
	}
}

func TestCompletionMarkComplete(t *testing.T) {
	cs := NewCompletionStore(setupTestDB(t))
	month := "oct_2024"

	c, err := cs.MarkComplete("monthly_7", model.TaskTypeMonthly, true, &month)
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	if !c.Completed || c.MonthYear == nil || *c.MonthYear != month {
		t.Errorf("completion = %+v", c)
	}

	stats, _ := cs.Stats(month)
	if stats.Completed != 1 {
		t.Errorf("stats = %+v, want 1", stats)
	}
	stats, _ = cs.Stats("nov_2024")
	if stats.Completed != 0 {
		t.Errorf("nov stats = %+v, want 0", stats)
	}

	c, err = cs.MarkComplete("monthly_7", model.TaskTypeMonthly, false, &month)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if c != nil {
		t.Errorf("uncomplete returned %+v, want nil", c)
	}
	got, _ := cs.Get("monthly_7")
	if got != nil {
		t.Error("record should be deleted")
	}
}

func TestCompletionProgress(t *testing.T) {
	db := setupTestDB(t)
	s := NewSheetStore(db)
	cs := NewCompletionStore(db)
	if err := s.ReplaceRows(nil, dailyRows(), time.Now()); err != nil {
		t.Fatal(err)
	}

	cs.MarkStage("daily_1", model.TaskTypeDaily, task.StageFirstRead, true, nil)
	cs.MarkStage("daily_1", model.TaskTypeDaily, task.StageNotes, true, nil)
	cs.MarkStage("daily_3", model.TaskTypeDaily, task.StageNotes, true, nil)
	cs.MarkStage("daily_99", model.TaskTypeDaily, task.StageNotes, true, nil)

	p, err := cs.Progress("2024-10-05")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	want := model.TaskProgress{TotalTasks: 2, TotalStages: 6, CompletedStages: 2, Percentage: 33.33}
	if p != want {
		t.Errorf("progress = %+v, want %+v", p, want)
	}

	p, _ = cs.Progress("")
	if p.TotalTasks != 3 || p.CompletedStages != 3 {
		t.Errorf("overall progress = %+v, want 3 tasks and 3 stages", p)
	}

	p, _ = cs.Progress("2030-01-01")
	if p.TotalTasks != 0 || p.Percentage != 0 {
		t.Errorf("empty day progress = %+v", p)
	}
}

func TestMergeDaily(t *testing.T) {
	completions := map[string]model.Completion{
		"daily_1": {TaskID: "daily_1", FirstRead: true, Notes: true, Revision: true},
		"daily_2": {TaskID: "daily_2", Notes: true},
	}
	in := dailyRows()
	out := MergeCompletions(in, completions, model.TaskTypeDaily)

	if len(out[0]) != 9 || out[0][8] != "revision" {
		t.Fatalf("header = %v, want stage columns appended", out[0])
	}
	if out[1][5] != "done" || out[1][6] != 1 {
		t.Errorf("row 1 = %v, want done with first_read 1", out[1])
	}
	if out[2][5] != "Pending" || out[2][7] != 1 || out[2][6] != 0 {
		t.Errorf("row 2 = %v, want Pending with notes only", out[2])
	}
	// Sheet-side done is not authoritative once stages exist.
	if out[3][5] != "Pending" {
		t.Errorf("row 3 status = %v, want Pending", out[3][5])
	}
	if len(in[0]) != 6 {
		t.Error("input rows were modified")
	}

	tasks := task.Normalize(out)
	if !tasks[0].FullyDone() || !tasks[1].Notes || tasks[1].FirstRead {
		t.Errorf("normalized = %+v", tasks)
	}
}

func TestMergeMonthly(t *testing.T) {
	completions := map[string]model.Completion{
		"monthly_8": {TaskID: "monthly_8", Completed: true},
	}
	out := MergeCompletions(monthlyRows(), completions, model.TaskTypeMonthly)
	if out[1][4] != "Pending" {
		t.Errorf("row 7 status = %v, want Pending without a local record", out[1][4])
	}
	if out[2][4] != "done" {
		t.Errorf("row 8 status = %v, want done", out[2][4])
	}
}

func TestMergeWithoutHeaderUnchanged(t *testing.T) {
	rows := [][]any{{float64(1), "x"}}
	out := MergeCompletions(rows, nil, model.TaskTypeDaily)
	if len(out) != 1 || len(out[0]) != 2 {
		t.Errorf("out = %v, want unchanged", out)
	}
}

func TestAssetStore(t *testing.T) {
	as := NewAssetStore(setupTestDB(t))

	err := as.PutAll([]model.Asset{
		{CacheName: "v1", Path: "/", Status: 200, ContentType: "text/html", Body: []byte("<html>")},
		{CacheName: "v1", Path: "/app.css", Status: 200, ContentType: "text/css", Body: []byte("body{}")},
		{CacheName: "v0", Path: "/", Status: 200, Body: []byte("old")},
	})
	if err != nil {
		t.Fatalf("put all: %v", err)
	}

	a, err := as.Match("v1", "/")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if a == nil || string(a.Body) != "<html>" || a.ContentType != "text/html" {
		t.Errorf("asset = %+v", a)
	}
	if miss, _ := as.Match("v1", "/missing"); miss != nil {
		t.Error("expected nil for missing path")
	}

	if err := as.Put(model.Asset{CacheName: "v1", Path: "/", Status: 200, Body: []byte("new")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	a, _ = as.Match("v1", "/")
	if string(a.Body) != "new" {
		t.Errorf("body = %q, want overwrite", a.Body)
	}

	names, _ := as.CacheNames()
	if len(names) != 2 {
		t.Errorf("names = %v", names)
	}
	if err := as.DeleteCache("v0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	names, _ = as.CacheNames()
	if len(names) != 1 || names[0] != "v1" {
		t.Errorf("names after delete = %v", names)
	}
	paths, _ := as.Paths("v1")
	if len(paths) != 2 {
		t.Errorf("paths = %v", paths)
	}
}

func TestBackupStore(t *testing.T) {
	db := setupTestDB(t)
	s := NewBackupStore(db)
	base := time.Date(2024, 10, 1, 6, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	old, err := s.Create("old.db.enc", "milkdiary/old.db.enc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if old.Status != model.BackupStatusPending || old.StartedAt == nil {
		t.Errorf("new backup = %+v", old)
	}

	s.now = func() time.Time { return base.Add(72 * time.Hour) }
	fresh, err := s.Create("fresh.db.enc", "milkdiary/fresh.db.enc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkCompleted(fresh.ID, 2048); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := s.UpdateStatus(old.ID, model.BackupStatusFailed, "boom"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	list, err := s.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != fresh.ID {
		t.Fatalf("list = %+v, want newest first", list)
	}
	if list[0].Status != model.BackupStatusCompleted || list[0].SizeBytes != 2048 || list[0].CompletedAt == nil {
		t.Errorf("completed backup = %+v", list[0])
	}
	if list[1].ErrorMessage != "boom" {
		t.Errorf("error message = %q", list[1].ErrorMessage)
	}

	keys, err := s.DeleteOlderThan(base.Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if len(keys) != 1 || keys[0] != "milkdiary/old.db.enc" {
		t.Errorf("deleted keys = %v", keys)
	}
	if got, _ := s.Get(old.ID); got != nil {
		t.Error("old backup still present")
	}
	if got, _ := s.Get(fresh.ID); got == nil {
		t.Error("fresh backup removed")
	}
}
