package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/task"
)

type CompletionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewCompletionStore(db *sql.DB) *CompletionStore {
	return &CompletionStore{db: db, now: time.Now}
}

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.Completion, error) {
	var c model.Completion
	var completed, firstRead, notes, revision int
	var completedAt sql.NullTime
	var monthYear sql.NullString

	err := scanner.Scan(
		&c.TaskID, &c.TaskType, &completed, &firstRead, &notes, &revision,
		&completedAt, &monthYear,
	)
	if err != nil {
		return nil, err
	}

	c.Completed = completed != 0
	c.FirstRead = firstRead != 0
	c.Notes = notes != 0
	c.Revision = revision != 0
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if monthYear.Valid {
		c.MonthYear = &monthYear.String
	}
	return &c, nil
}

const completionCols = `task_id, task_type, completed, first_read, notes, revision, completed_at, month_year`

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// MarkStage sets one checkpoint of a daily task, creating the record on
// first use. The completed flag follows the three checkpoints.
func (s *CompletionStore) MarkStage(taskID string, taskType model.TaskType, stage task.Stage, done bool, monthYear *string) (*model.Completion, error) {
	if _, ok := task.ParseStage(string(stage)); !ok {
		return nil, fmt.Errorf("mark stage: invalid stage %q", stage)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO task_completions (task_id, task_type, month_year) VALUES (?, ?, ?)
		 ON CONFLICT(task_id) DO NOTHING`,
		taskID, string(taskType), nullString(monthYear),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}

	// stage is one of three validated column names.
	_, err = tx.Exec(
		`UPDATE task_completions SET `+string(stage)+` = ?, completed_at = ? WHERE task_id = ?`,
		boolInt(done), s.now().UTC(), taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE task_completions
		 SET completed = CASE WHEN first_read = 1 AND notes = 1 AND revision = 1 THEN 1 ELSE 0 END
		 WHERE task_id = ?`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("update completed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.Get(taskID)
}

// MarkComplete sets the single completion flag. Clearing it removes the
// record entirely, so the row falls back to its sheet status.
func (s *CompletionStore) MarkComplete(taskID string, taskType model.TaskType, completed bool, monthYear *string) (*model.Completion, error) {
	if !completed {
		if _, err := s.db.Exec(`DELETE FROM task_completions WHERE task_id = ?`, taskID); err != nil {
			return nil, fmt.Errorf("delete completion: %w", err)
		}
		return nil, nil
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO task_completions (`+completionCols+`)
		 VALUES (?, ?, 1, 0, 0, 0, ?, ?)`,
		taskID, string(taskType), s.now().UTC(), nullString(monthYear),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	return s.Get(taskID)
}

func (s *CompletionStore) Get(taskID string) (*model.Completion, error) {
	row := s.db.QueryRow(`SELECT `+completionCols+` FROM task_completions WHERE task_id = ?`, taskID)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

func (s *CompletionStore) List() ([]model.Completion, error) {
	rows, err := s.db.Query(`SELECT ` + completionCols + ` FROM task_completions ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ByKey indexes every completion by task id.
func (s *CompletionStore) ByKey() (map[string]model.Completion, error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	m := make(map[string]model.Completion, len(list))
	for _, c := range list {
		m[c.TaskID] = c
	}
	return m, nil
}

// Stats counts completed records, optionally limited to one month_year.
func (s *CompletionStore) Stats(monthYear string) (model.CompletionStats, error) {
	var stats model.CompletionStats
	var err error
	if monthYear != "" {
		err = s.db.QueryRow(
			`SELECT COUNT(*) FROM task_completions WHERE completed = 1 AND month_year = ?`, monthYear,
		).Scan(&stats.Completed)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM task_completions WHERE completed = 1`).Scan(&stats.Completed)
	}
	if err != nil {
		return stats, fmt.Errorf("count completions: %w", err)
	}
	return stats, nil
}

// Progress measures checkpoint completion over the cached daily rows,
// optionally only those dated date (YYYY-MM-DD). Each row has three
// checkpoints; completions for rows no longer in the cache are ignored.
func (s *CompletionStore) Progress(date string) (model.TaskProgress, error) {
	var p model.TaskProgress

	rowFilter := `is_header = 0 AND task_id IS NOT NULL`
	args := []any{}
	if date != "" {
		rowFilter += ` AND date = ?`
		args = append(args, date)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM daily_rows WHERE `+rowFilter, args...).Scan(&p.TotalTasks); err != nil {
		return p, fmt.Errorf("count daily rows: %w", err)
	}
	p.TotalStages = p.TotalTasks * 3

	var done sql.NullInt64
	err := s.db.QueryRow(
		`SELECT SUM(first_read + notes + revision) FROM task_completions
		 WHERE task_type = 'daily'
		   AND task_id IN (SELECT 'daily_' || task_id FROM daily_rows WHERE `+rowFilter+`)`,
		args...,
	).Scan(&done)
	if err != nil {
		return p, fmt.Errorf("sum stages: %w", err)
	}
	p.CompletedStages = int(done.Int64)

	if p.TotalStages > 0 {
		pct := float64(p.CompletedStages) / float64(p.TotalStages) * 100
		p.Percentage = math.Round(pct*100) / 100
	}
	return p, nil
}
