package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/task"
)

const updatedAtKey = "updated_at"

// SheetStore caches the upstream sheet rows. The rows are replaced as a
// whole on every refresh and never edited in place.
type SheetStore struct {
	db *sql.DB
}

func NewSheetStore(db *sql.DB) *SheetStore {
	return &SheetStore{db: db}
}

// ReplaceRows swaps the cached monthly and daily rows in one transaction and
// records stamp as the refresh time. Daily rows keep their row id and date
// in indexed columns so progress can be computed without decoding JSON.
func (s *SheetStore) ReplaceRows(monthly, daily [][]any, stamp time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM monthly_rows`); err != nil {
		return fmt.Errorf("clear monthly rows: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM daily_rows`); err != nil {
		return fmt.Errorf("clear daily rows: %w", err)
	}

	for _, row := range monthly {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal monthly row: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO monthly_rows (row_data) VALUES (?)`, string(data)); err != nil {
			return fmt.Errorf("insert monthly row: %w", err)
		}
	}

	hasHeader := task.HasHeader(daily)
	idIdx, dateIdx := 0, 3
	if hasHeader {
		idIdx = columnIndex(daily[0], "id", 0)
		dateIdx = columnIndex(daily[0], "Date", 3)
	}
	for i, row := range daily {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal daily row: %w", err)
		}
		isHeader := hasHeader && i == 0
		var taskID, date sql.NullString
		if !isHeader {
			if id := task.CellString(cellAt(row, idIdx)); id != "" {
				taskID = sql.NullString{String: id, Valid: true}
			}
			if d := task.CellString(cellAt(row, dateIdx)); d != "" {
				if len(d) > 10 {
					d = d[:10]
				}
				date = sql.NullString{String: d, Valid: true}
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO daily_rows (row_data, is_header, task_id, date) VALUES (?, ?, ?, ?)`,
			string(data), boolInt(isHeader), taskID, date,
		); err != nil {
			return fmt.Errorf("insert daily row: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		updatedAtKey, stamp.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("stamp refresh: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Tables returns the cached rows in upstream order. An empty cache gives
// empty (non-nil) tables.
func (s *SheetStore) Tables() (*model.Tables, error) {
	monthly, err := s.rows(`SELECT row_data FROM monthly_rows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monthly rows: %w", err)
	}
	daily, err := s.rows(`SELECT row_data FROM daily_rows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list daily rows: %w", err)
	}
	updated, err := s.UpdatedAt()
	if err != nil {
		return nil, err
	}
	return &model.Tables{Monthly: monthly, Daily: daily, UpdatedAt: updated}, nil
}

// UpdatedAt returns the last refresh stamp, or "" if the cache was never
// filled.
func (s *SheetStore) UpdatedAt() (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, updatedAtKey).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get updated_at: %w", err)
	}
	return v, nil
}

func (s *SheetStore) rows(query string) ([][]any, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := [][]any{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var row []any
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func columnIndex(header []any, name string, fallback int) int {
	if i := indexOf(header, name); i >= 0 {
		return i
	}
	return fallback
}

func cellAt(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
