// Package archive provides SQLite-backed storage of terminal task
// snapshots. The orchestration core never touches it directly; the daemon
// wires it in as the external persistence collaborator.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelsec/kestrel/internal/models"
	_ "modernc.org/sqlite"
)

// Archive stores terminal task snapshots and their findings.
type Archive struct {
	db *sql.DB
}

// New creates an Archive and runs migrations.
func New(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// migrate runs idempotent schema migrations.
func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		state TEXT NOT NULL,
		error TEXT,
		results TEXT,
		recommendations TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		data TEXT,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
	CREATE INDEX IF NOT EXISTS idx_findings_task_id ON findings(task_id);
	`

	_, err := a.db.Exec(schema)
	return err
}

// SaveTask upserts a terminal task snapshot together with its findings in
// one transaction, so a partially archived task is never observable.
func (a *Archive) SaveTask(task models.Task) error {
	resultsJSON, err := json.Marshal(task.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	recsJSON, err := json.Marshal(task.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	var completedAt any
	if task.CompletedAt != nil {
		completedAt = *task.CompletedAt
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO tasks (id, description, target, mode, state, error, results, recommendations, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   error = excluded.error,
		   results = excluded.results,
		   recommendations = excluded.recommendations,
		   completed_at = excluded.completed_at`,
		task.ID, task.Description, task.Target, task.Mode, task.State,
		task.Error, string(resultsJSON), string(recsJSON), task.CreatedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	for _, f := range task.Findings {
		dataJSON, err := json.Marshal(f.Data)
		if err != nil {
			return fmt.Errorf("marshal finding data: %w", err)
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO findings (id, task_id, tool, data, timestamp) VALUES (?, ?, ?, ?, ?)`,
			f.ID, task.ID, f.Tool, string(dataJSON), f.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	return tx.Commit()
}

// GetTask retrieves an archived task by ID. Returns nil when absent.
func (a *Archive) GetTask(id string) (*models.Task, error) {
	task := &models.Task{}
	var errMsg, resultsJSON, recsJSON sql.NullString
	var completedAt sql.NullTime

	err := a.db.QueryRow(
		`SELECT id, description, target, mode, state, error, results, recommendations, created_at, completed_at
		 FROM tasks WHERE id = ?`,
		id,
	).Scan(&task.ID, &task.Description, &task.Target, &task.Mode, &task.State,
		&errMsg, &resultsJSON, &recsJSON, &task.CreatedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}

	if errMsg.Valid {
		task.Error = errMsg.String
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &task.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	if recsJSON.Valid && recsJSON.String != "" {
		if err := json.Unmarshal([]byte(recsJSON.String), &task.Recommendations); err != nil {
			return nil, fmt.Errorf("unmarshal recommendations: %w", err)
		}
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}

	findings, err := a.findingsForTask(id)
	if err != nil {
		return nil, err
	}
	task.Findings = findings
	return task, nil
}

// ListTasks returns archived tasks, optionally filtered by state, newest
// first.
func (a *Archive) ListTasks(state string) ([]models.Task, error) {
	query := `SELECT id, description, target, mode, state, error, created_at, completed_at FROM tasks`
	var args []interface{}

	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		var errMsg sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&task.ID, &task.Description, &task.Target, &task.Mode,
			&task.State, &errMsg, &task.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if errMsg.Valid {
			task.Error = errMsg.String
		}
		if completedAt.Valid {
			task.CompletedAt = &completedAt.Time
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (a *Archive) findingsForTask(taskID string) ([]models.Finding, error) {
	rows, err := a.db.Query(
		`SELECT id, tool, data, timestamp FROM findings WHERE task_id = ? ORDER BY timestamp`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		var f models.Finding
		var dataJSON sql.NullString
		var ts time.Time
		if err := rows.Scan(&f.ID, &f.Tool, &dataJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Timestamp = ts
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &f.Data); err != nil {
				return nil, fmt.Errorf("unmarshal finding data: %w", err)
			}
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
