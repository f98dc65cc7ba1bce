package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite is the Store implementation backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services (
  id           TEXT PRIMARY KEY,
  name         TEXT NOT NULL,
  description  TEXT NOT NULL DEFAULT '',
  version      TEXT NOT NULL DEFAULT '',
  status       TEXT NOT NULL,
  capabilities JSON NOT NULL DEFAULT '{}',
  launch       JSON NOT NULL,
  created_at   TEXT NOT NULL,
  updated_at   TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS tasks (
  id            TEXT PRIMARY KEY,
  service_id    TEXT NOT NULL,
  instruction   TEXT NOT NULL,
  status        TEXT NOT NULL,
  context       JSON,
  result        JSON,
  progress      INTEGER NOT NULL DEFAULT 0,
  error_message TEXT,
  created_at    TEXT NOT NULL,
  completed_at  TEXT
);`,
		`CREATE TABLE IF NOT EXISTS task_logs (
  id        TEXT PRIMARY KEY,
  task_id   TEXT NOT NULL,
  level     TEXT NOT NULL,
  message   TEXT NOT NULL,
  timestamp TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS connections (
  id             TEXT PRIMARY KEY,
  client_id      TEXT NOT NULL,
  client_name    TEXT,
  client_version TEXT,
  platform       TEXT,
  status         TEXT NOT NULL,
  last_seen      TEXT NOT NULL,
  created_at     TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS tasks_service_id_created_at_idx ON tasks(service_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS task_logs_task_id_timestamp_idx ON task_logs(task_id, timestamp);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

func (s *SQLite) CreateService(ctx context.Context, svc *Service) error {
	if svc.ID == "" {
		return fmt.Errorf("service id is empty")
	}
	if svc.Name == "" {
		return fmt.Errorf("service name is empty")
	}
	if svc.Launch.Command == "" {
		return fmt.Errorf("service launch command is empty")
	}

	caps, err := json.Marshal(svc.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	launch, err := json.Marshal(svc.Launch)
	if err != nil {
		return fmt.Errorf("marshal launch spec: %w", err)
	}

	now := time.Now().UTC()
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = now
	}
	svc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
INSERT INTO services(id, name, description, version, status, capabilities, launch, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, svc.ID, svc.Name, svc.Description, svc.Version, string(svc.Status), string(caps), string(launch),
		svc.CreatedAt.Format(time.RFC3339Nano), svc.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (s *SQLite) GetService(ctx context.Context, id string) (*Service, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, description, version, status, capabilities, launch, created_at, updated_at
FROM services WHERE id = ?;
`, id)
	return scanService(row)
}

func (s *SQLite) ListServices(ctx context.Context) ([]*Service, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, version, status, capabilities, launch, created_at, updated_at
FROM services ORDER BY created_at ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*Service, error) {
	var (
		svc        Service
		statusS    string
		capsS      string
		launchS    string
		createdAtS string
		updatedAtS string
	)
	err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Version, &statusS, &capsS, &launchS, &createdAtS, &updatedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan service: %w", err)
	}

	svc.Status = ServiceStatus(statusS)
	if err := json.Unmarshal([]byte(capsS), &svc.Capabilities); err != nil {
		return nil, fmt.Errorf("decode capabilities for service %q: %w", svc.ID, err)
	}
	if err := json.Unmarshal([]byte(launchS), &svc.Launch); err != nil {
		return nil, fmt.Errorf("decode launch spec for service %q: %w", svc.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		svc.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAtS); err == nil {
		svc.UpdatedAt = t
	}
	return &svc, nil
}

func (s *SQLite) UpdateServiceStatus(ctx context.Context, id string, status ServiceStatus) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE services SET status = ?, updated_at = ? WHERE id = ?;
`, string(status), now, id)
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	if n == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (s *SQLite) DeleteService(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if n == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (s *SQLite) CreateTask(ctx context.Context, task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is empty")
	}
	if task.ServiceID == "" {
		return fmt.Errorf("task service id is empty")
	}

	var contextS any
	if task.Context != nil {
		b, err := json.Marshal(task.Context)
		if err != nil {
			return fmt.Errorf("marshal task context: %w", err)
		}
		contextS = string(b)
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks(id, service_id, instruction, status, context, progress, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, task.ID, task.ServiceID, task.Instruction, string(task.Status), contextS, task.Progress,
		task.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *SQLite) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, service_id, instruction, status, context, result, progress, error_message, created_at, completed_at
FROM tasks WHERE id = ?;
`, id)
	return scanTask(row)
}

func (s *SQLite) ListTasksByService(ctx context.Context, serviceID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, service_id, instruction, status, context, result, progress, error_message, created_at, completed_at
FROM tasks WHERE service_id = ? ORDER BY created_at DESC;
`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task         Task
		statusS      string
		contextS     sql.NullString
		resultS      sql.NullString
		errorMessage sql.NullString
		createdAtS   string
		completedAtS sql.NullString
	)
	err := row.Scan(&task.ID, &task.ServiceID, &task.Instruction, &statusS, &contextS, &resultS,
		&task.Progress, &errorMessage, &createdAtS, &completedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Status = TaskStatus(statusS)
	if contextS.Valid && contextS.String != "" {
		if err := json.Unmarshal([]byte(contextS.String), &task.Context); err != nil {
			return nil, fmt.Errorf("decode context for task %q: %w", task.ID, err)
		}
	}
	if resultS.Valid && resultS.String != "" {
		task.Result = json.RawMessage(resultS.String)
	}
	if errorMessage.Valid {
		task.ErrorMessage = &errorMessage.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		task.CreatedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			task.CompletedAt = &t
		}
	}
	return &task, nil
}

func (s *SQLite) UpdateTask(ctx context.Context, id string, upd TaskUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, string(upd.Result))
	}
	if upd.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *upd.Progress)
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *upd.ErrorMessage)
	}
	if upd.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, upd.CompletedAt.UTC().Format(time.RFC3339Nano))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?;", args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLite) AppendTaskLog(ctx context.Context, taskID, level, message string) error {
	if taskID == "" {
		return fmt.Errorf("task id is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_logs(id, task_id, level, message, timestamp)
VALUES(?, ?, ?, ?, ?);
`, uuid.NewString(), taskID, level, message, now)
	if err != nil {
		return fmt.Errorf("append task log: %w", err)
	}
	return nil
}

func (s *SQLite) GetTaskLogs(ctx context.Context, taskID string) ([]*TaskLog, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, task_id, level, message, timestamp
FROM task_logs WHERE task_id = ? ORDER BY timestamp ASC, rowid ASC;
`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task logs: %w", err)
	}
	defer rows.Close()

	var out []*TaskLog
	for rows.Next() {
		var (
			entry      TaskLog
			timestampS string
		)
		if err := rows.Scan(&entry.ID, &entry.TaskID, &entry.Level, &entry.Message, &timestampS); err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, timestampS); err == nil {
			entry.Timestamp = t
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertConnection(ctx context.Context, conn *Connection) error {
	if conn.ID == "" {
		return fmt.Errorf("connection id is empty")
	}
	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	if conn.LastSeen.IsZero() {
		conn.LastSeen = now
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO connections(id, client_id, client_name, client_version, platform, status, last_seen, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  client_id = excluded.client_id,
  client_name = excluded.client_name,
  client_version = excluded.client_version,
  platform = excluded.platform,
  status = excluded.status,
  last_seen = excluded.last_seen;
`, conn.ID, conn.ClientID, conn.ClientName, conn.ClientVersion, conn.Platform, conn.Status,
		conn.LastSeen.UTC().Format(time.RFC3339Nano), conn.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}
