/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists the roster, the task price table, raw activity logs, attendance,
  report snapshots and cascade runs. The engine never reads live tables
  while recomputing a report: everything a recompute needs is in the
  snapshot blob.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on activity_logs
  - attendance is upserted on (worker_id, year, month, half)
  - snapshots are inserted once, then replaced only through UpdateSnapshot

KEY TABLES:
  workers:       roster records (seniority stored as decimal text)
  tasks:         price table
  activity_logs: immutable quantity entries with their owner tag
  attendance:    days worked per half month, with the half-month range
  snapshots:     report blobs with kind and period columns for filtering
  cascade_runs:  saga records for sibling report generation

DECIMALS:
  Money and quantities are stored as decimal strings, never REAL, so values
  read back are exactly the values written.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened with WAL so readers
  don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := engine.NewService(store, logger)

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/harvest-payroll/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Now stamps attendance and snapshot writes.
	Now func() time.Time
}

var _ engine.Store = (*Store)(nil)

const timeLayout = time.RFC3339Nano

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, Now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		bank_account TEXT NOT NULL DEFAULT '',
		cin TEXT NOT NULL DEFAULT '',
		cnss_number TEXT NOT NULL DEFAULT '',
		seniority_pct TEXT NOT NULL DEFAULT '0',
		dependents INTEGER NOT NULL DEFAULT 0,
		group_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY,
		price TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	);

	-- Activity logs (append-only)
	CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		quantity TEXT NOT NULL,
		log_date TEXT NOT NULL,
		owner TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_logs_date
		ON activity_logs(log_date);

	-- One entry per worker and half month; later writes replace earlier ones
	CREATE TABLE IF NOT EXISTS attendance (
		worker_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		half INTEGER NOT NULL,
		days TEXT NOT NULL,
		owner TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (worker_id, year, month, half)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_period
		ON attendance(period_start, period_end);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		body_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_kind_period
		ON snapshots(kind, period_start, period_end);

	CREATE TABLE IF NOT EXISTS cascade_runs (
		id TEXT PRIMARY KEY,
		source_report_id TEXT NOT NULL,
		complete INTEGER NOT NULL,
		body_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cascade_runs_incomplete
		ON cascade_runs(complete) WHERE complete = 0;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WORKER STORE
// =============================================================================

// SaveWorker inserts or replaces a roster record.
func (s *Store) SaveWorker(ctx context.Context, w engine.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO workers (id, name, bank_account, cin, cnss_number, seniority_pct, dependents, group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			bank_account = excluded.bank_account,
			cin = excluded.cin,
			cnss_number = excluded.cnss_number,
			seniority_pct = excluded.seniority_pct,
			dependents = excluded.dependents,
			group_id = excluded.group_id
	`

	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.Name, w.BankAccount, w.CIN, w.CNSSNumber,
		w.SeniorityPct.String(), w.Dependents, w.GroupID,
	)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

const workerColumns = "id, name, bank_account, cin, cnss_number, seniority_pct, dependents, group_id"

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, id engine.WorkerID) (*engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+workerColumns+" FROM workers WHERE id = ?", id)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWorkers returns the roster ordered by name.
func (s *Store) ListWorkers(ctx context.Context) ([]engine.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+workerColumns+" FROM workers ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []engine.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorker(row scanner) (engine.Worker, error) {
	var w engine.Worker
	var seniority string
	if err := row.Scan(&w.ID, &w.Name, &w.BankAccount, &w.CIN, &w.CNSSNumber, &seniority, &w.Dependents, &w.GroupID); err != nil {
		return w, err
	}
	pct, err := decimal.NewFromString(seniority)
	if err != nil {
		return w, fmt.Errorf("worker %s: bad seniority %q: %w", w.ID, seniority, err)
	}
	w.SeniorityPct = pct
	return w, nil
}

// =============================================================================
// TASK STORE
// =============================================================================

// SaveTask inserts or replaces a price table entry.
func (s *Store) SaveTask(ctx context.Context, t engine.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tasks (id, price, category, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			price = excluded.price,
			category = excluded.category,
			description = excluded.description
	`

	_, err := s.db.ExecContext(ctx, query, int(t.ID), t.Price.String(), t.Category, t.Description)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// ListTasks returns the price table ordered by task id.
func (s *Store) ListTasks(ctx context.Context) ([]engine.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, price, category, description FROM tasks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []engine.Task
	for rows.Next() {
		var t engine.Task
		var id int
		var price string
		if err := rows.Scan(&id, &price, &t.Category, &t.Description); err != nil {
			return nil, err
		}
		t.ID = engine.TaskID(id)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("task %d: bad price %q: %w", id, price, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// =============================================================================
// ACTIVITY STORE
// =============================================================================

// AppendActivity adds log entries atomically.
func (s *Store) AppendActivity(ctx context.Context, logs []engine.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO activity_logs (id, worker_id, task_id, quantity, log_date, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, l := range logs {
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.Now()
		}
		_, err := sqlTx.ExecContext(ctx, query,
			l.ID, l.WorkerID, int(l.TaskID), l.Quantity.String(), string(l.Date), l.Owner,
			createdAt.UTC().Format(timeLayout),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("activity log %s already recorded: %w", l.ID, err)
			}
			return fmt.Errorf("failed to append activity log: %w", err)
		}
	}

	return sqlTx.Commit()
}

// ListActivity returns entries dated inside p, in entry order.
func (s *Store) ListActivity(ctx context.Context, p engine.Period) ([]engine.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, task_id, quantity, log_date, owner, created_at
		FROM activity_logs
		WHERE log_date >= ? AND log_date <= ?
		ORDER BY created_at, id
	`, string(p.Start), string(p.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []engine.ActivityLog
	for rows.Next() {
		var l engine.ActivityLog
		var taskID int
		var quantity, date, createdAt string
		if err := rows.Scan(&l.ID, &l.WorkerID, &taskID, &quantity, &date, &l.Owner, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		l.TaskID = engine.TaskID(taskID)
		l.Date = engine.Date(date)
		if l.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("activity log %s: bad quantity %q: %w", l.ID, quantity, err)
		}
		l.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpsertAttendance inserts or replaces the entry for its key.
func (s *Store) UpsertAttendance(ctx context.Context, a engine.Attendance) (engine.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.UpdatedAt = s.Now()
	period := a.Period()

	query := `
		INSERT INTO attendance (worker_id, year, month, half, days, owner, period_start, period_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, year, month, half) DO UPDATE SET
			days = excluded.days,
			owner = excluded.owner,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		a.WorkerID, a.Year, int(a.Month), int(a.Half), a.Days.String(), a.Owner,
		string(period.Start), string(period.End), a.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return engine.Attendance{}, fmt.Errorf("failed to upsert attendance: %w", err)
	}
	return a, nil
}

// ListAttendance returns entries whose half month lies inside p.
func (s *Store) ListAttendance(ctx context.Context, p engine.Period) ([]engine.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, year, month, half, days, owner, updated_at
		FROM attendance
		WHERE period_start >= ? AND period_end <= ?
		ORDER BY year, month, half, worker_id
	`, string(p.Start), string(p.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Attendance
	for rows.Next() {
		var a engine.Attendance
		var month, half int
		var days, updatedAt string
		if err := rows.Scan(&a.WorkerID, &a.Year, &month, &half, &days, &a.Owner, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		a.Month = time.Month(month)
		a.Half = engine.Half(half)
		if a.Days, err = decimal.NewFromString(days); err != nil {
			return nil, fmt.Errorf("attendance %s: bad days %q: %w", a.WorkerID, days, err)
		}
		a.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

// CreateSnapshot inserts a new report snapshot.
func (s *Store) CreateSnapshot(ctx context.Context, snap engine.Snapshot) (engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == "" {
		snap.ID = engine.ReportID(uuid.NewString())
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.Now()
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = snap.CreatedAt
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, kind, period_start, period_end, body_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID, snap.Kind,
		string(snap.Params.Period.Start), string(snap.Params.Period.End),
		string(body),
		snap.CreatedAt.UTC().Format(timeLayout),
		snap.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.Snapshot{}, engine.ErrSnapshotExists
		}
		return engine.Snapshot{}, fmt.Errorf("failed to create snapshot: %w", err)
	}
	return snap, nil
}

// UpdateSnapshot replaces a stored snapshot.
func (s *Store) UpdateSnapshot(ctx context.Context, snap engine.Snapshot) (engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = s.Now()
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE snapshots SET body_json = ?, updated_at = ? WHERE id = ?",
		string(body), snap.UpdatedAt.UTC().Format(timeLayout), snap.ID,
	)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("failed to update snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.Snapshot{}, engine.ErrSnapshotNotFound
	}
	return snap, nil
}

// GetSnapshot retrieves a snapshot by ID.
func (s *Store) GetSnapshot(ctx context.Context, id engine.ReportID) (*engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body_json FROM snapshots WHERE id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, engine.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// ListSnapshots returns snapshots matching f, ordered by period start then id.
func (s *Store) ListSnapshots(ctx context.Context, f engine.SnapshotFilter) ([]engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if len(f.IDs) > 0 {
		marks := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			marks[i] = "?"
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Within != nil {
		where = append(where, "period_start >= ? AND period_end <= ?")
		args = append(args, string(f.Within.Start), string(f.Within.End))
	}
	if f.CascadeFrom != "" {
		where = append(where, "json_extract(body_json, '$.params.cascade_from') = ?")
		args = append(args, string(f.CascadeFrom))
	}

	query := "SELECT body_json FROM snapshots"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period_start, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Snapshot
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var snap engine.Snapshot
		if err := json.Unmarshal([]byte(body), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// =============================================================================
// CASCADE RUN STORE
// =============================================================================

// SaveCascadeRun inserts or replaces a cascade run record.
func (s *Store) SaveCascadeRun(ctx context.Context, r engine.CascadeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode cascade run: %w", err)
	}
	complete := 0
	if r.Complete() {
		complete = 1
	}

	query := `
		INSERT INTO cascade_runs (id, source_report_id, complete, body_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			complete = excluded.complete,
			body_json = excluded.body_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.SourceReportID, complete, string(body),
		r.CreatedAt.UTC().Format(timeLayout), r.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save cascade run: %w", err)
	}
	return nil
}

// GetCascadeRun retrieves a cascade run by ID.
func (s *Store) GetCascadeRun(ctx context.Context, id string) (*engine.CascadeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body_json FROM cascade_runs WHERE id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, engine.ErrCascadeRunNotFound
	}
	if err != nil {
		return nil, err
	}

	var run engine.CascadeRun
	if err := json.Unmarshal([]byte(body), &run); err != nil {
		return nil, fmt.Errorf("failed to decode cascade run %s: %w", id, err)
	}
	return &run, nil
}

// ListIncompleteCascadeRuns returns runs with stages still to persist,
// oldest first.
func (s *Store) ListIncompleteCascadeRuns(ctx context.Context) ([]engine.CascadeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT body_json FROM cascade_runs WHERE complete = 0 ORDER BY created_at, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.CascadeRun
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var run engine.CascadeRun
		if err := json.Unmarshal([]byte(body), &run); err != nil {
			return nil, fmt.Errorf("failed to decode cascade run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"cascade_runs", "snapshots", "attendance", "activity_logs", "tasks", "workers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		errors.Is(err, engine.ErrSnapshotExists)
}
