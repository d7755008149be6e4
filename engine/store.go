/*
store.go - Persistence interfaces

PURPOSE:
  The engine computes; persistence is an external collaborator. These
  interfaces are what the Service needs from it. Raw activity logs are
  append-only; attendance is upserted by key; snapshots are created once
  and then only updated through recomputation.

IMPLEMENTATIONS:
  - engine/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite
*/
package engine

import "context"

type WorkerStore interface {
	SaveWorker(ctx context.Context, w Worker) error
	GetWorker(ctx context.Context, id WorkerID) (*Worker, error)
	ListWorkers(ctx context.Context) ([]Worker, error)
}

type TaskStore interface {
	SaveTask(ctx context.Context, t Task) error
	ListTasks(ctx context.Context) ([]Task, error)
}

// ActivityStore holds the raw inputs of aggregation.
type ActivityStore interface {
	// AppendActivity persists log entries. Entries are never updated.
	AppendActivity(ctx context.Context, logs []ActivityLog) error

	// ListActivity returns entries dated inside p.
	ListActivity(ctx context.Context, p Period) ([]ActivityLog, error)

	// UpsertAttendance inserts or replaces the entry for its key and returns
	// it with UpdatedAt set.
	UpsertAttendance(ctx context.Context, a Attendance) (Attendance, error)

	// ListAttendance returns entries whose half month lies inside p.
	ListAttendance(ctx context.Context, p Period) ([]Attendance, error)
}

// SnapshotFilter narrows ListSnapshots. Zero fields match everything.
type SnapshotFilter struct {
	Kind ReportKind
	IDs  []ReportID

	// Within keeps snapshots whose period lies inside it.
	Within *Period

	// CascadeFrom keeps the siblings derived from one bi-monthly report.
	CascadeFrom ReportID
}

type SnapshotStore interface {
	// CreateSnapshot assigns an id when empty and sets timestamps.
	// Returns ErrSnapshotExists if the id is taken.
	CreateSnapshot(ctx context.Context, s Snapshot) (Snapshot, error)

	// UpdateSnapshot replaces a stored snapshot and bumps UpdatedAt if unset.
	UpdateSnapshot(ctx context.Context, s Snapshot) (Snapshot, error)

	GetSnapshot(ctx context.Context, id ReportID) (*Snapshot, error)
	ListSnapshots(ctx context.Context, f SnapshotFilter) ([]Snapshot, error)
}

// CascadeRunStore records cascade sagas so failed stages can be retried.
type CascadeRunStore interface {
	SaveCascadeRun(ctx context.Context, r CascadeRun) error
	GetCascadeRun(ctx context.Context, id string) (*CascadeRun, error)
	ListIncompleteCascadeRuns(ctx context.Context) ([]CascadeRun, error)
}

// Store is the full persistence surface.
type Store interface {
	WorkerStore
	TaskStore
	ActivityStore
	SnapshotStore
	CascadeRunStore
}
