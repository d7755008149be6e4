// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/harvest-payroll/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	workers    map[engine.WorkerID]engine.Worker
	tasks      map[engine.TaskID]engine.Task
	logs       []engine.ActivityLog
	attendance map[engine.AttendanceKey]engine.Attendance
	snapshots  map[engine.ReportID]engine.Snapshot
	runs       map[string]engine.CascadeRun

	// Now stamps attendance and snapshot writes.
	Now func() time.Time
}

var _ engine.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		workers:    make(map[engine.WorkerID]engine.Worker),
		tasks:      make(map[engine.TaskID]engine.Task),
		attendance: make(map[engine.AttendanceKey]engine.Attendance),
		snapshots:  make(map[engine.ReportID]engine.Snapshot),
		runs:       make(map[string]engine.CascadeRun),
		Now:        time.Now,
	}
}

// =============================================================================
// WORKERS & TASKS
// =============================================================================

func (m *Memory) SaveWorker(_ context.Context, w engine.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = w
	return nil
}

func (m *Memory) GetWorker(_ context.Context, id engine.WorkerID) (*engine.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, engine.ErrWorkerNotFound
	}
	return &w, nil
}

func (m *Memory) ListWorkers(_ context.Context) ([]engine.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveTask(_ context.Context, t engine.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) ListTasks(_ context.Context) ([]engine.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// ACTIVITY & ATTENDANCE
// =============================================================================

// AppendActivity adds entries. Append-only.
func (m *Memory) AppendActivity(_ context.Context, logs []engine.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *Memory) ListActivity(_ context.Context, p engine.Period) ([]engine.ActivityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.ActivityLog
	for _, l := range m.logs {
		if p.Contains(l.Date) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) UpsertAttendance(_ context.Context, a engine.Attendance) (engine.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.UpdatedAt = m.Now()
	m.attendance[a.Key()] = a
	return a, nil
}

func (m *Memory) ListAttendance(_ context.Context, p engine.Period) ([]engine.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Attendance
	for _, a := range m.attendance {
		if p.Covers(a.Period()) {
			out = append(out, a)
		}
	}
	return out, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) CreateSnapshot(_ context.Context, s engine.Snapshot) (engine.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = engine.ReportID(uuid.NewString())
	}
	if _, exists := m.snapshots[s.ID]; exists {
		return engine.Snapshot{}, engine.ErrSnapshotExists
	}
	now := m.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	m.snapshots[s.ID] = s.Clone()
	return s, nil
}

func (m *Memory) UpdateSnapshot(_ context.Context, s engine.Snapshot) (engine.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.snapshots[s.ID]; !exists {
		return engine.Snapshot{}, engine.ErrSnapshotNotFound
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.Now()
	}
	m.snapshots[s.ID] = s.Clone()
	return s, nil
}

func (m *Memory) GetSnapshot(_ context.Context, id engine.ReportID) (*engine.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[id]
	if !ok {
		return nil, engine.ErrSnapshotNotFound
	}
	c := s.Clone()
	return &c, nil
}

func (m *Memory) ListSnapshots(_ context.Context, f engine.SnapshotFilter) ([]engine.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[engine.ReportID]bool, len(f.IDs))
	for _, id := range f.IDs {
		ids[id] = true
	}

	var out []engine.Snapshot
	for _, s := range m.snapshots {
		if f.Kind != "" && s.Kind != f.Kind {
			continue
		}
		if len(ids) > 0 && !ids[s.ID] {
			continue
		}
		if f.Within != nil && !f.Within.Covers(s.Params.Period) {
			continue
		}
		if f.CascadeFrom != "" && s.Params.CascadeFrom != f.CascadeFrom {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Params.Period.Start != out[j].Params.Period.Start {
			return out[i].Params.Period.Start < out[j].Params.Period.Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// CASCADE RUNS
// =============================================================================

func (m *Memory) SaveCascadeRun(_ context.Context, r engine.CascadeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = copyRun(r)
	return nil
}

func (m *Memory) GetCascadeRun(_ context.Context, id string) (*engine.CascadeRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, engine.ErrCascadeRunNotFound
	}
	c := copyRun(r)
	return &c, nil
}

func (m *Memory) ListIncompleteCascadeRuns(_ context.Context) ([]engine.CascadeRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.CascadeRun
	for _, r := range m.runs {
		if !r.Complete() {
			out = append(out, copyRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyRun(r engine.CascadeRun) engine.CascadeRun {
	stages := make([]engine.CascadeStage, len(r.Stages))
	for i, s := range r.Stages {
		if s.Snapshot != nil {
			c := s.Snapshot.Clone()
			s.Snapshot = &c
		}
		stages[i] = s
	}
	r.Stages = stages
	return r
}
