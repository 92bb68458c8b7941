// Package opstate tracks the in-progress/error state of per-runtime
// background operations (create, delete). Exposed as a context-scoped
// Tracker rather than a package-level singleton, so test harnesses get
// a fresh instance per test.
package opstate

import (
	"sync"
	"time"
)

const (
	StatusCreating = "creating"
	StatusDeleting = "deleting"
	StatusError    = "error"

	OpCreate  = "create"
	OpDelete  = "delete"
	OpUnknown = "unknown"
)

// Record is a snapshot of one runtime's operation state.
type Record struct {
	Status    string
	Operation string
	Step      string
	Error     string
	StartedAt time.Time
	UpdatedAt time.Time
}

// Tracker is a mutex-guarded map of runtime name -> Record.
type Tracker struct {
	mu  sync.Mutex
	ops map[string]Record
	now func() time.Time
}

func New() *Tracker {
	return &Tracker{ops: make(map[string]Record), now: time.Now}
}

func (t *Tracker) setActive(name, status, op string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.ops[name]; ok {
		if existing.Status == StatusCreating || existing.Status == StatusDeleting {
			return false
		}
	}

	now := t.now()
	t.ops[name] = Record{
		Status:    status,
		Operation: op,
		StartedAt: now,
		UpdatedAt: now,
	}
	return true
}

// SetCreating marks name as creating. Returns false if an operation is
// already in progress (creating or deleting) for name.
func (t *Tracker) SetCreating(name string) bool {
	return t.setActive(name, StatusCreating, OpCreate)
}

// SetDeleting marks name as deleting. Returns false if an operation is
// already in progress for name.
func (t *Tracker) SetDeleting(name string) bool {
	return t.setActive(name, StatusDeleting, OpDelete)
}

// SetStep records a human-readable progress step for an in-flight
// operation. A no-op if name has no tracked record.
func (t *Tracker) SetStep(name, step string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.ops[name]
	if !ok {
		return
	}
	rec.Step = step
	rec.UpdatedAt = t.now()
	t.ops[name] = rec
}

// SetError marks name's record as failed. If name has no existing record,
// one is created with the given operation (defaulting to "unknown").
func (t *Tracker) SetError(name, errMsg, operation string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.ops[name]
	if ok {
		rec.Status = StatusError
		rec.Error = errMsg
		rec.UpdatedAt = now
		t.ops[name] = rec
		return
	}

	if operation == "" {
		operation = OpUnknown
	}
	t.ops[name] = Record{
		Status:    StatusError,
		Operation: operation,
		Error:     errMsg,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clear removes name's tracked record, called on successful completion.
func (t *Tracker) Clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ops, name)
}

// Get returns a copy of name's record, or ok=false if untracked.
func (t *Tracker) Get(name string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.ops[name]
	return rec, ok
}

// InProgress reports whether name has an active creating/deleting
// operation, and which kind.
func (t *Tracker) InProgress(name string) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.ops[name]
	if !ok {
		return false, ""
	}
	if rec.Status == StatusCreating || rec.Status == StatusDeleting {
		return true, rec.Operation
	}
	return false, ""
}
