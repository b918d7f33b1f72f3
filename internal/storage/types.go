package storage

import (
	"context"
	"errors"
	"time"

	"alertd/internal/alert"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path (default)
//   - "postgres": PostgreSQL reachable via DSN
//   - "redis": Redis at Redis.Addr, keys under Redis.Prefix
//   - "file": jsonl journal + snapshot next to Path
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// CompactEvery compacts the file journal after this many writes (file only).
	CompactEvery int
	Redis        RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Mutation tells Update what to do with the record after the callback ran.
type Mutation int

const (
	// Keep leaves the stored record untouched.
	Keep Mutation = iota
	// Save persists the (possibly modified) record.
	Save
	// Remove hard-deletes the record.
	Remove
)

// MutateFunc inspects and optionally modifies rec inside Update's atomic unit.
// It must not call back into the store. Returning an error aborts the unit
// and the error is returned from Update as-is.
type MutateFunc func(rec *alert.Record) (Mutation, error)

// Store is the AlertStore contract.
type Store interface {
	// Insert persists rec (its ID is ignored) and returns the assigned id.
	Insert(ctx context.Context, rec alert.Record) (int64, error)
	// Get returns the raw record, including soft-deleted ones.
	Get(ctx context.Context, id int64) (rec alert.Record, ok bool, err error)
	// List returns records in insertion order; owner == nil means all.
	List(ctx context.Context, owner *alert.Owner) ([]alert.Record, error)
	// Update runs fn atomically against record id. It returns the record as
	// left by fn (for Remove, the record as it was before removal) or an
	// alert.ErrNotFound error when id does not exist.
	Update(ctx context.Context, id int64, fn MutateFunc) (alert.Record, error)
	// Delete removes id permanently. Deleting a missing id is not an error.
	Delete(ctx context.Context, id int64) error
	Close() error
}

// Maintainer is implemented by stores with periodic housekeeping
// (journal compaction, planner statistics).
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Patch is a partial record update. Nil fields are left unchanged.
type Patch struct {
	Payload         *alert.Payload
	Triggered       *bool
	Handled         *bool
	HasNotification *bool
	PendingDelete   *bool
}

// Apply merges p into rec.
func (p Patch) Apply(rec *alert.Record) {
	if p.Payload != nil {
		rec.Payload = *p.Payload
	}
	if p.Triggered != nil {
		rec.Triggered = *p.Triggered
	}
	if p.Handled != nil {
		rec.Handled = *p.Handled
	}
	if p.HasNotification != nil {
		rec.HasNotification = *p.HasNotification
	}
	if p.PendingDelete != nil {
		rec.PendingDelete = *p.PendingDelete
	}
}

// Merge merges p into record id atomically.
func Merge(ctx context.Context, s Store, id int64, p Patch) (alert.Record, error) {
	return s.Update(ctx, id, func(rec *alert.Record) (Mutation, error) {
		p.Apply(rec)
		return Save, nil
	})
}

// Bool returns a pointer to v, for Patch literals.
func Bool(v bool) *bool { return &v }
