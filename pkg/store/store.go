package store

import (
	"context"
	"time"
)

// Assistants is the storage contract for assistant CRUD.
type Assistants interface {
	Create(ctx context.Context, data Assistant, ownerID string, ifExists IfExists) (*Assistant, error)
	Get(ctx context.Context, id, ownerID string) (*Assistant, error)
	Search(ctx context.Context, f SearchFilters, ownerID string) ([]*Assistant, error)
	Count(ctx context.Context, f SearchFilters, ownerID string) (int, error)
	Update(ctx context.Context, id string, patch JSONMap, ownerID string) (*Assistant, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// Threads is the storage contract for thread CRUD plus state/history reads,
// which are intentionally not owner-scoped (the thread ID is the access
// token).
type Threads interface {
	Create(ctx context.Context, data Thread, ownerID string, ifExists IfExists) (*Thread, error)
	Get(ctx context.Context, id, ownerID string) (*Thread, error)
	Search(ctx context.Context, f SearchFilters, ownerID string) ([]*Thread, error)
	Count(ctx context.Context, f SearchFilters, ownerID string) (int, error)
	Update(ctx context.Context, id string, patch JSONMap, ownerID string) (*Thread, error)
	Delete(ctx context.Context, id, ownerID string) error

	// GetState returns the most recent snapshot for id, or synthesises one
	// from thread.values if no snapshot exists yet. Not owner-scoped.
	GetState(ctx context.Context, id string) (*StateSnapshot, error)

	// AddStateSnapshot appends a snapshot, updates thread.values and
	// updated_at. The input map must tolerate a bare values object (no
	// "values" wrapper) from callers that forget it.
	AddStateSnapshot(ctx context.Context, threadID string, in JSONMap) (*StateSnapshot, error)

	// GetHistory returns snapshots in reverse chronological order. before,
	// if non-empty, is an exclusive checkpoint-id cursor. Not owner-scoped.
	GetHistory(ctx context.Context, threadID string, limit int, before string) ([]*StateSnapshot, error)
}

// Runs is the storage contract for run lifecycle tracking.
type Runs interface {
	Create(ctx context.Context, data Run) (*Run, error)
	Get(ctx context.Context, id string) (*Run, error)
	ListByThread(ctx context.Context, threadID string, limit, offset int, status RunStatus) ([]*Run, error)
	GetByThread(ctx context.Context, threadID, runID string) (*Run, error)
	DeleteByThread(ctx context.Context, threadID, runID string) error
	GetActiveRun(ctx context.Context, threadID string) (*Run, error)
	UpdateStatus(ctx context.Context, id string, status RunStatus) (*Run, error)
	CountByThread(ctx context.Context, threadID string) (int, error)
}

// StoreItems is the storage contract for the cross-thread key-value store.
type StoreItems interface {
	Put(ctx context.Context, namespace, key string, value JSONMap, ownerID string, metadata JSONMap) (*StoreItem, error)
	Get(ctx context.Context, namespace, key, ownerID string) (*StoreItem, error)
	Delete(ctx context.Context, namespace, key, ownerID string) error
	Search(ctx context.Context, namespace, ownerID, prefix string, limit, offset int) ([]*StoreItem, error)
	ListNamespaces(ctx context.Context, ownerID string) ([]string, error)
}

// Crons is the storage contract for scheduled run definitions.
type Crons interface {
	Create(ctx context.Context, data Cron) (*Cron, error)
	Get(ctx context.Context, id, ownerID string) (*Cron, error)
	List(ctx context.Context, ownerID string, f SearchFilters) ([]*Cron, error)
	Count(ctx context.Context, ownerID string, f SearchFilters) (int, error)
	Update(ctx context.Context, id string, patch JSONMap, ownerID string) (*Cron, error)
	Delete(ctx context.Context, id, ownerID string) error

	// Due returns crons across all owners whose next_run_date has passed and
	// whose end_time (if set) has not. Used by the cron scheduler (§4.8);
	// deliberately not owner-scoped since the scheduler runs for all users.
	Due(ctx context.Context, asOf time.Time) ([]*Cron, error)
}

// Store bundles every sub-contract the server needs. Both backends
// (MemoryStore, PostgresStore) implement it in full.
type Store interface {
	Assistants() Assistants
	Threads() Threads
	Runs() Runs
	StoreItems() StoreItems
	Crons() Crons
	Close() error
}
