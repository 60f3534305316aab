// Package store provides durable CRUD for assistants, threads, runs, state
// snapshots, cross-thread store items and crons. Two backends satisfy the
// same contracts: an in-memory map keyed by ID, and a PostgreSQL-backed
// implementation. Selection is driven by configuration at boot (see
// cmd/agentrt); if the database probe fails the server falls back to the
// in-memory backend with a warning.
package store

import "time"

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusSuccess     RunStatus = "success"
	RunStatusError       RunStatus = "error"
	RunStatusTimeout     RunStatus = "timeout"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Terminal reports whether the status never transitions again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusError, RunStatusTimeout, RunStatusInterrupted:
		return true
	default:
		return false
	}
}

// ThreadStatus is idle while no run is active, busy while one is.
type ThreadStatus string

const (
	ThreadStatusIdle ThreadStatus = "idle"
	ThreadStatusBusy ThreadStatus = "busy"
)

// MultitaskStrategy resolves concurrent run attempts on the same thread.
type MultitaskStrategy string

const (
	MultitaskReject    MultitaskStrategy = "reject"
	MultitaskInterrupt MultitaskStrategy = "interrupt"
	MultitaskRollback  MultitaskStrategy = "rollback"
	MultitaskEnqueue   MultitaskStrategy = "enqueue"
)

// JSONMap is a free-form JSON object, used throughout for config/metadata/values.
type JSONMap map[string]any

// Assistant is a reusable agent configuration bound to a named graph.
type Assistant struct {
	AssistantID string    `json:"assistant_id"`
	GraphID     string    `json:"graph_id"`
	Config      JSONMap   `json:"config"`
	Context     JSONMap   `json:"context"`
	Metadata    JSONMap   `json:"metadata"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Owner returns metadata.owner, or "" if unset.
func (a *Assistant) Owner() string {
	return stringField(a.Metadata, "owner")
}

// Thread is a conversation state container.
type Thread struct {
	ThreadID   string       `json:"thread_id"`
	Metadata   JSONMap      `json:"metadata"`
	Config     JSONMap      `json:"config"`
	Status     ThreadStatus `json:"status"`
	Values     JSONMap      `json:"values"`
	Interrupts JSONMap      `json:"interrupts"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Owner returns metadata.owner, or "" if unset.
func (t *Thread) Owner() string {
	return stringField(t.Metadata, "owner")
}

// StateSnapshot is a point-in-time capture of thread values. Snapshots form
// an append-only history per thread; the parent_checkpoint chain forms a
// branch-capable tree.
type StateSnapshot struct {
	ThreadID         string    `json:"-"`
	Values           JSONMap   `json:"values"`
	Next             []string  `json:"next"`
	Tasks            []JSONMap `json:"tasks"`
	Metadata         JSONMap   `json:"metadata"`
	CheckpointID     string    `json:"checkpoint_id"`
	ParentCheckpoint string    `json:"parent_checkpoint,omitempty"`
	Interrupts       []JSONMap `json:"interrupts"`
	CreatedAt        time.Time `json:"created_at"`
}

// Run is a single agent invocation on a thread.
type Run struct {
	RunID             string            `json:"run_id"`
	ThreadID          string            `json:"thread_id"`
	AssistantID       string            `json:"assistant_id"`
	Status            RunStatus         `json:"status"`
	Metadata          JSONMap           `json:"metadata"`
	Kwargs            JSONMap           `json:"kwargs"`
	MultitaskStrategy MultitaskStrategy `json:"multitask_strategy"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// StoreItem is a cross-thread key-value entry, keyed by (namespace, key, owner).
type StoreItem struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	OwnerID   string    `json:"-"`
	Value     JSONMap   `json:"value"`
	Metadata  JSONMap   `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cron is a recurring schedule that enqueues runs on a named assistant/thread.
type Cron struct {
	CronID      string     `json:"cron_id"`
	Schedule    string     `json:"schedule"`
	AssistantID string     `json:"assistant_id"`
	ThreadID    string     `json:"thread_id,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Payload     JSONMap    `json:"payload"`
	UserID      string     `json:"user_id"`
	NextRunDate time.Time  `json:"next_run_date"`
	Metadata    JSONMap    `json:"metadata"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Owner returns metadata.owner, or "" if unset.
func (c *Cron) Owner() string {
	return stringField(c.Metadata, "owner")
}

func stringField(m JSONMap, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

// AsJSONMap coerces v into a JSONMap. encoding/json always decodes nested
// objects as map[string]interface{} rather than any named map type, so
// callers reading request bodies or JSONB columns must go through this
// instead of a naked ".(JSONMap)" type assertion, which only matches values
// constructed directly in Go code.
func AsJSONMap(v any) (JSONMap, bool) {
	switch t := v.(type) {
	case JSONMap:
		return t, true
	case map[string]any:
		return JSONMap(t), true
	default:
		return nil, false
	}
}

// timeField coerces v into a time.Time. Callers constructing a patch in Go
// code pass a time.Time directly; callers relaying a JSON request body pass
// an RFC3339 string instead, since encoding/json never produces time.Time
// on its own — both forms must be accepted here.
func timeField(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// SearchFilters narrows a search/count/list call. Zero values mean "no filter".
type SearchFilters struct {
	Metadata  JSONMap
	GraphID   string
	NameLike  string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string // "asc" or "desc"
}

// ClampLimit sets a non-positive limit to the default of 10, caps limit at
// 1000 and raises a negative offset to 0, mutating in place.
func (f *SearchFilters) ClampLimit() {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// IfExists controls duplicate handling on create.
type IfExists string

const (
	IfExistsRaise      IfExists = "raise"
	IfExistsDoNothing  IfExists = "do_nothing"
)
