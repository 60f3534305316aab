package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process backend guarded by per-collection RWMutexes,
// the same pattern the teacher's session manager uses for its in-flight
// session map. It is the fallback backend when no database is configured or
// the startup probe against it fails.
type MemoryStore struct {
	assistants *memoryAssistants
	threads    *memoryThreads
	runs       *memoryRuns
	items      *memoryStoreItems
	crons      *memoryCrons
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	th := &memoryThreads{data: map[string]*Thread{}, history: map[string][]*StateSnapshot{}}
	return &MemoryStore{
		assistants: &memoryAssistants{data: map[string]*Assistant{}},
		threads:    th,
		runs:       &memoryRuns{data: map[string]*Run{}},
		items:      &memoryStoreItems{data: map[string]*StoreItem{}},
		crons:      &memoryCrons{data: map[string]*Cron{}},
	}
}

func (s *MemoryStore) Assistants() Assistants { return s.assistants }
func (s *MemoryStore) Threads() Threads       { return s.threads }
func (s *MemoryStore) Runs() Runs             { return s.runs }
func (s *MemoryStore) StoreItems() StoreItems { return s.items }
func (s *MemoryStore) Crons() Crons           { return s.crons }
func (s *MemoryStore) Close() error           { return nil }

// --- assistants ---

type memoryAssistants struct {
	mu   sync.RWMutex
	data map[string]*Assistant
}

func (m *memoryAssistants) Create(_ context.Context, data Assistant, ownerID string, ifExists IfExists) (*Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if data.AssistantID == "" {
		data.AssistantID = uuid.NewString()
	}
	if existing, ok := m.data[data.AssistantID]; ok {
		if ifExists == IfExistsDoNothing {
			return existing, nil
		}
		return nil, ErrConflict
	}
	if data.Metadata == nil {
		data.Metadata = JSONMap{}
	}
	if ownerID != "" {
		data.Metadata["owner"] = ownerID
	}
	now := time.Now().UTC()
	data.CreatedAt, data.UpdatedAt, data.Version = now, now, 1
	cp := data
	m.data[cp.AssistantID] = &cp
	return &cp, nil
}

func (m *memoryAssistants) Get(_ context.Context, id, ownerID string) (*Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.data[id]
	if !ok || !Readable(a.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *memoryAssistants) Search(_ context.Context, f SearchFilters, ownerID string) ([]*Assistant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f.ClampLimit()
	var out []*Assistant
	for _, a := range m.data {
		if !Readable(a.Owner(), ownerID) {
			continue
		}
		if !matchAssistant(a, f) {
			continue
		}
		out = append(out, a)
	}
	sortAssistants(out, f.SortBy, f.SortOrder)
	return paginateAssistants(out, f.Limit, f.Offset), nil
}

func (m *memoryAssistants) Count(_ context.Context, f SearchFilters, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.data {
		if Readable(a.Owner(), ownerID) && matchAssistant(a, f) {
			n++
		}
	}
	return n, nil
}

func (m *memoryAssistants) Update(_ context.Context, id string, patch JSONMap, ownerID string) (*Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data[id]
	if !ok || !Writable(a.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	cp := *a
	applyAssistantPatch(&cp, patch)
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	m.data[id] = &cp
	return &cp, nil
}

func (m *memoryAssistants) Delete(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data[id]
	if !ok || !Writable(a.Owner(), ownerID) {
		return ErrNotFound
	}
	delete(m.data, id)
	return nil
}

func matchAssistant(a *Assistant, f SearchFilters) bool {
	if f.GraphID != "" && a.GraphID != f.GraphID {
		return false
	}
	if f.NameLike != "" && !strings.Contains(strings.ToLower(a.Name), strings.ToLower(f.NameLike)) {
		return false
	}
	for k, v := range f.Metadata {
		if a.Metadata[k] != v {
			return false
		}
	}
	return true
}

func applyAssistantPatch(a *Assistant, patch JSONMap) {
	if v, ok := patch["graph_id"].(string); ok {
		a.GraphID = v
	}
	if v, ok := patch["name"].(string); ok {
		a.Name = v
	}
	if v, ok := patch["description"].(string); ok {
		a.Description = v
	}
	if v, ok := AsJSONMap(patch["config"]); ok {
		a.Config = v
	}
	if v, ok := AsJSONMap(patch["context"]); ok {
		a.Context = v
	}
	if v, ok := AsJSONMap(patch["metadata"]); ok {
		owner := a.Owner()
		merged := JSONMap{}
		for k, vv := range a.Metadata {
			merged[k] = vv
		}
		for k, vv := range v {
			merged[k] = vv
		}
		if owner != "" {
			merged["owner"] = owner
		}
		a.Metadata = merged
	}
}

func sortAssistants(list []*Assistant, sortBy, order string) {
	desc := order != "asc"
	sort.SliceStable(list, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "name":
			less = list[i].Name < list[j].Name
		default:
			less = list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})
}

func paginateAssistants(list []*Assistant, limit, offset int) []*Assistant {
	if offset >= len(list) {
		return []*Assistant{}
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}

// --- threads ---

type memoryThreads struct {
	mu      sync.RWMutex
	data    map[string]*Thread
	history map[string][]*StateSnapshot // newest last
}

func (m *memoryThreads) Create(_ context.Context, data Thread, ownerID string, ifExists IfExists) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if data.ThreadID == "" {
		data.ThreadID = uuid.NewString()
	}
	if existing, ok := m.data[data.ThreadID]; ok {
		if ifExists == IfExistsDoNothing {
			return existing, nil
		}
		return nil, ErrConflict
	}
	if data.Metadata == nil {
		data.Metadata = JSONMap{}
	}
	if ownerID != "" {
		data.Metadata["owner"] = ownerID
	}
	if data.Values == nil {
		data.Values = JSONMap{}
	}
	data.Status = ThreadStatusIdle
	now := time.Now().UTC()
	data.CreatedAt, data.UpdatedAt = now, now
	cp := data
	m.data[cp.ThreadID] = &cp
	return &cp, nil
}

func (m *memoryThreads) Get(_ context.Context, id, ownerID string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.data[id]
	if !ok || !Readable(t.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	return t, nil
}

func (m *memoryThreads) Search(_ context.Context, f SearchFilters, ownerID string) ([]*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f.ClampLimit()
	var out []*Thread
	for _, t := range m.data {
		if !Readable(t.Owner(), ownerID) {
			continue
		}
		if !matchThread(t, f) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.SortOrder == "asc" {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return []*Thread{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[f.Offset:end], nil
}

func (m *memoryThreads) Count(_ context.Context, f SearchFilters, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.data {
		if Readable(t.Owner(), ownerID) && matchThread(t, f) {
			n++
		}
	}
	return n, nil
}

func matchThread(t *Thread, f SearchFilters) bool {
	for k, v := range f.Metadata {
		if t.Metadata[k] != v {
			return false
		}
	}
	return true
}

func (m *memoryThreads) Update(_ context.Context, id string, patch JSONMap, ownerID string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok || !Writable(t.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	cp := *t
	if v, ok := AsJSONMap(patch["metadata"]); ok {
		owner := cp.Owner()
		merged := JSONMap{}
		for k, vv := range cp.Metadata {
			merged[k] = vv
		}
		for k, vv := range v {
			merged[k] = vv
		}
		if owner != "" {
			merged["owner"] = owner
		}
		cp.Metadata = merged
	}
	if v, ok := AsJSONMap(patch["config"]); ok {
		cp.Config = v
	}
	cp.UpdatedAt = time.Now().UTC()
	m.data[id] = &cp
	return &cp, nil
}

func (m *memoryThreads) Delete(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[id]
	if !ok || !Writable(t.Owner(), ownerID) {
		return ErrNotFound
	}
	delete(m.data, id)
	delete(m.history, id)
	return nil
}

// GetState is not owner-scoped: the thread ID itself is the access token.
func (m *memoryThreads) GetState(_ context.Context, id string) (*StateSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	hist := m.history[id]
	if len(hist) > 0 {
		return hist[len(hist)-1], nil
	}
	return &StateSnapshot{
		ThreadID:  id,
		Values:    t.Values,
		Metadata:  JSONMap{},
		CreatedAt: t.UpdatedAt,
	}, nil
}

func (m *memoryThreads) AddStateSnapshot(_ context.Context, threadID string, in JSONMap) (*StateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[threadID]
	if !ok {
		return nil, ErrNotFound
	}

	values, _ := AsJSONMap(in["values"])
	if values == nil {
		// Tolerate callers that pass a bare values object without the
		// "values" wrapper key.
		values = in
	}

	merged := JSONMap{}
	for k, v := range t.Values {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}

	var parent string
	hist := m.history[threadID]
	if len(hist) > 0 {
		parent = hist[len(hist)-1].CheckpointID
	}

	snap := &StateSnapshot{
		ThreadID:         threadID,
		Values:           merged,
		Next:             stringSlice(in["next"]),
		Metadata:         jsonMapOf(in["metadata"]),
		CheckpointID:     uuid.NewString(),
		ParentCheckpoint: parent,
		CreatedAt:        time.Now().UTC(),
	}
	m.history[threadID] = append(hist, snap)

	t.Values = merged
	t.UpdatedAt = snap.CreatedAt
	return snap, nil
}

func (m *memoryThreads) GetHistory(_ context.Context, threadID string, limit int, before string) ([]*StateSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.history[threadID]
	if limit <= 0 {
		limit = 10
	}

	// newest first
	rev := make([]*StateSnapshot, len(hist))
	for i, s := range hist {
		rev[len(hist)-1-i] = s
	}

	if before != "" {
		idx := -1
		for i, s := range rev {
			if s.CheckpointID == before {
				idx = i
				break
			}
		}
		if idx < 0 {
			return []*StateSnapshot{}, nil
		}
		rev = rev[idx+1:]
	}
	if len(rev) > limit {
		rev = rev[:limit]
	}
	return rev, nil
}

func stringSlice(v any) []string {
	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func jsonMapOf(v any) JSONMap {
	m, _ := AsJSONMap(v)
	if m == nil {
		return JSONMap{}
	}
	return m
}

// --- runs ---

type memoryRuns struct {
	mu   sync.RWMutex
	data map[string]*Run
}

func (m *memoryRuns) Create(_ context.Context, data Run) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data.RunID == "" {
		data.RunID = uuid.NewString()
	}
	if data.Status == "" {
		data.Status = RunStatusPending
	}
	now := time.Now().UTC()
	data.CreatedAt, data.UpdatedAt = now, now
	cp := data
	m.data[cp.RunID] = &cp
	return &cp, nil
}

func (m *memoryRuns) Get(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *memoryRuns) ListByThread(_ context.Context, threadID string, limit, offset int, status RunStatus) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Run
	for _, r := range m.data {
		if r.ThreadID != threadID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit <= 0 {
		limit = 10
	}
	if offset >= len(out) {
		return []*Run{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *memoryRuns) GetByThread(_ context.Context, threadID, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data[runID]
	if !ok || r.ThreadID != threadID {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *memoryRuns) DeleteByThread(_ context.Context, threadID, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[runID]
	if !ok || r.ThreadID != threadID {
		return ErrNotFound
	}
	delete(m.data, runID)
	return nil
}

// GetActiveRun returns a non-terminal run for a thread, if any. The enqueue
// strategy can leave several pending runs on one thread; which of them is
// returned is then not defined.
func (m *memoryRuns) GetActiveRun(_ context.Context, threadID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.data {
		if r.ThreadID == threadID && !r.Status.Terminal() {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryRuns) UpdateStatus(_ context.Context, id string, status RunStatus) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status.Terminal() {
		return r, nil
	}
	cp := *r
	cp.Status = status
	cp.UpdatedAt = time.Now().UTC()
	m.data[id] = &cp
	return &cp, nil
}

func (m *memoryRuns) CountByThread(_ context.Context, threadID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.data {
		if r.ThreadID == threadID {
			n++
		}
	}
	return n, nil
}

// --- store items ---

type memoryStoreItems struct {
	mu   sync.RWMutex
	data map[string]*StoreItem
}

func itemKey(namespace, key, ownerID string) string {
	return ownerID + "\x00" + namespace + "\x00" + key
}

func (m *memoryStoreItems) Put(_ context.Context, namespace, key string, value JSONMap, ownerID string, metadata JSONMap) (*StoreItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := itemKey(namespace, key, ownerID)
	now := time.Now().UTC()
	createdAt := now
	if existing, ok := m.data[k]; ok {
		createdAt = existing.CreatedAt
	}
	item := &StoreItem{
		Namespace: namespace,
		Key:       key,
		OwnerID:   ownerID,
		Value:     value,
		Metadata:  metadata,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	m.data[k] = item
	return item, nil
}

func (m *memoryStoreItems) Get(_ context.Context, namespace, key, ownerID string) (*StoreItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.data[itemKey(namespace, key, ownerID)]
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

func (m *memoryStoreItems) Delete(_ context.Context, namespace, key, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := itemKey(namespace, key, ownerID)
	if _, ok := m.data[k]; !ok {
		return ErrNotFound
	}
	delete(m.data, k)
	return nil
}

func (m *memoryStoreItems) Search(_ context.Context, namespace, ownerID, prefix string, limit, offset int) ([]*StoreItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*StoreItem
	for _, item := range m.data {
		if item.OwnerID != ownerID || item.Namespace != namespace {
			continue
		}
		if prefix != "" && !strings.HasPrefix(item.Key, prefix) {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit <= 0 {
		limit = 10
	}
	if offset >= len(out) {
		return []*StoreItem{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *memoryStoreItems) ListNamespaces(_ context.Context, ownerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, item := range m.data {
		if item.OwnerID != ownerID || seen[item.Namespace] {
			continue
		}
		seen[item.Namespace] = true
		out = append(out, item.Namespace)
	}
	sort.Strings(out)
	return out, nil
}

// --- crons ---

type memoryCrons struct {
	mu   sync.RWMutex
	data map[string]*Cron
}

func (m *memoryCrons) Create(_ context.Context, data Cron) (*Cron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data.CronID == "" {
		data.CronID = uuid.NewString()
	}
	now := time.Now().UTC()
	data.CreatedAt, data.UpdatedAt = now, now
	cp := data
	m.data[cp.CronID] = &cp
	return &cp, nil
}

func (m *memoryCrons) Get(_ context.Context, id, ownerID string) (*Cron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data[id]
	if !ok || !Readable(c.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *memoryCrons) List(_ context.Context, ownerID string, f SearchFilters) ([]*Cron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f.ClampLimit()
	var out []*Cron
	for _, c := range m.data {
		if Readable(c.Owner(), ownerID) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return []*Cron{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[f.Offset:end], nil
}

func (m *memoryCrons) Count(_ context.Context, ownerID string, f SearchFilters) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.data {
		if Readable(c.Owner(), ownerID) {
			n++
		}
	}
	return n, nil
}

func (m *memoryCrons) Update(_ context.Context, id string, patch JSONMap, ownerID string) (*Cron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[id]
	if !ok || !Writable(c.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	cp := *c
	if v, ok := patch["schedule"].(string); ok {
		cp.Schedule = v
	}
	if v, ok := patch["thread_id"].(string); ok {
		cp.ThreadID = v
	}
	if v, ok := AsJSONMap(patch["payload"]); ok {
		cp.Payload = v
	}
	if v, ok := timeField(patch["next_run_date"]); ok {
		cp.NextRunDate = v
	}
	if v, ok := timeField(patch["end_time"]); ok {
		cp.EndTime = &v
	}
	cp.UpdatedAt = time.Now().UTC()
	m.data[id] = &cp
	return &cp, nil
}

func (m *memoryCrons) Delete(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[id]
	if !ok || !Writable(c.Owner(), ownerID) {
		return ErrNotFound
	}
	delete(m.data, id)
	return nil
}

func (m *memoryCrons) Due(_ context.Context, asOf time.Time) ([]*Cron, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Cron
	for _, c := range m.data {
		if c.NextRunDate.After(asOf) {
			continue
		}
		if c.EndTime != nil && c.EndTime.Before(asOf) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
