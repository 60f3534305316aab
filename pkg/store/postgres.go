package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the durable backend, grounded on the teacher's
// pkg/database/client.go: a pgxpool.Pool plus golang-migrate applying
// embedded SQL migrations on Open.
type PostgresStore struct {
	pool       *pgxpool.Pool
	assistants *pgAssistants
	threads    *pgThreads
	runs       *pgRuns
	items      *pgStoreItems
	crons      *pgCrons
}

// OpenPostgresStore connects to dsn, runs pending migrations, and returns a
// ready Store. Callers should treat a non-nil error as fatal to the
// postgres path only — cmd/agentrt falls back to MemoryStore on failure.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &PostgresStore{
		pool:       pool,
		assistants: &pgAssistants{pool: pool},
		threads:    &pgThreads{pool: pool},
		runs:       &pgRuns{pool: pool},
		items:      &pgStoreItems{pool: pool},
		crons:      &pgCrons{pool: pool},
	}, nil
}

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *PostgresStore) Assistants() Assistants { return s.assistants }
func (s *PostgresStore) Threads() Threads       { return s.threads }
func (s *PostgresStore) Runs() Runs             { return s.runs }
func (s *PostgresStore) StoreItems() StoreItems { return s.items }
func (s *PostgresStore) Crons() Crons           { return s.crons }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func marshalJSON(m JSONMap) []byte {
	if m == nil {
		m = JSONMap{}
	}
	b, _ := json.Marshal(m)
	return b
}

func unmarshalJSON(b []byte) JSONMap {
	if len(b) == 0 {
		return JSONMap{}
	}
	m := JSONMap{}
	_ = json.Unmarshal(b, &m)
	return m
}

// --- assistants ---

type pgAssistants struct{ pool *pgxpool.Pool }

func (p *pgAssistants) Create(ctx context.Context, data Assistant, ownerID string, ifExists IfExists) (*Assistant, error) {
	if data.AssistantID == "" {
		data.AssistantID = uuid.NewString()
	}
	if data.Metadata == nil {
		data.Metadata = JSONMap{}
	}
	if ownerID != "" {
		data.Metadata["owner"] = ownerID
	}
	const q = `
		INSERT INTO assistants (assistant_id, graph_id, name, description, config, context, metadata, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		ON CONFLICT (assistant_id) DO NOTHING
		RETURNING assistant_id, graph_id, name, description, config, context, metadata, version, created_at, updated_at`
	row := p.pool.QueryRow(ctx, q, data.AssistantID, data.GraphID, data.Name, data.Description,
		marshalJSON(data.Config), marshalJSON(data.Context), marshalJSON(data.Metadata))
	a, err := scanAssistant(row)
	if errors.Is(err, errNoRows) {
		if ifExists == IfExistsDoNothing {
			return p.Get(ctx, data.AssistantID, "")
		}
		return nil, ErrConflict
	}
	return a, err
}

func (p *pgAssistants) Get(ctx context.Context, id, ownerID string) (*Assistant, error) {
	const q = `SELECT assistant_id, graph_id, name, description, config, context, metadata, version, created_at, updated_at
		FROM assistants WHERE assistant_id = $1`
	a, err := scanAssistant(p.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if !Readable(a.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	return a, nil
}

func (p *pgAssistants) Search(ctx context.Context, f SearchFilters, ownerID string) ([]*Assistant, error) {
	f.ClampLimit()
	const q = `SELECT assistant_id, graph_id, name, description, config, context, metadata, version, created_at, updated_at
		FROM assistants
		WHERE ($1 = '' OR graph_id = $1) AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := p.pool.Query(ctx, q, f.GraphID, f.NameLike, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Assistant
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			return nil, err
		}
		if Readable(a.Owner(), ownerID) {
			out = append(out, a)
		}
	}
	return out, rows.Err()
}

func (p *pgAssistants) Count(ctx context.Context, f SearchFilters, ownerID string) (int, error) {
	const q = `SELECT count(*) FROM assistants WHERE ($1 = '' OR graph_id = $1)`
	var n int
	if err := p.pool.QueryRow(ctx, q, f.GraphID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *pgAssistants) Update(ctx context.Context, id string, patch JSONMap, ownerID string) (*Assistant, error) {
	existing, err := p.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !Writable(existing.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	applyAssistantPatch(existing, patch)
	const q = `UPDATE assistants SET graph_id=$2, name=$3, description=$4, config=$5, context=$6, metadata=$7,
		version=version+1, updated_at=now()
		WHERE assistant_id=$1
		RETURNING assistant_id, graph_id, name, description, config, context, metadata, version, created_at, updated_at`
	return scanAssistant(p.pool.QueryRow(ctx, q, id, existing.GraphID, existing.Name, existing.Description,
		marshalJSON(existing.Config), marshalJSON(existing.Context), marshalJSON(existing.Metadata)))
}

func (p *pgAssistants) Delete(ctx context.Context, id, ownerID string) error {
	existing, err := p.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !Writable(existing.Owner(), ownerID) {
		return ErrNotFound
	}
	_, err = p.pool.Exec(ctx, `DELETE FROM assistants WHERE assistant_id=$1`, id)
	return err
}

var errNoRows = errors.New("store: no rows")

type rowScanner interface {
	Scan(dest ...any) error
}

type pgxRows interface {
	rowScanner
	Next() bool
	Err() error
	Close()
}

func scanAssistant(row rowScanner) (*Assistant, error) {
	var a Assistant
	var config, ctxJSON, meta []byte
	err := row.Scan(&a.AssistantID, &a.GraphID, &a.Name, &a.Description, &config, &ctxJSON, &meta,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	a.Config, a.Context, a.Metadata = unmarshalJSON(config), unmarshalJSON(ctxJSON), unmarshalJSON(meta)
	return &a, nil
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errNoRows
	}
	return err
}

// --- threads ---

type pgThreads struct{ pool *pgxpool.Pool }

func (p *pgThreads) Create(ctx context.Context, data Thread, ownerID string, ifExists IfExists) (*Thread, error) {
	if data.ThreadID == "" {
		data.ThreadID = uuid.NewString()
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
	const q = `INSERT INTO threads (thread_id, metadata, config, status, values, interrupts)
		VALUES ($1, $2, $3, 'idle', $4, '{}')
		ON CONFLICT (thread_id) DO NOTHING
		RETURNING thread_id, metadata, config, status, values, interrupts, created_at, updated_at`
	t, err := scanThread(p.pool.QueryRow(ctx, q, data.ThreadID, marshalJSON(data.Metadata), marshalJSON(data.Config), marshalJSON(data.Values)))
	if errors.Is(err, errNoRows) {
		if ifExists == IfExistsDoNothing {
			return p.Get(ctx, data.ThreadID, "")
		}
		return nil, ErrConflict
	}
	return t, err
}

func (p *pgThreads) Get(ctx context.Context, id, ownerID string) (*Thread, error) {
	const q = `SELECT thread_id, metadata, config, status, values, interrupts, created_at, updated_at
		FROM threads WHERE thread_id = $1`
	t, err := scanThread(p.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if !Readable(t.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	return t, nil
}

func (p *pgThreads) Search(ctx context.Context, f SearchFilters, ownerID string) ([]*Thread, error) {
	f.ClampLimit()
	const q = `SELECT thread_id, metadata, config, status, values, interrupts, created_at, updated_at
		FROM threads ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := p.pool.Query(ctx, q, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		if Readable(t.Owner(), ownerID) {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

func (p *pgThreads) Count(ctx context.Context, f SearchFilters, ownerID string) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM threads`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *pgThreads) Update(ctx context.Context, id string, patch JSONMap, ownerID string) (*Thread, error) {
	existing, err := p.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !Writable(existing.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	if v, ok := AsJSONMap(patch["metadata"]); ok {
		owner := existing.Owner()
		for k, vv := range v {
			existing.Metadata[k] = vv
		}
		if owner != "" {
			existing.Metadata["owner"] = owner
		}
	}
	if v, ok := AsJSONMap(patch["config"]); ok {
		existing.Config = v
	}
	const q = `UPDATE threads SET metadata=$2, config=$3, updated_at=now()
		WHERE thread_id=$1
		RETURNING thread_id, metadata, config, status, values, interrupts, created_at, updated_at`
	return scanThread(p.pool.QueryRow(ctx, q, id, marshalJSON(existing.Metadata), marshalJSON(existing.Config)))
}

func (p *pgThreads) Delete(ctx context.Context, id, ownerID string) error {
	existing, err := p.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !Writable(existing.Owner(), ownerID) {
		return ErrNotFound
	}
	_, err = p.pool.Exec(ctx, `DELETE FROM threads WHERE thread_id=$1`, id)
	return err
}

func (p *pgThreads) GetState(ctx context.Context, id string) (*StateSnapshot, error) {
	const q = `SELECT checkpoint_id, thread_id, parent_checkpoint, values, next, tasks, metadata, interrupts, created_at
		FROM state_snapshots WHERE thread_id = $1 ORDER BY created_at DESC LIMIT 1`
	snap, err := scanSnapshot(p.pool.QueryRow(ctx, q, id))
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, errNoRows) {
		return nil, err
	}
	t, err := p.Get(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return &StateSnapshot{ThreadID: id, Values: t.Values, Metadata: JSONMap{}, CreatedAt: t.UpdatedAt}, nil
}

func (p *pgThreads) AddStateSnapshot(ctx context.Context, threadID string, in JSONMap) (*StateSnapshot, error) {
	t, err := p.Get(ctx, threadID, "")
	if err != nil {
		return nil, err
	}

	values, _ := AsJSONMap(in["values"])
	if values == nil {
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
	_ = p.pool.QueryRow(ctx, `SELECT checkpoint_id FROM state_snapshots WHERE thread_id=$1 ORDER BY created_at DESC LIMIT 1`, threadID).Scan(&parent)

	id := uuid.NewString()
	const insert = `INSERT INTO state_snapshots (checkpoint_id, thread_id, parent_checkpoint, values, next, tasks, metadata, interrupts)
		VALUES ($1, $2, NULLIF($3, ''), $4, '[]', '[]', $5, '[]')
		RETURNING checkpoint_id, thread_id, parent_checkpoint, values, next, tasks, metadata, interrupts, created_at`
	snap, err := scanSnapshot(p.pool.QueryRow(ctx, insert, id, threadID, parent, marshalJSON(merged), marshalJSON(jsonMapOf(in["metadata"]))))
	if err != nil {
		return nil, err
	}
	_, err = p.pool.Exec(ctx, `UPDATE threads SET values=$2, updated_at=now() WHERE thread_id=$1`, threadID, marshalJSON(merged))
	return snap, err
}

func (p *pgThreads) GetHistory(ctx context.Context, threadID string, limit int, before string) ([]*StateSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	const qAll = `SELECT checkpoint_id, thread_id, parent_checkpoint, values, next, tasks, metadata, interrupts, created_at
		FROM state_snapshots WHERE thread_id = $1 ORDER BY created_at DESC LIMIT $2`
	const qBefore = `SELECT checkpoint_id, thread_id, parent_checkpoint, values, next, tasks, metadata, interrupts, created_at
		FROM state_snapshots
		WHERE thread_id = $1 AND created_at < (SELECT created_at FROM state_snapshots WHERE checkpoint_id = $2)
		ORDER BY created_at DESC LIMIT $3`

	var rows pgxRows
	var err error
	if before != "" {
		rows, err = p.pool.Query(ctx, qBefore, threadID, before, limit)
	} else {
		rows, err = p.pool.Query(ctx, qAll, threadID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StateSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanThread(row rowScanner) (*Thread, error) {
	var t Thread
	var meta, cfg, vals, interrupts []byte
	err := row.Scan(&t.ThreadID, &meta, &cfg, &t.Status, &vals, &interrupts, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	t.Metadata, t.Config, t.Values, t.Interrupts = unmarshalJSON(meta), unmarshalJSON(cfg), unmarshalJSON(vals), unmarshalJSON(interrupts)
	return &t, nil
}

func scanSnapshot(row rowScanner) (*StateSnapshot, error) {
	var s StateSnapshot
	var parent *string
	var vals, next, tasks, meta, interrupts []byte
	err := row.Scan(&s.CheckpointID, &s.ThreadID, &parent, &vals, &next, &tasks, &meta, &interrupts, &s.CreatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	if parent != nil {
		s.ParentCheckpoint = *parent
	}
	s.Values = unmarshalJSON(vals)
	s.Metadata = unmarshalJSON(meta)
	_ = json.Unmarshal(next, &s.Next)
	_ = json.Unmarshal(tasks, &s.Tasks)
	_ = json.Unmarshal(interrupts, &s.Interrupts)
	return &s, nil
}

// --- runs ---

type pgRuns struct{ pool *pgxpool.Pool }

func (p *pgRuns) Create(ctx context.Context, data Run) (*Run, error) {
	if data.RunID == "" {
		data.RunID = uuid.NewString()
	}
	if data.Status == "" {
		data.Status = RunStatusPending
	}
	const q = `INSERT INTO runs (run_id, thread_id, assistant_id, status, metadata, kwargs, multitask_strategy)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING run_id, thread_id, assistant_id, status, metadata, kwargs, multitask_strategy, created_at, updated_at`
	return scanRun(p.pool.QueryRow(ctx, q, data.RunID, data.ThreadID, data.AssistantID, string(data.Status),
		marshalJSON(data.Metadata), marshalJSON(data.Kwargs), string(data.MultitaskStrategy)))
}

func (p *pgRuns) Get(ctx context.Context, id string) (*Run, error) {
	const q = `SELECT run_id, thread_id, assistant_id, status, metadata, kwargs, multitask_strategy, created_at, updated_at
		FROM runs WHERE run_id = $1`
	return scanRun(p.pool.QueryRow(ctx, q, id))
}

func (p *pgRuns) ListByThread(ctx context.Context, threadID string, limit, offset int, status RunStatus) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT run_id, thread_id, assistant_id, status, metadata, kwargs, multitask_strategy, created_at, updated_at
		FROM runs WHERE thread_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := p.pool.Query(ctx, q, threadID, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *pgRuns) GetByThread(ctx context.Context, threadID, runID string) (*Run, error) {
	const q = `SELECT run_id, thread_id, assistant_id, status, metadata, kwargs, multitask_strategy, created_at, updated_at
		FROM runs WHERE thread_id = $1 AND run_id = $2`
	return scanRun(p.pool.QueryRow(ctx, q, threadID, runID))
}

func (p *pgRuns) DeleteByThread(ctx context.Context, threadID, runID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM runs WHERE thread_id=$1 AND run_id=$2`, threadID, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgRuns) GetActiveRun(ctx context.Context, threadID string) (*Run, error) {
	const q = `SELECT run_id, thread_id, assistant_id, status, metadata, kwargs, multitask_strategy, created_at, updated_at
		FROM runs WHERE thread_id = $1 AND status NOT IN ('success','error','timeout','interrupted')
		ORDER BY created_at DESC LIMIT 1`
	return scanRun(p.pool.QueryRow(ctx, q, threadID))
}

func (p *pgRuns) UpdateStatus(ctx context.Context, id string, status RunStatus) (*Run, error) {
	const q = `UPDATE runs SET status=$2, updated_at=now()
		WHERE run_id=$1 AND status NOT IN ('success','error','timeout','interrupted')
		RETURNING run_id, thread_id, assistant_id, status, metadata, kwargs, multitask_strategy, created_at, updated_at`
	r, err := scanRun(p.pool.QueryRow(ctx, q, id, string(status)))
	if errors.Is(err, errNoRows) {
		return p.Get(ctx, id)
	}
	return r, err
}

func (p *pgRuns) CountByThread(ctx context.Context, threadID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM runs WHERE thread_id=$1`, threadID).Scan(&n)
	return n, err
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var status, strategy string
	var meta, kwargs []byte
	err := row.Scan(&r.RunID, &r.ThreadID, &r.AssistantID, &status, &meta, &kwargs, &strategy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	r.Status = RunStatus(status)
	r.MultitaskStrategy = MultitaskStrategy(strategy)
	r.Metadata, r.Kwargs = unmarshalJSON(meta), unmarshalJSON(kwargs)
	return &r, nil
}

// --- store items ---

type pgStoreItems struct{ pool *pgxpool.Pool }

func (p *pgStoreItems) Put(ctx context.Context, namespace, key string, value JSONMap, ownerID string, metadata JSONMap) (*StoreItem, error) {
	const q = `INSERT INTO store_items (namespace, key, owner_id, value, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, namespace, key) DO UPDATE SET value=$4, metadata=$5, updated_at=now()
		RETURNING namespace, key, owner_id, value, metadata, created_at, updated_at`
	return scanItem(p.pool.QueryRow(ctx, q, namespace, key, ownerID, marshalJSON(value), marshalJSON(metadata)))
}

func (p *pgStoreItems) Get(ctx context.Context, namespace, key, ownerID string) (*StoreItem, error) {
	const q = `SELECT namespace, key, owner_id, value, metadata, created_at, updated_at
		FROM store_items WHERE owner_id=$1 AND namespace=$2 AND key=$3`
	return scanItem(p.pool.QueryRow(ctx, q, ownerID, namespace, key))
}

func (p *pgStoreItems) Delete(ctx context.Context, namespace, key, ownerID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM store_items WHERE owner_id=$1 AND namespace=$2 AND key=$3`, ownerID, namespace, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgStoreItems) Search(ctx context.Context, namespace, ownerID, prefix string, limit, offset int) ([]*StoreItem, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT namespace, key, owner_id, value, metadata, created_at, updated_at
		FROM store_items WHERE owner_id=$1 AND namespace=$2 AND ($3 = '' OR key LIKE $3 || '%')
		ORDER BY key LIMIT $4 OFFSET $5`
	rows, err := p.pool.Query(ctx, q, ownerID, namespace, prefix, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StoreItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *pgStoreItems) ListNamespaces(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT namespace FROM store_items WHERE owner_id=$1 ORDER BY namespace`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func scanItem(row rowScanner) (*StoreItem, error) {
	var it StoreItem
	var value, meta []byte
	err := row.Scan(&it.Namespace, &it.Key, &it.OwnerID, &value, &meta, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	it.Value, it.Metadata = unmarshalJSON(value), unmarshalJSON(meta)
	return &it, nil
}

// --- crons ---

type pgCrons struct{ pool *pgxpool.Pool }

func (p *pgCrons) Create(ctx context.Context, data Cron) (*Cron, error) {
	if data.CronID == "" {
		data.CronID = uuid.NewString()
	}
	const q = `INSERT INTO crons (cron_id, schedule, assistant_id, thread_id, end_time, payload, user_id, next_run_date, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		RETURNING cron_id, schedule, assistant_id, thread_id, end_time, payload, user_id, next_run_date, metadata, created_at, updated_at`
	return scanCron(p.pool.QueryRow(ctx, q, data.CronID, data.Schedule, data.AssistantID, data.ThreadID,
		data.EndTime, marshalJSON(data.Payload), data.UserID, data.NextRunDate, marshalJSON(data.Metadata)))
}

func (p *pgCrons) Get(ctx context.Context, id, ownerID string) (*Cron, error) {
	const q = `SELECT cron_id, schedule, assistant_id, thread_id, end_time, payload, user_id, next_run_date, metadata, created_at, updated_at
		FROM crons WHERE cron_id = $1`
	c, err := scanCron(p.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if !Readable(c.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	return c, nil
}

func (p *pgCrons) List(ctx context.Context, ownerID string, f SearchFilters) ([]*Cron, error) {
	f.ClampLimit()
	const q = `SELECT cron_id, schedule, assistant_id, thread_id, end_time, payload, user_id, next_run_date, metadata, created_at, updated_at
		FROM crons ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := p.pool.Query(ctx, q, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Cron
	for rows.Next() {
		c, err := scanCron(rows)
		if err != nil {
			return nil, err
		}
		if Readable(c.Owner(), ownerID) {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}

func (p *pgCrons) Count(ctx context.Context, ownerID string, f SearchFilters) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM crons`).Scan(&n)
	return n, err
}

func (p *pgCrons) Update(ctx context.Context, id string, patch JSONMap, ownerID string) (*Cron, error) {
	existing, err := p.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !Writable(existing.Owner(), ownerID) {
		return nil, ErrNotFound
	}
	if v, ok := patch["schedule"].(string); ok {
		existing.Schedule = v
	}
	if v, ok := patch["thread_id"].(string); ok {
		existing.ThreadID = v
	}
	if v, ok := AsJSONMap(patch["payload"]); ok {
		existing.Payload = v
	}
	if v, ok := timeField(patch["next_run_date"]); ok {
		existing.NextRunDate = v
	}
	if v, ok := timeField(patch["end_time"]); ok {
		existing.EndTime = &v
	}
	const q = `UPDATE crons SET schedule=$2, thread_id=$3, payload=$4, next_run_date=$5, end_time=$6, updated_at=now()
		WHERE cron_id=$1
		RETURNING cron_id, schedule, assistant_id, thread_id, end_time, payload, user_id, next_run_date, metadata, created_at, updated_at`
	return scanCron(p.pool.QueryRow(ctx, q, id, existing.Schedule, existing.ThreadID, marshalJSON(existing.Payload), existing.NextRunDate, existing.EndTime))
}

func (p *pgCrons) Delete(ctx context.Context, id, ownerID string) error {
	existing, err := p.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !Writable(existing.Owner(), ownerID) {
		return ErrNotFound
	}
	_, err = p.pool.Exec(ctx, `DELETE FROM crons WHERE cron_id=$1`, id)
	return err
}

func (p *pgCrons) Due(ctx context.Context, asOf time.Time) ([]*Cron, error) {
	const q = `SELECT cron_id, schedule, assistant_id, thread_id, end_time, payload, user_id, next_run_date, metadata, created_at, updated_at
		FROM crons WHERE next_run_date <= $1 AND (end_time IS NULL OR end_time >= $1)`
	rows, err := p.pool.Query(ctx, q, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Cron
	for rows.Next() {
		c, err := scanCron(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCron(row rowScanner) (*Cron, error) {
	var c Cron
	var threadID *string
	var payload, meta []byte
	err := row.Scan(&c.CronID, &c.Schedule, &c.AssistantID, &threadID, &c.EndTime, &payload, &c.UserID,
		&c.NextRunDate, &meta, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	if threadID != nil {
		c.ThreadID = *threadID
	}
	c.Payload, c.Metadata = unmarshalJSON(payload), unmarshalJSON(meta)
	return &c, nil
}
