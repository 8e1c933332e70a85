package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/github/rollup-and-away/internal/config"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
	return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil { return errors.New("advisory unlock returned false") }
	return err
}

// Run is the bookkeeping row for one rollup execution.
type Run struct {
	ID         int64
	Target     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Error      string
	Issues     int
}

func (r *Repository) StartRun(ctx context.Context, target string) (int64, error) {
	const q = `INSERT INTO runs(target, started_at, status) VALUES($1, now(), 'running') RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, target).Scan(&id); err != nil { return 0, err }
	return id, nil
}

func (r *Repository) FinishRun(ctx context.Context, id int64, issues int, runErr error) error {
	status, msg := "ok", ""
	if runErr != nil { status, msg = "error", runErr.Error() }
	const q = `UPDATE runs SET finished_at=now(), status=$2, error=$3, issues=$4 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id, status, msg, issues)
	return err
}

func (r *Repository) LastRun(ctx context.Context, target string) (*Run, error) {
	const q = `SELECT id, target, started_at, finished_at, status, error, issues
        FROM runs WHERE target=$1 ORDER BY started_at DESC LIMIT 1`
	var run Run
	err := r.db.Pool.QueryRow(ctx, q, target).
		Scan(&run.ID, &run.Target, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Error, &run.Issues)
	if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
	if err != nil { return nil, err }
	return &run, nil
}

// Memory is one persisted rollup fragment with its provenance.
type Memory struct {
	ID        int64
	RunID     int64
	Content   string
	Sources   []string
	CreatedAt time.Time
}

// SaveMemories persists rendered fragments for a run in one batch.
func (r *Repository) SaveMemories(ctx context.Context, runID int64, ms []Memory) error {
	if len(ms) == 0 { return nil }
	batch := &pgx.Batch{}
	const q = `INSERT INTO memories(run_id, content, sources, created_at) VALUES($1,$2,$3,now())`
	for _, m := range ms {
		batch.Queue(q, runID, m.Content, m.Sources)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range ms { if _, err := br.Exec(); err != nil { return err } }
	return nil
}

// RecentMemories returns the newest fragments, most recent first.
func (r *Repository) RecentMemories(ctx context.Context, limit int) ([]Memory, error) {
	if limit <= 0 { limit = 20 }
	const q = `SELECT id, run_id, content, sources, created_at
        FROM memories ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, q, limit)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.RunID, &m.Content, &m.Sources, &m.CreatedAt); err != nil { return nil, err }
		out = append(out, m)
	}
	return out, rows.Err()
}

// EnsureSchema creates the bookkeeping tables when they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS runs(
            id BIGSERIAL PRIMARY KEY,
            target TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ,
            status TEXT NOT NULL DEFAULT 'running',
            error TEXT NOT NULL DEFAULT '',
            issues INT NOT NULL DEFAULT 0
        );
        CREATE TABLE IF NOT EXISTS memories(
            id BIGSERIAL PRIMARY KEY,
            run_id BIGINT NOT NULL REFERENCES runs(id),
            content TEXT NOT NULL,
            sources TEXT[] NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS memories_created_idx ON memories(created_at DESC);`
	_, err := r.db.Pool.Exec(ctx, ddl)
	return err
}
