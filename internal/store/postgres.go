package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/machikado/eventops/internal/domain"
)

// schema is applied by EnsureSchema on startup. Staged and published
// event payloads are stored as jsonb; the columns pulled out alongside
// them exist only for filtering and ordering.
const schema = `
CREATE TABLE IF NOT EXISTS import_batches (
	id            UUID PRIMARY KEY,
	file_name     TEXT NOT NULL,
	imported_at   TIMESTAMPTZ NOT NULL,
	imported_by   TEXT NOT NULL DEFAULT '',
	total_rows    INT NOT NULL DEFAULT 0,
	success_count INT NOT NULL DEFAULT 0,
	error_count   INT NOT NULL DEFAULT 0,
	warning_count INT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_events (
	id          UUID PRIMARY KEY,
	batch_id    UUID NOT NULL REFERENCES import_batches(id) ON DELETE CASCADE,
	line        INT NOT NULL DEFAULT 0,
	imported_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL,
	errors      JSONB NOT NULL DEFAULT '[]',
	warnings    JSONB NOT NULL DEFAULT '[]',
	duplicates  JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_staging_events_batch ON staging_events(batch_id, line);

CREATE TABLE IF NOT EXISTS events (
	id           UUID PRIMARY KEY,
	payload      JSONB NOT NULL,
	published_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ops_log (
	id          UUID PRIMARY KEY,
	action      TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	target_id   TEXT NOT NULL DEFAULT '',
	target_type TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ops_log_created ON ops_log(created_at DESC);
`

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateBatch(ctx context.Context, batch domain.ImportBatch, rows []domain.StagingEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO import_batches (id, file_name, imported_at, imported_by, total_rows, success_count, error_count, warning_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		batch.ID, batch.FileName, batch.ImportedAt, batch.ImportedBy,
		batch.TotalRows, batch.SuccessCount, batch.ErrorCount, batch.WarningCount, batch.Status,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, row := range rows {
		payload, errsJSON, warnsJSON, dupsJSON, err := marshalStaging(row)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO staging_events (id, batch_id, line, imported_at, payload, errors, warnings, duplicates)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			row.ID, row.ImportBatchID, row.Line, row.ImportedAt,
			payload, errsJSON, warnsJSON, dupsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert staging row %d: %w", row.Line, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *Postgres) GetBatch(ctx context.Context, id string) (domain.ImportBatch, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, file_name, imported_at, imported_by, total_rows, success_count, error_count, warning_count, status
		FROM import_batches WHERE id = $1`, id)

	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportBatch{}, ErrNotFound
	}
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

func (p *Postgres) ListBatches(ctx context.Context) ([]domain.ImportBatch, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, file_name, imported_at, imported_by, total_rows, success_count, error_count, warning_count, status
		FROM import_batches ORDER BY imported_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []domain.ImportBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, batch)
	}
	return out, rows.Err()
}

func (p *Postgres) GetStaging(ctx context.Context, id string) (domain.StagingEvent, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, batch_id, line, imported_at, payload, errors, warnings, duplicates
		FROM staging_events WHERE id = $1`, id)

	ev, err := scanStaging(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StagingEvent{}, ErrNotFound
	}
	if err != nil {
		return domain.StagingEvent{}, fmt.Errorf("get staging event: %w", err)
	}
	return ev, nil
}

func (p *Postgres) ListStaging(ctx context.Context, filter StagingFilter) ([]domain.StagingEvent, error) {
	query := `
		SELECT id, batch_id, line, imported_at, payload, errors, warnings, duplicates
		FROM staging_events WHERE 1=1`
	var args []any

	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		query += fmt.Sprintf(" AND batch_id = $%d", len(args))
	}
	switch filter.Status {
	case FilterErrors:
		query += " AND jsonb_array_length(errors) > 0"
	case FilterWarnings:
		query += " AND jsonb_array_length(errors) = 0 AND jsonb_array_length(warnings) > 0"
	case FilterPublishable:
		query += " AND jsonb_array_length(errors) = 0"
	}
	query += " ORDER BY batch_id, line"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list staging events: %w", err)
	}
	defer rows.Close()

	var out []domain.StagingEvent
	for rows.Next() {
		ev, err := scanStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staging event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateStaging(ctx context.Context, ev domain.StagingEvent) error {
	payload, errsJSON, warnsJSON, dupsJSON, err := marshalStaging(ev)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE staging_events
		SET payload = $2, errors = $3, warnings = $4, duplicates = $5
		WHERE id = $1`,
		ev.ID, payload, errsJSON, warnsJSON, dupsJSON,
	)
	if err != nil {
		return fmt.Errorf("update staging event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RemoveStaging(ctx context.Context, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM staging_events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("remove staging event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) PublishStaging(ctx context.Context, stagingID string, ev domain.Event) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The delete doubles as the race check: no row means another
	// operator already published or archived it.
	var deleted string
	err = tx.QueryRow(ctx, `DELETE FROM staging_events WHERE id = $1 RETURNING id`, stagingID).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("remove staging event: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	publishedAt := time.Now().UTC()
	if ev.PublishedAt != nil {
		publishedAt = *ev.PublishedAt
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events (id, payload, published_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, published_at = EXCLUDED.published_at`,
		ev.ID, payload, publishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

func (p *Postgres) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, `SELECT payload FROM events WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}

	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

func (p *Postgres) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := p.pool.Query(ctx, `SELECT payload FROM events ORDER BY published_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendOpsLog(ctx context.Context, entry domain.OpsEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ops_log (id, action, actor, target_id, target_type, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Action, entry.Actor, entry.TargetID, entry.TargetType, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ops log: %w", err)
	}
	return nil
}

func (p *Postgres) ListOpsLog(ctx context.Context, filter OpsLogFilter) ([]domain.OpsEntry, error) {
	query := `
		SELECT id, action, actor, target_id, target_type, details, created_at
		FROM ops_log WHERE 1=1`
	var args []any

	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ops log: %w", err)
	}
	defer rows.Close()

	var out []domain.OpsEntry
	for rows.Next() {
		var entry domain.OpsEntry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Actor, &entry.TargetID, &entry.TargetType, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ops log entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ==========================================
// Row scanning and payload marshalling
// ==========================================

func scanBatch(row pgx.Row) (domain.ImportBatch, error) {
	var b domain.ImportBatch
	err := row.Scan(&b.ID, &b.FileName, &b.ImportedAt, &b.ImportedBy,
		&b.TotalRows, &b.SuccessCount, &b.ErrorCount, &b.WarningCount, &b.Status)
	return b, err
}

func scanStaging(row pgx.Row) (domain.StagingEvent, error) {
	var ev domain.StagingEvent
	var payload, errsJSON, warnsJSON, dupsJSON []byte

	err := row.Scan(&ev.ID, &ev.ImportBatchID, &ev.Line, &ev.ImportedAt,
		&payload, &errsJSON, &warnsJSON, &dupsJSON)
	if err != nil {
		return domain.StagingEvent{}, err
	}

	id := ev.ID
	if err := json.Unmarshal(payload, &ev.Event); err != nil {
		return domain.StagingEvent{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	ev.ID = id

	if err := json.Unmarshal(errsJSON, &ev.Errors); err != nil {
		return domain.StagingEvent{}, fmt.Errorf("unmarshal errors: %w", err)
	}
	if err := json.Unmarshal(warnsJSON, &ev.Warnings); err != nil {
		return domain.StagingEvent{}, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if err := json.Unmarshal(dupsJSON, &ev.Duplicates); err != nil {
		return domain.StagingEvent{}, fmt.Errorf("unmarshal duplicates: %w", err)
	}
	return ev, nil
}

func marshalStaging(ev domain.StagingEvent) (payload, errs, warns, dups []byte, err error) {
	if payload, err = json.Marshal(ev.Event); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	if errs, err = marshalList(ev.Errors); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal errors: %w", err)
	}
	if warns, err = marshalList(ev.Warnings); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal warnings: %w", err)
	}
	if dups, err = marshalList(ev.Duplicates); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal duplicates: %w", err)
	}
	return payload, errs, warns, dups, nil
}

// marshalList keeps empty diagnostic lists as jsonb '[]' rather than null
// so the filter expressions stay simple.
func marshalList[T any](list []T) ([]byte, error) {
	if len(list) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(list)
}
