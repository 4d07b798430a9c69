package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cartengine/internal/domain"
)

// PostgresOptions tunes the database backend.
type PostgresOptions struct {
	// LockForUpdate takes a row lock for the duration of each write
	// transaction, serializing writers on the same cart. Pessimistic
	// alternative to the version check for high-contention carts.
	LockForUpdate bool
}

// Postgres persists carts as versioned rows with JSONB payloads. It is the
// backend with full concurrency guarantees: optimistic version checks by
// default, row-level locking when configured.
type Postgres struct {
	pool *pgxpool.Pool
	opts PostgresOptions
}

func NewPostgres(pool *pgxpool.Pool, opts PostgresOptions) *Postgres {
	return &Postgres{pool: pool, opts: opts}
}

func (r *Postgres) Has(ctx context.Context, identifier, instance string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM carts WHERE identifier = $1 AND instance = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, identifier, instance).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Postgres) GetItems(ctx context.Context, identifier, instance string) ([]domain.CartItem, error) {
	const q = `SELECT items FROM carts WHERE identifier = $1 AND instance = $2`
	var raw []byte
	if err := r.pool.QueryRow(ctx, q, identifier, instance).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var items []domain.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

func (r *Postgres) PutItems(ctx context.Context, identifier, instance string, items []domain.CartItem, expected int64) (int64, error) {
	raw, err := json.Marshal(itemsOrEmpty(items))
	if err != nil {
		return 0, fmt.Errorf("encode items: %w", err)
	}
	return r.write(ctx, identifier, instance, expected, raw, nil)
}

func (r *Postgres) GetConditions(ctx context.Context, identifier, instance string) (ConditionSet, error) {
	const q = `SELECT conditions FROM carts WHERE identifier = $1 AND instance = $2`
	var raw []byte
	if err := r.pool.QueryRow(ctx, q, identifier, instance).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConditionSet{}, nil
		}
		return ConditionSet{}, err
	}
	var set ConditionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return ConditionSet{}, fmt.Errorf("decode conditions: %w", err)
	}
	return set, nil
}

func (r *Postgres) PutConditions(ctx context.Context, identifier, instance string, conditions ConditionSet, expected int64) (int64, error) {
	raw, err := json.Marshal(conditions)
	if err != nil {
		return 0, fmt.Errorf("encode conditions: %w", err)
	}
	return r.write(ctx, identifier, instance, expected, nil, raw)
}

func (r *Postgres) PutBoth(ctx context.Context, identifier, instance string, items []domain.CartItem, conditions ConditionSet, expected int64) (int64, error) {
	rawItems, err := json.Marshal(itemsOrEmpty(items))
	if err != nil {
		return 0, fmt.Errorf("encode items: %w", err)
	}
	rawConds, err := json.Marshal(conditions)
	if err != nil {
		return 0, fmt.Errorf("encode conditions: %w", err)
	}
	return r.write(ctx, identifier, instance, expected, rawItems, rawConds)
}

// write applies the items/conditions payloads (nil leaves a column
// untouched) under the optimistic version check, creating the row when the
// cart does not exist yet.
func (r *Postgres) write(ctx context.Context, identifier, instance string, expected int64, items, conditions []byte) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if r.opts.LockForUpdate {
		var v int64
		err := tx.QueryRow(ctx, `SELECT version FROM carts WHERE identifier = $1 AND instance = $2 FOR UPDATE`, identifier, instance).Scan(&v)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
	}

	const update = `
UPDATE carts
SET items = COALESCE($3, items),
    conditions = COALESCE($4, conditions),
    version = version + 1,
    updated_at = now()
WHERE identifier = $1 AND instance = $2 AND ($5::bigint = -1 OR version = $5)
RETURNING version
`
	var version int64
	err = tx.QueryRow(ctx, update, identifier, instance, items, conditions, expected).Scan(&version)
	if err == nil {
		return version, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// Either the row does not exist or the version check failed.
	var current int64
	err = tx.QueryRow(ctx, `SELECT version FROM carts WHERE identifier = $1 AND instance = $2`, identifier, instance).Scan(&current)
	switch {
	case err == nil:
		return 0, &domain.ConflictError{AttemptedVersion: expected, CurrentVersion: current}
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, err
	}

	if expected > 0 {
		return 0, &domain.ConflictError{AttemptedVersion: expected, CurrentVersion: 0}
	}

	const insert = `
INSERT INTO carts (identifier, instance, items, conditions, version)
VALUES ($1, $2, COALESCE($3, '[]'::jsonb), COALESCE($4, '{}'::jsonb), 1)
RETURNING version
`
	if err := tx.QueryRow(ctx, insert, identifier, instance, items, conditions).Scan(&version); err != nil {
		return 0, err
	}
	return version, tx.Commit(ctx)
}

func (r *Postgres) GetMetadata(ctx context.Context, identifier, instance, key string) (interface{}, bool, error) {
	const q = `SELECT metadata -> $3 FROM carts WHERE identifier = $1 AND instance = $2`
	var raw []byte
	if err := r.pool.QueryRow(ctx, q, identifier, instance, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("decode metadata value: %w", err)
	}
	return v, true, nil
}

func (r *Postgres) PutMetadata(ctx context.Context, identifier, instance, key string, value interface{}) error {
	return r.PutMetadataBatch(ctx, identifier, instance, map[string]interface{}{key: value})
}

func (r *Postgres) PutMetadataBatch(ctx context.Context, identifier, instance string, values map[string]interface{}) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	const q = `
INSERT INTO carts (identifier, instance, metadata, version)
VALUES ($1, $2, $3::jsonb, 1)
ON CONFLICT (identifier, instance) DO UPDATE
SET metadata = carts.metadata || $3::jsonb,
    version = carts.version + 1,
    updated_at = now()
`
	_, err = r.pool.Exec(ctx, q, identifier, instance, raw)
	return err
}

func (r *Postgres) DeleteMetadata(ctx context.Context, identifier, instance, key string) error {
	const q = `
UPDATE carts
SET metadata = metadata - $3,
    version = version + 1,
    updated_at = now()
WHERE identifier = $1 AND instance = $2
`
	_, err := r.pool.Exec(ctx, q, identifier, instance, key)
	return err
}

func (r *Postgres) GetAllMetadata(ctx context.Context, identifier, instance string) (map[string]interface{}, error) {
	const q = `SELECT metadata FROM carts WHERE identifier = $1 AND instance = $2`
	var raw []byte
	if err := r.pool.QueryRow(ctx, q, identifier, instance).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]interface{}{}, nil
		}
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func (r *Postgres) ClearMetadata(ctx context.Context, identifier, instance string) error {
	const q = `
UPDATE carts
SET metadata = '{}'::jsonb,
    version = version + 1,
    updated_at = now()
WHERE identifier = $1 AND instance = $2
`
	_, err := r.pool.Exec(ctx, q, identifier, instance)
	return err
}

func (r *Postgres) Forget(ctx context.Context, identifier, instance string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE identifier = $1 AND instance = $2`, identifier, instance)
	return err
}

func (r *Postgres) ForgetIdentifier(ctx context.Context, identifier string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE identifier = $1`, identifier)
	return err
}

func (r *Postgres) Instances(ctx context.Context, identifier string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT instance FROM carts WHERE identifier = $1 ORDER BY instance`, identifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Postgres) Version(ctx context.Context, identifier, instance string) (int64, bool, error) {
	const q = `SELECT version FROM carts WHERE identifier = $1 AND instance = $2`
	var v int64
	if err := r.pool.QueryRow(ctx, q, identifier, instance).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}
	return v, true, nil
}

func (r *Postgres) ID(ctx context.Context, identifier, instance string) (string, error) {
	const q = `
INSERT INTO carts (identifier, instance)
VALUES ($1, $2)
ON CONFLICT (identifier, instance) DO UPDATE SET identifier = EXCLUDED.identifier
RETURNING id::text
`
	var id string
	if err := r.pool.QueryRow(ctx, q, identifier, instance).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Postgres) SwapIdentifier(ctx context.Context, oldIdentifier, newIdentifier, instance string) (bool, error) {
	const q = `
UPDATE carts
SET identifier = $2,
    version = version + 1,
    updated_at = now()
WHERE identifier = $1 AND instance = $3
`
	cmd, err := r.pool.Exec(ctx, q, oldIdentifier, newIdentifier, instance)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *Postgres) CreatedAt(ctx context.Context, identifier, instance string) (*time.Time, error) {
	return r.timestamp(ctx, `SELECT created_at FROM carts WHERE identifier = $1 AND instance = $2`, identifier, instance)
}

func (r *Postgres) UpdatedAt(ctx context.Context, identifier, instance string) (*time.Time, error) {
	return r.timestamp(ctx, `SELECT updated_at FROM carts WHERE identifier = $1 AND instance = $2`, identifier, instance)
}

func (r *Postgres) timestamp(ctx context.Context, q, identifier, instance string) (*time.Time, error) {
	var t time.Time
	if err := r.pool.QueryRow(ctx, q, identifier, instance).Scan(&t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *Postgres) Flush(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `TRUNCATE carts`)
	return err
}

// DeleteAbandoned removes carts untouched since the cutoff. Used by the
// sweep job, not part of the Store contract.
func (r *Postgres) DeleteAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func itemsOrEmpty(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return []domain.CartItem{}
	}
	return items
}
