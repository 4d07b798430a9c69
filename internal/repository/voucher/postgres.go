package voucher

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cartengine/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	const q = `
SELECT code, description, value, starts_at, expires_at, usage_limit, used, min_subtotal
FROM vouchers
WHERE code = $1
`
	var (
		v           domain.Voucher
		startsAt    *time.Time
		expiresAt   *time.Time
		minSubtotal string
	)
	err := r.pool.QueryRow(ctx, q, code).Scan(
		&v.Code,
		&v.Description,
		&v.Value,
		&startsAt,
		&expiresAt,
		&v.UsageLimit,
		&v.Used,
		&minSubtotal,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	v.StartsAt = startsAt
	v.ExpiresAt = expiresAt
	min, err := decimal.NewFromString(minSubtotal)
	if err != nil {
		return nil, err
	}
	v.MinSubtotal = min
	return &v, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, v domain.Voucher) error {
	const q = `
INSERT INTO vouchers (code, description, value, starts_at, expires_at, usage_limit, used, min_subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO UPDATE
SET description = EXCLUDED.description,
    value = EXCLUDED.value,
    starts_at = EXCLUDED.starts_at,
    expires_at = EXCLUDED.expires_at,
    usage_limit = EXCLUDED.usage_limit,
    min_subtotal = EXCLUDED.min_subtotal
`
	_, err := r.pool.Exec(ctx, q,
		v.Code, v.Description, v.Value, v.StartsAt, v.ExpiresAt, v.UsageLimit, v.Used, v.MinSubtotal.String())
	return err
}

func (r *postgresRepo) IncrementUsage(ctx context.Context, code string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE vouchers SET used = used + 1 WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) List(ctx context.Context) ([]domain.Voucher, error) {
	const q = `
SELECT code, description, value, starts_at, expires_at, usage_limit, used, min_subtotal
FROM vouchers
ORDER BY code
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Voucher
	for rows.Next() {
		var (
			v           domain.Voucher
			minSubtotal string
		)
		if err := rows.Scan(
			&v.Code,
			&v.Description,
			&v.Value,
			&v.StartsAt,
			&v.ExpiresAt,
			&v.UsageLimit,
			&v.Used,
			&minSubtotal,
		); err != nil {
			return nil, err
		}
		min, err := decimal.NewFromString(minSubtotal)
		if err != nil {
			return nil, err
		}
		v.MinSubtotal = min
		out = append(out, v)
	}
	return out, rows.Err()
}
