package voucher

import (
	"context"

	"cartengine/internal/domain"
)

// Repository provides voucher lookup and usage accounting.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*domain.Voucher, error)
	Upsert(ctx context.Context, v domain.Voucher) error
	// IncrementUsage bumps the used counter, failing with ErrNotFound when
	// the code does not exist.
	IncrementUsage(ctx context.Context, code string) error
	List(ctx context.Context) ([]domain.Voucher, error)
}
