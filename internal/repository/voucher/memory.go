package voucher

import (
	"context"
	"sync"

	"cartengine/internal/domain"
)

type memoryRepo struct {
	mu       sync.RWMutex
	vouchers map[string]domain.Voucher
}

// NewMemory returns an in-process repository, used with the memory and
// redis cart backends and in tests.
func NewMemory() Repository {
	return &memoryRepo{vouchers: make(map[string]domain.Voucher)}
}

func (r *memoryRepo) GetByCode(_ context.Context, code string) (*domain.Voucher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vouchers[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (r *memoryRepo) Upsert(_ context.Context, v domain.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.vouchers[v.Code]; ok {
		v.Used = existing.Used
	}
	r.vouchers[v.Code] = v
	return nil
}

func (r *memoryRepo) IncrementUsage(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok {
		return domain.ErrNotFound
	}
	v.Used++
	r.vouchers[code] = v
	return nil
}

func (r *memoryRepo) List(_ context.Context) ([]domain.Voucher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Voucher, 0, len(r.vouchers))
	for _, v := range r.vouchers {
		out = append(out, v)
	}
	return out, nil
}
