package storage

import (
	"context"
	"time"

	"cartengine/internal/domain"
)

// VersionAny skips the optimistic version check on a write.
const VersionAny int64 = -1

// ConditionSet groups the cart-level conditions with the per-item ones.
type ConditionSet struct {
	Cart  []domain.CartCondition            `json:"cart,omitempty"`
	Items map[string][]domain.CartCondition `json:"items,omitempty"`
}

// Clone deep-copies the set so callers cannot mutate stored state.
func (s ConditionSet) Clone() ConditionSet {
	out := ConditionSet{}
	if s.Cart != nil {
		out.Cart = append([]domain.CartCondition(nil), s.Cart...)
	}
	if s.Items != nil {
		out.Items = make(map[string][]domain.CartCondition, len(s.Items))
		for k, v := range s.Items {
			out.Items[k] = append([]domain.CartCondition(nil), v...)
		}
	}
	return out
}

// Store is the backend contract for cart persistence. A cart is keyed by
// (identifier, instance); unknown keys read as empty defaults, the first
// write creates the persisted state.
//
// Mutating item/condition writes take the version observed at read time and
// return the new version; a stale version yields *domain.ConflictError.
// Backends that do not track versions ignore the check and report
// Version(...) ok=false. Every mutation bumps the counter where tracked.
type Store interface {
	Has(ctx context.Context, identifier, instance string) (bool, error)

	GetItems(ctx context.Context, identifier, instance string) ([]domain.CartItem, error)
	PutItems(ctx context.Context, identifier, instance string, items []domain.CartItem, expected int64) (int64, error)
	GetConditions(ctx context.Context, identifier, instance string) (ConditionSet, error)
	PutConditions(ctx context.Context, identifier, instance string, conditions ConditionSet, expected int64) (int64, error)
	// PutBoth writes items and conditions in one atomic step.
	PutBoth(ctx context.Context, identifier, instance string, items []domain.CartItem, conditions ConditionSet, expected int64) (int64, error)

	GetMetadata(ctx context.Context, identifier, instance, key string) (interface{}, bool, error)
	PutMetadata(ctx context.Context, identifier, instance, key string, value interface{}) error
	PutMetadataBatch(ctx context.Context, identifier, instance string, values map[string]interface{}) error
	DeleteMetadata(ctx context.Context, identifier, instance, key string) error
	GetAllMetadata(ctx context.Context, identifier, instance string) (map[string]interface{}, error)
	ClearMetadata(ctx context.Context, identifier, instance string) error

	// Forget drops one instance; ForgetIdentifier drops every instance
	// owned by the identifier.
	Forget(ctx context.Context, identifier, instance string) error
	ForgetIdentifier(ctx context.Context, identifier string) error
	Instances(ctx context.Context, identifier string) ([]string, error)

	Version(ctx context.Context, identifier, instance string) (int64, bool, error)
	// ID returns the storage-assigned opaque cart id, creating the backing
	// record on demand.
	ID(ctx context.Context, identifier, instance string) (string, error)
	// SwapIdentifier atomically renames ownership of one instance. It
	// returns false when nothing existed under the old identifier.
	SwapIdentifier(ctx context.Context, oldIdentifier, newIdentifier, instance string) (bool, error)

	CreatedAt(ctx context.Context, identifier, instance string) (*time.Time, error)
	UpdatedAt(ctx context.Context, identifier, instance string) (*time.Time, error)

	// Flush wipes everything. Test and reset utility.
	Flush(ctx context.Context) error
}
