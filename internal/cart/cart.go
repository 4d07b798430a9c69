package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"cartengine/internal/domain"
	"cartengine/internal/storage"
)

// Cart is a handle on one (identifier, instance) pair. It holds no cart
// state of its own: every operation reads the current snapshot from storage,
// applies the change and writes it back under the optimistic version check.
// Handles are cheap; SetInstance returns a new one.
type Cart struct {
	store      storage.Store
	dispatcher domain.Dispatcher
	identifier string
	instance   string
	opts       Options
	dynamic    []domain.CartCondition
}

// New binds a cart handle to an identifier. The instance comes from
// opts.Instance ("default" when empty).
func New(store storage.Store, dispatcher domain.Dispatcher, identifier string, opts Options) *Cart {
	opts = opts.withDefaults()
	if dispatcher == nil {
		dispatcher = domain.NopDispatcher{}
	}
	return &Cart{
		store:      store,
		dispatcher: dispatcher,
		identifier: identifier,
		instance:   opts.Instance,
		opts:       opts,
	}
}

func (c *Cart) Identifier() string { return c.identifier }
func (c *Cart) Instance() string   { return c.instance }
func (c *Cart) Currency() string   { return c.opts.Currency }

// SetInstance returns a new handle bound to the same identifier and another
// instance. The receiver keeps its own binding; dynamic registrations carry
// over to the new handle.
func (c *Cart) SetInstance(name string) *Cart {
	if name == "" {
		name = "default"
	}
	out := *c
	out.instance = name
	out.dynamic = append([]domain.CartCondition(nil), c.dynamic...)
	return &out
}

// state is the mutable snapshot a mutation works on.
type state struct {
	items   []domain.CartItem
	conds   storage.ConditionSet
	version int64
	tracked bool
	meta    map[string]interface{}
}

// errSkipWrite signals a documented no-op: nothing is persisted and no
// events fire.
var errSkipWrite = errors.New("skip write")

func (c *Cart) loadState(ctx context.Context) (*state, error) {
	items, err := c.store.GetItems(ctx, c.identifier, c.instance)
	if err != nil {
		return nil, err
	}
	conds, err := c.store.GetConditions(ctx, c.identifier, c.instance)
	if err != nil {
		return nil, err
	}
	version, tracked, err := c.store.Version(ctx, c.identifier, c.instance)
	if err != nil {
		return nil, err
	}
	meta, err := c.store.GetAllMetadata(ctx, c.identifier, c.instance)
	if err != nil {
		return nil, err
	}
	return &state{items: items, conds: conds, version: version, tracked: tracked, meta: meta}, nil
}

// mutate is the single write path: read snapshot, apply fn, write back with
// the version observed at read time, dispatch the returned events only after
// the write succeeded. Conflicts are classified and retried per options.
func (c *Cart) mutate(ctx context.Context, fn func(st *state) ([]domain.Event, error)) error {
	op := func(ctx context.Context) error {
		st, err := c.loadState(ctx)
		if err != nil {
			return err
		}
		events, err := fn(st)
		if errors.Is(err, errSkipWrite) {
			return nil
		}
		if err != nil {
			return err
		}
		expected := st.version
		if !st.tracked {
			expected = storage.VersionAny
		}
		if _, err := c.store.PutBoth(ctx, c.identifier, c.instance, st.items, st.conds, expected); err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				conflict.Classify(c.opts.ConflictMinorGap)
			}
			return err
		}
		for _, e := range events {
			c.dispatcher.Dispatch(ctx, e)
		}
		return nil
	}
	return withRetry(ctx, c.opts.Retry, op)
}

// Add appends an item, merging quantities when the id already exists.
func (c *Cart) Add(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	if err := item.Validate(); err != nil {
		return domain.CartItem{}, err
	}
	if c.opts.MaxQuantity > 0 && item.Quantity > c.opts.MaxQuantity {
		return domain.CartItem{}, &domain.LimitExceededError{Limit: "max_quantity", Max: c.opts.MaxQuantity, Actual: item.Quantity}
	}

	var stored domain.CartItem
	err := c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		merged := false
		for i := range st.items {
			if st.items[i].ID == item.ID {
				qty := st.items[i].Quantity + item.Quantity
				if c.opts.MaxQuantity > 0 && qty > c.opts.MaxQuantity {
					return nil, &domain.LimitExceededError{Limit: "max_quantity", Max: c.opts.MaxQuantity, Actual: qty}
				}
				st.items[i].Quantity = qty
				stored = st.items[i]
				merged = true
				break
			}
		}
		if !merged {
			if c.opts.MaxItems > 0 && len(st.items) >= c.opts.MaxItems {
				return nil, &domain.LimitExceededError{Limit: "max_items", Max: c.opts.MaxItems, Actual: len(st.items) + 1}
			}
			st.items = append(st.items, item.Clone())
			stored = item
		}
		if err := c.checkPayload(st); err != nil {
			return nil, err
		}
		events := []domain.Event{domain.ItemAdded{Identifier: c.identifier, Instance: c.instance, Item: stored.Clone()}}
		return append(events, c.applyDynamics(st)...), nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return stored, nil
}

// QuantityChange is either an absolute replacement or a relative delta.
type QuantityChange struct {
	Relative bool
	Value    int
}

// ItemUpdate holds optional field changes; nil fields keep current values.
type ItemUpdate struct {
	Name            *string
	Price           *decimal.Decimal
	Quantity        *QuantityChange
	Attributes      map[string]interface{}
	AssociatedModel *string
}

// Update modifies an existing item. A missing id is a documented no-op:
// it returns (nil, nil), changes nothing and emits nothing.
func (c *Cart) Update(ctx context.Context, id string, change ItemUpdate) (*domain.CartItem, error) {
	var updated *domain.CartItem
	err := c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		idx := -1
		for i := range st.items {
			if st.items[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errSkipWrite
		}

		it := &st.items[idx]
		if change.Name != nil {
			it.Name = *change.Name
		}
		if change.Price != nil {
			it.Price = *change.Price
		}
		if change.Quantity != nil {
			qty := change.Quantity.Value
			if change.Quantity.Relative {
				qty = it.Quantity + change.Quantity.Value
			}
			it.Quantity = qty
		}
		if change.Attributes != nil {
			it.Attributes = change.Attributes
		}
		if change.AssociatedModel != nil {
			it.AssociatedModel = *change.AssociatedModel
		}
		if err := it.Validate(); err != nil {
			return nil, err
		}
		if c.opts.MaxQuantity > 0 && it.Quantity > c.opts.MaxQuantity {
			return nil, &domain.LimitExceededError{Limit: "max_quantity", Max: c.opts.MaxQuantity, Actual: it.Quantity}
		}
		if err := c.checkPayload(st); err != nil {
			return nil, err
		}

		snap := it.Clone()
		updated = &snap
		events := []domain.Event{domain.ItemUpdated{Identifier: c.identifier, Instance: c.instance, Item: snap}}
		return append(events, c.applyDynamics(st)...), nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes an item and its item-level conditions. Missing id is a
// no-op returning (nil, nil).
func (c *Cart) Remove(ctx context.Context, id string) (*domain.CartItem, error) {
	var removed *domain.CartItem
	err := c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		idx := -1
		for i := range st.items {
			if st.items[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errSkipWrite
		}
		snap := st.items[idx].Clone()
		removed = &snap
		st.items = append(st.items[:idx], st.items[idx+1:]...)
		if st.conds.Items != nil {
			delete(st.conds.Items, id)
		}
		events := []domain.Event{domain.ItemRemoved{Identifier: c.identifier, Instance: c.instance, Item: snap}}
		return append(events, c.applyDynamics(st)...), nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Get returns one item or nil when absent.
func (c *Cart) Get(ctx context.Context, id string) (*domain.CartItem, error) {
	items, err := c.store.GetItems(ctx, c.identifier, c.instance)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.ID == id {
			snap := it.Clone()
			return &snap, nil
		}
	}
	return nil, nil
}

// Items returns the line items in insertion order.
func (c *Cart) Items(ctx context.Context) ([]domain.CartItem, error) {
	return c.store.GetItems(ctx, c.identifier, c.instance)
}

// Count is the total quantity across all lines.
func (c *Cart) Count(ctx context.Context) (int, error) {
	items, err := c.store.GetItems(ctx, c.identifier, c.instance)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n, nil
}

func (c *Cart) IsEmpty(ctx context.Context) (bool, error) {
	items, err := c.store.GetItems(ctx, c.identifier, c.instance)
	if err != nil {
		return false, err
	}
	return len(items) == 0, nil
}

// Clear wipes items, conditions and metadata. The Cleared event fires even
// when the cart was already empty; consumers rely on that for cache
// invalidation.
//
// Metadata goes first: a storage failure there leaves items and conditions
// untouched and no event fires. A failure on the second write can leave
// metadata wiped with items still present; retrying Clear converges, and no
// event fires until the full wipe lands.
func (c *Cart) Clear(ctx context.Context) error {
	if err := c.store.ClearMetadata(ctx, c.identifier, c.instance); err != nil {
		return err
	}
	err := c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		st.items = nil
		st.conds = storage.ConditionSet{}
		return nil, nil
	})
	if err != nil {
		return err
	}
	c.dispatcher.Dispatch(ctx, domain.Cleared{Identifier: c.identifier, Instance: c.instance})
	return nil
}

// AddCondition attaches a cart-level condition, replacing any existing one
// with the same name. Item-targeted conditions go through AddItemCondition.
func (c *Cart) AddCondition(ctx context.Context, cond domain.CartCondition) error {
	if err := cond.Validate(); err != nil {
		return err
	}
	if cond.Target == domain.TargetItem {
		return &domain.InvalidCartConditionError{Field: "target", Reason: "item conditions must be attached to an item"}
	}
	return c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		upsertCondition(&st.conds.Cart, cond)
		events := []domain.Event{domain.ConditionAdded{Identifier: c.identifier, Instance: c.instance, Condition: cond}}
		return append(events, c.applyDynamics(st)...), nil
	})
}

// RemoveCondition drops a cart-level condition by name; absent names are a
// silent no-op. The emitted event reports the price impact of the removal,
// e.g. the savings lost when a discount goes away.
func (c *Cart) RemoveCondition(ctx context.Context, name string) error {
	return c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		idx := findCondition(st.conds.Cart, name)
		if idx < 0 {
			return nil, errSkipWrite
		}
		before := c.totalFromState(st)
		cond := st.conds.Cart[idx]
		st.conds.Cart = append(st.conds.Cart[:idx], st.conds.Cart[idx+1:]...)
		after := c.totalFromState(st)
		impact := domain.NewMoney(before.Sub(after).Abs(), c.opts.Currency)
		events := []domain.Event{domain.ConditionRemoved{
			Identifier: c.identifier,
			Instance:   c.instance,
			Condition:  cond,
			Impact:     impact,
		}}
		return append(events, c.applyDynamics(st)...), nil
	})
}

// Conditions lists the cart-level conditions in application order.
func (c *Cart) Conditions(ctx context.Context) ([]domain.CartCondition, error) {
	conds, err := c.store.GetConditions(ctx, c.identifier, c.instance)
	if err != nil {
		return nil, err
	}
	out := append([]domain.CartCondition(nil), conds.Cart...)
	sortConditions(out)
	return out, nil
}

// AddItemCondition attaches a condition to one item. The item must exist
// and the condition must target items; subtotal/total conditions go through
// AddCondition.
func (c *Cart) AddItemCondition(ctx context.Context, itemID string, cond domain.CartCondition) error {
	if err := cond.Validate(); err != nil {
		return err
	}
	if cond.Target != domain.TargetItem {
		return &domain.InvalidCartConditionError{Field: "target", Reason: "cart-level conditions cannot be attached to an item"}
	}
	return c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		if !hasItem(st.items, itemID) {
			return nil, domain.ErrNotFound
		}
		if st.conds.Items == nil {
			st.conds.Items = make(map[string][]domain.CartCondition)
		}
		list := st.conds.Items[itemID]
		upsertCondition(&list, cond)
		st.conds.Items[itemID] = list
		events := []domain.Event{domain.ItemConditionAdded{Identifier: c.identifier, Instance: c.instance, ItemID: itemID, Condition: cond}}
		return append(events, c.applyDynamics(st)...), nil
	})
}

// RemoveItemCondition is a no-op when the item or condition is absent.
func (c *Cart) RemoveItemCondition(ctx context.Context, itemID, name string) error {
	return c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		list, ok := st.conds.Items[itemID]
		if !ok {
			return nil, errSkipWrite
		}
		idx := findCondition(list, name)
		if idx < 0 {
			return nil, errSkipWrite
		}
		cond := list[idx]
		list = append(list[:idx], list[idx+1:]...)
		if len(list) == 0 {
			delete(st.conds.Items, itemID)
		} else {
			st.conds.Items[itemID] = list
		}
		events := []domain.Event{domain.ItemConditionRemoved{Identifier: c.identifier, Instance: c.instance, ItemID: itemID, Condition: cond}}
		return append(events, c.applyDynamics(st)...), nil
	})
}

// ItemConditions lists the conditions attached to one item.
func (c *Cart) ItemConditions(ctx context.Context, itemID string) ([]domain.CartCondition, error) {
	conds, err := c.store.GetConditions(ctx, c.identifier, c.instance)
	if err != nil {
		return nil, err
	}
	out := append([]domain.CartCondition(nil), conds.Items[itemID]...)
	sortConditions(out)
	return out, nil
}

// Subtotal sums item subtotals with item-level conditions applied;
// cart-level conditions are not in play yet.
func (c *Cart) Subtotal(ctx context.Context) (domain.Money, error) {
	st, err := c.loadState(ctx)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.NewMoney(c.subtotalFromState(st), c.opts.Currency), nil
}

// Total folds the cart-level conditions over the subtotal in ascending
// order, subtotal-targeted first, then total-targeted.
func (c *Cart) Total(ctx context.Context) (domain.Money, error) {
	st, err := c.loadState(ctx)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.NewMoney(c.totalFromState(st), c.opts.Currency), nil
}

func (c *Cart) subtotalFromState(st *state) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range st.items {
		sum = sum.Add(itemSubtotal(it, st.conds.Items[it.ID]))
	}
	return sum
}

func (c *Cart) totalFromState(st *state) decimal.Decimal {
	total := c.subtotalFromState(st)
	total = foldConditions(total, st.conds.Cart, domain.TargetSubtotal)
	total = foldConditions(total, st.conds.Cart, domain.TargetTotal)
	return total
}

// Metadata reads one metadata value; ok is false when unset.
func (c *Cart) Metadata(ctx context.Context, key string) (interface{}, bool, error) {
	return c.store.GetMetadata(ctx, c.identifier, c.instance, key)
}

func (c *Cart) SetMetadata(ctx context.Context, key string, value interface{}) error {
	return c.store.PutMetadata(ctx, c.identifier, c.instance, key, value)
}

func (c *Cart) SetMetadataBatch(ctx context.Context, values map[string]interface{}) error {
	return c.store.PutMetadataBatch(ctx, c.identifier, c.instance, values)
}

func (c *Cart) RemoveMetadata(ctx context.Context, key string) error {
	return c.store.DeleteMetadata(ctx, c.identifier, c.instance, key)
}

func (c *Cart) AllMetadata(ctx context.Context) (map[string]interface{}, error) {
	return c.store.GetAllMetadata(ctx, c.identifier, c.instance)
}

// Version exposes the storage version for optimistic-concurrency callers;
// ok is false when the backend does not track versions.
func (c *Cart) Version(ctx context.Context) (int64, bool, error) {
	return c.store.Version(ctx, c.identifier, c.instance)
}

// ID returns the storage-assigned opaque cart id.
func (c *Cart) ID(ctx context.Context) (string, error) {
	return c.store.ID(ctx, c.identifier, c.instance)
}

// Store force-persists the current snapshot, bumping the version. Most
// operations auto-persist; this is the explicit-flush point.
func (c *Cart) Store(ctx context.Context) error {
	return c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		return nil, nil
	})
}

// Snapshot is the full persisted state of one cart instance.
type Snapshot struct {
	Items      []domain.CartItem
	Conditions storage.ConditionSet
	Metadata   map[string]interface{}
	Version    int64
}

// Restore re-reads the persisted snapshot, the read half of the explicit
// round-trip.
func (c *Cart) Restore(ctx context.Context) (*Snapshot, error) {
	st, err := c.loadState(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Items: st.items, Conditions: st.conds, Metadata: st.meta, Version: st.version}, nil
}

func (c *Cart) checkPayload(st *state) error {
	if c.opts.MaxPayloadBytes <= 0 {
		return nil
	}
	raw, err := json.Marshal(struct {
		Items      []domain.CartItem    `json:"items"`
		Conditions storage.ConditionSet `json:"conditions"`
	}{st.items, st.conds})
	if err != nil {
		return err
	}
	if len(raw) > c.opts.MaxPayloadBytes {
		return &domain.LimitExceededError{Limit: "max_payload_bytes", Max: c.opts.MaxPayloadBytes, Actual: len(raw)}
	}
	return nil
}

func itemSubtotal(it domain.CartItem, conds []domain.CartCondition) decimal.Decimal {
	return foldConditions(it.Subtotal(), conds, domain.TargetItem)
}

// foldConditions chains each matching condition's Apply against the running
// value, ascending by Order with insertion order breaking ties.
func foldConditions(base decimal.Decimal, conds []domain.CartCondition, target domain.ConditionTarget) decimal.Decimal {
	matched := make([]domain.CartCondition, 0, len(conds))
	for _, cond := range conds {
		if cond.Target == target {
			matched = append(matched, cond)
		}
	}
	sortConditions(matched)
	for _, cond := range matched {
		base = cond.Apply(base)
	}
	return base
}

func sortConditions(conds []domain.CartCondition) {
	sort.SliceStable(conds, func(i, j int) bool { return conds[i].Order < conds[j].Order })
}

func upsertCondition(list *[]domain.CartCondition, cond domain.CartCondition) {
	if idx := findCondition(*list, cond.Name); idx >= 0 {
		(*list)[idx] = cond
		return
	}
	*list = append(*list, cond)
}

func findCondition(list []domain.CartCondition, name string) int {
	for i := range list {
		if list[i].Name == name {
			return i
		}
	}
	return -1
}

func hasItem(items []domain.CartItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
