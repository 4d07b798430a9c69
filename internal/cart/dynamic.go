package cart

import (
	"context"

	"cartengine/internal/domain"
)

// RegisterDynamicCondition registers a rule-gated condition for continuous
// evaluation and immediately runs a full evaluation pass. Registration is
// itself a mutation with observable effects, not a pure bookkeeping call.
func (c *Cart) RegisterDynamicCondition(ctx context.Context, cond domain.CartCondition) error {
	if err := cond.Validate(); err != nil {
		return err
	}
	if !cond.IsDynamic() {
		return &domain.InvalidCartConditionError{Field: "rules", Reason: "dynamic condition requires at least one rule"}
	}
	for i := range c.dynamic {
		if c.dynamic[i].Name == cond.Name {
			c.dynamic[i] = cond
			return c.EvaluateDynamicConditions(ctx)
		}
	}
	c.dynamic = append(c.dynamic, cond)
	return c.EvaluateDynamicConditions(ctx)
}

// UnregisterDynamicCondition stops evaluating the named condition. The
// currently applied copy, if any, stays until the next explicit removal.
func (c *Cart) UnregisterDynamicCondition(name string) {
	for i := range c.dynamic {
		if c.dynamic[i].Name == name {
			c.dynamic = append(c.dynamic[:i], c.dynamic[i+1:]...)
			return
		}
	}
}

// DynamicConditions lists the registered dynamic conditions.
func (c *Cart) DynamicConditions() []domain.CartCondition {
	return append([]domain.CartCondition(nil), c.dynamic...)
}

// EvaluateDynamicConditions re-checks every registered dynamic condition
// against current cart state, adding rules-stripped copies where the rules
// pass and removing applied copies where they no longer do. Idempotent: a
// second call with no intervening change writes nothing and emits nothing.
func (c *Cart) EvaluateDynamicConditions(ctx context.Context) error {
	if len(c.dynamic) == 0 {
		return nil
	}
	return c.mutate(ctx, func(st *state) ([]domain.Event, error) {
		events := c.applyDynamics(st)
		if len(events) == 0 {
			return nil, errSkipWrite
		}
		return events, nil
	})
}

// applyDynamics runs one evaluation pass over the state, mutating the
// condition sets in place and returning events for actual changes only.
// Called from every item/condition mutation so dynamic conditions track the
// cart without explicit re-evaluation.
func (c *Cart) applyDynamics(st *state) []domain.Event {
	if len(c.dynamic) == 0 {
		return nil
	}

	cartState := domain.CartState{
		Subtotal: c.subtotalFromState(st),
		Items:    st.items,
		UserVIP:  metaBool(st.meta, "vip"),
	}
	for _, it := range st.items {
		cartState.ItemCount += it.Quantity
	}

	var events []domain.Event
	for _, dyn := range c.dynamic {
		if dyn.Target == domain.TargetItem {
			events = append(events, c.applyItemDynamic(st, cartState, dyn)...)
			continue
		}
		applies := dyn.ShouldApply(cartState, nil)
		idx := findCondition(st.conds.Cart, dyn.Name)
		switch {
		case applies && idx < 0:
			cond := dyn.WithoutRules()
			st.conds.Cart = append(st.conds.Cart, cond)
			events = append(events, domain.ConditionAdded{Identifier: c.identifier, Instance: c.instance, Condition: cond})
		case !applies && idx >= 0:
			cond := st.conds.Cart[idx]
			before := c.totalFromState(st)
			st.conds.Cart = append(st.conds.Cart[:idx], st.conds.Cart[idx+1:]...)
			after := c.totalFromState(st)
			events = append(events, domain.ConditionRemoved{
				Identifier: c.identifier,
				Instance:   c.instance,
				Condition:  cond,
				Impact:     domain.NewMoney(before.Sub(after).Abs(), c.opts.Currency),
			})
		}
	}
	return events
}

func (c *Cart) applyItemDynamic(st *state, cartState domain.CartState, dyn domain.CartCondition) []domain.Event {
	var events []domain.Event
	for i := range st.items {
		item := st.items[i]
		applies := dyn.ShouldApply(cartState, &item)
		list := st.conds.Items[item.ID]
		idx := findCondition(list, dyn.Name)
		switch {
		case applies && idx < 0:
			cond := dyn.WithoutRules()
			if st.conds.Items == nil {
				st.conds.Items = make(map[string][]domain.CartCondition)
			}
			st.conds.Items[item.ID] = append(list, cond)
			events = append(events, domain.ItemConditionAdded{Identifier: c.identifier, Instance: c.instance, ItemID: item.ID, Condition: cond})
		case !applies && idx >= 0:
			cond := list[idx]
			list = append(list[:idx], list[idx+1:]...)
			if len(list) == 0 {
				delete(st.conds.Items, item.ID)
			} else {
				st.conds.Items[item.ID] = list
			}
			events = append(events, domain.ItemConditionRemoved{Identifier: c.identifier, Instance: c.instance, ItemID: item.ID, Condition: cond})
		}
	}
	return events
}

func metaBool(meta map[string]interface{}, key string) bool {
	if meta == nil {
		return false
	}
	v, ok := meta[key].(bool)
	return ok && v
}
