package domain

import (
	"context"
	"log"
)

// Event is a named fact about a cart mutation. Listeners (read-model sync,
// cache invalidation) live outside this module; the engine only emits.
type Event interface {
	EventName() string
}

// Dispatcher receives events synchronously as mutations happen.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event)
}

type ItemAdded struct {
	Identifier string
	Instance   string
	Item       CartItem
}

func (ItemAdded) EventName() string { return "cart.item_added" }

type ItemUpdated struct {
	Identifier string
	Instance   string
	Item       CartItem
}

func (ItemUpdated) EventName() string { return "cart.item_updated" }

type ItemRemoved struct {
	Identifier string
	Instance   string
	Item       CartItem
}

func (ItemRemoved) EventName() string { return "cart.item_removed" }

type ConditionAdded struct {
	Identifier string
	Instance   string
	Condition  CartCondition
}

func (ConditionAdded) EventName() string { return "cart.condition_added" }

// ConditionRemoved carries the total impact of dropping the condition, e.g.
// the savings lost when a discount is removed.
type ConditionRemoved struct {
	Identifier string
	Instance   string
	Condition  CartCondition
	Impact     Money
}

func (ConditionRemoved) EventName() string { return "cart.condition_removed" }

type ItemConditionAdded struct {
	Identifier string
	Instance   string
	ItemID     string
	Condition  CartCondition
}

func (ItemConditionAdded) EventName() string { return "cart.item_condition_added" }

type ItemConditionRemoved struct {
	Identifier string
	Instance   string
	ItemID     string
	Condition  CartCondition
}

func (ItemConditionRemoved) EventName() string { return "cart.item_condition_removed" }

// Cleared fires unconditionally on Clear, even for an already-empty cart;
// consumers rely on it for cache invalidation.
type Cleared struct {
	Identifier string
	Instance   string
}

func (Cleared) EventName() string { return "cart.cleared" }

type Merged struct {
	Identifier   string
	Instance     string
	Items        []CartItem
	TotalMerged  int
	HadConflicts bool
}

func (Merged) EventName() string { return "cart.merged" }

// LogDispatcher writes every event to a logger. It is the default wiring
// when no projection layer is attached.
type LogDispatcher struct {
	logger *log.Logger
}

func NewLogDispatcher(logger *log.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, e Event) {
	d.logger.Printf("event %s: %+v", e.EventName(), e)
}

// NopDispatcher drops all events.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, Event) {}
