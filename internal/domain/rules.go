package domain

import "github.com/shopspring/decimal"

// RuleKind enumerates the supported dynamic condition predicates.
type RuleKind string

const (
	RuleMinTotal      RuleKind = "min_total"
	RuleMinItems      RuleKind = "min_items"
	RuleMaxTotal      RuleKind = "max_total"
	RuleMaxItems      RuleKind = "max_items"
	RuleHasCategory   RuleKind = "has_category"
	RuleUserVIP       RuleKind = "user_vip"
	RuleSpecificItems RuleKind = "specific_items"
	RuleItemQuantity  RuleKind = "item_quantity"
	RuleItemPrice     RuleKind = "item_price"
)

// Rule is one predicate of a dynamic condition. The kind selects which
// parameters are read: Amount for the *_total and item_price thresholds,
// Count for the *_items and item_quantity thresholds, Category for
// has_category and ItemIDs for specific_items.
type Rule struct {
	Kind     RuleKind        `json:"kind"`
	Amount   decimal.Decimal `json:"amount,omitempty"`
	Count    int             `json:"count,omitempty"`
	Category string          `json:"category,omitempty"`
	ItemIDs  []string        `json:"itemIds,omitempty"`
}

// CartState is the snapshot a rule evaluates against. Subtotal includes
// item-level conditions, cart-level conditions are not applied.
type CartState struct {
	Subtotal  decimal.Decimal
	ItemCount int
	Items     []CartItem
	UserVIP   bool
}

// Validate rejects unknown rule kinds at condition construction time.
func (r Rule) Validate() error {
	switch r.Kind {
	case RuleMinTotal, RuleMinItems, RuleMaxTotal, RuleMaxItems,
		RuleHasCategory, RuleUserVIP, RuleSpecificItems, RuleItemQuantity, RuleItemPrice:
		return nil
	default:
		return &InvalidCartConditionError{Field: "rules", Reason: "unknown rule kind: " + string(r.Kind)}
	}
}

// Evaluate runs the predicate. Item-scoped kinds (item_quantity, item_price)
// are false when no item is in scope.
func (r Rule) Evaluate(state CartState, item *CartItem) bool {
	switch r.Kind {
	case RuleMinTotal:
		return state.Subtotal.GreaterThanOrEqual(r.Amount)
	case RuleMaxTotal:
		return state.Subtotal.LessThanOrEqual(r.Amount)
	case RuleMinItems:
		return state.ItemCount >= r.Count
	case RuleMaxItems:
		return state.ItemCount <= r.Count
	case RuleHasCategory:
		for _, it := range state.Items {
			if it.Category() == r.Category {
				return true
			}
		}
		return false
	case RuleUserVIP:
		return state.UserVIP
	case RuleSpecificItems:
		for _, id := range r.ItemIDs {
			found := false
			for _, it := range state.Items {
				if it.ID == id {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return len(r.ItemIDs) > 0
	case RuleItemQuantity:
		return item != nil && item.Quantity >= r.Count
	case RuleItemPrice:
		return item != nil && item.Price.GreaterThanOrEqual(r.Amount)
	default:
		return false
	}
}
