package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CartItem is a line in a cart. Items are identified by ID within a cart;
// adding an item with an existing ID merges quantities instead of duplicating.
type CartItem struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Price           decimal.Decimal        `json:"price"`
	Quantity        int                    `json:"quantity"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
	AssociatedModel string                 `json:"associatedModel,omitempty"`
}

// Subtotal is price times quantity, before any conditions.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Category reads the conventional "category" attribute, empty when unset.
func (i CartItem) Category() string {
	if i.Attributes == nil {
		return ""
	}
	if v, ok := i.Attributes["category"].(string); ok {
		return v
	}
	return ""
}

// Clone returns a deep copy so callers cannot mutate stored state through
// the attributes map.
func (i CartItem) Clone() CartItem {
	out := i
	if i.Attributes != nil {
		out.Attributes = make(map[string]interface{}, len(i.Attributes))
		for k, v := range i.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Validate checks the construction invariants for a cart item.
func (i CartItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return &InvalidCartItemError{Field: "id", Reason: "required"}
	}
	if strings.TrimSpace(i.Name) == "" {
		return &InvalidCartItemError{Field: "name", Reason: "required"}
	}
	if i.Quantity < 1 {
		return &InvalidCartItemError{Field: "quantity", Reason: "must be at least 1"}
	}
	if i.Price.IsNegative() {
		return &InvalidCartItemError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}
