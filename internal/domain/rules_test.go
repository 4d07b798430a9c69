package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRuleEvaluate(t *testing.T) {
	state := CartState{
		Subtotal:  decimal.NewFromInt(80),
		ItemCount: 4,
		Items: []CartItem{
			{ID: "tee", Name: "Tee", Price: decimal.NewFromInt(20), Quantity: 2, Attributes: map[string]interface{}{"category": "apparel"}},
			{ID: "mug", Name: "Mug", Price: decimal.NewFromInt(10), Quantity: 2},
		},
		UserVIP: true,
	}

	cases := []struct {
		name string
		rule Rule
		want bool
	}{
		{"min_total met", Rule{Kind: RuleMinTotal, Amount: decimal.NewFromInt(80)}, true},
		{"min_total unmet", Rule{Kind: RuleMinTotal, Amount: decimal.NewFromInt(81)}, false},
		{"max_total met", Rule{Kind: RuleMaxTotal, Amount: decimal.NewFromInt(100)}, true},
		{"max_total unmet", Rule{Kind: RuleMaxTotal, Amount: decimal.NewFromInt(79)}, false},
		{"min_items met", Rule{Kind: RuleMinItems, Count: 4}, true},
		{"min_items unmet", Rule{Kind: RuleMinItems, Count: 5}, false},
		{"max_items met", Rule{Kind: RuleMaxItems, Count: 4}, true},
		{"max_items unmet", Rule{Kind: RuleMaxItems, Count: 3}, false},
		{"has_category met", Rule{Kind: RuleHasCategory, Category: "apparel"}, true},
		{"has_category unmet", Rule{Kind: RuleHasCategory, Category: "garden"}, false},
		{"user_vip", Rule{Kind: RuleUserVIP}, true},
		{"specific_items all present", Rule{Kind: RuleSpecificItems, ItemIDs: []string{"tee", "mug"}}, true},
		{"specific_items one missing", Rule{Kind: RuleSpecificItems, ItemIDs: []string{"tee", "vase"}}, false},
		{"specific_items empty list", Rule{Kind: RuleSpecificItems}, false},
	}

	for _, tc := range cases {
		if got := tc.rule.Evaluate(state, nil); got != tc.want {
			t.Fatalf("%s: expected %t, got %t", tc.name, tc.want, got)
		}
	}
}

func TestRuleEvaluateItemScoped(t *testing.T) {
	item := CartItem{ID: "tee", Name: "Tee", Price: decimal.NewFromInt(20), Quantity: 3}

	qty := Rule{Kind: RuleItemQuantity, Count: 3}
	if !qty.Evaluate(CartState{}, &item) {
		t.Fatal("expected item_quantity to pass at threshold")
	}
	if qty.Evaluate(CartState{}, nil) {
		t.Fatal("item_quantity without an item in scope must be false")
	}

	price := Rule{Kind: RuleItemPrice, Amount: decimal.NewFromInt(25)}
	if price.Evaluate(CartState{}, &item) {
		t.Fatal("expected item_price below threshold to fail")
	}
	if price.Evaluate(CartState{}, nil) {
		t.Fatal("item_price without an item in scope must be false")
	}
}

func TestRuleValidate(t *testing.T) {
	if err := (Rule{Kind: RuleHasCategory, Category: "apparel"}).Validate(); err != nil {
		t.Fatalf("expected known kind to validate, got %v", err)
	}
	if err := (Rule{Kind: "weekday"}).Validate(); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
}
