package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cartengine/internal/domain"
)

func TestDynamicConditionAppliesAndRetracts(t *testing.T) {
	ctx := context.Background()
	c, dispatcher := newTestCart(t, Options{})

	bulk := domain.CartCondition{
		Name: "bulk-discount", Type: "discount", Target: domain.TargetSubtotal, Value: "-10%",
		Rules: []domain.Rule{{Kind: domain.RuleMinTotal, Amount: decimal.NewFromInt(100)}},
	}
	if err := c.RegisterDynamicCondition(ctx, bulk); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Below threshold: no condition applied.
	if _, err := c.Add(ctx, item("tee", "40", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	conds, _ := c.Conditions(ctx)
	if len(conds) != 0 {
		t.Fatalf("expected no applied condition below threshold, got %v", conds)
	}

	// Crossing the threshold applies a rules-stripped copy.
	dispatcher.reset()
	if _, err := c.Add(ctx, item("hoodie", "80", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	conds, _ = c.Conditions(ctx)
	if len(conds) != 1 || conds[0].Name != "bulk-discount" {
		t.Fatalf("expected applied condition, got %v", conds)
	}
	if conds[0].IsDynamic() {
		t.Fatal("applied copy must not carry rules")
	}
	if dispatcher.count("cart.condition_added") != 1 {
		t.Fatalf("expected condition_added, got %v", dispatcher.names())
	}

	total, _ := c.Total(ctx)
	// 120 - 10% = 108
	if got := total.StringFixed(2); got != "108.00" {
		t.Fatalf("expected 108.00, got %s", got)
	}

	// Dropping back below the threshold retracts it.
	dispatcher.reset()
	if _, err := c.Remove(ctx, "hoodie"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	conds, _ = c.Conditions(ctx)
	if len(conds) != 0 {
		t.Fatalf("expected retraction below threshold, got %v", conds)
	}
	if dispatcher.count("cart.condition_removed") != 1 {
		t.Fatalf("expected condition_removed, got %v", dispatcher.names())
	}
}

func TestDynamicEvaluationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, dispatcher := newTestCart(t, Options{})

	if _, err := c.Add(ctx, item("tee", "200", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	cond := domain.CartCondition{
		Name: "big-spender", Type: "discount", Target: domain.TargetSubtotal, Value: "-5%",
		Rules: []domain.Rule{{Kind: domain.RuleMinTotal, Amount: decimal.NewFromInt(100)}},
	}
	if err := c.RegisterDynamicCondition(ctx, cond); err != nil {
		t.Fatalf("register: %v", err)
	}

	v, _, _ := c.Version(ctx)
	dispatcher.reset()
	if err := c.EvaluateDynamicConditions(ctx); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	if len(dispatcher.names()) != 0 {
		t.Fatalf("idempotent evaluation must emit nothing, got %v", dispatcher.names())
	}
	v2, _, _ := c.Version(ctx)
	if v2 != v {
		t.Fatalf("idempotent evaluation must not bump version: %d -> %d", v, v2)
	}
}

func TestDynamicItemCondition(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t, Options{})

	multi := domain.CartCondition{
		Name: "multi-buy", Type: "discount", Target: domain.TargetItem, Value: "-20%",
		Rules: []domain.Rule{{Kind: domain.RuleItemQuantity, Count: 3}},
	}
	if err := c.RegisterDynamicCondition(ctx, multi); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := c.Add(ctx, item("tee", "10", 2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	conds, _ := c.ItemConditions(ctx, "tee")
	if len(conds) != 0 {
		t.Fatalf("expected no item condition below quantity threshold, got %v", conds)
	}

	if _, err := c.Add(ctx, item("tee", "10", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	conds, _ = c.ItemConditions(ctx, "tee")
	if len(conds) != 1 || conds[0].Name != "multi-buy" {
		t.Fatalf("expected applied item condition at quantity 3, got %v", conds)
	}

	subtotal, _ := c.Subtotal(ctx)
	// 30 - 20% = 24
	if got := subtotal.StringFixed(2); got != "24.00" {
		t.Fatalf("expected 24.00, got %s", got)
	}

	if _, err := c.Update(ctx, "tee", ItemUpdate{Quantity: &QuantityChange{Value: 1}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	conds, _ = c.ItemConditions(ctx, "tee")
	if len(conds) != 0 {
		t.Fatalf("expected retraction when quantity drops, got %v", conds)
	}
}

func TestDynamicVIPConditionReadsMetadata(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t, Options{})

	vip := domain.CartCondition{
		Name: "vip-perk", Type: "discount", Target: domain.TargetSubtotal, Value: "-15%",
		Rules: []domain.Rule{{Kind: domain.RuleUserVIP}},
	}
	if err := c.RegisterDynamicCondition(ctx, vip); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := c.Add(ctx, item("tee", "100", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	conds, _ := c.Conditions(ctx)
	if len(conds) != 0 {
		t.Fatalf("expected no perk for non-vip, got %v", conds)
	}

	if err := c.SetMetadata(ctx, "vip", true); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if err := c.EvaluateDynamicConditions(ctx); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	conds, _ = c.Conditions(ctx)
	if len(conds) != 1 || conds[0].Name != "vip-perk" {
		t.Fatalf("expected vip perk applied, got %v", conds)
	}
}

func TestRegisterDynamicConditionValidation(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t, Options{})

	static := domain.CartCondition{Name: "x", Type: "t", Target: domain.TargetSubtotal, Value: "-5"}
	err := c.RegisterDynamicCondition(ctx, static)
	var invalid *domain.InvalidCartConditionError
	if !errors.As(err, &invalid) || invalid.Field != "rules" {
		t.Fatalf("expected rules rejection for static condition, got %v", err)
	}
}

func TestUnregisterDynamicCondition(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t, Options{})

	cond := domain.CartCondition{
		Name: "perk", Type: "discount", Target: domain.TargetSubtotal, Value: "-5%",
		Rules: []domain.Rule{{Kind: domain.RuleMinItems, Count: 1}},
	}
	if err := c.RegisterDynamicCondition(ctx, cond); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(c.DynamicConditions()) != 1 {
		t.Fatal("expected one registered condition")
	}

	c.UnregisterDynamicCondition("perk")
	if len(c.DynamicConditions()) != 0 {
		t.Fatal("expected registration removed")
	}

	// The applied copy, if any, stays until explicitly removed.
	if _, err := c.Add(ctx, item("tee", "10", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	conds, _ := c.Conditions(ctx)
	if len(conds) != 0 {
		t.Fatalf("unregistered condition must no longer apply, got %v", conds)
	}
}
