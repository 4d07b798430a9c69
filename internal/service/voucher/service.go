package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cartengine/internal/cart"
	"cartengine/internal/domain"
	voucherrepo "cartengine/internal/repository/voucher"
)

// Rejection reasons surfaced to callers as typed errors.
var (
	ErrInvalidCode    = errors.New("invalid voucher code")
	ErrNotYetActive   = errors.New("voucher not yet active")
	ErrExpired        = errors.New("voucher expired")
	ErrUsageLimit     = errors.New("voucher usage limit reached")
	ErrBelowMinimum   = errors.New("cart subtotal below voucher minimum")
	ErrAlreadyApplied = errors.New("voucher already applied")
)

// Condition order for voucher discounts; taxes and fees configured with
// higher orders apply after the discount.
const conditionOrder = 50

// Service validates voucher codes against cart state and attaches accepted
// ones as cart-level conditions. One-way dependency: this service reads the
// cart, the cart engine knows nothing about vouchers.
type Service struct {
	repo voucherrepo.Repository
	now  func() time.Time
}

func New(repo voucherrepo.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ConditionName is the cart condition name for a voucher code.
func ConditionName(code string) string {
	return "voucher:" + code
}

// Apply validates the code and attaches the resulting discount condition.
func (s *Service) Apply(ctx context.Context, c *cart.Cart, code string) (domain.CartCondition, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.CartCondition{}, ErrInvalidCode
	}

	v, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CartCondition{}, ErrInvalidCode
		}
		return domain.CartCondition{}, fmt.Errorf("look up voucher: %w", err)
	}

	now := s.now()
	if v.StartsAt != nil && now.Before(*v.StartsAt) {
		return domain.CartCondition{}, ErrNotYetActive
	}
	if !v.Active(now) {
		return domain.CartCondition{}, ErrExpired
	}
	if v.Exhausted() {
		return domain.CartCondition{}, ErrUsageLimit
	}

	conditions, err := c.Conditions(ctx)
	if err != nil {
		return domain.CartCondition{}, err
	}
	for _, existing := range conditions {
		if existing.Name == ConditionName(code) {
			return domain.CartCondition{}, ErrAlreadyApplied
		}
	}

	subtotal, err := c.Subtotal(ctx)
	if err != nil {
		return domain.CartCondition{}, err
	}
	if subtotal.Amount.LessThan(v.MinSubtotal) {
		return domain.CartCondition{}, ErrBelowMinimum
	}

	cond, err := domain.NewCondition(domain.CartCondition{
		Name:   ConditionName(code),
		Type:   "voucher",
		Target: domain.TargetSubtotal,
		Value:  v.Value,
		Order:  conditionOrder,
		Attributes: map[string]interface{}{
			"code":        v.Code,
			"description": v.Description,
		},
	})
	if err != nil {
		return domain.CartCondition{}, fmt.Errorf("voucher %s has a malformed value: %w", code, err)
	}

	if err := c.AddCondition(ctx, cond); err != nil {
		return domain.CartCondition{}, err
	}
	if err := s.repo.IncrementUsage(ctx, code); err != nil {
		return domain.CartCondition{}, fmt.Errorf("record voucher usage: %w", err)
	}
	return cond, nil
}

// Release detaches a previously applied voucher condition from the cart.
func (s *Service) Release(ctx context.Context, c *cart.Cart, code string) error {
	return c.RemoveCondition(ctx, ConditionName(strings.TrimSpace(code)))
}
