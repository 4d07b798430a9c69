package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is an admin-issued discount code. Its Value uses the condition
// value grammar ("-10%", "-5.00"), so an accepted voucher becomes a plain
// cart-level condition.
type Voucher struct {
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Value       string          `json:"value"`
	StartsAt    *time.Time      `json:"startsAt,omitempty"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
	UsageLimit  int             `json:"usageLimit"`
	Used        int             `json:"used"`
	MinSubtotal decimal.Decimal `json:"minSubtotal"`
}

// Active reports whether the voucher is inside its validity window at t.
func (v Voucher) Active(t time.Time) bool {
	if v.StartsAt != nil && t.Before(*v.StartsAt) {
		return false
	}
	if v.ExpiresAt != nil && t.After(*v.ExpiresAt) {
		return false
	}
	return true
}

// Exhausted reports whether the usage limit has been reached. A zero limit
// means unlimited.
func (v Voucher) Exhausted() bool {
	return v.UsageLimit > 0 && v.Used >= v.UsageLimit
}
