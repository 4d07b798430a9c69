package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cartengine/internal/domain"
	voucherrepo "cartengine/internal/repository/voucher"
)

// Apply inserts basic voucher seed data for manual testing. It is idempotent:
// re-running updates the definitions without resetting usage counters.
func Apply(ctx context.Context, repo voucherrepo.Repository) error {
	now := time.Now().UTC()
	nextMonth := now.AddDate(0, 1, 0)

	vouchers := []domain.Voucher{
		{
			Code:        "WELCOME10",
			Description: "10% off for new customers",
			Value:       "-10%",
			ExpiresAt:   &nextMonth,
			UsageLimit:  0,
			MinSubtotal: decimal.Zero,
		},
		{
			Code:        "SAVE5",
			Description: "5 off orders over 50",
			Value:       "-5",
			UsageLimit:  100,
			MinSubtotal: decimal.NewFromInt(50),
		},
		{
			Code:        "FREESHIP",
			Description: "Rebates the flat shipping charge",
			Value:       "-4.99",
			UsageLimit:  0,
			MinSubtotal: decimal.Zero,
		},
	}

	for _, v := range vouchers {
		if err := repo.Upsert(ctx, v); err != nil {
			return fmt.Errorf("upsert voucher %s: %w", v.Code, err)
		}
	}

	return nil
}
