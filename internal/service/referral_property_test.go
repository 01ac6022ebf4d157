package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"payout-ledger/internal/model"
)

func defaultRates(t testing.TB) ReferralRates {
	rates, err := ParseReferralRates([]string{"0.25", "0.02", "0.01"})
	require.NoError(t, err)
	return rates
}

func uplineOfDepth(depth int) []*model.ReferralLevel {
	upline := make([]*model.ReferralLevel, 0, depth)
	for level := 1; level <= depth; level++ {
		upline = append(upline, &model.ReferralLevel{ReferrerID: int64(100 + level), UserID: 1, Level: level})
	}
	return upline
}

func TestParseReferralRates(t *testing.T) {
	rates := defaultRates(t)
	assert.Equal(t, 3, rates.Levels())
	assert.True(t, rates[0].Equal(decimal.RequireFromString("0.25")))

	_, err := ParseReferralRates(nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseReferralRates([]string{"abc"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseReferralRates([]string{"1.5"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestComputeBonuses_Examples(t *testing.T) {
	rates := defaultRates(t)

	shares := ComputeBonuses(500, uplineOfDepth(3), rates)
	require.Len(t, shares, 3)
	assert.Equal(t, int64(125), shares[0].Amount)
	assert.Equal(t, int64(10), shares[1].Amount)
	assert.Equal(t, int64(5), shares[2].Amount)

	// floor per level: 99 * 0.02 = 1.98
	shares = ComputeBonuses(99, uplineOfDepth(3), rates)
	assert.Equal(t, int64(24), shares[0].Amount)
	assert.Equal(t, int64(1), shares[1].Amount)
	assert.Equal(t, int64(0), shares[2].Amount)

	assert.Empty(t, ComputeBonuses(500, nil, rates))
}

// TestComputeBonuses_FanOutBoundary checks that levels beyond the rate table
// never earn, whatever the up-line depth.
func TestComputeBonuses_FanOutBoundary(t *testing.T) {
	rates := defaultRates(t)

	rapid.Check(t, func(rt *rapid.T) {
		depth := rapid.IntRange(0, 8).Draw(rt, "depth")
		amount := rapid.Int64Range(1, 1_000_000_000).Draw(rt, "amount")

		shares := ComputeBonuses(amount, uplineOfDepth(depth), rates)

		want := depth
		if want > rates.Levels() {
			want = rates.Levels()
		}
		if len(shares) != want {
			rt.Fatalf("depth %d produced %d shares, want %d", depth, len(shares), want)
		}
		for _, s := range shares {
			if s.Level > rates.Levels() {
				rt.Fatalf("level %d earned a bonus", s.Level)
			}
		}
	})
}

// TestComputeBonuses_FloorNeverOverpays checks each share is the floor of
// amount*rate and the total never exceeds the exact commission.
func TestComputeBonuses_FloorNeverOverpays(t *testing.T) {
	rates := defaultRates(t)

	rapid.Check(t, func(rt *rapid.T) {
		amount := rapid.Int64Range(1, 1_000_000_000).Draw(rt, "amount")

		var total int64
		exact := decimal.Zero
		for _, s := range ComputeBonuses(amount, uplineOfDepth(3), rates) {
			product := decimal.NewFromInt(amount).Mul(s.Rate)
			if decimal.NewFromInt(s.Amount).GreaterThan(product) {
				rt.Fatalf("level %d paid %d above %s", s.Level, s.Amount, product)
			}
			if product.Sub(decimal.NewFromInt(s.Amount)).GreaterThanOrEqual(decimal.NewFromInt(1)) {
				rt.Fatalf("level %d paid %d, more than one below %s", s.Level, s.Amount, product)
			}
			total += s.Amount
			exact = exact.Add(product)
		}
		if decimal.NewFromInt(total).GreaterThan(exact) {
			rt.Fatalf("total %d above exact commission %s", total, exact)
		}
	})
}
