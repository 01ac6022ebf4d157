package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"payout-ledger/internal/model"
)

var payoutEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newActivePurchase(cycleDays int) *model.Purchase {
	return &model.Purchase{
		ID:           1,
		AccountID:    1,
		Amount:       500,
		DailyReturn:  13,
		CycleDays:    cycleDays,
		PurchaseDate: payoutEpoch,
		NextPayout:   payoutEpoch.Add(PayoutInterval),
		ExpiryDate:   payoutEpoch.Add(time.Duration(cycleDays) * PayoutInterval),
		Status:       model.PurchaseActive,
	}
}

// simulatePayouts applies the decision the way the engine does: credit
// advances next_payout by one interval, complete is terminal.
func simulatePayouts(p *model.Purchase, ticks []time.Time) (credits int) {
	for _, now := range ticks {
		// The due scan only selects unexpired purchases.
		if !now.Before(p.ExpiryDate) {
			p.Status = model.PurchaseCompleted
			continue
		}
		switch DecidePayout(p, now) {
		case PayoutCredit:
			credits++
			p.PayoutCount++
			p.TotalEarned += p.DailyReturn
			p.NextPayout = p.NextPayout.Add(PayoutInterval)
		case PayoutComplete:
			p.Status = model.PurchaseCompleted
		}
	}
	return credits
}

func TestDecidePayout_Examples(t *testing.T) {
	p := newActivePurchase(30)

	assert.Equal(t, PayoutSkip, DecidePayout(p, payoutEpoch.Add(23*time.Hour)))
	assert.Equal(t, PayoutCredit, DecidePayout(p, payoutEpoch.Add(24*time.Hour)))

	late := newActivePurchase(30)
	late.NextPayout = payoutEpoch.Add(29 * PayoutInterval)
	assert.Equal(t, PayoutCredit, DecidePayout(late, payoutEpoch.Add(29*PayoutInterval+time.Hour)))
	assert.Equal(t, PayoutComplete, DecidePayout(late, payoutEpoch.Add(30*PayoutInterval)))

	full := newActivePurchase(30)
	full.PayoutCount = 30
	assert.Equal(t, PayoutComplete, DecidePayout(full, payoutEpoch.Add(2*PayoutInterval)))

	cancelled := newActivePurchase(30)
	cancelled.Status = model.PurchaseCancelled
	assert.Equal(t, PayoutSkip, DecidePayout(cancelled, payoutEpoch.Add(5*PayoutInterval)))
}

// TestDecidePayout_NeverExceedsCycle checks that daily ticks at arbitrary
// times of day never credit more than cycle_days times and always end completed.
func TestDecidePayout_NeverExceedsCycle(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cycleDays := rapid.IntRange(1, 120).Draw(rt, "cycleDays")
		offset := time.Duration(rapid.Int64Range(0, int64(PayoutInterval)-1).Draw(rt, "offset"))

		p := newActivePurchase(cycleDays)
		var ticks []time.Time
		for day := 0; day <= cycleDays+2; day++ {
			ticks = append(ticks, payoutEpoch.Add(time.Duration(day)*PayoutInterval+offset))
		}

		credits := simulatePayouts(p, ticks)

		if credits > cycleDays {
			rt.Fatalf("credited %d times for a %d day cycle", credits, cycleDays)
		}
		if p.Status != model.PurchaseCompleted {
			rt.Fatalf("purchase still %s after the cycle", p.Status)
		}
		if p.TotalEarned != int64(credits)*p.DailyReturn {
			rt.Fatalf("total earned %d does not match %d credits", p.TotalEarned, credits)
		}
	})
}

// TestDecidePayout_OncePerWindow checks that repeated evaluation at the same
// instant credits at most once.
func TestDecidePayout_OncePerWindow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cycleDays := rapid.IntRange(2, 60).Draw(rt, "cycleDays")
		day := rapid.IntRange(1, cycleDays-1).Draw(rt, "day")
		repeats := rapid.IntRange(2, 10).Draw(rt, "repeats")

		p := newActivePurchase(cycleDays)
		p.NextPayout = payoutEpoch.Add(time.Duration(day) * PayoutInterval)
		now := p.NextPayout.Add(time.Minute)

		ticks := make([]time.Time, repeats)
		for i := range ticks {
			ticks[i] = now
		}

		if credits := simulatePayouts(p, ticks); credits != 1 {
			rt.Fatalf("expected exactly one credit, got %d", credits)
		}
	})
}

// TestDecidePayout_SkipsBeforeWindow checks nothing happens before next_payout.
func TestDecidePayout_SkipsBeforeWindow(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cycleDays := rapid.IntRange(1, 365).Draw(rt, "cycleDays")
		early := time.Duration(rapid.Int64Range(1, int64(PayoutInterval)).Draw(rt, "early"))

		p := newActivePurchase(cycleDays)
		if d := DecidePayout(p, p.NextPayout.Add(-early)); d != PayoutSkip {
			rt.Fatalf("expected skip before the window, got %s", d)
		}
	})
}
