package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"payout-ledger/internal/config"
	"payout-ledger/internal/service"
)

type fakeRunner struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRunner) Run(_ context.Context, now time.Time) (*service.PayoutReport, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &service.PayoutReport{RunID: "test", StartedAt: now}, nil
}

func luanda(t testing.TB) *time.Location {
	loc, err := time.LoadLocation("Africa/Luanda")
	require.NoError(t, err)
	return loc
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, h)
	assert.Equal(t, 0, m)

	h, m, err = ParseClock("23:45")
	require.NoError(t, err)
	assert.Equal(t, 23, h)
	assert.Equal(t, 45, m)

	_, _, err = ParseClock("24:00")
	assert.Error(t, err)
	_, _, err = ParseClock("noon")
	assert.Error(t, err)
}

func TestNextRun_Examples(t *testing.T) {
	loc := luanda(t)

	// 22:30 UTC is 23:30 in Luanda (UTC+1).
	now := time.Date(2026, 5, 10, 22, 30, 0, 0, time.UTC)
	next := NextRun(now, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, loc), next)

	// Exactly at the tick schedules the following day.
	at := time.Date(2026, 5, 11, 0, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 5, 12, 0, 0, 0, 0, loc), NextRun(at, 0, 0, loc))

	assert.Equal(t, time.Date(2026, 5, 11, 6, 15, 0, 0, loc), NextRun(at, 6, 15, loc))
}

func TestNextRun_Properties(t *testing.T) {
	loc := luanda(t)

	rapid.Check(t, func(rt *rapid.T) {
		now := time.Unix(rapid.Int64Range(0, 4_000_000_000).Draw(rt, "unix"), 0)
		hour := rapid.IntRange(0, 23).Draw(rt, "hour")
		minute := rapid.IntRange(0, 59).Draw(rt, "minute")

		next := NextRun(now, hour, minute, loc)

		if !next.After(now) {
			rt.Fatalf("next run %s not after %s", next, now)
		}
		if next.Sub(now) > 24*time.Hour {
			rt.Fatalf("next run %s more than a day after %s", next, now)
		}
		local := next.In(loc)
		if local.Hour() != hour || local.Minute() != minute || local.Second() != 0 {
			rt.Fatalf("next run %s not at %02d:%02d", local, hour, minute)
		}
	})
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(&fakeRunner{}, config.SchedulerConfig{Time: "25:00", Timezone: "UTC"})
	assert.Error(t, err)

	_, err = New(&fakeRunner{}, config.SchedulerConfig{Time: "00:00", Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestTrigger(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(runner, config.SchedulerConfig{Time: "00:00", Timezone: "Africa/Luanda"})
	require.NoError(t, err)

	report, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", report.RunID)
	assert.Equal(t, int32(1), runner.calls.Load())

	runner.err = errors.New("store down")
	_, err = s.Trigger(context.Background())
	assert.ErrorIs(t, err, runner.err)
}

func TestStart_FiresAtTickAndStops(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(runner, config.SchedulerConfig{Time: "00:00", Timezone: "UTC"})
	require.NoError(t, err)

	// Pretend it is one millisecond before midnight for the first wait only.
	var first atomic.Bool
	s.now = func() time.Time {
		if first.CompareAndSwap(false, true) {
			return time.Date(2026, 1, 1, 23, 59, 59, 999_000_000, time.UTC)
		}
		return time.Date(2026, 1, 2, 0, 0, 1, 0, time.UTC)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
