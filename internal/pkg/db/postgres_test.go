package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"payout-ledger/internal/config"
)

func TestWrap_Defaults(t *testing.T) {
	p := Wrap(nil, config.LedgerConfig{})
	assert.Equal(t, DefaultUnitTimeout, p.unitTimeout)
	assert.Equal(t, DefaultLockTimeout, p.lockTimeout)

	p = Wrap(nil, config.LedgerConfig{UnitTimeout: time.Second, LockTimeout: 500 * time.Millisecond})
	assert.Equal(t, time.Second, p.unitTimeout)
	assert.Equal(t, 500*time.Millisecond, p.lockTimeout)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	lockErr := classify(ctx, &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	assert.ErrorIs(t, lockErr, ErrLockTimeout)

	plain := errors.New("boom")
	assert.Equal(t, plain, classify(ctx, plain))

	expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()
	assert.ErrorIs(t, classify(expired, plain), ErrUnitTimeout)
	assert.ErrorIs(t, classify(expired, plain), plain)
}
