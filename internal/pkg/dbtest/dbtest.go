// Package dbtest starts a disposable PostgreSQL for integration tests.
package dbtest

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"payout-ledger/internal/config"
	"payout-ledger/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// Setup creates a migrated PostgreSQL container and returns a pool on it.
// Skips the test if Docker is not available.
func Setup(t *testing.T) (*db.Pool, func()) {
	t.Helper()

	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	raw, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	pool := db.Wrap(raw, config.LedgerConfig{
		UnitTimeout: 10 * time.Second,
		LockTimeout: 2 * time.Second,
	})

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// CreateAccount inserts an account with balance credited through a raw
// ledger entry, so balance and history stay consistent for fixtures.
func CreateAccount(t *testing.T, pool *db.Pool, username string, balance int64, invitedBy *int64) int64 {
	t.Helper()
	ctx := context.Background()

	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO accounts (username, balance, referral_code, invited_by)
		VALUES ($1, $2, upper(substr(md5($1), 1, 8)), $3)
		RETURNING id
	`, username, balance, invitedBy).Scan(&id)
	require.NoError(t, err)

	if balance != 0 {
		_, err = pool.Exec(ctx, `
			INSERT INTO transactions (account_id, type, amount, balance_after, description)
			VALUES ($1, 'deposit', $2, $2, 'fixture')
		`, id, balance)
		require.NoError(t, err)
	}

	return id
}
