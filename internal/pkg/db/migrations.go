package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "accounts table",
		sql: `
		CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			balance BIGINT NOT NULL DEFAULT 0,
			referral_code VARCHAR(32) NOT NULL UNIQUE,
			invited_by BIGINT REFERENCES accounts(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_invited_by ON accounts(invited_by);
		`,
	},
	{
		name: "purchases table",
		sql: `
		CREATE TABLE IF NOT EXISTS purchases (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			product_id VARCHAR(64) NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			amount BIGINT NOT NULL,
			daily_return BIGINT NOT NULL,
			cycle_days INT NOT NULL,
			purchase_date TIMESTAMPTZ NOT NULL,
			next_payout TIMESTAMPTZ NOT NULL,
			expiry_date TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			total_earned BIGINT NOT NULL DEFAULT 0,
			payout_count INT NOT NULL DEFAULT 0,
			last_payout TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_purchases_due ON purchases(status, next_payout);
		CREATE INDEX IF NOT EXISTS idx_purchases_account ON purchases(account_id);
		`,
	},
	{
		name: "transactions table",
		sql: `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			type VARCHAR(50) NOT NULL,
			amount BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_account_time ON transactions(account_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
		`,
	},
	{
		name: "referral tables",
		sql: `
		CREATE TABLE IF NOT EXISTS referral_levels (
			id BIGSERIAL PRIMARY KEY,
			referrer_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			level INT NOT NULL CHECK (level BETWEEN 1 AND 3),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, level)
		);
		CREATE INDEX IF NOT EXISTS idx_referral_levels_referrer ON referral_levels(referrer_id, level);

		CREATE TABLE IF NOT EXISTS referral_bonuses (
			id BIGSERIAL PRIMARY KEY,
			referrer_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			referred_id BIGINT REFERENCES accounts(id) ON DELETE SET NULL,
			purchase_id BIGINT REFERENCES purchases(id) ON DELETE SET NULL,
			level INT NOT NULL,
			purchase_amount BIGINT NOT NULL,
			bonus_amount BIGINT NOT NULL,
			percentage NUMERIC(6,4) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_referral_bonuses_referrer ON referral_bonuses(referrer_id, created_at DESC);
		`,
	},
	{
		name: "system_logs table",
		sql: `
		CREATE TABLE IF NOT EXISTS system_logs (
			id BIGSERIAL PRIMARY KEY,
			action VARCHAR(64) NOT NULL,
			description TEXT NOT NULL,
			account_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_system_logs_action_time ON system_logs(action, created_at DESC);
		`,
	},
	{
		name: "deposit and withdrawal tables",
		sql: `
		CREATE TABLE IF NOT EXISTS deposits (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL CHECK (amount > 0),
			reference VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status, created_at);

		CREATE TABLE IF NOT EXISTS withdrawals (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL CHECK (amount > 0),
			destination VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status, created_at);
		`,
	},
	{
		name: "referral bonuses outlive the purchaser",
		sql: `
		ALTER TABLE referral_bonuses ALTER COLUMN referred_id DROP NOT NULL;
		ALTER TABLE referral_bonuses DROP CONSTRAINT IF EXISTS referral_bonuses_referred_id_fkey;
		ALTER TABLE referral_bonuses ADD CONSTRAINT referral_bonuses_referred_id_fkey
			FOREIGN KEY (referred_id) REFERENCES accounts(id) ON DELETE SET NULL;
		`,
	},
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, q Querier) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := q.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("migration", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
