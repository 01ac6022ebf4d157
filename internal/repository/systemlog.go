package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
)

// SystemLogRepository handles the operational audit trail.
type SystemLogRepository struct {
	q db.Querier
}

// NewSystemLogRepository creates a new SystemLogRepository instance.
func NewSystemLogRepository(q db.Querier) *SystemLogRepository {
	return &SystemLogRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SystemLogRepository) WithTx(tx pgx.Tx) *SystemLogRepository {
	return &SystemLogRepository{q: tx}
}

// Create appends an audit entry. accountID may be nil for system-wide events.
func (r *SystemLogRepository) Create(ctx context.Context, action, description string, accountID *int64) error {
	const query = `
		INSERT INTO system_logs (action, description, account_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := r.q.Exec(ctx, query, action, description, accountID); err != nil {
		return fmt.Errorf("failed to create system log: %w", err)
	}
	return nil
}

// GetByAction retrieves entries with the given action, newest first.
func (r *SystemLogRepository) GetByAction(ctx context.Context, action string, limit int) ([]*model.SystemLog, error) {
	const query = `
		SELECT id, action, description, account_id, created_at
		FROM system_logs
		WHERE action = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get system logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.SystemLog
	for rows.Next() {
		var l model.SystemLog
		if err := rows.Scan(&l.ID, &l.Action, &l.Description, &l.AccountID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan system log: %w", err)
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating system logs: %w", err)
	}

	return logs, nil
}
