// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package postgres

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
)

// PointsLedger records reward points. Each (account, reason) pair is
// awarded at most once.
type PointsLedger struct {
	pool poolIface
}

// NewPointsLedger creates a new PointsLedger.
func NewPointsLedger(pool poolIface) *PointsLedger {
	return &PointsLedger{pool: pool}
}

// Award credits points for reason. Returns false if the reason was
// already awarded to the account.
func (l *PointsLedger) Award(ctx context.Context, accountID ulid.ULID, reason string, points int) (bool, error) {
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO points_ledger (id, account_id, reason, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, reason) DO NOTHING
	`, ulid.Make().String(), accountID.String(), reason, points)
	if isForeignKeyViolation(err) {
		return false, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return false, oops.Code("POINTS_AWARD_FAILED").
			With("account_id", accountID.String()).
			With("reason", reason).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Balance returns the total points awarded to an account.
func (l *PointsLedger) Balance(ctx context.Context, accountID ulid.ULID) (int, error) {
	var total int
	err := l.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(points), 0)::int FROM points_ledger WHERE account_id = $1`,
		accountID.String()).Scan(&total)
	if err != nil {
		return 0, oops.Code("POINTS_BALANCE_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return total, nil
}
