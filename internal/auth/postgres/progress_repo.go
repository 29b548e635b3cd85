// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

// ProgressRepository implements onboarding.ProgressRepository using PostgreSQL.
type ProgressRepository struct {
	pool poolIface
}

var _ onboarding.ProgressRepository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(pool poolIface) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// Get returns the progress for an account.
func (r *ProgressRepository) Get(ctx context.Context, accountID ulid.ULID) (*onboarding.Progress, error) {
	var (
		p           onboarding.Progress
		id          string
		steps       []string
		completedAt *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT account_id, current_step, completed_steps, started_at, completed_at, updated_at, version
		FROM onboarding_progress
		WHERE account_id = $1
	`, accountID.String()).Scan(&id, &p.CurrentStep, &steps, &p.StartedAt, &completedAt, &p.UpdatedAt, &p.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROGRESS_NOT_FOUND").
			With("account_id", accountID.String()).
			Wrap(onboarding.ErrProgressNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROGRESS_GET_FAILED").With("account_id", accountID.String()).Wrap(err)
	}

	if p.AccountID, err = parseID(id, "account_id"); err != nil {
		return nil, err
	}
	p.CompletedSteps = make([]onboarding.Step, 0, len(steps))
	for _, s := range steps {
		p.CompletedSteps = append(p.CompletedSteps, onboarding.Step(s))
	}
	p.CompletedAt = completedAt
	return &p, nil
}

// CreateIfAbsent inserts p unless the account already has progress.
func (r *ProgressRepository) CreateIfAbsent(ctx context.Context, p *onboarding.Progress) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO onboarding_progress (
			account_id, current_step, completed_steps, started_at, completed_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO NOTHING
	`, p.AccountID.String(), string(p.CurrentStep), stepStrings(p.CompletedSteps),
		p.StartedAt, p.CompletedAt, p.UpdatedAt, p.Version)
	if isForeignKeyViolation(err) {
		return false, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", p.AccountID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return false, oops.Code("PROGRESS_CREATE_FAILED").With("account_id", p.AccountID.String()).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Save writes p when the stored version still equals p.Version.
func (r *ProgressRepository) Save(ctx context.Context, p *onboarding.Progress) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE onboarding_progress
		SET current_step = $2,
		    completed_steps = $3,
		    completed_at = $4,
		    updated_at = $5,
		    version = version + 1
		WHERE account_id = $1 AND version = $6
	`, p.AccountID.String(), string(p.CurrentStep), stepStrings(p.CompletedSteps),
		p.CompletedAt, p.UpdatedAt, p.Version)
	if err != nil {
		return oops.Code("PROGRESS_SAVE_FAILED").With("account_id", p.AccountID.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("PROGRESS_STALE").
			With("account_id", p.AccountID.String()).
			With("version", p.Version).
			Wrap(onboarding.ErrStaleProgress)
	}
	p.Version++
	return nil
}

func stepStrings(steps []onboarding.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return out
}
