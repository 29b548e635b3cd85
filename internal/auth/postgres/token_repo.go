// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
)

// TokenRepository implements auth.VerificationTokenRepository using PostgreSQL.
type TokenRepository struct {
	pool poolIface
}

var _ auth.VerificationTokenRepository = (*TokenRepository)(nil)

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool poolIface) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Replace deletes the identifier's tokens and inserts token in one
// transaction. A transaction-scoped advisory lock on the identifier
// serializes concurrent issuers so at most one token survives.
func (r *TokenRepository) Replace(ctx context.Context, token *auth.VerificationToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TOKEN_REPLACE_FAILED").With("operation", "begin").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, token.Identifier); err != nil {
		return oops.Code("TOKEN_REPLACE_FAILED").With("operation", "lock identifier").Wrap(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM verification_tokens WHERE identifier = $1`, token.Identifier); err != nil {
		return oops.Code("TOKEN_REPLACE_FAILED").With("operation", "delete previous").Wrap(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO verification_tokens (identifier, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, token.Identifier, token.TokenHash, token.ExpiresAt, token.CreatedAt); err != nil {
		return oops.Code("TOKEN_REPLACE_FAILED").With("operation", "insert token").Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TOKEN_REPLACE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// Consume deletes and returns the matching token. The conditional delete
// is the single point of truth: only one concurrent caller gets a row.
func (r *TokenRepository) Consume(ctx context.Context, identifier, tokenHash string) (*auth.VerificationToken, error) {
	var t auth.VerificationToken
	err := r.pool.QueryRow(ctx, `
		DELETE FROM verification_tokens
		WHERE identifier = $1 AND token_hash = $2
		RETURNING identifier, token_hash, expires_at, created_at
	`, identifier, tokenHash).Scan(&t.Identifier, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_ROW_NOT_FOUND").With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").With("identifier", identifier).Wrap(err)
	}
	return &t, nil
}

// DeleteByIdentifier removes every token with the identifier.
func (r *TokenRepository) DeleteByIdentifier(ctx context.Context, identifier string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE identifier = $1`, identifier); err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").With("identifier", identifier).Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens that expired before the given time.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM verification_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("TOKEN_PURGE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
