// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
)

// LinkRepository implements auth.IdentityLinkRepository using PostgreSQL.
type LinkRepository struct {
	pool poolIface
}

var _ auth.IdentityLinkRepository = (*LinkRepository)(nil)

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(pool poolIface) *LinkRepository {
	return &LinkRepository{pool: pool}
}

// Create stores a new link. Either uniqueness constraint maps to
// auth.ErrAlreadyExists; a missing account maps to auth.ErrNotFound.
func (r *LinkRepository) Create(ctx context.Context, link *auth.IdentityLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identity_links (id, account_id, provider, provider_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, link.ID.String(), link.AccountID.String(), link.Provider, link.ProviderAccountID, link.CreatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return oops.Code("LINK_EXISTS").
			With("provider", link.Provider).
			With("account_id", link.AccountID.String()).
			Wrap(auth.ErrAlreadyExists)
	case isForeignKeyViolation(err):
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("account_id", link.AccountID.String()).
			Wrap(auth.ErrNotFound)
	default:
		return oops.Code("LINK_CREATE_FAILED").
			With("provider", link.Provider).
			With("account_id", link.AccountID.String()).
			Wrap(err)
	}
}

// GetByProvider retrieves the link for a provider account.
func (r *LinkRepository) GetByProvider(ctx context.Context, provider, providerAccountID string) (*auth.IdentityLink, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, provider, provider_account_id, created_at
		FROM identity_links
		WHERE provider = $1 AND provider_account_id = $2
	`, provider, providerAccountID)
	link, err := scanLink(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("LINK_NOT_FOUND").With("provider", provider).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("LINK_GET_FAILED").With("provider", provider).Wrap(err)
	}
	return link, nil
}

// ListByAccount returns an account's links, oldest first.
func (r *LinkRepository) ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*auth.IdentityLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, provider, provider_account_id, created_at
		FROM identity_links
		WHERE account_id = $1
		ORDER BY created_at
	`, accountID.String())
	if err != nil {
		return nil, oops.Code("LINK_LIST_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	defer rows.Close()

	var links []*auth.IdentityLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, oops.Code("LINK_LIST_FAILED").With("operation", "scan link").Wrap(err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("LINK_LIST_FAILED").With("operation", "iterate links").Wrap(err)
	}
	return links, nil
}

func scanLink(row pgx.Row) (*auth.IdentityLink, error) {
	var (
		l             auth.IdentityLink
		id, accountID       string
	)
	if err := row.Scan(&id, &accountID, &l.Provider, &l.ProviderAccountID, &l.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if l.ID, err = parseID(id, "link_id"); err != nil {
		return nil, err
	}
	if l.AccountID, err = parseID(accountID, "account_id"); err != nil {
		return nil, err
	}
	return &l, nil
}
