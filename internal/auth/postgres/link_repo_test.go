// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/internal/auth"
)

var linkRowColumns = []string{"id", "account_id", "provider", "provider_account_id", "created_at"}

func TestLinkRepository_Create(t *testing.T) {
	link, err := auth.NewIdentityLink(ulid.Make(), auth.ProviderGoogle, "g-1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "stores link"},
		{name: "already linked", err: uniqueViolation(), wantErr: auth.ErrAlreadyExists},
		{name: "account missing", err: foreignKeyViolation(), wantErr: auth.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`INSERT INTO identity_links`).
				WithArgs(link.ID.String(), link.AccountID.String(), "google", "g-1", link.CreatedAt)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := NewLinkRepository(mock).Create(context.Background(), link)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestLinkRepository_GetByProvider(t *testing.T) {
	id, accountID := ulid.Make(), ulid.Make()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM identity_links\s+WHERE provider = \$1 AND provider_account_id = \$2`).
			WithArgs("apple", "a-1").
			WillReturnRows(pgxmock.NewRows(linkRowColumns).AddRow(id.String(), accountID.String(), "apple", "a-1", now))

		got, err := NewLinkRepository(mock).GetByProvider(context.Background(), "apple", "a-1")
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, accountID, got.AccountID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM identity_links`).
			WithArgs("apple", "a-1").
			WillReturnRows(pgxmock.NewRows(linkRowColumns))

		_, err := NewLinkRepository(mock).GetByProvider(context.Background(), "apple", "a-1")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM identity_links`).
			WithArgs("apple", "a-1").
			WillReturnRows(pgxmock.NewRows(linkRowColumns).AddRow("nope", accountID.String(), "apple", "a-1", now))

		_, err := NewLinkRepository(mock).GetByProvider(context.Background(), "apple", "a-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestLinkRepository_ListByAccount(t *testing.T) {
	accountID := ulid.Make()
	now := time.Now().UTC()
	mock := newMock(t)
	mock.ExpectQuery(`FROM identity_links\s+WHERE account_id = \$1\s+ORDER BY created_at`).
		WithArgs(accountID.String()).
		WillReturnRows(pgxmock.NewRows(linkRowColumns).
			AddRow(ulid.Make().String(), accountID.String(), "google", "g-1", now).
			AddRow(ulid.Make().String(), accountID.String(), "apple", "a-1", now.Add(time.Second)))

	links, err := NewLinkRepository(mock).ListByAccount(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "google", links[0].Provider)
	assert.Equal(t, "apple", links[1].Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}
