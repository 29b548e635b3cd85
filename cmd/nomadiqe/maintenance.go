// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package main

import (
	"context"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/config"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

// backendOpener is replaced in tests.
var backendOpener = openBackend

// addStorageFlags registers the storage flags the maintenance commands honor.
func addStorageFlags(cmd *cobra.Command) {
	def := config.Default()
	cmd.PersistentFlags().String("storage", def.Storage.Driver, "account storage driver (memory or postgres)")
	cmd.PersistentFlags().String("token-store", def.Tokens.Store, "verification token store (memory, postgres or redis)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (prefer DATABASE_URL)")
}

// openMaintenanceBackend loads the storage settings only; session and mail
// settings are irrelevant to offline maintenance and are not validated.
func openMaintenanceBackend(ctx context.Context, cmd *cobra.Command) (*backend, error) {
	cfg, err := config.Load(config.ResolvePath(configFile, os.Getenv), cmd.Flags(), os.Getenv)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver == config.DriverMemory {
		return nil, oops.Code("CONFIG_INVALID").With("key", "storage.driver").
			Errorf("maintenance commands need persistent storage; the memory driver holds nothing between runs")
	}
	if cfg.Storage.DatabaseURL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	return backendOpener(ctx, cfg)
}

// NewTokensCmd creates the tokens subcommand.
func NewTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain verification tokens",
	}
	addStorageFlags(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired verification tokens",
		Long: `Delete every verification token whose expiry has passed. Expired
tokens are already unusable; this only reclaims storage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := openMaintenanceBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := auth.NewTokenVault(b.tokens).PurgeExpired(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Purged %d expired token(s)\n", n)
			return nil
		},
	})
	return cmd
}

// NewAccountsCmd creates the accounts subcommand.
func NewAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Administer accounts",
	}
	addStorageFlags(cmd)

	deleteCmd := &cobra.Command{
		Use:   "delete ACCOUNT_ID",
		Short: "Delete an account with its links and onboarding progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("refusing to delete %s without --yes", id)
			}
			ctx := cmd.Context()
			b, err := openMaintenanceBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.accounts.Delete(ctx, id); err != nil {
				return err
			}
			cmd.Printf("Deleted account %s\n", id)
			return nil
		},
	}
	deleteCmd.Flags().Bool("yes", false, "confirm deletion")
	cmd.AddCommand(deleteCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "reset-onboarding ACCOUNT_ID",
		Short: "Restart onboarding at the role's first step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openMaintenanceBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			creds := auth.NewCredentialStore(b.accounts, auth.NewArgon2idHasher())
			res, err := onboarding.NewService(creds, b.progress, b.profiles).Reset(ctx, id)
			if err != nil {
				return err
			}
			cmd.Printf("Account %s: role %s, status %s, step %s\n",
				id, res.Snapshot.Role, res.Snapshot.Status, res.Snapshot.Step)
			return nil
		},
	})

	orphans := &cobra.Command{
		Use:   "orphans",
		Short: "List accounts with neither a password nor a linked provider",
		Long: `List accounts that nobody can sign in to: no password and no
identity link. These are left behind when a provider sign-in fails
between creating the account and linking it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			remove, err := cmd.Flags().GetBool("delete")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openMaintenanceBackend(ctx, cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			return listOrphans(ctx, cmd, b.accounts, limit, remove)
		},
	}
	orphans.Flags().Int("limit", 100, "maximum accounts to list")
	orphans.Flags().Bool("delete", false, "delete the listed accounts")
	cmd.AddCommand(orphans)

	return cmd
}

func listOrphans(ctx context.Context, cmd *cobra.Command, accounts auth.AccountRepository, limit int, remove bool) error {
	found, err := accounts.ListOrphaned(ctx, limit)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		cmd.Println("No orphaned accounts")
		return nil
	}
	for _, a := range found {
		cmd.Printf("%s\t%s\t%s\n", a.ID, a.Email, a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
		if remove {
			if err := accounts.Delete(ctx, a.ID); err != nil {
				return oops.With("account_id", a.ID.String()).Wrap(err)
			}
		}
	}
	if remove {
		cmd.Printf("Deleted %d orphaned account(s)\n", len(found))
	}
	return nil
}

func parseAccountID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_ACCOUNT_ID").With("input", s).Wrap(err)
	}
	return id, nil
}
