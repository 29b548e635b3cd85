// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/internal/poll"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Supported identity providers.
const (
	ProviderGoogle   = "google"
	ProviderApple    = "apple"
	ProviderFacebook = "facebook"
)

// DefaultProviders lists the providers enabled when none are configured.
var DefaultProviders = []string{ProviderGoogle, ProviderApple, ProviderFacebook}

// IdentityLink associates an account with one provider's account id.
type IdentityLink struct {
	ID                ulid.ULID
	AccountID         ulid.ULID
	Provider          string
	ProviderAccountID string
	CreatedAt         time.Time
}

// NewIdentityLink creates an IdentityLink with validated fields.
func NewIdentityLink(accountID ulid.ULID, provider, providerAccountID string) (*IdentityLink, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerAccountID = strings.TrimSpace(providerAccountID)
	if provider == "" || providerAccountID == "" {
		return nil, errutil.WithKind(errutil.KindValidation,
			oops.Code("LINK_INVALID").
				With("provider", provider).
				Errorf("provider and provider account id are required"))
	}
	return &IdentityLink{
		ID:                ulid.Make(),
		AccountID:         accountID,
		Provider:          provider,
		ProviderAccountID: providerAccountID,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// IdentityLinkRepository manages identity link persistence.
type IdentityLinkRepository interface {
	// Create stores a new link. Returns ErrAlreadyExists if the provider
	// account is already linked, or the account already has a link for the
	// provider.
	Create(ctx context.Context, link *IdentityLink) error

	// GetByProvider retrieves the link for a provider account.
	GetByProvider(ctx context.Context, provider, providerAccountID string) (*IdentityLink, error)

	// ListByAccount returns every link owned by an account.
	ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*IdentityLink, error)
}

// ErrProviderAlreadyLinked is returned when an account already has a
// different account at the same provider.
var ErrProviderAlreadyLinked = errutil.WithKind(errutil.KindConflict, errors.New("provider already linked to this account"))

// LinkResult is the outcome of LinkOrCreate.
type LinkResult struct {
	Account *Account
	Link    *IdentityLink
	// IsNewAccount is true when no account existed for the email.
	IsNewAccount bool
	// Linked is true when a new link was created by this call.
	Linked bool
}

// LinkRegistry records which providers are linked to which accounts.
type LinkRegistry struct {
	accounts   AccountRepository
	links      IdentityLinkRepository
	providers  []string
	visibility poll.Policy
	logger     *slog.Logger
	now        func() time.Time
}

// LinkOption configures a LinkRegistry.
type LinkOption func(*LinkRegistry)

// WithProviders sets the enabled providers.
func WithProviders(providers ...string) LinkOption {
	return func(r *LinkRegistry) {
		r.providers = r.providers[:0]
		for _, p := range providers {
			r.providers = append(r.providers, strings.ToLower(strings.TrimSpace(p)))
		}
	}
}

// WithVisibilityPolicy sets how long to wait for accounts written by an
// external identity adapter to become readable.
func WithVisibilityPolicy(p poll.Policy) LinkOption {
	return func(r *LinkRegistry) { r.visibility = p }
}

// WithLinkLogger sets the logger.
func WithLinkLogger(logger *slog.Logger) LinkOption {
	return func(r *LinkRegistry) { r.logger = logger }
}

// NewLinkRegistry creates a new LinkRegistry.
func NewLinkRegistry(accounts AccountRepository, links IdentityLinkRepository, opts ...LinkOption) *LinkRegistry {
	r := &LinkRegistry{
		accounts:   accounts,
		links:      links,
		providers:  slices.Clone(DefaultProviders),
		visibility: poll.Schedule(200*time.Millisecond, 300*time.Millisecond),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled returns the enabled providers.
func (r *LinkRegistry) Enabled() []string {
	return slices.Clone(r.providers)
}

// LinkOrCreate resolves a provider sign-in to an account.
//
// Dangerous linking: when no link exists yet but an account with the same
// email does, the provider is attached to that existing account without
// asking the user to prove ownership again, even if the account has a
// password or links to other providers. The trust placed in the provider's
// email claim buys one account per person across sign-in methods; the cost
// is that whoever controls the mailbox at the provider controls the
// account. Only providers that verify email addresses may be enabled.
//
// Otherwise a new account is created with no password and the link. Its
// onboarding step is left empty; the session issuer initializes it on the
// first mint.
func (r *LinkRegistry) LinkOrCreate(ctx context.Context, provider, providerAccountID, email string) (*LinkResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !slices.Contains(r.providers, provider) {
		return nil, errutil.WithKind(errutil.KindValidation,
			oops.Code("PROVIDER_UNKNOWN").With("provider", provider).Errorf("provider %q is not enabled", provider))
	}
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	link, err := r.links.GetByProvider(ctx, provider, providerAccountID)
	if err == nil {
		account, err := r.await(ctx, func(ctx context.Context) (*Account, error) {
			return r.accounts.GetByID(ctx, link.AccountID)
		})
		if err != nil {
			return nil, oops.With("operation", "load linked account").With("provider", provider).Wrap(err)
		}
		return &LinkResult{Account: account, Link: link}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("LINK_LOOKUP_FAILED").With("provider", provider).Wrap(err)
	}

	account, err := r.accounts.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		return r.attach(ctx, account, provider, providerAccountID, false)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("LINK_LOOKUP_FAILED").
			With("operation", "get account by email").
			With("provider", provider).
			Wrap(err)
	}

	account, err = NewAccount(normalized, "", onboarding.DefaultRole)
	if err != nil {
		return nil, err
	}
	account.OnboardingStep = ""
	verifiedAt := r.now().UTC()
	account.EmailVerifiedAt = &verifiedAt

	if err := r.accounts.Create(ctx, account); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("LINK_CREATE_ACCOUNT_FAILED").With("provider", provider).Wrap(err)
		}
		// A concurrent callback for the same email created it first.
		existing, gerr := r.accounts.GetByEmail(ctx, normalized)
		if gerr != nil {
			return nil, oops.Code("LINK_CREATE_ACCOUNT_FAILED").With("provider", provider).Wrap(gerr)
		}
		return r.attach(ctx, existing, provider, providerAccountID, false)
	}
	return r.attach(ctx, account, provider, providerAccountID, true)
}

func (r *LinkRegistry) attach(ctx context.Context, account *Account, provider, providerAccountID string, isNew bool) (*LinkResult, error) {
	link, err := NewIdentityLink(account.ID, provider, providerAccountID)
	if err != nil {
		return nil, err
	}

	if err := r.links.Create(ctx, link); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("LINK_CREATE_FAILED").
				With("provider", provider).
				With("account_id", account.ID.String()).
				Wrap(err)
		}
		existing, gerr := r.links.GetByProvider(ctx, provider, providerAccountID)
		if gerr != nil {
			// The account holds a different account at this provider.
			return nil, oops.Code("PROVIDER_ALREADY_LINKED").
				With("provider", provider).
				With("account_id", account.ID.String()).
				Wrap(ErrProviderAlreadyLinked)
		}
		if existing.AccountID != account.ID {
			owner, err := r.accounts.GetByID(ctx, existing.AccountID)
			if err != nil {
				return nil, oops.With("operation", "load linked account").Wrap(err)
			}
			return &LinkResult{Account: owner, Link: existing}, nil
		}
		return &LinkResult{Account: account, Link: existing, IsNewAccount: isNew}, nil
	}

	if !isNew {
		r.logger.Info("provider linked to existing account",
			"account_id", account.ID.String(),
			"provider", provider,
			"has_password", account.HasPassword())
		if !account.EmailVerified() {
			if err := r.accounts.MarkEmailVerified(ctx, account.ID, r.now().UTC()); err != nil {
				errutil.LogWarn(r.logger.With("account_id", account.ID.String()), "mark email verified failed", err)
			}
		}
	}
	return &LinkResult{Account: account, Link: link, IsNewAccount: isNew, Linked: true}, nil
}

// AwaitAccount reads an account by email, retrying briefly when it is not
// visible yet because an external adapter wrote it from another request.
func (r *LinkRegistry) AwaitAccount(ctx context.Context, email string) (*Account, error) {
	normalized := NormalizeEmail(email)
	account, err := r.await(ctx, func(ctx context.Context) (*Account, error) {
		return r.accounts.GetByEmail(ctx, normalized)
	})
	if err != nil {
		return nil, oops.With("email", normalized).Wrap(err)
	}
	return account, nil
}

func (r *LinkRegistry) await(ctx context.Context, get func(context.Context) (*Account, error)) (*Account, error) {
	out, err := poll.Until(ctx, r.visibility, func(ctx context.Context) (*Account, bool, error) {
		account, err := get(ctx)
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return account, true, nil
	})
	if err != nil {
		return nil, oops.Code("ACCOUNT_READ_FAILED").Wrap(err)
	}
	if out.TimedOut {
		return nil, oops.Code("ACCOUNT_NOT_VISIBLE").
			With("attempts", out.Attempts).
			Wrap(ErrNotFound)
	}
	return out.Value, nil
}

// Providers returns the providers linked to an account.
func (r *LinkRegistry) Providers(ctx context.Context, accountID ulid.ULID) ([]string, error) {
	links, err := r.links.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, oops.Code("LINK_LIST_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	providers := make([]string, 0, len(links))
	for _, l := range links {
		providers = append(providers, l.Provider)
	}
	slices.Sort(providers)
	return providers, nil
}
