// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/auth/postgres"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

func newAccount(email string) *auth.Account {
	account, err := auth.NewAccount(email, "hash", onboarding.RoleTraveler)
	Expect(err).NotTo(HaveOccurred())
	Expect(postgres.NewAccountRepository(pool).Create(context.Background(), account)).To(Succeed())
	return account
}

var _ = Describe("TokenRepository", func() {
	var (
		ctx   context.Context
		vault *auth.TokenVault
	)

	BeforeEach(func() {
		ctx = context.Background()
		vault = auth.NewTokenVault(postgres.NewTokenRepository(pool))
	})

	It("lets exactly one concurrent validation succeed", func() {
		issued, err := vault.Issue(ctx, auth.PurposePasswordReset, "race@example.com", 0)
		Expect(err).NotTo(HaveOccurred())

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 12 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if vault.Validate(ctx, auth.PurposePasswordReset, issued.Email, issued.Secret) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		Expect(wins.Load()).To(BeEquivalentTo(1))
	})

	It("keeps a single outstanding token under concurrent reissue", func() {
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := vault.Issue(ctx, auth.PurposeEmailVerification, "many@example.com", 0)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		var n int
		err := pool.QueryRow(ctx, `SELECT count(*) FROM verification_tokens WHERE identifier = $1`,
			auth.Identifier(auth.PurposeEmailVerification, "many@example.com")).Scan(&n)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("purges only expired tokens", func() {
		_, err := vault.Issue(ctx, auth.PurposeAddPassword, "old@example.com", time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		_, err = vault.Issue(ctx, auth.PurposeAddPassword, "new@example.com", time.Hour)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() (int64, error) {
			return vault.PurgeExpired(ctx)
		}).WithTimeout(2 * time.Second).Should(BeEquivalentTo(1))
	})
})

var _ = Describe("AccountRepository", func() {
	var (
		ctx      context.Context
		accounts *postgres.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		accounts = postgres.NewAccountRepository(pool)
	})

	It("rejects a duplicate email", func() {
		newAccount("dup@example.com")
		again, err := auth.NewAccount("dup@example.com", "", onboarding.RoleTraveler)
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts.Create(ctx, again)).To(MatchError(auth.ErrAlreadyExists))
	})

	It("sets a password only once", func() {
		account, err := auth.NewAccount("nopass@example.com", "", onboarding.RoleTraveler)
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts.Create(ctx, account)).To(Succeed())

		set, err := accounts.SetPasswordIfAbsent(ctx, account.ID, "first")
		Expect(err).NotTo(HaveOccurred())
		Expect(set).To(BeTrue())

		set, err = accounts.SetPasswordIfAbsent(ctx, account.ID, "second")
		Expect(err).NotTo(HaveOccurred())
		Expect(set).To(BeFalse())

		stored, err := accounts.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.PasswordHash).To(Equal("first"))
	})

	It("never moves a completed account backwards without override", func() {
		account := newAccount("done@example.com")
		completed := onboarding.StatusCompleted
		empty := onboarding.Step("")
		applied, err := accounts.UpdateOnboarding(ctx, account.ID, onboarding.Update{Status: &completed, Step: &empty})
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeTrue())

		pending := onboarding.StatusPending
		welcome := onboarding.StepWelcome
		applied, err = accounts.UpdateOnboarding(ctx, account.ID, onboarding.Update{Status: &pending, Step: &welcome})
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeFalse())

		stored, err := accounts.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.OnboardingStatus).To(Equal(onboarding.StatusCompleted))
		Expect(stored.OnboardingStep).To(BeEmpty())

		applied, err = accounts.UpdateOnboarding(ctx, account.ID,
			onboarding.Update{Status: &pending, Step: &welcome, Override: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeTrue())
	})

	It("counts every concurrent failed login", func() {
		account := newAccount("guessed@example.com")
		until := time.Now().Add(auth.LockoutDuration).UTC().Truncate(time.Microsecond)

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, _, err := accounts.RecordFailedLogin(ctx, account.ID, auth.LockoutThreshold, until)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		stored, err := accounts.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FailedAttempts).To(Equal(20))
		Expect(stored.LockedUntil).NotTo(BeNil())
		Expect(stored.LockedUntil.Equal(until)).To(BeTrue())

		Expect(accounts.RecordSuccessfulLogin(ctx, account.ID, "")).To(Succeed())
		stored, err = accounts.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FailedAttempts).To(BeZero())
		Expect(stored.LockedUntil).To(BeNil())
		Expect(stored.PasswordHash).To(Equal("hash"))
	})

	It("refuses an account write derived from older progress", func() {
		account := newAccount("behind@example.com")
		progress := postgres.NewProgressRepository(pool)
		Expect(progress.CreateIfAbsent(ctx,
			onboarding.NewProgress(account.ID, account.Role, time.Now().UTC()))).To(BeTrue())
		p, err := progress.Get(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		p.CompletedSteps = append(p.CompletedSteps, onboarding.StepWelcome)
		Expect(progress.Save(ctx, p)).To(Succeed())
		Expect(progress.Save(ctx, p)).To(Succeed())

		inProgress := onboarding.StatusInProgress
		step := onboarding.StepProfileSetup
		_, err = accounts.UpdateOnboarding(ctx, account.ID,
			onboarding.Update{Status: &inProgress, Step: &step, ProgressVersion: 1})
		Expect(err).To(MatchError(onboarding.ErrSuperseded))

		applied, err := accounts.UpdateOnboarding(ctx, account.ID,
			onboarding.Update{Status: &inProgress, Step: &step, ProgressVersion: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeTrue())
	})

	It("cascades deletes to links and progress", func() {
		account := newAccount("gone@example.com")
		links := postgres.NewLinkRepository(pool)
		link, err := auth.NewIdentityLink(account.ID, auth.ProviderGoogle, "g-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(links.Create(ctx, link)).To(Succeed())
		_, err = postgres.NewProgressRepository(pool).CreateIfAbsent(ctx,
			onboarding.NewProgress(account.ID, account.Role, time.Now().UTC()))
		Expect(err).NotTo(HaveOccurred())

		Expect(accounts.Delete(ctx, account.ID)).To(Succeed())

		_, err = links.GetByProvider(ctx, auth.ProviderGoogle, "g-1")
		Expect(err).To(MatchError(auth.ErrNotFound))
		_, err = postgres.NewProgressRepository(pool).Get(ctx, account.ID)
		Expect(err).To(MatchError(onboarding.ErrProgressNotFound))
	})

	It("lists accounts with neither password nor link", func() {
		newAccount("haspass@example.com")
		orphan, err := auth.NewAccount("orphan@example.com", "", onboarding.RoleTraveler)
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts.Create(ctx, orphan)).To(Succeed())

		orphans, err := accounts.ListOrphaned(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(orphans).To(HaveLen(1))
		Expect(orphans[0].ID).To(Equal(orphan.ID))
	})
})

var _ = Describe("LinkRepository", func() {
	It("enforces one link per provider account and per account provider", func() {
		ctx := context.Background()
		links := postgres.NewLinkRepository(pool)
		a := newAccount("a@example.com")
		b := newAccount("b@example.com")

		first, err := auth.NewIdentityLink(a.ID, auth.ProviderApple, "apple-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(links.Create(ctx, first)).To(Succeed())

		stolen, err := auth.NewIdentityLink(b.ID, auth.ProviderApple, "apple-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(links.Create(ctx, stolen)).To(MatchError(auth.ErrAlreadyExists))

		second, err := auth.NewIdentityLink(a.ID, auth.ProviderApple, "apple-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(links.Create(ctx, second)).To(MatchError(auth.ErrAlreadyExists))
	})
})

var _ = Describe("ProgressRepository", func() {
	It("rejects a save against a stale version", func() {
		ctx := context.Background()
		progress := postgres.NewProgressRepository(pool)
		account := newAccount("progress@example.com")
		Expect(progress.CreateIfAbsent(ctx,
			onboarding.NewProgress(account.ID, account.Role, time.Now().UTC()))).To(BeTrue())

		p1, err := progress.Get(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		p2, err := progress.Get(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())

		p1.CompletedSteps = append(p1.CompletedSteps, onboarding.StepWelcome)
		Expect(progress.Save(ctx, p1)).To(Succeed())

		p2.CompletedSteps = append(p2.CompletedSteps, onboarding.StepRoleSelection)
		Expect(progress.Save(ctx, p2)).To(MatchError(onboarding.ErrStaleProgress))
	})
})

var _ = Describe("ProfileRepository", func() {
	It("creates a host profile once with a referral code", func() {
		ctx := context.Background()
		profiles := postgres.NewProfileRepository(pool)
		account := newAccount("host@example.com")

		Expect(profiles.EnsureProfile(ctx, account.ID, onboarding.RoleHost)).To(BeTrue())
		Expect(profiles.EnsureProfile(ctx, account.ID, onboarding.RoleHost)).To(BeFalse())

		var code string
		Expect(pool.QueryRow(ctx, `SELECT referral_code FROM host_profiles WHERE account_id = $1`,
			account.ID.String()).Scan(&code)).To(Succeed())
		Expect(code).To(HavePrefix("HOST_"))
	})

	It("keeps usernames unique across accounts", func() {
		ctx := context.Background()
		profiles := postgres.NewProfileRepository(pool)
		ada := newAccount("ada@example.com")
		bob := newAccount("bob@example.com")

		Expect(profiles.SaveDetails(ctx, ada.ID, onboarding.ProfileDetails{FullName: "Ada L", Username: "ada"})).To(Succeed())
		Expect(profiles.SaveDetails(ctx, ada.ID, onboarding.ProfileDetails{FullName: "Ada Lovelace", Username: "ada"})).To(Succeed())
		Expect(profiles.SaveDetails(ctx, bob.ID, onboarding.ProfileDetails{FullName: "Bob", Username: "ada"})).
			To(MatchError(onboarding.ErrUsernameTaken))

		var name string
		Expect(pool.QueryRow(ctx, `SELECT full_name FROM profile_details WHERE account_id = $1`,
			ada.ID.String()).Scan(&name)).To(Succeed())
		Expect(name).To(Equal("Ada Lovelace"))
	})

	It("replaces traveler interests", func() {
		ctx := context.Background()
		profiles := postgres.NewProfileRepository(pool)
		account := newAccount("interests@example.com")

		Expect(profiles.SaveInterests(ctx, account.ID, []string{"hiking", "food"})).To(Succeed())
		Expect(profiles.SaveInterests(ctx, account.ID, []string{"surf"})).To(Succeed())

		var interests []string
		Expect(pool.QueryRow(ctx, `SELECT interests FROM traveler_profiles WHERE account_id = $1`,
			account.ID.String()).Scan(&interests)).To(Succeed())
		Expect(interests).To(Equal([]string{"surf"}))
	})

	It("awards ledger points once per reason", func() {
		ctx := context.Background()
		ledger := postgres.NewPointsLedger(pool)
		account := newAccount("points@example.com")

		Expect(ledger.Award(ctx, account.ID, "onboarding-complete", 100)).To(BeTrue())
		Expect(ledger.Award(ctx, account.ID, "onboarding-complete", 100)).To(BeFalse())
		Expect(ledger.Balance(ctx, account.ID)).To(Equal(100))
	})
})
