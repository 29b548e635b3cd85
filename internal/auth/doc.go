// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package auth holds the identity building blocks the onboarding flows are
// assembled from.
//
// Records are built through their constructors (NewAccount, NewIdentityLink,
// NewVerificationToken), which normalize and validate input. Repositories
// assume they only ever see constructor-built values.
//
// On top of the repositories sit four services:
//   - TokenVault issues purpose-scoped verification tokens and consumes each
//     at most once.
//   - CredentialStore owns account rows, password hashes and the onboarding
//     fields written during the flows.
//   - LinkRegistry records external provider identities and resolves a
//     provider sign-in to an account.
//   - SessionIssuer mints signed session artifacts and checks them against
//     the stored account on every read.
package auth
