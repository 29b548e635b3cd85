// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package onboarding defines the per-role onboarding paths and the rules
// that move an account from its first step to completion.
//
// # Domain Types
//
//   - [Role], [Status], [Step]: the account's onboarding vocabulary
//   - [Progress]: the durable record of completed steps for one account
//   - [Snapshot], [Update]: the account-level onboarding fields
//
// # Rules
//
// [Advance] and [ChangeRole] are pure functions over a [Progress]. They
// enforce forward-only transitions, idempotent completion, and the one-way
// terminal state.
//
// # Services
//
//   - [Service]: persists transitions through an [AccountStore] and a
//     [ProgressRepository], creating role profiles as a side effect
package onboarding
