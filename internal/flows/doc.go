// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package flows composes the credential store, token vault, link registry,
// session issuer and onboarding service into the user-facing account flows.
//
// Every exported flow returns either a result or an error carrying an
// errutil.Kind. Describe turns that error into the status, code and message
// a client may see. Side effects that do not decide the outcome of a flow
// (mail, role profiles, points) are logged and swallowed.
package flows
