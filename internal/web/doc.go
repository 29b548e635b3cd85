// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package web serves the account flows as a JSON API.
//
// Successful responses are plain JSON objects. Failures use the envelope
// {"error":{"code":"...","message":"..."}} with the status chosen by
// flows.Describe. Sessions travel in the nomadiqe_session cookie or an
// Authorization: Bearer header.
package web
