// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/internal/store"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

type fakeMigrator struct {
	upErr    error
	steps    []int
	forced   []int
	status   store.Status
	closed   bool
	upCalled bool
}

func (f *fakeMigrator) Up() error {
	f.upCalled = true
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Force(version int) error {
	f.forced = append(f.forced, version)
	return nil
}

func (f *fakeMigrator) Status() (store.Status, error) { return f.status, nil }

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

// useFakeMigrator swaps newMigrator for the test and records the URL it was given.
func useFakeMigrator(t *testing.T, f *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	old := newMigrator
	newMigrator = func(databaseURL string) (migrator, error) {
		gotURL = databaseURL
		return f, nil
	}
	t.Cleanup(func() { newMigrator = old })
	return &gotURL
}

func runMigrateCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configFile = ""
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"migrate"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "float stops at the dot", input: "1.5", wantVersion: 1},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "negative parses", input: "-1", wantVersion: -1},
		{name: "empty string returns error", input: "", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only returns error", input: "   ", wantErr: true, wantErrCode: "INVALID_VERSION"},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantVersion, version)
			}
		})
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	f := &fakeMigrator{}
	useFakeMigrator(t, f)

	_, err := runMigrateCmd(t, "up")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	assert.False(t, f.upCalled)
}

func TestMigrate_Up(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/nomadiqe")
	f := &fakeMigrator{}
	gotURL := useFakeMigrator(t, f)

	out, err := runMigrateCmd(t, "up")

	require.NoError(t, err)
	assert.True(t, f.upCalled)
	assert.True(t, f.closed)
	assert.Equal(t, "postgres://localhost:5432/nomadiqe", *gotURL)
	assert.Contains(t, out, "Migrations completed successfully")
}

func TestMigrate_EnvOverridesDatabaseURLFlag(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	f := &fakeMigrator{}
	gotURL := useFakeMigrator(t, f)

	_, err := runMigrateCmd(t, "up", "--database-url", "postgres://flag/db")

	require.NoError(t, err)
	// The environment is applied last.
	assert.Equal(t, "postgres://env/db", *gotURL)
}

func TestMigrate_UpError(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	f := &fakeMigrator{upErr: errors.New("boom")}
	useFakeMigrator(t, f)

	_, err := runMigrateCmd(t, "up")

	require.Error(t, err)
	assert.True(t, f.closed, "migrator must be closed on failure")
}

func TestMigrate_Down(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")

	t.Run("defaults to one step", func(t *testing.T) {
		f := &fakeMigrator{}
		useFakeMigrator(t, f)

		out, err := runMigrateCmd(t, "down")

		require.NoError(t, err)
		assert.Equal(t, []int{-1}, f.steps)
		assert.Contains(t, out, "Rolled back 1 migration(s)")
	})

	t.Run("rejects non-positive steps", func(t *testing.T) {
		f := &fakeMigrator{}
		useFakeMigrator(t, f)

		_, err := runMigrateCmd(t, "down", "--steps", "0")

		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "INVALID_STEPS")
		assert.Empty(t, f.steps)
	})
}

func TestMigrate_Force(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	f := &fakeMigrator{}
	useFakeMigrator(t, f)

	out, err := runMigrateCmd(t, "force", "3")

	require.NoError(t, err)
	assert.Equal(t, []int{3}, f.forced)
	assert.Contains(t, out, "Forced schema version to 3")
}

func TestMigrate_Status(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	f := &fakeMigrator{status: store.Status{Version: 2, Name: "000002_verification_tokens", Pending: []uint{3, 4}}}
	useFakeMigrator(t, f)

	out, err := runMigrateCmd(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2 (000002_verification_tokens)")
	assert.Contains(t, out, "Pending: 2")
}

func TestFormatStatus(t *testing.T) {
	t.Run("empty database", func(t *testing.T) {
		out := formatStatus(store.Status{})
		assert.Contains(t, out, "Current version: 0 (none)")
		assert.Contains(t, out, "Pending: none")
	})

	t.Run("dirty", func(t *testing.T) {
		out := formatStatus(store.Status{Version: 3, Name: "x", Dirty: true})
		assert.Contains(t, out, "DIRTY")
	})

	t.Run("unknown pending version falls back to the number", func(t *testing.T) {
		out := formatStatus(store.Status{Pending: []uint{999}})
		assert.Contains(t, out, "  000999\n")
	})
}

func TestMigrate_DatabaseURLFlag(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	f := &fakeMigrator{}
	gotURL := useFakeMigrator(t, f)

	_, err := runMigrateCmd(t, "version", "--database-url", "postgres://flag/db")

	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", *gotURL)
}

func TestMigrate_DatabaseURLFromDefaultConfigFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	f := &fakeMigrator{}
	gotURL := useFakeMigrator(t, f)

	configFile = ""
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "nomadiqe"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(base, "nomadiqe", "config.yaml"),
		[]byte("storage:\n  database_url: postgres://file/db\n"), 0o600))
	t.Setenv("XDG_CONFIG_HOME", base)

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "version"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "postgres://file/db", *gotURL)
}
