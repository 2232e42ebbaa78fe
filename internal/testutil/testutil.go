// Package testutil provides test helpers for contractlens tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - fs_helpers.go: file helpers (WriteFile, ReadFile, MustExist)
//   - contracts.go: contract fixtures and the facts CSV writer
//
// Snapshot fixtures built from contracts live in testutil/snapshottest.
package testutil
