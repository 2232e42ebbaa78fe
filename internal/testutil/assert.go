package testutil

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AssertStrings reports a diff unless got equals want element by element.
// A nil got matches an empty want.
func AssertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("strings mismatch (-want +got):\n%s", diff)
	}
}

// AssertContainsAll reports each of subs missing from got.
func AssertContainsAll(t *testing.T, got string, subs []string) {
	t.Helper()
	for _, sub := range subs {
		if !strings.Contains(got, sub) {
			t.Errorf("output missing %q:\n%s", sub, got)
		}
	}
}

// MustNoErr stops the test when a setup step fails.
func MustNoErr(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertErrorContains stops the test unless err mentions substr.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want one containing %q", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("error = %q, want it to contain %q", err, substr)
	}
}
