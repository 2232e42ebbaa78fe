package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wesm/contractlens/tools/devdata/dataset"
)

func run(t *testing.T, root string, args ...string) error {
	t.Helper()
	newDataRowFlag, newDataSecondaryFlag = 0, 0
	newDataFromYearFlag, newDataToYearFlag, newDataContractorsFlag = 0, 0, 0
	newDataSeedFlag, newDataVersionFlag = 1, ""
	newDataNoPublish, newDataDryRun = false, false
	pruneKeepFlag, pruneDryRunFlag = 2, false
	homeFlag, configFlag, verboseFlag = "", "", false
	rootCmd.SetArgs(append([]string{"--snapshots", root}, args...))
	return rootCmd.Execute()
}

func newData(t *testing.T, root, version string, extra ...string) {
	t.Helper()
	args := append([]string{"new-data", "--rows", "40", "--from-year", "2020", "--to-year", "2020", "--version", version}, extra...)
	if err := run(t, root, args...); err != nil {
		t.Fatalf("new-data %s: %v", version, err)
	}
}

func TestVersionLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshots")

	newData(t, root, "v1")
	if got := dataset.CurrentVersion(root); got != "v1" {
		t.Fatalf("CURRENT = %q, want v1", got)
	}
	newData(t, root, "v2", "--no-publish")
	if got := dataset.CurrentVersion(root); got != "v1" {
		t.Fatalf("after --no-publish, CURRENT = %q, want v1", got)
	}

	if err := run(t, root, "use", "v2"); err != nil {
		t.Fatalf("use: %v", err)
	}
	if got := dataset.CurrentVersion(root); got != "v2" {
		t.Fatalf("after use, CURRENT = %q, want v2", got)
	}
	if err := run(t, root, "list"); err != nil {
		t.Fatalf("list: %v", err)
	}

	if err := run(t, root, "prune", "--keep", "0"); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if dataset.Exists(filepath.Join(root, "v1")) {
		t.Error("prune kept v1")
	}
	if !dataset.Exists(filepath.Join(root, "v2")) {
		t.Error("prune removed the published version")
	}
}

func TestNewData_Rejects(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshots")
	tests := []struct {
		name string
		args []string
	}{
		{"zero rows", []string{"new-data", "--rows", "0"}},
		{"bad version", []string{"new-data", "--rows", "5", "--version", "../escape"}},
		{"negative secondary", []string{"new-data", "--rows", "5", "--secondary-rows", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(t, root, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}

	if err := run(t, root, "new-data", "--rows", "5", "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dataset.Exists(root) {
		t.Error("dry run created the snapshot root")
	}
}

func TestUse_Errors(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshots")
	if err := run(t, root, "use", "missing"); err == nil {
		t.Error("expected error for a missing version")
	}

	if err := os.MkdirAll(filepath.Join(root, "partial"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := run(t, root, "use", "partial"); err == nil {
		t.Error("expected error for a version without a manifest")
	}
	if got := dataset.CurrentVersion(root); got != "" {
		t.Errorf("CURRENT = %q after failed use", got)
	}
}

func TestSnapshotRootFromConfig(t *testing.T) {
	home := t.TempDir()
	cfg := "[snapshot]\ndir = \"data\"\n"
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	homeFlag, configFlag, snapshotsFlag = home, "", ""
	t.Cleanup(func() { homeFlag, snapshotsFlag = "", "" })

	root, err := snapshotRoot()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "data"); root != want {
		t.Errorf("snapshotRoot() = %q, want %q", root, want)
	}
}
