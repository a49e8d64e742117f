package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"tonearm/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckModelsDirMissingPasses(t *testing.T) {
	result := CheckModelsDir(filepath.Join(t.TempDir(), "models"))
	if !result.Passed {
		t.Fatalf("expected missing models dir to pass, got: %s", result.Detail)
	}
}

func TestRunAllCoversConfiguredPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := RunAll(cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got failures: %#v", failed)
	}
}

func TestFailedFilters(t *testing.T) {
	results := []Result{
		{Name: "ok", Passed: true},
		{Name: "bad", Passed: false, Detail: "missing"},
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "bad" {
		t.Fatalf("unexpected failed set: %#v", failed)
	}
}
