package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteAudioFixture creates a placeholder audio file of the requested size.
// The content is filler; tests only need paths that exist on disk.
func WriteAudioFixture(t testing.TB, path string, size int) string {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteModelDir creates a named model directory under the config models root.
func WriteModelDir(t testing.TB, modelsDir, name string) string {
	t.Helper()

	target := filepath.Join(modelsDir, name)
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("mkdir model %s: %v", name, err)
	}
	return target
}
