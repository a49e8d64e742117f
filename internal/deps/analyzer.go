package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveAnalyzer reports the analyzer binary the pipeline will execute.
//
// The analyzer is commonly shipped as a sidecar next to the daemon binary, so
// the lookup prefers PATH resolution and falls back to a sibling of the
// running executable before giving up.
func ResolveAnalyzer(command string) Status {
	result := Status{
		Name:        "Analyzer",
		Description: "Runs the individual analysis stages",
	}

	binary := strings.TrimSpace(command)
	if binary == "" {
		result.Detail = "command not configured"
		return result
	}

	if resolved, err := exec.LookPath(binary); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	if candidate, ok := sidecarCandidate(binary); ok {
		if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
			result.Command = candidate
			result.Available = true
			return result
		}
	}

	result.Command = binary
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", binary)
	return result
}

func sidecarCandidate(binary string) (string, bool) {
	if strings.ContainsRune(binary, os.PathSeparator) {
		return "", false
	}
	self, err := os.Executable()
	if err != nil {
		return "", false
	}
	name := binary
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(self), name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
