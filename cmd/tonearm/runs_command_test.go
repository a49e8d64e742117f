package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"tonearm/internal/api"
	"tonearm/internal/testsupport"
)

func completeOneRun(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	audio := testsupport.WriteAudioFixture(t, filepath.Join(env.baseDir, "paranoid_android.flac"), 1024)
	outDir := filepath.Join(env.baseDir, "out")
	if _, _, err := runCLI(t,
		[]string{"analyze", audio, "--output-dir", outDir},
		env.serverAddr, env.configPath); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"runs", "--json"}, env.serverAddr, env.configPath)
	if err != nil {
		t.Fatalf("runs --json: %v", err)
	}
	var resp api.RunsResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(resp.Runs) == 0 {
		t.Fatal("expected at least one run")
	}
	return resp.Runs[0].ID
}

func TestRunsCommandListsRecentRuns(t *testing.T) {
	env := setupCLITestEnv(t)
	completeOneRun(t, env)

	stdout, _, err := runCLI(t, []string{"runs"}, env.serverAddr, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, stdout, "completed")
	requireContains(t, stdout, "paranoid_android.flac")
	requireContains(t, stdout, "Started")
}

func TestRunsCommandShowsSingleRun(t *testing.T) {
	env := setupCLITestEnv(t)
	runID := completeOneRun(t, env)

	stdout, _, err := runCLI(t, []string{"runs", runID}, env.serverAddr, env.configPath)
	if err != nil {
		t.Fatalf("runs %s: %v", runID, err)
	}
	requireContains(t, stdout, runID)
	requireContains(t, stdout, "[OK] completed")
	requireContains(t, stdout, "paranoid_android.flac")
	requireContains(t, stdout, "analysis.json")
}

func TestRunsCommandUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"runs", "no-such-run"}, env.serverAddr, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
	requireContains(t, err.Error(), "run not found")
}

func TestRunsCommandEmptyJournal(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"runs"}, env.serverAddr, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, stdout, "No runs recorded")
}
