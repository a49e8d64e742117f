package history_test

import (
	"context"
	"fmt"
	"testing"

	"tonearm/internal/analysis"
	"tonearm/internal/history"
	"tonearm/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	ctx := context.Background()
	features := analysis.DefaultFeatures()
	run, err := store.StartRun(ctx, "run-1", "/music/track.wav", "/tmp/out", features, true)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.Status != history.StatusRunning {
		t.Fatalf("expected running status, got %q", run.Status)
	}
	if !run.UseGPU {
		t.Fatal("expected use_gpu to round-trip")
	}
	if !run.Features.Lyrics {
		t.Fatalf("expected features to round-trip, got %#v", run.Features)
	}

	fetched, err := store.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.AudioPath != "/music/track.wav" {
		t.Fatalf("unexpected fetched run: %#v", fetched)
	}
}

func TestStartRunRequiresID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	if _, err := store.StartRun(context.Background(), "", "/music/track.wav", "/tmp/out", analysis.DefaultFeatures(), false); err == nil {
		t.Fatal("expected error when run id missing")
	}
}

func TestGetByIDMissingRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	run, err := store.GetByID(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil for missing run, got %#v", run)
	}
}

func TestMarkCompletedRecordsOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	ctx := context.Background()
	if _, err := store.StartRun(ctx, "run-1", "/music/track.wav", "/tmp/out", analysis.DefaultFeatures(), false); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	failures := map[string]string{analysis.StageBeats: "beat tracker crashed"}
	if err := store.MarkCompleted(ctx, "run-1", "/tmp/out/analysis.json", failures); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	run, err := store.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if run.Status != history.StatusCompleted {
		t.Fatalf("expected completed status, got %q", run.Status)
	}
	if run.ResultPath != "/tmp/out/analysis.json" {
		t.Fatalf("unexpected result path %q", run.ResultPath)
	}
	if run.StageFailures[analysis.StageBeats] != "beat tracker crashed" {
		t.Fatalf("expected stage failure to round-trip, got %#v", run.StageFailures)
	}
	if run.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if !run.Finished() {
		t.Fatal("expected run to report finished")
	}

	if err := store.MarkFailed(ctx, "run-1", "late failure"); err == nil {
		t.Fatal("expected error finishing an already finished run")
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("run-%d", i)
		if _, err := store.StartRun(ctx, id, "/music/track.wav", "/tmp/out", analysis.DefaultFeatures(), false); err != nil {
			t.Fatalf("StartRun %s failed: %v", id, err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Fatalf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestFailInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if _, err := store.StartRun(ctx, id, "/music/track.wav", "/tmp/out", analysis.DefaultFeatures(), false); err != nil {
			t.Fatalf("StartRun %s failed: %v", id, err)
		}
	}
	if err := store.MarkCompleted(ctx, "run-3", "/tmp/out/analysis.json", nil); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	flipped, err := store.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted failed: %v", err)
	}
	if flipped != 2 {
		t.Fatalf("expected 2 interrupted runs, got %d", flipped)
	}

	run, err := store.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if run.Status != history.StatusFailed || run.ErrorMessage != history.InterruptedReason {
		t.Fatalf("unexpected interrupted run: %#v", run)
	}

	active, err := store.Active(ctx)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active != 0 {
		t.Fatalf("expected no active runs, got %d", active)
	}
}

func TestPruneKeepsMostRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("run-%d", i)
		if _, err := store.StartRun(ctx, id, "/music/track.wav", "/tmp/out", analysis.DefaultFeatures(), false); err != nil {
			t.Fatalf("StartRun %s failed: %v", id, err)
		}
	}

	pruned, err := store.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 pruned runs, got %d", pruned)
	}

	runs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-3" {
		t.Fatalf("expected only the newest run to survive, got %#v", runs)
	}
}
