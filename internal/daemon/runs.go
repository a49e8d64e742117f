package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tonearm/internal/analysis"
	"tonearm/internal/api"
	"tonearm/internal/logging"
	"tonearm/internal/notifications"
	"tonearm/internal/pipeline"
	"tonearm/internal/trackinfo"
)

// resultFileName is the record written into the run's output directory.
const resultFileName = "analysis.json"

// subscriberBuffer exceeds the largest event count a run can emit (one
// progress event per stage, the completion marker, and the terminal event),
// so a connected subscriber never misses events and an absent one never
// blocks the pump.
const subscriberBuffer = 32

var errDaemonStopped = errors.New("daemon is not running")

type activeRun struct {
	id        string
	audioPath string
	outputDir string
	startedAt time.Time
	sub       chan pipeline.Event

	// Latest observed progress, written by the pump and read by Status
	// under the daemon mutex.
	phase    string
	fraction float64
}

// StartAnalysis journals and launches a run, returning its identifier and the
// event channel the HTTP layer streams from. The daemon drains the run to its
// terminal event on its own, so a subscriber that goes away never cancels
// analysis.
func (d *Daemon) StartAnalysis(req api.AnalyzeRequest, features analysis.Features) (string, <-chan pipeline.Event, error) {
	if !d.running.Load() {
		return "", nil, errDaemonStopped
	}

	runID := uuid.NewString()
	modelsDir := strings.TrimSpace(req.ModelsDir)
	if modelsDir == "" {
		modelsDir = d.cfg.Paths.ModelsDir
	}

	if _, err := d.store.StartRun(d.ctx, runID, req.AudioPath, req.OutputDir, features, req.GPU); err != nil {
		return "", nil, fmt.Errorf("journal run: %w", err)
	}

	events, err := d.pipe.Run(d.ctx, pipeline.Request{
		RunID:     runID,
		AudioPath: req.AudioPath,
		OutputDir: req.OutputDir,
		ModelsDir: modelsDir,
		UseGPU:    req.GPU,
		Features:  features,
	})
	if err != nil {
		if markErr := d.store.MarkFailed(context.Background(), runID, err.Error()); markErr != nil {
			d.logger.Warn("failed to journal rejected run",
				logging.String(logging.FieldRunID, runID),
				logging.Error(markErr))
		}
		return "", nil, err
	}

	run := &activeRun{
		id:        runID,
		audioPath: req.AudioPath,
		outputDir: req.OutputDir,
		startedAt: time.Now(),
		sub:       make(chan pipeline.Event, subscriberBuffer),
	}
	d.mu.Lock()
	d.active[runID] = run
	d.mu.Unlock()
	d.wg.Add(1)
	go d.pump(run, events)

	d.logger.Info("analysis run accepted",
		logging.String(logging.FieldRunID, runID),
		logging.String("audio_path", req.AudioPath),
		logging.String(logging.FieldEventType, "run_accepted"))
	return runID, run.sub, nil
}

// pump drains a run's event stream, mirroring every event to the subscriber
// and journaling the terminal outcome. It owns the run from the daemon's
// side; subscriber delivery is best-effort.
func (d *Daemon) pump(run *activeRun, events <-chan pipeline.Event) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.active, run.id)
		d.mu.Unlock()
		close(run.sub)
	}()

	for ev := range events {
		if ev.Kind == pipeline.EventProgress {
			d.mu.Lock()
			run.phase = ev.Progress.Phase
			run.fraction = ev.Progress.Fraction
			d.mu.Unlock()
		}
		select {
		case run.sub <- ev:
		default:
			// The buffer holds a full run, so an overflow means nobody is
			// draining it. The journal still records the outcome.
		}
		switch ev.Kind {
		case pipeline.EventResult:
			d.finishCompleted(run, ev.Result)
		case pipeline.EventError:
			d.finishCancelled(run, ev.Message)
		}
	}
}

// finishCompleted persists the result record, journals the run as completed,
// and notifies. It runs on a background context so shutdown cannot interrupt
// outcome journaling.
func (d *Daemon) finishCompleted(run *activeRun, result *analysis.AudioAnalysis) {
	ctx := context.Background()

	resultPath := filepath.Join(run.outputDir, resultFileName)
	if err := writeResult(resultPath, result); err != nil {
		d.logger.Warn("failed to persist result record",
			logging.String(logging.FieldRunID, run.id),
			logging.Error(err))
		resultPath = ""
	}

	var failures map[string]string
	if result != nil {
		failures = result.Failures
	}
	if err := d.store.MarkCompleted(ctx, run.id, resultPath, failures); err != nil {
		d.logger.Warn("failed to journal completed run",
			logging.String(logging.FieldRunID, run.id),
			logging.Error(err))
	}
	if pruned, err := d.store.Prune(ctx, d.cfg.Pipeline.HistoryLimit); err != nil {
		d.logger.Warn("history prune failed", logging.Error(err))
	} else if pruned > 0 {
		d.logger.Debug("history pruned", logging.Int64("removed", pruned))
	}

	payload := notifications.Payload{
		"track":    trackinfo.Title(run.audioPath),
		"duration": time.Since(run.startedAt).Round(time.Second).String(),
	}
	if len(failures) > 0 {
		payload["failures"] = strings.Join(sortedStageNames(failures), ", ")
	}
	if err := d.notifier.Publish(ctx, notifications.EventRunCompleted, payload); err != nil {
		d.logger.Warn("completion notification failed",
			logging.String(logging.FieldRunID, run.id),
			logging.Error(err))
	}
}

// finishCancelled journals a cancelled run and notifies.
func (d *Daemon) finishCancelled(run *activeRun, message string) {
	ctx := context.Background()

	if message == "" {
		message = "analysis cancelled"
	}
	if err := d.store.MarkCancelled(ctx, run.id, message); err != nil {
		d.logger.Warn("failed to journal cancelled run",
			logging.String(logging.FieldRunID, run.id),
			logging.Error(err))
	}

	payload := notifications.Payload{
		"track": trackinfo.Title(run.audioPath),
		"error": message,
	}
	if err := d.notifier.Publish(ctx, notifications.EventRunFailed, payload); err != nil {
		d.logger.Warn("failure notification failed",
			logging.String(logging.FieldRunID, run.id),
			logging.Error(err))
	}
}

func writeResult(path string, result *analysis.AudioAnalysis) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func sortedStageNames(failures map[string]string) []string {
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
