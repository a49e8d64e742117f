package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"tonearm/internal/analysis"
	"tonearm/internal/logging"
	"tonearm/internal/services"
)

// Pipeline runs analysis requests against a fixed stage registry.
type Pipeline struct {
	registry *Registry
	logger   *slog.Logger
	buffer   int
}

// New constructs a pipeline. The event buffer smooths bursts between the run
// goroutine and the consumer; sends never block past it because the daemon
// drains every run it starts.
func New(registry *Registry, logger *slog.Logger, buffer int) (*Pipeline, error) {
	if registry == nil {
		return nil, errors.New("stage registry is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Pipeline{
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		buffer:   buffer,
	}, nil
}

// Stages returns the registered stage identifiers in declaration order.
func (p *Pipeline) Stages() []string {
	return p.registry.IDs()
}

// Run validates the request, plans the stage order, and starts the run on
// its own goroutine. The returned channel delivers progress events in plan
// order followed by exactly one result event (or one error event when the
// run is cancelled), then closes. A validation error aborts before any event
// is emitted.
func (p *Pipeline) Run(ctx context.Context, req Request) (<-chan Event, error) {
	if req.AudioPath == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "plan", "audio path is required", nil)
	}
	if req.OutputDir == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "plan", "output directory is required", nil)
	}

	plan := p.registry.Plan(req.Features)
	events := make(chan Event, p.buffer)
	go p.run(ctx, req, plan, events)
	return events, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, plan []string, events chan<- Event) {
	defer close(events)

	runCtx := services.WithRunID(ctx, req.RunID)
	logger := logging.WithContext(runCtx, p.logger)
	runStart := time.Now()
	logger.Info(
		"run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("audio_path", req.AudioPath),
		logging.String("output_dir", req.OutputDir),
		logging.Int("planned_stages", len(plan)),
		logging.Bool("use_gpu", req.UseGPU),
	)

	rc := &RunContext{Request: req, Logger: logger}
	progress := newTracker(len(plan))
	agg := newAggregator(req.Features)

	for _, id := range plan {
		if err := runCtx.Err(); err != nil {
			logger.Warn(
				"run cancelled",
				logging.String(logging.FieldEventType, "run_cancelled"),
				logging.String("next_stage", id),
			)
			events <- errorEvent("analysis cancelled")
			return
		}

		desc, ok := p.registry.Describe(id)
		if !ok {
			// Plan only emits registered stages; keep the guard anyway.
			continue
		}

		input, detail, skip := resolveInput(rc, desc)
		if skip {
			logger.Info(
				"stage skipped, upstream artifact missing",
				logging.String(logging.FieldStage, desc.ID),
				logging.String("upstream", desc.Upstream),
				logging.String("artifact", desc.Artifact),
			)
			progress.advance()
			continue
		}

		events <- progressEvent(progress.event(desc.Phase, detail))
		p.executeStage(runCtx, logger, desc, rc, input, agg)
		progress.advance()
	}

	events <- progressEvent(Progress{Phase: "Complete", Fraction: 1.0, Detail: "Analysis finished"})
	events <- resultEvent(agg.finalize())
	logger.Info(
		"run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Duration("run_duration", time.Since(runStart)),
	)
}

// executeStage runs one stage off the control goroutine and records its
// outcome. Stage errors never escape; they become failure outcomes.
func (p *Pipeline) executeStage(ctx context.Context, logger *slog.Logger, desc Descriptor, rc *RunContext, input string, agg *aggregator) {
	stageCtx := services.WithStage(ctx, desc.ID)
	var cancel context.CancelFunc
	if desc.Timeout > 0 {
		stageCtx, cancel = context.WithTimeout(stageCtx, desc.Timeout)
		defer cancel()
	}

	stageLogger := logging.WithContext(stageCtx, logger)
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("input", input),
	)

	payload, err := awaitStage(stageCtx, stageLogger, desc, rc, input)
	if err != nil {
		stageLogger.Error(
			"stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("category", services.Category(err)),
			logging.Duration("stage_duration", time.Since(stageStart)),
			logging.Error(err),
		)
		if recordErr := agg.recordFailure(desc.ID, err); recordErr != nil {
			stageLogger.Error("failed to record stage outcome", logging.Error(recordErr))
		}
		return
	}

	if desc.Producer {
		if stems, ok := payload.(*analysis.StemAnalysis); ok {
			rc.Stems = stems
		}
	}
	if recordErr := agg.recordSuccess(desc.ID, payload); recordErr != nil {
		stageLogger.Error("failed to record stage outcome", logging.Error(recordErr))
		return
	}
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
}

type stageOutcome struct {
	payload any
	err     error
}

// deadlineSlack is how long the executor keeps waiting past a stage deadline
// for the stage function to notice cancellation and return on its own.
const deadlineSlack = 5 * time.Second

// awaitStage hands the stage function to a worker goroutine and waits for it
// to conclude. A panicking stage becomes a failure outcome instead of tearing
// down the run. When the stage carries a deadline the wait is bounded a
// little past it, so a stage function that ignores cancellation cannot wedge
// the whole run.
func awaitStage(ctx context.Context, logger *slog.Logger, desc Descriptor, rc *RunContext, input string) (any, error) {
	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(
					"stage panicked",
					logging.String(logging.FieldEventType, "stage_panic"),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
				done <- stageOutcome{err: fmt.Errorf("stage panic: %v", r)}
			}
		}()
		payload, err := desc.Run(ctx, rc, input)
		done <- stageOutcome{payload: payload, err: err}
	}()

	deadline, ok := ctx.Deadline()
	if !ok {
		outcome := <-done
		return outcome.payload, outcome.err
	}
	timer := time.NewTimer(time.Until(deadline) + deadlineSlack)
	defer timer.Stop()
	select {
	case outcome := <-done:
		return outcome.payload, outcome.err
	case <-timer.C:
		// The send into done is buffered, so the straggler goroutine can
		// still finish without leaking.
		return nil, services.Wrap(services.ErrTimeout, desc.ID, "execute", "stage did not return after its deadline", nil)
	}
}

// resolveInput decides what a stage runs against. Independent stages get the
// original audio. Dependent stages get their upstream artifact when it
// exists; otherwise the fallback policy picks the original audio or skips
// the stage entirely.
func resolveInput(rc *RunContext, desc Descriptor) (input, detail string, skip bool) {
	if desc.Upstream == "" {
		return rc.Request.AudioPath, desc.Detail, false
	}
	if artifact := rc.Artifact(desc.Artifact); artifact != "" {
		return artifact, desc.Detail, false
	}
	if desc.Fallback == FallbackOriginal {
		detail = desc.FallbackDetail
		if detail == "" {
			detail = desc.Detail
		}
		return rc.Request.AudioPath, detail, false
	}
	return "", "", true
}
