package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tonearm/internal/analysis"
)

// FallbackPolicy decides what a stem-dependent stage does when its upstream
// artifact is missing.
type FallbackPolicy int

const (
	// FallbackNone marks a stage with no upstream dependency.
	FallbackNone FallbackPolicy = iota
	// FallbackOriginal runs the stage against the original audio file.
	FallbackOriginal
	// FallbackSkip counts the stage as completed without attempting it.
	FallbackSkip
)

// StageFunc executes one stage against the resolved input path and returns
// the stage's typed payload.
type StageFunc func(ctx context.Context, run *RunContext, input string) (any, error)

// Descriptor is the static catalogue entry for one stage.
type Descriptor struct {
	// ID is the stage identifier used in feature selections and results.
	ID string
	// Phase is the human-readable label announced when the stage starts.
	Phase string
	// Detail accompanies Phase on the progress event.
	Detail string
	// FallbackDetail replaces Detail when the stage runs in degraded mode.
	FallbackDetail string
	// Producer stages run in the first phase so their artifacts exist before
	// any dependent stage consults them.
	Producer bool
	// Upstream names the producer stage this stage consumes, if any.
	Upstream string
	// Artifact is the upstream output this stage needs ("vocals", "drums").
	Artifact string
	// Fallback applies when Artifact is empty or Upstream never ran.
	Fallback FallbackPolicy
	// Timeout bounds the stage's execution; zero means unbounded.
	Timeout time.Duration
	// Run is the bound unit of work.
	Run StageFunc
}

// Request describes one analysis run.
type Request struct {
	RunID     string
	AudioPath string
	OutputDir string
	ModelsDir string
	UseGPU    bool
	Features  analysis.Features
}

// RunContext carries a run's request and accumulated producer artifacts into
// stage functions.
type RunContext struct {
	Request Request
	Logger  *slog.Logger

	// Stems holds the producer stage's artifact paths once it has completed.
	Stems *analysis.StemAnalysis
}

// Artifact resolves a named producer output, or "" when it was not produced.
func (rc *RunContext) Artifact(key string) string {
	if rc.Stems == nil {
		return ""
	}
	switch key {
	case "vocals":
		return rc.Stems.Vocals
	case "drums":
		return rc.Stems.Drums
	case "bass":
		return rc.Stems.Bass
	case "other":
		return rc.Stems.Other
	default:
		return ""
	}
}

// Registry is the fixed stage catalogue for this process. Construction
// validates the catalogue once so planning never encounters an unknown or
// unbound stage at run time.
type Registry struct {
	order []Descriptor
	byID  map[string]Descriptor
}

// NewRegistry builds a registry from descriptors in priority order.
func NewRegistry(stages ...Descriptor) (*Registry, error) {
	registry := &Registry{
		order: make([]Descriptor, 0, len(stages)),
		byID:  make(map[string]Descriptor, len(stages)),
	}
	for _, desc := range stages {
		if desc.ID == "" {
			return nil, fmt.Errorf("stage descriptor missing identifier")
		}
		if _, exists := registry.byID[desc.ID]; exists {
			return nil, fmt.Errorf("stage %s declared twice", desc.ID)
		}
		if desc.Run == nil {
			return nil, fmt.Errorf("stage %s has no bound implementation", desc.ID)
		}
		if desc.Upstream != "" {
			upstream, ok := registry.byID[desc.Upstream]
			if !ok {
				return nil, fmt.Errorf("stage %s depends on unknown stage %s", desc.ID, desc.Upstream)
			}
			if !upstream.Producer {
				return nil, fmt.Errorf("stage %s depends on non-producer stage %s", desc.ID, desc.Upstream)
			}
			if desc.Fallback == FallbackNone {
				return nil, fmt.Errorf("stage %s declares a dependency without a fallback policy", desc.ID)
			}
		}
		registry.order = append(registry.order, desc)
		registry.byID[desc.ID] = desc
	}
	return registry, nil
}

// Describe returns the descriptor for a stage identifier.
func (r *Registry) Describe(id string) (Descriptor, bool) {
	desc, ok := r.byID[id]
	return desc, ok
}

// IDs returns every registered stage identifier in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	for i, desc := range r.order {
		ids[i] = desc.ID
	}
	return ids
}

// Plan orders the enabled stages into the three execution phases: producers,
// then independent stages, then stem-dependent stages. Within each phase the
// registry's declaration order decides, so the same selection always yields
// the same plan.
func (r *Registry) Plan(features analysis.Features) []string {
	plan := make([]string, 0, len(r.order))
	for _, desc := range r.order {
		if desc.Producer && features.Enabled(desc.ID) {
			plan = append(plan, desc.ID)
		}
	}
	for _, desc := range r.order {
		if !desc.Producer && desc.Upstream == "" && features.Enabled(desc.ID) {
			plan = append(plan, desc.ID)
		}
	}
	for _, desc := range r.order {
		if desc.Upstream != "" && features.Enabled(desc.ID) {
			plan = append(plan, desc.ID)
		}
	}
	return plan
}
