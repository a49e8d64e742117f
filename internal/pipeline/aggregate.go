package pipeline

import (
	"fmt"

	"tonearm/internal/analysis"
)

// aggregator accumulates stage outcomes into the run's result record. Each
// stage records at most one outcome and the finalized record never changes
// afterward.
type aggregator struct {
	record    *analysis.AudioAnalysis
	recorded  map[string]bool
	finalized bool
}

func newAggregator(features analysis.Features) *aggregator {
	return &aggregator{
		record:   &analysis.AudioAnalysis{Features: features},
		recorded: make(map[string]bool),
	}
}

// recordSuccess attaches a stage payload. Recording twice or after finalize
// is a programming error.
func (a *aggregator) recordSuccess(stage string, payload any) error {
	if err := a.guard(stage); err != nil {
		return err
	}
	if err := a.record.Attach(stage, payload); err != nil {
		return err
	}
	a.recorded[stage] = true
	return nil
}

// recordFailure notes an attempted stage that failed.
func (a *aggregator) recordFailure(stage string, err error) error {
	if guardErr := a.guard(stage); guardErr != nil {
		return guardErr
	}
	description := "stage failed"
	if err != nil {
		description = err.Error()
	}
	a.record.RecordFailure(stage, description)
	a.recorded[stage] = true
	return nil
}

func (a *aggregator) guard(stage string) error {
	if a.finalized {
		return fmt.Errorf("stage %s recorded after finalize", stage)
	}
	if a.recorded[stage] {
		return fmt.Errorf("stage %s recorded twice", stage)
	}
	return nil
}

// finalize seals the record. Repeat calls return the same record.
func (a *aggregator) finalize() *analysis.AudioAnalysis {
	a.finalized = true
	return a.record
}
