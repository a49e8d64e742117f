package pipeline

import "math"

// tracker computes the completion fraction announced before each stage. The
// count advances after a stage concludes, so the event for the first of N
// stages reports 0/N and the denominator never moves during a run.
type tracker struct {
	total     int
	completed int
}

func newTracker(total int) *tracker {
	return &tracker{total: total}
}

// event builds the progress payload for the next stage transition.
func (t *tracker) event(phase, detail string) Progress {
	denominator := t.total
	if denominator < 1 {
		denominator = 1
	}
	fraction := float64(t.completed) / float64(denominator)
	return Progress{
		Phase:    phase,
		Fraction: math.Round(fraction*1000) / 1000,
		Detail:   detail,
	}
}

// advance records that a stage concluded, whether it succeeded, failed, or
// was skipped.
func (t *tracker) advance() {
	if t.completed < t.total {
		t.completed++
	}
}
