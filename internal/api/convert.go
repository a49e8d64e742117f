package api

import (
	"time"

	"tonearm/internal/deps"
	"tonearm/internal/history"
)

// FormatTime renders a timestamp in the API date-time format. Zero times
// render as the empty string so omitempty tags drop them.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromRun converts a journaled run to its API representation.
func FromRun(run *history.Run) Run {
	if run == nil {
		return Run{}
	}

	dto := Run{
		ID:            run.ID,
		AudioPath:     run.AudioPath,
		OutputDir:     run.OutputDir,
		Features:      run.Features.Map(),
		GPU:           run.UseGPU,
		Status:        string(run.Status),
		Error:         run.ErrorMessage,
		StageFailures: run.StageFailures,
		ResultPath:    run.ResultPath,
	}
	dto.CreatedAt = FormatTime(run.CreatedAt)
	dto.UpdatedAt = FormatTime(run.UpdatedAt)
	if run.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*run.CompletedAt)
	}
	return dto
}

// FromRuns converts a slice of journaled runs into API DTOs.
func FromRuns(runs []*history.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromDependencyStatus converts a dependency check result.
func FromDependencyStatus(status deps.Status) DependencyStatus {
	return DependencyStatus{
		Name:        status.Name,
		Command:     status.Command,
		Description: status.Description,
		Optional:    status.Optional,
		Available:   status.Available,
		Detail:      status.Detail,
	}
}

// FromDependencyStatuses converts a slice of dependency check results.
func FromDependencyStatuses(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, FromDependencyStatus(status))
	}
	return out
}
