package api

import (
	"github.com/go-playground/validator/v10"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// AnalyzeRequest is the POST /analyze body.
//
// Features is a partial selection layered over the all-enabled defaults; an
// unknown key is rejected before the run starts. ModelsDir overrides the
// daemon's configured models root for this run only.
type AnalyzeRequest struct {
	AudioPath string          `json:"audio_path" validate:"required"`
	OutputDir string          `json:"output_dir" validate:"required"`
	Features  map[string]bool `json:"features,omitempty"`
	ModelsDir string          `json:"models_dir,omitempty"`
	GPU       bool            `json:"gpu,omitempty"`
}

// Validate checks the request using go-playground/validator tags.
func (r *AnalyzeRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ModelsResponse is the GET /models body.
type ModelsResponse struct {
	Models []string `json:"models"`
}

// ShutdownResponse is the POST /shutdown body.
type ShutdownResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a failure message, both as an HTTP error body and as
// the data payload of an SSE error event.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ProgressEvent is the data payload of an SSE progress event. Progress is a
// completion fraction from 0.0 to 1.0.
type ProgressEvent struct {
	Phase    string  `json:"phase"`
	Progress float64 `json:"progress"`
	Detail   string  `json:"detail,omitempty"`
}

// Run describes a journaled run in a transport-friendly format.
type Run struct {
	ID            string            `json:"id"`
	AudioPath     string            `json:"audio_path"`
	OutputDir     string            `json:"output_dir"`
	Features      map[string]bool   `json:"features"`
	GPU           bool              `json:"gpu"`
	Status        string            `json:"status"`
	Error         string            `json:"error,omitempty"`
	StageFailures map[string]string `json:"stage_failures,omitempty"`
	ResultPath    string            `json:"result_path,omitempty"`
	CreatedAt     string            `json:"created_at,omitempty"`
	UpdatedAt     string            `json:"updated_at,omitempty"`
	CompletedAt   string            `json:"completed_at,omitempty"`
}

// RunsResponse wraps a collection of runs for GET /runs.
type RunsResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run for GET /runs/{id}.
type RunResponse struct {
	Run Run `json:"run"`
}

// DependencyStatus captures availability of an external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// ActiveRun is a point-in-time view of one in-flight run.
type ActiveRun struct {
	ID        string  `json:"id"`
	AudioPath string  `json:"audio_path"`
	Phase     string  `json:"phase"`
	Progress  float64 `json:"progress"`
	StartedAt string  `json:"started_at"`
}

// StatusResponse aggregates daemon runtime information for GET /status.
type StatusResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	PID           int                `json:"pid"`
	StartedAt     string             `json:"started_at"`
	ActiveRuns    int                `json:"active_runs"`
	Active        []ActiveRun        `json:"active,omitempty"`
	ModelsDir     string             `json:"models_dir"`
	OutputDir     string             `json:"output_dir"`
	HistoryDBPath string             `json:"history_db_path"`
	LockFilePath  string             `json:"lock_file_path"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}
