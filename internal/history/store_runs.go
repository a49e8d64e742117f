package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tonearm/internal/analysis"
)

const runColumns = "id, audio_path, output_dir, features_json, use_gpu, status, error_message, stage_failures_json, result_path, created_at, updated_at, completed_at"

// StartRun journals a freshly accepted run with status running.
func (s *Store) StartRun(ctx context.Context, id, audioPath, outputDir string, features analysis.Features, useGPU bool) (*Run, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("run id is required")
	}
	if strings.TrimSpace(audioPath) == "" {
		return nil, errors.New("audio path is required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output dir is required")
	}

	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("marshal features: %w", err)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO runs (
            id, audio_path, output_dir, features_json, use_gpu,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		audioPath,
		outputDir,
		string(featuresJSON),
		boolToInt(useGPU),
		StatusRunning,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a journaled run by identifier. A missing run returns nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Active reports the number of runs still in flight.
func (s *Store) Active(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM runs WHERE status = ?`,
		StatusRunning,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active runs: %w", err)
	}
	return count, nil
}

// MarkCompleted finishes a running run, recording where the result was
// written and which stages failed along the way.
func (s *Store) MarkCompleted(ctx context.Context, id, resultPath string, stageFailures map[string]string) error {
	return s.finishRun(ctx, id, StatusCompleted, "", resultPath, stageFailures)
}

// MarkFailed finishes a running run with a run-level error message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.finishRun(ctx, id, StatusFailed, message, "", nil)
}

// MarkCancelled finishes a running run that was cancelled before completing.
func (s *Store) MarkCancelled(ctx context.Context, id, message string) error {
	return s.finishRun(ctx, id, StatusCancelled, message, "", nil)
}

func (s *Store) finishRun(ctx context.Context, id string, status Status, message, resultPath string, stageFailures map[string]string) error {
	var failuresJSON any
	if len(stageFailures) > 0 {
		encoded, err := json.Marshal(stageFailures)
		if err != nil {
			return fmt.Errorf("marshal stage failures: %w", err)
		}
		failuresJSON = string(encoded)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET status = ?, error_message = ?, stage_failures_json = ?, result_path = ?,
            updated_at = ?, completed_at = ?
        WHERE id = ? AND status = ?`,
		status,
		nullableString(message),
		failuresJSON,
		nullableString(resultPath),
		timestamp,
		timestamp,
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %q is not active", id)
	}
	return nil
}

// FailInterrupted marks every run still flagged running as failed. The daemon
// calls this at startup so rows orphaned by a crash do not report progress
// forever.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ?, completed_at = ?
        WHERE status = ?`,
		StatusFailed,
		InterruptedReason,
		timestamp,
		timestamp,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes all but the keep most recent runs.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM runs WHERE id NOT IN (
            SELECT id FROM runs ORDER BY created_at DESC, id DESC LIMIT ?
        )`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id           string
		audioPath    string
		outputDir    string
		featuresJSON string
		useGPU       sql.NullInt64
		statusStr    string
		errorMessage sql.NullString
		failuresJSON sql.NullString
		resultPath   sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&audioPath,
		&outputDir,
		&featuresJSON,
		&useGPU,
		&statusStr,
		&errorMessage,
		&failuresJSON,
		&resultPath,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:           id,
		AudioPath:    audioPath,
		OutputDir:    outputDir,
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
		ResultPath:   resultPath.String,
	}
	if useGPU.Valid {
		run.UseGPU = useGPU.Int64 != 0
	}
	if featuresJSON != "" {
		if err := json.Unmarshal([]byte(featuresJSON), &run.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	if failuresJSON.Valid && failuresJSON.String != "" {
		if err := json.Unmarshal([]byte(failuresJSON.String), &run.StageFailures); err != nil {
			return nil, fmt.Errorf("decode stage failures: %w", err)
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		run.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			run.CompletedAt = &completed
		}
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
