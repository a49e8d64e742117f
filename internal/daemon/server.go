package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tonearm/internal/analysis"
	"tonearm/internal/api"
	"tonearm/internal/config"
	"tonearm/internal/logging"
	"tonearm/internal/modeldir"
	"tonearm/internal/pipeline"
	"tonearm/internal/services"
	"tonearm/internal/version"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Server.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", srv.handleAnalyze)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/models", srv.handleModels)
	mux.HandleFunc("/shutdown", srv.handleShutdown)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/runs", srv.handleRuns)
	mux.HandleFunc("/runs/", srv.handleRun)

	// WriteTimeout stays unset: the analyze stream lives as long as the run
	// and would be severed by any fixed bound.
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// handleAnalyze accepts a run and streams its events to the client as SSE.
// Disconnecting mid-stream abandons the stream only; the run itself keeps
// going under the daemon.
func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	features, err := analysis.FeaturesFromMap(req.Features)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	runID, events, err := s.daemon.StartAnalysis(req, features)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, errDaemonStopped):
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Correlates this subscriber's log lines; the run itself logs under its
	// run ID.
	streamCtx := services.WithRequestID(r.Context(), uuid.NewString())
	logger := logging.WithContext(streamCtx, s.log())
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				logger.Debug("subscriber write failed, run continues",
					logging.String(logging.FieldRunID, runID),
					logging.Error(err))
				return
			}
			flusher.Flush()
		case <-streamCtx.Done():
			logger.Debug("subscriber disconnected, run continues",
				logging.String(logging.FieldRunID, runID))
			return
		}
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

func (s *apiServer) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	models, err := modeldir.List(s.daemon.cfg.Paths.ModelsDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ModelsResponse{Models: models})
}

func (s *apiServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ShutdownResponse{Status: "shutting_down"})
	s.daemon.RequestShutdown()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	state := "stopped"
	if status.Running {
		state = "running"
	}
	active := make([]api.ActiveRun, 0, len(status.Active))
	for _, run := range status.Active {
		active = append(active, api.ActiveRun{
			ID:        run.ID,
			AudioPath: run.AudioPath,
			Phase:     run.Phase,
			Progress:  run.Fraction,
			StartedAt: api.FormatTime(run.StartedAt),
		})
	}
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Status:        state,
		Version:       version.Version,
		PID:           status.PID,
		StartedAt:     api.FormatTime(status.StartedAt),
		ActiveRuns:    status.ActiveRuns,
		Active:        active,
		ModelsDir:     status.ModelsDir,
		OutputDir:     status.OutputDir,
		HistoryDBPath: status.HistoryDBPath,
		LockFilePath:  status.LockFilePath,
		Dependencies:  api.FromDependencyStatuses(status.Dependencies),
	})
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.daemon.store.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunsResponse{Runs: api.FromRuns(runs)})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunResponse{Run: api.FromRun(run)})
}

func writeSSE(w io.Writer, ev pipeline.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	return err
}

func encodeEvent(ev pipeline.Event) ([]byte, error) {
	switch ev.Kind {
	case pipeline.EventProgress:
		return json.Marshal(ev.Progress)
	case pipeline.EventResult:
		return json.Marshal(ev.Result)
	case pipeline.EventError:
		return json.Marshal(api.ErrorResponse{Error: ev.Message})
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
