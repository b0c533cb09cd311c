package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daniacca/geosim/internal/earth"
	"github.com/daniacca/geosim/internal/earth/notifiers"
	"github.com/daniacca/geosim/internal/telemetry"
)

// extractRunID extracts the run ID from a path like "/runs/{runID}/..."
// Returns the run ID and the remaining path, or empty string if not found
func extractRunID(path string) (earth.RunID, string) {
	if !strings.HasPrefix(path, "/runs/") {
		return "", ""
	}

	rest := path[len("/runs/"):]
	idx := strings.Index(rest, "/")
	if idx == -1 {
		return earth.RunID(rest), ""
	}
	return earth.RunID(rest[:idx]), rest[idx:]
}

// statusForError maps simulation errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, earth.ErrNoCheckpoint):
		return http.StatusConflict
	case errors.Is(err, earth.ErrTickFailure):
		return http.StatusInternalServerError
	case errors.Is(err, earth.ErrInvalidConfig),
		errors.Is(err, earth.ErrInvalidRange),
		errors.Is(err, earth.ErrNonPositiveStep),
		errors.Is(err, earth.ErrOutOfTimeBounds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseFloatParam reads a float query parameter, returning def when absent.
func parseFloatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleRunsRoutes dispatches /runs and /runs/{runID}/... requests
func (s *Server) handleRunsRoutes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/runs" || r.URL.Path == "/runs/" {
		switch r.Method {
		case http.MethodGet:
			s.handleListRuns(w, r)
		case http.MethodPost:
			s.handleCreateRun(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	runID, rest := extractRunID(r.URL.Path)
	if runID == "" {
		http.Error(w, "run ID is required in path: /runs/{runID}", http.StatusBadRequest)
		return
	}
	run, exists := s.runs.GetRun(runID)
	if !exists {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.handleGetRun(w, run)
	case rest == "" && r.Method == http.MethodDelete:
		s.handleDeleteRun(w, run)
	case rest == "/tick" && r.Method == http.MethodPost:
		s.handleTick(w, r, run)
	case rest == "/rewind" && r.Method == http.MethodPost:
		s.handleRewind(w, r, run)
	case rest == "/complete" && r.Method == http.MethodPost:
		s.handleRunToCompletion(w, r, run)
	case rest == "/snapshot" && r.Method == http.MethodGet:
		s.handleGetSnapshot(w, run)
	case rest == "/events" && r.Method == http.MethodGet:
		s.handleEvents(w, r, run)
	case rest == "/start" && r.Method == http.MethodPost:
		s.handleStart(w, r, run)
	case rest == "/stop" && r.Method == http.MethodPost:
		s.handleStop(w, run)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// createRunRequest wraps a RunConfig with an optional run ID.
type createRunRequest struct {
	ID string `json:"id,omitempty"`
	earth.RunConfig
}

// runStatus is the JSON summary of a run.
type runStatus struct {
	ID          earth.RunID `json:"id"`
	Tick        uint64      `json:"tick"`
	TimeMy      float64     `json:"time_my"`
	Running     bool        `json:"running"`
	Done        bool        `json:"done"`
	Checkpoints []float64   `json:"checkpoints_my"`
	Notifiers   []string    `json:"notifiers,omitempty"`
}

func statusOf(run *earth.Run) runStatus {
	snap := run.Clock.Snapshot()
	return runStatus{
		ID:          run.ID,
		Tick:        snap.Tick,
		TimeMy:      snap.TimeMy,
		Running:     run.Clock.IsRunning(),
		Done:        run.Clock.Done(),
		Checkpoints: run.Clock.CheckpointTimes(),
		Notifiers:   run.Notifiers,
	}
}

// POST /runs
// Body: RunConfig JSON with an optional "id"
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid run config json: "+err.Error(), http.StatusBadRequest)
		return
	}

	run, err := s.runs.CreateRun(earth.RunID(req.ID), req.RunConfig)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, earth.ErrInvalidConfig) {
			status = http.StatusConflict
		}
		http.Error(w, "cannot create run: "+err.Error(), status)
		return
	}

	s.logger.Infof("Run created: run_id=%s", run.ID)
	writeJSON(w, http.StatusCreated, statusOf(run))
}

// GET /runs
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.runs.ListRuns()})
}

// GET /runs/{runID}
func (s *Server) handleGetRun(w http.ResponseWriter, run *earth.Run) {
	writeJSON(w, http.StatusOK, statusOf(run))
}

// DELETE /runs/{runID}
func (s *Server) handleDeleteRun(w http.ResponseWriter, run *earth.Run) {
	if err := s.runs.DeleteRun(run.ID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("run deleted"))
}

// POST /runs/{runID}/tick
// Query param: dt in My (default: the run's configured step). A negative dt rewinds.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request, run *earth.Run) {
	dt, err := parseFloatParam(r, "dt", run.Clock.Config().TimeStepMy)
	if err != nil {
		http.Error(w, "invalid dt: must be a number (My)", http.StatusBadRequest)
		return
	}

	_, span := telemetry.Tracer().Start(r.Context(), "geosim.tick")
	defer span.End()
	span.SetAttributes(attribute.String("geosim.run_id", string(run.ID)), attribute.Float64("geosim.dt_my", dt))

	res, err := run.Clock.Tick(dt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warnf("Tick failed: run_id=%s dt=%v error=%v", run.ID, dt, err)
		http.Error(w, "tick failed: "+err.Error(), statusForError(err))
		return
	}
	span.SetAttributes(attribute.Int("geosim.events", len(res.Events)), attribute.Int64("geosim.tick", int64(res.Snapshot.Tick)))

	writeJSON(w, http.StatusOK, res)
}

// POST /runs/{runID}/rewind
// Query params: to (target time in My, required), exact (default: the run's configuration)
func (s *Server) handleRewind(w http.ResponseWriter, r *http.Request, run *earth.Run) {
	raw := r.URL.Query().Get("to")
	if raw == "" {
		http.Error(w, "rewind target is required: ?to={My}", http.StatusBadRequest)
		return
	}
	target, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		http.Error(w, "invalid rewind target: "+err.Error(), http.StatusBadRequest)
		return
	}
	exact := run.Clock.Config().ExactRewind
	if rawExact := r.URL.Query().Get("exact"); rawExact != "" {
		if exact, err = strconv.ParseBool(rawExact); err != nil {
			http.Error(w, "invalid exact flag: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	_, span := telemetry.Tracer().Start(r.Context(), "geosim.rewind")
	defer span.End()
	span.SetAttributes(
		attribute.String("geosim.run_id", string(run.ID)),
		attribute.Float64("geosim.target_my", target),
		attribute.Bool("geosim.exact", exact),
	)

	snap, err := run.Clock.RewindTo(target, exact)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, "rewind failed: "+err.Error(), statusForError(err))
		return
	}

	s.logger.Infof("Run rewound: run_id=%s target=%v exact=%v", run.ID, target, exact)
	writeJSON(w, http.StatusOK, snap)
}

// POST /runs/{runID}/complete
// Runs the remaining duration synchronously and returns the final snapshot
func (s *Server) handleRunToCompletion(w http.ResponseWriter, r *http.Request, run *earth.Run) {
	if run.Clock.IsRunning() {
		http.Error(w, "run is already running", http.StatusConflict)
		return
	}

	_, span := telemetry.Tracer().Start(r.Context(), "geosim.run_to_completion")
	defer span.End()
	span.SetAttributes(attribute.String("geosim.run_id", string(run.ID)))

	snap, err := run.Clock.RunToCompletion()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, "run failed: "+err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /runs/{runID}/snapshot
func (s *Server) handleGetSnapshot(w http.ResponseWriter, run *earth.Run) {
	data, err := earth.EncodeSnapshotJSON(run.Clock.Snapshot())
	if err != nil {
		http.Error(w, "cannot encode snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GET /runs/{runID}/events
// Query params: from, to in My (default: the configured min year and the current time)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, run *earth.Run) {
	from, err := parseFloatParam(r, "from", run.Clock.Config().MinYearMy)
	if err != nil {
		http.Error(w, "invalid from: "+err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseFloatParam(r, "to", run.Clock.Now())
	if err != nil {
		http.Error(w, "invalid to: "+err.Error(), http.StatusBadRequest)
		return
	}

	events, err := run.Clock.ReplayEvents(from, to)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// POST /runs/{runID}/start
// Start ticking with the configured step on every interval (in milliseconds)
// Query param: interval (default: 1000ms)
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, run *earth.Run) {
	interval := 1000 * time.Millisecond
	if intervalStr := r.URL.Query().Get("interval"); intervalStr != "" {
		if ms, err := strconv.Atoi(intervalStr); err == nil && ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		} else {
			http.Error(w, "invalid interval: must be a positive integer (milliseconds)", http.StatusBadRequest)
			return
		}
	}

	run.Clock.Run(interval)
	s.logger.Infof("Run started: run_id=%s interval=%v", run.ID, interval)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("run started"))
}

// POST /runs/{runID}/stop
func (s *Server) handleStop(w http.ResponseWriter, run *earth.Run) {
	run.Clock.Stop()
	s.logger.Infof("Run stopped: run_id=%s", run.ID)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("run stopped"))
}

// handleNotifiersRoutes handles notifier management endpoints
func (s *Server) handleNotifiersRoutes(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/notifiers" && r.Method == http.MethodGet:
		s.handleListNotifiers(w, r)
	case r.URL.Path == "/notifiers" && r.Method == http.MethodPost:
		s.handleRegisterNotifier(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifiers/") && r.Method == http.MethodDelete:
		s.handleUnregisterNotifier(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	ids := s.notifications.ListNotifiers()
	list := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.notifications.GetNotifier(id); ok {
			list = append(list, map[string]string{"id": id, "type": n.Type()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifiers": list})
}

// POST /notifiers
// Body: { "type": "webhook", "id": "my-webhook", "config": { "url": "http://..." } }
type registerNotifierRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerNotifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	var notifier earth.Notifier
	switch req.Type {
	case "webhook":
		url, ok := req.Config["url"].(string)
		if !ok || url == "" {
			http.Error(w, "webhook URL is required", http.StatusBadRequest)
			return
		}
		wh := notifiers.NewWebhookNotifier(req.ID, url)
		if headers, ok := req.Config["headers"].(map[string]any); ok {
			for k, v := range headers {
				if vStr, ok := v.(string); ok {
					wh.SetHeader(k, vStr)
				}
			}
		}
		notifier = wh
	default:
		http.Error(w, "unknown notifier type: "+req.Type, http.StatusBadRequest)
		return
	}

	if err := s.notifications.RegisterNotifier(notifier); err != nil {
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier registered"))
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	notifierID := strings.TrimPrefix(r.URL.Path, "/notifiers/")
	if notifierID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}
	if notifierID == defaultWebSocketNotifierID {
		http.Error(w, "the websocket notifier cannot be removed", http.StatusBadRequest)
		return
	}

	if err := s.notifications.UnregisterNotifier(notifierID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier unregistered"))
}

// createBootRun starts the run described by a config file, used at startup.
func (s *Server) createBootRun(ctx context.Context, id string, rc earth.RunConfig) error {
	_, span := telemetry.Tracer().Start(ctx, "geosim.boot_run")
	defer span.End()

	run, err := s.runs.CreateRun(earth.RunID(id), rc)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Infof("Boot run created: run_id=%s", run.ID)
	return nil
}
