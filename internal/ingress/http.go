// Package ingress exposes the orchestrator and the simulation harness over
// HTTP.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carelane/carelane/internal/approval"
	"github.com/carelane/carelane/internal/config"
	careErrors "github.com/carelane/carelane/internal/errors"
	"github.com/carelane/carelane/internal/orchestrator"
	"github.com/carelane/carelane/internal/schedule"
	"github.com/carelane/carelane/internal/sim"
)

// HTTPServer serves the turn, decision, and simulation endpoints.
type HTTPServer struct {
	orch    *orchestrator.Orchestrator
	harness *sim.Harness
	sandbox func() *schedule.MemoryStore
	simOpts sim.Options
	server  *http.Server
}

// NewHTTPServer wires the API surface. sandbox yields a fresh simulation base
// per run so simulations never touch the live schedule. approvalWait is the
// gate timeout; turn responses must be able to outlast it.
func NewHTTPServer(cfg config.ServerConfig, approvalWait time.Duration, orch *orchestrator.Orchestrator, harness *sim.Harness, sandbox func() *schedule.MemoryStore, simOpts sim.Options) *HTTPServer {
	if approvalWait <= 0 {
		approvalWait = duration(config.DefaultApprovalTimeout, config.DefaultApprovalTimeout)
	}

	mux := http.NewServeMux()
	s := &HTTPServer{
		orch:    orch,
		harness: harness,
		sandbox: sandbox,
		simOpts: simOpts,
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			Handler:     mux,
			ReadTimeout: duration(cfg.ReadTimeout, config.DefaultServerReadTimeout),
			// Turns block while an approval is pending, so writes get the
			// full approval window on top of the configured timeout, plus
			// slack for the tool call itself.
			WriteTimeout: duration(cfg.WriteTimeout, config.DefaultServerWriteTimeout) + approvalWait + 30*time.Second,
			IdleTimeout:  duration(cfg.IdleTimeout, config.DefaultServerIdleTimeout),
		},
	}

	mux.HandleFunc("/api/v1/turns", s.handleTurns)
	mux.HandleFunc("/api/v1/decisions", s.handleDecisions)
	mux.HandleFunc("/api/v1/simulations", s.handleSimulations)
	mux.HandleFunc("/api/v1/simulations/last", s.handleLastSimulation)
	mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Start serves in a goroutine.
func (s *HTTPServer) Start() {
	go func() {
		slog.Info("Starting HTTP server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

type turnRequest struct {
	PatientID string `json:"patient_id"`
	Message   string `json:"message"`
}

func (s *HTTPServer) handleTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PatientID == "" || req.Message == "" {
		http.Error(w, "Missing required fields: patient_id, message", http.StatusBadRequest)
		return
	}

	result, err := s.orch.ExecuteTurn(r.Context(), req.PatientID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type decisionRequest struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
	Reason     string `json:"reason"`
}

func (s *HTTPServer) handleDecisions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{"pending": s.orch.PendingApprovals()})

	case http.MethodPost:
		var req decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.ApprovalID == "" {
			http.Error(w, "Missing required field: approval_id", http.StatusBadRequest)
			return
		}

		err := s.orch.SubmitDecision(req.ApprovalID, approval.Decision{Approved: req.Approved, Reason: req.Reason})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "approval_id": req.ApprovalID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type simulationRequest struct {
	Count       int    `json:"count"`
	Concurrency int    `json:"concurrency"`
	Seed        *int64 `json:"seed"`
	Policy      string `json:"policy"`
}

func (s *HTTPServer) handleSimulations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req simulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	opts := s.simOpts
	if req.Count > 0 {
		opts.Count = req.Count
	}
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.Policy != "" {
		opts.Policy = req.Policy
	}

	report, err := s.harness.Run(r.Context(), s.sandbox(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleLastSimulation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := s.harness.LastReport()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func duration(value, fallback string) time.Duration {
	d, err := config.DurationOrDefault(value, fallback)
	if err != nil {
		d, _ = config.DurationOrDefault(fallback, fallback)
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch careErrors.Classify(err) {
	case careErrors.ClassValidation:
		status = http.StatusUnprocessableEntity
	case careErrors.ClassDomain:
		if errors.Is(err, careErrors.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			status = http.StatusConflict
		}
	case careErrors.ClassApproval:
		status = http.StatusForbidden
	case careErrors.ClassUnavailable:
		status = http.StatusServiceUnavailable
	default:
		if errors.Is(err, careErrors.ErrSimulationConfig) {
			status = http.StatusBadRequest
		}
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  careErrors.Category(err),
	})
}
