package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/far-audit/pkg/config"
	"github.com/ekaya-inc/far-audit/pkg/far"
	"github.com/ekaya-inc/far-audit/pkg/llm"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports whether auditing runs degraded.
type HealthResponse struct {
	Status     string `json:"status"`
	Rules      int    `json:"rules"`
	LLMCircuit string `json:"llm_circuit,omitempty"`
}

// CircuitReporter exposes the LLM circuit breaker state.
type CircuitReporter interface {
	State() llm.CircuitState
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg     *config.Config
	rules   *far.RuleIndex
	circuit CircuitReporter
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. circuit may be nil.
func NewHealthHandler(cfg *config.Config, rules *far.RuleIndex, circuit CircuitReporter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, rules: rules, circuit: circuit, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Status is "degraded" when the rule index is empty or the LLM circuit is open.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Rules: h.rules.Len()}
	if resp.Rules == 0 {
		resp.Status = "degraded"
	}
	if h.circuit != nil {
		state := h.circuit.State()
		resp.LLMCircuit = state.String()
		if state == llm.CircuitOpen {
			resp.Status = "degraded"
		}
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "far-audit",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
