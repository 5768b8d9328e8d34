package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// BrokerStatus reports the broker side of the bridge
type BrokerStatus interface {
	IsConnected() bool
}

// AgentStatus reports the agent socket side of the bridge
type AgentStatus interface {
	IsConnected() bool
	Session() string
}

// Checker provides health check functionality for the bridge
type Checker struct {
	broker BrokerStatus
	agent  AgentStatus
	logger *slog.Logger
}

// NewChecker creates a new health checker with the given dependencies
func NewChecker(broker BrokerStatus, agent AgentStatus, logger *slog.Logger) *Checker {
	return &Checker{
		broker: broker,
		agent:  agent,
		logger: logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of both bridge endpoints
type Services struct {
	MQTT         string `json:"mqtt"`
	Agent        string `json:"agent"`
	AgentSession string `json:"agent_session,omitempty"`
}

// HandlerFunc returns an HTTP handler function for health checks.
// Returns 200 if the process is alive without checking either side.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}

		h.write(w, http.StatusOK, response)
	}
}

// DetailedHandlerFunc returns a handler that reports both connections.
// It answers 503 while either side is reconnecting.
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			MQTT:  "disconnected",
			Agent: "disconnected",
		}

		if h.broker != nil && h.broker.IsConnected() {
			services.MQTT = "connected"
		}
		if h.agent != nil {
			if h.agent.IsConnected() {
				services.Agent = "connected"
			}
			services.AgentSession = h.agent.Session()
		}

		status := "healthy"
		statusCode := http.StatusOK

		if services.MQTT == "disconnected" || services.Agent == "disconnected" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		}

		h.write(w, statusCode, response)
	}
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
