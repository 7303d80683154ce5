package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// HealthChecker reports backing store connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db      HealthChecker
	stage   string
	version string
}

// NewHealthHandler creates a new health handler. db may be nil.
func NewHealthHandler(db HealthChecker, stage, version string) *HealthHandler {
	if version == "" {
		version = "1.0.0"
	}
	return &HealthHandler{db: db, stage: stage, version: version}
}

// HealthResponse is the response structure for health checks.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Stage     string `json:"stage"`
	Database  string `json:"database"`
}

// Check builds the health report.
func (h *HealthHandler) Check(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   "blood-alert-engine",
		Version:   h.version,
		Stage:     h.stage,
		Database:  "not configured",
	}

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			response.Database = "disconnected"
			response.Status = "degraded"
		} else {
			response.Database = "connected"
		}
	}

	return response
}

// Handle processes health check requests.
func (h *HealthHandler) Handle(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	report := h.Check(ctx)

	statusCode := http.StatusOK
	if report.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return jsonResponse(corsHeaders("GET,OPTIONS"), statusCode, Response{
		Success: statusCode == http.StatusOK,
		Message: "Blood alert engine is running",
		Data:    report,
	})
}
