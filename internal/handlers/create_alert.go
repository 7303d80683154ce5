package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/utils"
)

// AlertCreator ranks donors for an alert.
type AlertCreator interface {
	CreateAlert(ctx context.Context, req models.AlertRequest) (*models.AlertResult, error)
}

// CreateAlertHandler serves POST /alerts through API Gateway.
type CreateAlertHandler struct {
	alerts AlertCreator
}

// NewCreateAlertHandler creates a new alert handler.
func NewCreateAlertHandler(alerts AlertCreator) *CreateAlertHandler {
	return &CreateAlertHandler{alerts: alerts}
}

// Handle decodes the alert request and returns the ranked donors.
func (h *CreateAlertHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := utils.GetLogger()
	headers := corsHeaders("POST,OPTIONS")

	if request.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: headers}, nil
	}

	var req models.AlertRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return errorResponse(headers, http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.alerts.CreateAlert(ctx, req)
	if err != nil {
		status := StatusForError(err)
		if status == http.StatusInternalServerError {
			logger.Error("Failed to create alert", utils.Int64("hospitalID", req.HospitalID), utils.Error(err))
		}
		return errorResponse(headers, status, PublicMessage(err))
	}

	return jsonResponse(headers, http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}
