// Package handlers provides the AWS Lambda handlers for the blood alert engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"

	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/services/alert"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusForError maps domain errors onto HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, alert.ErrCorruptLocation):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrHospitalNotFound), errors.Is(err, models.ErrDonorNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateDonor):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidRadius),
		errors.Is(err, models.ErrInvalidLimit),
		errors.Is(err, models.ErrInvalidBloodType),
		errors.Is(err, models.ErrInvalidDate),
		errors.Is(err, models.ErrInvalidEmail),
		errors.Is(err, models.ErrInvalidCoordinate),
		errors.Is(err, models.ErrMissingFields),
		errors.Is(err, models.ErrPasswordTooLong),
		errors.Is(err, models.ErrEmptyUpdate):
		return http.StatusBadRequest
	case errors.Is(err, alert.ErrNotifierUnavailable):
		return http.StatusServiceUnavailable
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the error text safe to show a client.
func PublicMessage(err error) string {
	if StatusForError(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}

func corsHeaders(methods string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,Authorization",
		"Access-Control-Allow-Methods": methods,
		"Content-Type":                 "application/json",
	}
}

func jsonResponse(headers map[string]string, statusCode int, resp Response) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(body),
	}, nil
}

func errorResponse(headers map[string]string, statusCode int, message string) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(headers, statusCode, Response{Success: false, Error: message})
}
