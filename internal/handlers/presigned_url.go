package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	s3service "blood-alert-engine/internal/services/s3"
	"blood-alert-engine/internal/utils"
)

const uploadURLExpiry = time.Hour

// UploadPresigner issues presigned upload URLs.
type UploadPresigner interface {
	GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (*s3service.PresignedURLResult, error)
}

// PresignedURLHandler handles requests for donor CSV upload URLs.
type PresignedURLHandler struct {
	storage UploadPresigner
	now     func() time.Time
}

// NewPresignedURLHandler creates a new presigned URL handler.
func NewPresignedURLHandler(storage UploadPresigner) *PresignedURLHandler {
	return &PresignedURLHandler{storage: storage, now: time.Now}
}

// PresignedURLResponse is the response structure for presigned URL requests.
type PresignedURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	S3Key     string `json:"s3Key"`
	ExpiresIn int    `json:"expiresIn"`
}

// Handle processes the API Gateway request for generating presigned URLs.
func (h *PresignedURLHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := utils.GetLogger()
	headers := corsHeaders("GET,OPTIONS")

	if request.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: headers}, nil
	}

	filename := request.QueryStringParameters["filename"]
	if filename != "" && !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return errorResponse(headers, http.StatusBadRequest, "Only CSV files are allowed")
	}

	key := s3service.NewUploadKey(filename, h.now())
	presigned, err := h.storage.GeneratePresignedUploadURL(ctx, key, uploadURLExpiry)
	if err != nil {
		logger.Error("Failed to generate presigned URL", utils.Error(err))
		return errorResponse(headers, http.StatusInternalServerError, "Failed to generate upload URL")
	}

	return jsonResponse(headers, http.StatusOK, Response{
		Success: true,
		Data: PresignedURLResponse{
			UploadURL: presigned.URL,
			S3Key:     presigned.Key,
			ExpiresIn: int(uploadURLExpiry.Seconds()),
		},
	})
}
