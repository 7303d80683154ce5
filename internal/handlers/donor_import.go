package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"blood-alert-engine/internal/models"
	s3service "blood-alert-engine/internal/services/s3"
	"blood-alert-engine/internal/utils"
)

const maxReportedErrors = 10

// FileStore reads and archives uploaded files.
type FileStore interface {
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	MoveFile(ctx context.Context, sourceKey, destKey string) error
}

// DonorImporter persists parsed donor rows.
type DonorImporter interface {
	Import(ctx context.Context, rows []*models.DonorCreate) (*models.BulkInsertResult, error)
}

// DonorImportHandler imports donor CSV files dropped into the upload prefix.
type DonorImportHandler struct {
	storage  FileStore
	importer DonorImporter
	now      func() time.Time
}

// NewDonorImportHandler creates a new import handler.
func NewDonorImportHandler(storage FileStore, importer DonorImporter) *DonorImportHandler {
	return &DonorImportHandler{storage: storage, importer: importer, now: time.Now}
}

// ImportResult summarises one processed file.
type ImportResult struct {
	Key      string   `json:"key"`
	BatchID  string   `json:"batch_id"`
	Message  string   `json:"message"`
	Inserted int      `json:"inserted"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Handle processes every CSV object in the S3 event.
func (h *DonorImportHandler) Handle(ctx context.Context, s3Event events.S3Event) ([]ImportResult, error) {
	logger := utils.GetLogger()
	results := make([]ImportResult, 0, len(s3Event.Records))

	for _, record := range s3Event.Records {
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			return results, fmt.Errorf("failed to decode S3 key: %w", err)
		}
		if !strings.HasPrefix(key, s3service.UploadPrefix) || !strings.HasSuffix(strings.ToLower(key), ".csv") {
			logger.Info("Skipping object outside the upload prefix", utils.String("key", key))
			continue
		}

		result, err := h.processFile(ctx, key)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (h *DonorImportHandler) processFile(ctx context.Context, key string) (ImportResult, error) {
	logger := utils.GetLogger()
	batchID := generateBatchID(key, h.now())
	logger.Info("Processing donor CSV", utils.String("key", key), utils.String("batchID", batchID))

	content, err := h.storage.DownloadFile(ctx, key)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to download %s: %w", key, err)
	}

	rows, parseErrors := utils.NewCSVParser().ParseDonors(string(content), batchID)

	result := ImportResult{Key: key, BatchID: batchID, Failed: len(parseErrors)}
	for _, e := range parseErrors {
		result.Errors = append(result.Errors, e.Error())
	}

	if len(rows) == 0 {
		result.Message = "No valid donors found in CSV"
	} else {
		inserted, err := h.importer.Import(ctx, rows)
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to import donors from %s: %w", key, err)
		}
		result.Message = "CSV processed successfully"
		result.Inserted = inserted.InsertedCount
		result.Failed += inserted.FailedCount
		result.Errors = append(result.Errors, inserted.Errors...)
	}

	if len(result.Errors) > maxReportedErrors {
		result.Errors = result.Errors[:maxReportedErrors]
	}

	if err := h.storage.MoveFile(ctx, key, s3service.ProcessedKey(key)); err != nil {
		logger.Warn("Failed to archive file", utils.String("key", key), utils.Error(err))
	}

	logger.Info("Imported donor CSV",
		utils.String("batchID", batchID),
		utils.Int("inserted", result.Inserted),
		utils.Int("failed", result.Failed))

	return result, nil
}

// generateBatchID derives a short batch ID from the object key and time.
func generateBatchID(key string, now time.Time) string {
	hash := sha256.Sum256([]byte(key + now.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(hash[:])[:16]
}
