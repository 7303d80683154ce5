package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/services/alert"
	s3service "blood-alert-engine/internal/services/s3"
)

func decode(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrHospitalNotFound, http.StatusNotFound},
		{fmt.Errorf("lookup: %w", models.ErrDonorNotFound), http.StatusNotFound},
		{models.ErrDuplicateDonor, http.StatusConflict},
		{models.ErrInvalidRadius, http.StatusBadRequest},
		{fmt.Errorf("%w: X+", models.ErrInvalidBloodType), http.StatusBadRequest},
		{models.ErrEmptyUpdate, http.StatusBadRequest},
		{alert.ErrNotifierUnavailable, http.StatusServiceUnavailable},
		{models.ErrInvalidCredentials, http.StatusUnauthorized},
		{models.ErrPasswordTooLong, http.StatusBadRequest},
		{fmt.Errorf("%w: %v", alert.ErrCorruptLocation, models.ErrInvalidCoordinate), http.StatusInternalServerError},
		{fmt.Errorf("%w: %w", alert.ErrCorruptLocation, models.ErrInvalidCoordinate), http.StatusInternalServerError},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), tt.err.Error())
	}

	assert.Equal(t, "Internal server error", PublicMessage(errors.New("pq: secret detail")))
	assert.Equal(t, models.ErrHospitalNotFound.Error(), PublicMessage(models.ErrHospitalNotFound))
	assert.Equal(t, "Internal server error", PublicMessage(fmt.Errorf("%w: lat 200", alert.ErrCorruptLocation)))
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler(stubHealth{}, "dev", "")
		resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode(t, resp.Body)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "healthy", data["status"])
		assert.Equal(t, "connected", data["database"])
		assert.Equal(t, "1.0.0", data["version"])
	})

	t.Run("database down", func(t *testing.T) {
		h := NewHealthHandler(stubHealth{err: errors.New("timeout")}, "prod", "2.0.0")
		resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		data := decode(t, resp.Body)["data"].(map[string]interface{})
		assert.Equal(t, "degraded", data["status"])
		assert.Equal(t, "disconnected", data["database"])
	})

	t.Run("no database", func(t *testing.T) {
		report := NewHealthHandler(nil, "dev", "").Check(context.Background())
		assert.Equal(t, "healthy", report.Status)
		assert.Equal(t, "not configured", report.Database)
	})
}

type stubAlerts struct {
	got    models.AlertRequest
	result *models.AlertResult
	err    error
}

func (s *stubAlerts) CreateAlert(_ context.Context, req models.AlertRequest) (*models.AlertResult, error) {
	s.got = req
	return s.result, s.err
}

func TestCreateAlertHandler(t *testing.T) {
	t.Run("returns ranked donors", func(t *testing.T) {
		alerts := &stubAlerts{result: &models.AlertResult{
			BloodTypeNeeded: models.BloodTypeOPositive,
			RadiusKm:        10,
			TotalMatched:    1,
			Donors: []models.RankedDonor{
				{Donor: models.DonorSummary{ID: 7, Name: "An"}, DistanceKm: 2, Score: 0.92},
			},
		}}
		resp, err := NewCreateAlertHandler(alerts).Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodPost,
			Body:       `{"hospital_id": 1, "blood_type": "O+", "radius_km": 10}`,
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(1), alerts.got.HospitalID)
		require.NotNil(t, alerts.got.RadiusKm)
		assert.Equal(t, 10.0, *alerts.got.RadiusKm)

		body := decode(t, resp.Body)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]interface{})
		assert.Equal(t, float64(1), data["total_matched"])
	})

	t.Run("invalid body", func(t *testing.T) {
		resp, err := NewCreateAlertHandler(&stubAlerts{}).Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodPost,
			Body:       `{not json`,
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown hospital", func(t *testing.T) {
		resp, err := NewCreateAlertHandler(&stubAlerts{err: models.ErrHospitalNotFound}).Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodPost,
			Body:       `{"hospital_id": 99, "blood_type": "A-"}`,
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "hospital not found", decode(t, resp.Body)["error"])
	})

	t.Run("preflight", func(t *testing.T) {
		resp, err := NewCreateAlertHandler(&stubAlerts{}).Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodOptions,
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "POST,OPTIONS", resp.Headers["Access-Control-Allow-Methods"])
	})
}

type stubPresigner struct {
	key    string
	expiry time.Duration
	err    error
}

func (s *stubPresigner) GeneratePresignedUploadURL(_ context.Context, key string, expiry time.Duration) (*s3service.PresignedURLResult, error) {
	s.key, s.expiry = key, expiry
	if s.err != nil {
		return nil, s.err
	}
	return &s3service.PresignedURLResult{URL: "https://bucket.example/" + key, Key: key}, nil
}

func TestPresignedURLHandler(t *testing.T) {
	t.Run("issues upload url", func(t *testing.T) {
		presigner := &stubPresigner{}
		h := NewPresignedURLHandler(presigner)
		h.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

		resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:            http.MethodGet,
			QueryStringParameters: map[string]string{"filename": "donors.csv"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.HasPrefix(presigner.key, s3service.UploadPrefix+"donors_20240601T120000_"))
		assert.Equal(t, time.Hour, presigner.expiry)

		data := decode(t, resp.Body)["data"].(map[string]interface{})
		assert.Equal(t, presigner.key, data["s3Key"])
		assert.Equal(t, float64(3600), data["expiresIn"])
	})

	t.Run("rejects non csv", func(t *testing.T) {
		resp, err := NewPresignedURLHandler(&stubPresigner{}).Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:            http.MethodGet,
			QueryStringParameters: map[string]string{"filename": "donors.xlsx"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("presign failure", func(t *testing.T) {
		resp, err := NewPresignedURLHandler(&stubPresigner{err: errors.New("no credentials")}).Handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodGet,
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

type memoryFiles struct {
	files map[string][]byte
	moved map[string]string
}

func (m *memoryFiles) DownloadFile(_ context.Context, key string) ([]byte, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memoryFiles) MoveFile(_ context.Context, src, dst string) error {
	m.moved[src] = dst
	return nil
}

type recordingImporter struct {
	rows []*models.DonorCreate
}

func (r *recordingImporter) Import(_ context.Context, rows []*models.DonorCreate) (*models.BulkInsertResult, error) {
	r.rows = append(r.rows, rows...)
	return &models.BulkInsertResult{InsertedCount: len(rows)}, nil
}

func s3Event(keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		var rec events.S3EventRecord
		rec.S3.Object.Key = k
		ev.Records = append(ev.Records, rec)
	}
	return ev
}

func TestDonorImportHandler(t *testing.T) {
	csv := "name,email,phone,address,blood_type,lat,lng,last_donation\n" +
		"An,an@example.com,0901,Q1,O+,10.77,106.70,2024-01-10\n" +
		"Binh,binh@example.com,0902,Q3,ZZ,10.78,106.69,\n" +
		"Chi,chi@example.com,0903,Q5,A-,,,\n"

	files := &memoryFiles{
		files: map[string][]byte{"uploads/batch one.csv": []byte(csv)},
		moved: map[string]string{},
	}
	importer := &recordingImporter{}
	h := NewDonorImportHandler(files, importer)
	h.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	results, err := h.Handle(context.Background(), s3Event("uploads/batch+one.csv", "processed/old.csv"))
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "uploads/batch one.csv", res.Key)
	assert.Len(t, res.BatchID, 16)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)

	require.Len(t, importer.rows, 2)
	assert.Equal(t, res.BatchID, importer.rows[0].BatchID)
	assert.Equal(t, "processed/batch one.csv", files.moved["uploads/batch one.csv"])
}

func TestDonorImportHandlerDownloadFailure(t *testing.T) {
	h := NewDonorImportHandler(&memoryFiles{files: map[string][]byte{}, moved: map[string]string{}}, &recordingImporter{})
	_, err := h.Handle(context.Background(), s3Event("uploads/missing.csv"))
	assert.Error(t, err)
}

func TestGenerateBatchID(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a := generateBatchID("uploads/a.csv", now)
	assert.Len(t, a, 16)
	assert.Equal(t, a, generateBatchID("uploads/a.csv", now))
	assert.NotEqual(t, a, generateBatchID("uploads/b.csv", now))
}
