package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-alert-engine/internal/handlers"
	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/services/alert"
	"blood-alert-engine/internal/services/donors"
	s3service "blood-alert-engine/internal/services/s3"
)

type fakeDonors struct {
	byID       map[int64]*models.Donor
	registered []models.DonorCreate
	updates    map[int64]models.DonorUpdate
}

func newFakeDonors() *fakeDonors {
	return &fakeDonors{
		byID: map[int64]*models.Donor{
			1: {ID: 1, Name: "An", Email: "an@example.com", BloodType: models.BloodTypeOPositive},
		},
		updates: map[int64]models.DonorUpdate{},
	}
}

func (f *fakeDonors) Register(_ context.Context, in models.DonorCreate) (*donors.RegisterResult, error) {
	if in.Email == "an@example.com" {
		return nil, models.ErrDuplicateDonor
	}
	f.registered = append(f.registered, in)
	return &donors.RegisterResult{
		Donor:   &models.Donor{ID: 2, Name: in.Name, Email: in.Email},
		Located: true,
		Message: "Registration successful",
	}, nil
}

func (f *fakeDonors) Login(_ context.Context, req models.LoginRequest) (*models.Donor, error) {
	if err := models.ValidateLoginRequest(&req); err != nil {
		return nil, err
	}
	if req.Email != "an@example.com" || req.Password != "hunter22" {
		return nil, models.ErrInvalidCredentials
	}
	return f.byID[1], nil
}

func (f *fakeDonors) Update(_ context.Context, id int64, u models.DonorUpdate) (*models.Donor, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, models.ErrDonorNotFound
	}
	f.updates[id] = u
	return d, nil
}

func (f *fakeDonors) Get(_ context.Context, id int64) (*models.Donor, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, models.ErrDonorNotFound
	}
	return d, nil
}

func (f *fakeDonors) List(context.Context) ([]*models.Donor, error) {
	return nil, nil
}

type fakeAlerts struct {
	notifier bool
	support  []models.SupportRequest
}

func (f *fakeAlerts) ListHospitals(context.Context) ([]*models.Hospital, error) {
	return []*models.Hospital{{ID: 1, Name: "Cho Ray", Location: models.Coordinate{Lat: 10.7546, Lng: 106.6622}}}, nil
}

func (f *fakeAlerts) CreateAlert(_ context.Context, req models.AlertRequest) (*models.AlertResult, error) {
	if req.HospitalID != 1 {
		return nil, models.ErrHospitalNotFound
	}
	if err := models.ValidateAlertRequest(&req); err != nil {
		return nil, err
	}
	return &models.AlertResult{BloodTypeNeeded: req.BloodType, RadiusKm: 10, Donors: []models.RankedDonor{}}, nil
}

func (f *fakeAlerts) NotifyDonors(_ context.Context, req models.NotifyRequest) (*models.NotifyResult, error) {
	if !f.notifier {
		return nil, alert.ErrNotifierUnavailable
	}
	return &models.NotifyResult{Requested: len(req.DonorIDs), Sent: len(req.DonorIDs)}, nil
}

func (f *fakeAlerts) ContactSupport(_ context.Context, req models.SupportRequest) error {
	if err := models.ValidateSupportRequest(&req); err != nil {
		return err
	}
	f.support = append(f.support, req)
	return nil
}

type fakePresigner struct{}

func (fakePresigner) GeneratePresignedUploadURL(_ context.Context, key string, _ time.Duration) (*s3service.PresignedURLResult, error) {
	return &s3service.PresignedURLResult{URL: "https://example.com/" + key, Key: key}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func newTestServer(alerts *fakeAlerts) (*fakeDonors, http.Handler) {
	d := newFakeDonors()
	return d, New(d, alerts, WithUploads(fakePresigner{})).Handler()
}

type failingHealth struct{}

func (failingHealth) HealthCheck(context.Context) error { return errors.New("down") }

func TestHealth(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})
	rec, resp := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	degraded := New(newFakeDonors(), &fakeAlerts{}, WithHealth(handlers.NewHealthHandler(failingHealth{}, "test", ""))).Handler()
	rec, resp = do(t, degraded, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestListHospitals(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})
	rec, resp := do(t, h, http.MethodGet, "/api/hospitals", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)
}

func TestListDonorsEmpty(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})
	rec, _ := do(t, h, http.MethodGet, "/api/donors", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestRegisterDonor(t *testing.T) {
	d, h := newTestServer(&fakeAlerts{})

	rec, resp := do(t, h, http.MethodPost, "/api/donors",
		`{"full_name":"Binh","email":"binh@example.com","phone":"0902","address":"Q3","blood_type":"A+","password":"hunter22"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Registration successful", resp.Message)
	require.Len(t, d.registered, 1)
	assert.Equal(t, "Binh", d.registered[0].Name)
	assert.Equal(t, "hunter22", d.registered[0].Password)
	assert.NotContains(t, rec.Body.String(), "hunter22")

	rec, resp = do(t, h, http.MethodPost, "/api/donors",
		`{"full_name":"An","email":"an@example.com","phone":"0901","address":"Q1","blood_type":"O+"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.ErrDuplicateDonor.Error(), resp.Error)

	rec, _ = do(t, h, http.MethodPost, "/api/donors", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})

	rec, resp := do(t, h, http.MethodPost, "/api/login", `{"email":"an@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Login successful", resp.Message)
	assert.Contains(t, rec.Body.String(), `"email":"an@example.com"`)

	rec, resp = do(t, h, http.MethodPost, "/api/login", `{"email":"an@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.ErrInvalidCredentials.Error(), resp.Error)

	rec, _ = do(t, h, http.MethodPost, "/api/login", `{"email":"an@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/login", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetAndUpdateDonor(t *testing.T) {
	d, h := newTestServer(&fakeAlerts{})

	rec, _ := do(t, h, http.MethodGet, "/api/donors/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/donors/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/donors/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := do(t, h, http.MethodPatch, "/api/donors/1", `{"phone":"0999"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Profile updated", resp.Message)
	require.NotNil(t, d.updates[1].Phone)
	assert.Equal(t, "0999", *d.updates[1].Phone)
}

func TestCreateAlert(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})

	rec, resp := do(t, h, http.MethodPost, "/api/alerts", `{"hospital_id":1,"blood_type":"o+"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = do(t, h, http.MethodPost, "/api/alerts", `{"hospital_id":9,"blood_type":"O+"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/alerts", `{"hospital_id":1,"blood_type":"O+","radius_km":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/alerts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNotify(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})
	rec, _ := do(t, h, http.MethodPost, "/api/notifications", `{"donor_ids":[1],"message":"Need O+"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, h = newTestServer(&fakeAlerts{notifier: true})
	rec, resp := do(t, h, http.MethodPost, "/api/notifications", `{"donor_ids":[1,2],"message":"Need O+"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sent 2 alert emails", resp.Message)
}

func TestSupport(t *testing.T) {
	alerts := &fakeAlerts{}
	_, h := newTestServer(alerts)

	rec, _ := do(t, h, http.MethodPost, "/api/support", `{"name":"Chi","email":"chi@example.com","phone":"0903","message":" help "}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, alerts.support, 1)
	assert.Equal(t, "help", alerts.support[0].Message)

	rec, _ = do(t, h, http.MethodPost, "/api/support", `{"name":"Chi","email":"not-an-email","phone":"0903","message":"help"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPresignedURL(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})

	rec, _ := do(t, h, http.MethodGet, "/api/presigned-url?filename=donors.csv", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), s3service.UploadPrefix+"donors_")

	rec, _ = do(t, h, http.MethodGet, "/api/presigned-url?filename=donors.txt", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noUploads := New(newFakeDonors(), &fakeAlerts{}).Handler()
	rec, _ = do(t, noUploads, http.MethodGet, "/api/presigned-url", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(&fakeAlerts{})
	req := httptest.NewRequest(http.MethodOptions, "/api/alerts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
