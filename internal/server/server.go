// Package server exposes the blood alert engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"blood-alert-engine/internal/handlers"
	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/services/donors"
	s3service "blood-alert-engine/internal/services/s3"
)

// DonorService manages donor accounts.
type DonorService interface {
	Register(ctx context.Context, in models.DonorCreate) (*donors.RegisterResult, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.Donor, error)
	Update(ctx context.Context, id int64, u models.DonorUpdate) (*models.Donor, error)
	Get(ctx context.Context, id int64) (*models.Donor, error)
	List(ctx context.Context) ([]*models.Donor, error)
}

// AlertService ranks and notifies donors.
type AlertService interface {
	ListHospitals(ctx context.Context) ([]*models.Hospital, error)
	CreateAlert(ctx context.Context, req models.AlertRequest) (*models.AlertResult, error)
	NotifyDonors(ctx context.Context, req models.NotifyRequest) (*models.NotifyResult, error)
	ContactSupport(ctx context.Context, req models.SupportRequest) error
}

// Response is the JSON envelope shared with the Lambda handlers.
type Response = handlers.Response

const uploadURLExpiry = 15 * time.Minute

// Server holds the HTTP routes and their dependencies.
type Server struct {
	donors  DonorService
	alerts  AlertService
	health  *handlers.HealthHandler
	uploads handlers.UploadPresigner
	origins []string
	logger  *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithUploads enables the presigned upload route.
func WithUploads(p handlers.UploadPresigner) Option {
	return func(s *Server) { s.uploads = p }
}

// WithHealth sets the health reporter.
func WithHealth(h *handlers.HealthHandler) Option {
	return func(s *Server) { s.health = h }
}

// WithCORSOrigins restricts the allowed origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server.
func New(donorSvc DonorService, alertSvc AlertService, opts ...Option) *Server {
	s := &Server{
		donors:  donorSvc,
		alerts:  alertSvc,
		health:  handlers.NewHealthHandler(nil, "", ""),
		origins: []string{"*"},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/health", s.healthHandler)

	mux.HandleFunc("GET /api/hospitals", s.listHospitalsHandler)

	mux.HandleFunc("GET /api/donors", s.listDonorsHandler)
	mux.HandleFunc("POST /api/donors", s.registerDonorHandler)
	mux.HandleFunc("POST /api/login", s.loginHandler)
	mux.HandleFunc("GET /api/donors/{id}", s.getDonorHandler)
	mux.HandleFunc("PATCH /api/donors/{id}", s.updateDonorHandler)

	mux.HandleFunc("POST /api/alerts", s.createAlertHandler)
	mux.HandleFunc("POST /api/notifications", s.notifyHandler)
	mux.HandleFunc("POST /api/support", s.supportHandler)

	mux.HandleFunc("GET /api/presigned-url", s.presignedURLHandler)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(s.logRequests(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, Response{
		Success: status == http.StatusOK,
		Message: "Blood alert engine is running",
		Data:    report,
	})
}

func (s *Server) listHospitalsHandler(w http.ResponseWriter, r *http.Request) {
	hospitals, err := s.alerts.ListHospitals(r.Context())
	if err != nil {
		s.writeError(w, "Failed to list hospitals", err)
		return
	}
	if hospitals == nil {
		hospitals = []*models.Hospital{}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: hospitals})
}

func (s *Server) listDonorsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.donors.List(r.Context())
	if err != nil {
		s.writeError(w, "Failed to list donors", err)
		return
	}
	if list == nil {
		list = []*models.Donor{}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: list})
}

func (s *Server) registerDonorHandler(w http.ResponseWriter, r *http.Request) {
	var in models.DonorCreate
	if !decodeBody(w, r, &in) {
		return
	}

	result, err := s.donors.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, "Failed to register donor", err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: result.Message,
		Data:    result,
	})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	donor, err := s.donors.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, "Failed to log in", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Login successful", Data: donor})
}

func (s *Server) getDonorHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	donor, err := s.donors.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, "Failed to load donor", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: donor})
}

func (s *Server) updateDonorHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var u models.DonorUpdate
	if !decodeBody(w, r, &u) {
		return
	}

	donor, err := s.donors.Update(r.Context(), id, u)
	if err != nil {
		s.writeError(w, "Failed to update donor", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Profile updated", Data: donor})
}

func (s *Server) createAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AlertRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.alerts.CreateAlert(r.Context(), req)
	if err != nil {
		s.writeError(w, "Failed to create alert", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

func (s *Server) notifyHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NotifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.alerts.NotifyDonors(r.Context(), req)
	if err != nil {
		s.writeError(w, "Failed to notify donors", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Sent " + strconv.Itoa(result.Sent) + " alert emails",
		Data:    result,
	})
}

func (s *Server) supportHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SupportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.alerts.ContactSupport(r.Context(), req); err != nil {
		s.writeError(w, "Failed to send support message", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Message sent"})
}

func (s *Server) presignedURLHandler(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Error: "Uploads are not configured"})
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename != "" && !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Only CSV files are allowed"})
		return
	}

	result, err := s.uploads.GeneratePresignedUploadURL(r.Context(), s3service.NewUploadKey(filename, time.Now()), uploadURLExpiry)
	if err != nil {
		s.writeError(w, "Failed to generate upload URL", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

// writeError maps err to a status and hides internal failures from the client.
func (s *Server) writeError(w http.ResponseWriter, msg string, err error) {
	status := handlers.StatusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	}
	writeJSON(w, status, Response{Success: false, Error: handlers.PublicMessage(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid donor id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
