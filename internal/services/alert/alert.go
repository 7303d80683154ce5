// Package alert turns a hospital's urgent blood request into a ranked list of
// nearby donors and sends the resulting notifications.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/services/matcher"
)

var (
	// ErrNotifierUnavailable is returned when email delivery is not configured.
	ErrNotifierUnavailable = errors.New("email notifications are not configured")
	// ErrCorruptLocation reports a stored hospital or donor coordinate that
	// fails validation.
	ErrCorruptLocation = errors.New("stored location is invalid")
)

// HospitalStore loads hospitals.
type HospitalStore interface {
	GetByID(ctx context.Context, id int64) (*models.Hospital, error)
	ListAll(ctx context.Context) ([]*models.Hospital, error)
}

// DonorStore loads donors.
type DonorStore interface {
	ListEligible(ctx context.Context, bloodType models.BloodType, ids []int64) ([]*models.Donor, error)
	CountEligible(ctx context.Context, bloodType models.BloodType) (int64, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*models.Donor, error)
}

// GeoIndex narrows the donor pool before the exact filter.
type GeoIndex interface {
	WithinRadius(ctx context.Context, bloodType models.BloodType, center models.Coordinate, radiusKm float64) ([]int64, error)
	Count(ctx context.Context, bloodType models.BloodType) (int64, error)
}

// Notifier delivers alert and support emails.
type Notifier interface {
	SendDonorAlerts(ctx context.Context, donors []*models.Donor, message string) *models.NotifyResult
	SendSupportMessage(ctx context.Context, req models.SupportRequest) error
}

// Service coordinates alert creation and donor notification.
type Service struct {
	hospitals     HospitalStore
	donors        DonorStore
	notifier      Notifier
	index         GeoIndex
	engine        *matcher.Engine
	defaultRadius float64
	defaultLimit  int
	now           func() time.Time
	logger        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGeoIndex enables the Redis prefilter.
func WithGeoIndex(index GeoIndex) Option {
	return func(s *Service) { s.index = index }
}

// WithNotifier sets the email sender.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the evaluation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaults sets the radius and result cap used when a request omits them.
func WithDefaults(radiusKm float64, limit int) Option {
	return func(s *Service) {
		if radiusKm > 0 {
			s.defaultRadius = radiusKm
		}
		if limit > 0 {
			s.defaultLimit = limit
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates an alert service.
func NewService(hospitals HospitalStore, donors DonorStore, engine *matcher.Engine, opts ...Option) *Service {
	s := &Service{
		hospitals:     hospitals,
		donors:        donors,
		engine:        engine,
		defaultRadius: matcher.DefaultRadiusKm,
		defaultLimit:  matcher.DefaultLimit,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListHospitals returns every registered hospital.
func (s *Service) ListHospitals(ctx context.Context) ([]*models.Hospital, error) {
	return s.hospitals.ListAll(ctx)
}

// CreateAlert ranks the donors of the requested blood type around the hospital.
func (s *Service) CreateAlert(ctx context.Context, req models.AlertRequest) (*models.AlertResult, error) {
	if err := models.ValidateAlertRequest(&req); err != nil {
		return nil, err
	}

	radius := s.defaultRadius
	if req.RadiusKm != nil {
		radius = *req.RadiusKm
	}
	limit := s.defaultLimit
	if req.Limit > 0 {
		limit = req.Limit
	}

	hospital, err := s.hospitals.GetByID(ctx, req.HospitalID)
	if err != nil {
		return nil, err
	}

	ids := s.candidateIDs(ctx, req.BloodType, hospital.Location, radius)

	donors, err := s.donors.ListEligible(ctx, req.BloodType, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load donors: %w", err)
	}

	match, err := s.engine.Match(hospital.Location, donors, matcher.Options{
		RadiusKm: radius,
		Limit:    limit,
		Now:      s.now(),
	})
	if errors.Is(err, models.ErrInvalidCoordinate) {
		s.logger.Error("Stored location failed validation",
			zap.Int64("hospital_id", hospital.ID),
			zap.String("blood_type", string(req.BloodType)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCorruptLocation, err)
	}
	if err != nil {
		return nil, err
	}

	result := &models.AlertResult{
		Hospital:        hospital,
		BloodTypeNeeded: req.BloodType,
		RadiusKm:        radius,
		TotalMatched:    match.TotalMatched,
		Excluded:        match.Excluded,
		Donors:          make([]models.RankedDonor, len(match.Candidates)),
	}
	for i, c := range match.Candidates {
		result.Donors[i] = models.RankedDonor{
			Donor:      c.Donor.ToSummary(),
			DistanceKm: c.DistanceKm,
			Score:      c.Score,
		}
	}

	s.logger.Info("Alert created",
		zap.Int64("hospital_id", hospital.ID),
		zap.String("blood_type", string(req.BloodType)),
		zap.Float64("radius_km", radius),
		zap.Int("pool", len(donors)),
		zap.Int("matched", result.TotalMatched),
		zap.Int("returned", len(result.Donors)),
	)

	return result, nil
}

// candidateIDs asks the geo index for donors near center. It returns nil, which
// means scan the whole blood type, when there is no index, the index is
// stale or unreachable, or its member count disagrees with the store.
func (s *Service) candidateIDs(ctx context.Context, bloodType models.BloodType, center models.Coordinate, radiusKm float64) []int64 {
	if s.index == nil {
		return nil
	}

	indexed, err := s.index.Count(ctx, bloodType)
	if err != nil {
		s.logger.Warn("Geo index unavailable, scanning all donors", zap.Error(err))
		return nil
	}
	stored, err := s.donors.CountEligible(ctx, bloodType)
	if err != nil {
		s.logger.Warn("Could not count donors, scanning all donors", zap.Error(err))
		return nil
	}
	if indexed != stored {
		s.logger.Warn("Geo index out of sync, scanning all donors",
			zap.String("blood_type", string(bloodType)),
			zap.Int64("indexed", indexed),
			zap.Int64("stored", stored))
		return nil
	}

	ids, err := s.index.WithinRadius(ctx, bloodType, center, radiusKm)
	if err != nil {
		s.logger.Warn("Geo index unavailable, scanning all donors", zap.Error(err))
		return nil
	}
	return ids
}

// NotifyDonors emails the alert message to the selected donors. Unknown IDs
// are counted as skipped.
func (s *Service) NotifyDonors(ctx context.Context, req models.NotifyRequest) (*models.NotifyResult, error) {
	if err := models.ValidateNotifyRequest(&req); err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return nil, ErrNotifierUnavailable
	}

	ids := uniqueIDs(req.DonorIDs)
	donors, err := s.donors.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load donors: %w", err)
	}

	result := s.notifier.SendDonorAlerts(ctx, donors, req.Message)
	result.Requested = len(ids)
	result.Skipped += len(ids) - len(donors)

	return result, nil
}

// ContactSupport forwards a contact form message to the support inbox.
func (s *Service) ContactSupport(ctx context.Context, req models.SupportRequest) error {
	if err := models.ValidateSupportRequest(&req); err != nil {
		return err
	}
	if s.notifier == nil {
		return ErrNotifierUnavailable
	}
	if err := s.notifier.SendSupportMessage(ctx, req); err != nil {
		return fmt.Errorf("failed to send support message: %w", err)
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
