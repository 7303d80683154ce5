// Package donors manages donor registration, profile updates and bulk import.
package donors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"blood-alert-engine/internal/models"
)

// ErrIndexUnavailable is returned by Reindex when no geo index is configured.
var ErrIndexUnavailable = errors.New("geo index is not configured")

// Store persists donors.
type Store interface {
	Create(ctx context.Context, donor *models.DonorCreate) (int64, error)
	BulkInsert(ctx context.Context, donors []*models.DonorCreate) (*models.BulkInsertResult, error)
	GetByID(ctx context.Context, id int64) (*models.Donor, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*models.Donor, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	ListAll(ctx context.Context) ([]*models.Donor, error)
	GetPasswordHash(ctx context.Context, email string) (int64, []byte, error)
	Update(ctx context.Context, id int64, u *models.DonorUpdate, location *models.Coordinate) (*models.Donor, error)
}

// Geocoder resolves addresses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinate, error)
}

// Indexer keeps the geo index in sync with donor locations.
type Indexer interface {
	Add(ctx context.Context, donor *models.Donor) error
	Rebuild(ctx context.Context, donors []*models.Donor) (int, error)
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	Donor   *models.Donor `json:"user"`
	Located bool          `json:"located"`
	Message string        `json:"-"`
}

// Service implements donor account operations.
type Service struct {
	store    Store
	geocoder Geocoder
	index    Indexer
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGeocoder enables address geocoding.
func WithGeocoder(g Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

// WithIndexer keeps a geo index updated on writes.
func WithIndexer(i Indexer) Option {
	return func(s *Service) { s.index = i }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a donor service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// Register creates a donor account. A failed geocode leaves the donor
// without a location; it is reported in the result, not returned as an error.
func (s *Service) Register(ctx context.Context, in models.DonorCreate) (*RegisterResult, error) {
	if err := models.ValidateDonorCreate(&in); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password", models.ErrMissingFields)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, models.ErrPasswordTooLong
	}

	exists, err := s.store.ExistsByEmailOrPhone(ctx, in.Email, in.Phone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.ErrDuplicateDonor
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	in.Password = ""
	in.PasswordHash = hash

	if in.Location == nil {
		in.Location = s.geocode(ctx, in.Address)
	}

	id, err := s.store.Create(ctx, &in)
	if err != nil {
		return nil, err
	}

	donor, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.indexDonor(ctx, donor)

	result := &RegisterResult{Donor: donor, Located: donor.HasLocation(), Message: "Registration successful"}
	if !result.Located {
		result.Message += " (location could not be determined)"
	}

	s.logger.Info("Donor registered",
		zap.Int64("donor_id", donor.ID),
		zap.String("blood_type", string(donor.BloodType)),
		zap.Bool("located", result.Located),
	)

	return result, nil
}

// Login checks a donor's email and password. Unknown emails, accounts
// without a password and wrong passwords all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.Donor, error) {
	if err := models.ValidateLoginRequest(&req); err != nil {
		return nil, err
	}

	id, hash, err := s.store.GetPasswordHash(ctx, req.Email)
	if errors.Is(err, models.ErrDonorNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Warn("Stored password hash is unreadable", zap.Int64("donor_id", id), zap.Error(err))
		}
		return nil, models.ErrInvalidCredentials
	}

	donor, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Donor logged in", zap.Int64("donor_id", id))
	return donor, nil
}

// Update applies a partial profile update, re-geocoding when the address changes.
func (s *Service) Update(ctx context.Context, id int64, u models.DonorUpdate) (*models.Donor, error) {
	if err := models.ValidateDonorUpdate(&u); err != nil {
		return nil, err
	}

	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var location *models.Coordinate
	if u.Address != nil {
		address := strings.TrimSpace(*u.Address)
		if address != "" && address != current.Address {
			location = s.geocode(ctx, address)
		}
	}

	donor, err := s.store.Update(ctx, id, &u, location)
	if err != nil {
		return nil, err
	}
	s.indexDonor(ctx, donor)

	return donor, nil
}

// Get returns one donor.
func (s *Service) Get(ctx context.Context, id int64) (*models.Donor, error) {
	return s.store.GetByID(ctx, id)
}

// List returns every registered account.
func (s *Service) List(ctx context.Context) ([]*models.Donor, error) {
	return s.store.ListAll(ctx)
}

// Import bulk inserts validated rows, geocoding those without coordinates.
func (s *Service) Import(ctx context.Context, rows []*models.DonorCreate) (*models.BulkInsertResult, error) {
	if len(rows) == 0 {
		return &models.BulkInsertResult{Errors: []string{}}, nil
	}

	for _, row := range rows {
		if row.Location == nil {
			row.Location = s.geocode(ctx, row.Address)
		}
	}

	result, err := s.store.BulkInsert(ctx, rows)
	if err != nil {
		return result, err
	}

	if s.index != nil && len(result.InsertedIDs) > 0 {
		inserted, err := s.store.GetByIDs(ctx, result.InsertedIDs)
		if err != nil {
			s.logger.Warn("Failed to load imported donors for indexing", zap.Error(err))
		} else {
			for _, donor := range inserted {
				s.indexDonor(ctx, donor)
			}
		}
	}

	s.logger.Info("Donor import complete",
		zap.Int("rows", len(rows)),
		zap.Int("inserted", result.InsertedCount),
		zap.Int("failed", result.FailedCount),
	)

	return result, nil
}

// Reindex rebuilds the geo index from the database.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, ErrIndexUnavailable
	}
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	count, err := s.index.Rebuild(ctx, all)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return count, nil
}

func (s *Service) geocode(ctx context.Context, address string) *models.Coordinate {
	if s.geocoder == nil || strings.TrimSpace(address) == "" {
		return nil
	}
	coord, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		s.logger.Warn("Could not geocode address", zap.String("address", address), zap.Error(err))
		return nil
	}
	return &coord
}

func (s *Service) indexDonor(ctx context.Context, donor *models.Donor) {
	if s.index == nil {
		return
	}
	if err := s.index.Add(ctx, donor); err != nil {
		s.logger.Warn("Failed to update geo index", zap.Int64("donor_id", donor.ID), zap.Error(err))
	}
}
