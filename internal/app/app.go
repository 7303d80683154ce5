// Package app assembles the services shared by the HTTP server, the Lambda
// functions and the donorctl CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blood-alert-engine/internal/config"
	"blood-alert-engine/internal/services/alert"
	"blood-alert-engine/internal/services/database"
	"blood-alert-engine/internal/services/donors"
	"blood-alert-engine/internal/services/geocoder"
	"blood-alert-engine/internal/services/geoindex"
	"blood-alert-engine/internal/services/matcher"
	s3service "blood-alert-engine/internal/services/s3"
	"blood-alert-engine/internal/services/ses"
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	DB        *database.DB
	Hospitals *database.HospitalRepository
	DonorRepo *database.DonorRepository
	Engine    *matcher.Engine
	Storage   *s3service.Service
	Donors    *donors.Service
	Alerts    *alert.Service

	// Index is nil when REDIS_ADDR is unset or Redis is unreachable.
	Index *geoindex.Index

	logger *zap.Logger
}

// New connects to the database and builds every service from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	policy, err := cfg.MatcherPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to build scoring policy: %w", err)
	}
	engine, err := matcher.NewEngine(policy, matcher.WithLogger(logger.Named("matcher")))
	if err != nil {
		return nil, err
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		Hospitals: database.NewHospitalRepository(db),
		DonorRepo: database.NewDonorRepository(db),
		Engine:    engine,
		logger:    logger,
	}

	if cfg.RedisAddr != "" {
		index, err := geoindex.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("Geo index disabled", zap.Error(err))
		} else {
			a.Index = index
		}
	}

	a.Storage, err = s3service.NewService(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	donorOpts := []donors.Option{
		donors.WithGeocoder(geocoder.New(geocoder.OptionsFromConfig(cfg))),
		donors.WithLogger(logger.Named("donors")),
	}
	alertOpts := []alert.Option{
		alert.WithDefaults(cfg.DefaultRadiusKm, cfg.MaxResults),
		alert.WithLogger(logger.Named("alert")),
	}
	if a.Index != nil {
		donorOpts = append(donorOpts, donors.WithIndexer(a.Index))
		alertOpts = append(alertOpts, alert.WithGeoIndex(a.Index))
	}

	if cfg.SESSenderEmail != "" {
		mailer, err := ses.NewService(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		alertOpts = append(alertOpts, alert.WithNotifier(mailer))
	} else {
		logger.Warn("SES_SENDER_EMAIL not set, email notifications disabled")
	}

	a.Donors = donors.NewService(a.DonorRepo, donorOpts...)
	a.Alerts = alert.NewService(a.Hospitals, a.DonorRepo, engine, alertOpts...)

	return a, nil
}

// Close releases the database pool and Redis client.
func (a *App) Close() {
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.logger.Warn("Failed to close geo index", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
