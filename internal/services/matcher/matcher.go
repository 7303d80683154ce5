// Package matcher implements the donor filtering, scoring and ranking pipeline
package matcher

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blood-alert-engine/internal/models"
)

const (
	// DefaultRadiusKm is the search radius used when an alert does not specify one.
	DefaultRadiusKm = 10.0
	// DefaultLimit caps the number of ranked donors returned for an alert.
	DefaultLimit = 50

	// Pools at least this large are scored across goroutines.
	parallelThreshold = 4096
)

// Engine runs the three-stage pipeline: geo filter, scoring, ranking.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	policy Policy
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for stage summaries.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NearbyDonor is a donor inside the search radius with its exact distance.
type NearbyDonor struct {
	Donor      *models.Donor
	DistanceKm float64
}

// Options are the per-invocation inputs of Match.
type Options struct {
	RadiusKm float64
	// Limit caps the ranked output; zero or negative returns every match.
	Limit int
	// Now is the evaluation timestamp for history and time-of-day scoring.
	Now time.Time
}

// MatchResult is the output of one Match invocation.
type MatchResult struct {
	Candidates []models.MatchCandidate
	// TotalMatched counts donors within the radius that were scored, before truncation.
	TotalMatched int
	// Excluded counts donors within the radius dropped by the eligibility policy.
	Excluded       int
	TimeOfDayScore float64
	EvaluatedAt    time.Time
}

// NewEngine creates an engine after validating the policy.
func NewEngine(policy Policy, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		policy: policy,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the engine's scoring policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Match filters donors to the radius, scores them and returns the ranked top candidates.
// An empty pool or no donor in range yields an empty result, not an error.
func (e *Engine) Match(hospital models.Coordinate, donors []*models.Donor, opts Options) (*MatchResult, error) {
	if opts.Now.IsZero() {
		return nil, models.ErrMissingEvaluationTime
	}

	// Stage 1: geo filter
	nearby, err := e.FilterNearby(hospital, donors, opts.RadiusKm)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Stage 1 complete: geo filter",
		zap.Int("pool", len(donors)),
		zap.Int("passed", len(nearby)),
		zap.Int("filtered_out", len(donors)-len(nearby)),
		zap.Float64("radius_km", opts.RadiusKm),
	)

	excluded := 0
	if !e.policy.IncludeIneligible {
		eligible := make([]NearbyDonor, 0, len(nearby))
		for _, n := range nearby {
			if e.policy.IsEligible(n.Donor.LastDonation, opts.Now) {
				eligible = append(eligible, n)
			}
		}
		excluded = len(nearby) - len(eligible)
		nearby = eligible
	}

	// Stage 2: scoring
	timeScore := e.policy.TimeOfDayScore(opts.Now)
	candidates := e.scoreAll(nearby, opts.RadiusKm, timeScore, opts.Now)

	e.logger.Debug("Stage 2 complete: scoring",
		zap.Int("scored", len(candidates)),
		zap.Int("excluded", excluded),
		zap.Float64("time_of_day_score", timeScore),
	)

	// Stage 3: ranking
	ranked := Rank(candidates, opts.Limit)

	e.logger.Debug("Stage 3 complete: ranking",
		zap.Int("returned", len(ranked)),
		zap.Int("limit", opts.Limit),
	)

	return &MatchResult{
		Candidates:     ranked,
		TotalMatched:   len(candidates),
		Excluded:       excluded,
		TimeOfDayScore: timeScore,
		EvaluatedAt:    opts.Now,
	}, nil
}

// FilterNearby keeps donors whose distance to the hospital is at most radiusKm,
// preserving input order. Donors without a valid location are rejected.
func (e *Engine) FilterNearby(hospital models.Coordinate, donors []*models.Donor, radiusKm float64) ([]NearbyDonor, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: got %g", models.ErrInvalidRadius, radiusKm)
	}
	if err := hospital.Validate(); err != nil {
		return nil, fmt.Errorf("hospital: %w", err)
	}

	nearby := make([]NearbyDonor, 0, len(donors))
	for i, donor := range donors {
		if donor == nil {
			return nil, fmt.Errorf("%w: nil donor at index %d", models.ErrInvalidCoordinate, i)
		}
		if donor.Location == nil {
			return nil, fmt.Errorf("%w: donor %d has no location", models.ErrInvalidCoordinate, donor.ID)
		}
		if err := donor.Location.Validate(); err != nil {
			return nil, fmt.Errorf("donor %d: %w", donor.ID, err)
		}

		distance := HaversineKm(*donor.Location, hospital)
		if distance <= radiusKm {
			nearby = append(nearby, NearbyDonor{Donor: donor, DistanceKm: distance})
		}
	}

	return nearby, nil
}

// ScoreCandidates scores donors already inside the radius. The time-of-day component
// is computed once from now and shared by all donors.
func (e *Engine) ScoreCandidates(nearby []NearbyDonor, radiusKm float64, now time.Time) []models.MatchCandidate {
	return e.scoreAll(nearby, radiusKm, e.policy.TimeOfDayScore(now), now)
}

func (e *Engine) scoreAll(nearby []NearbyDonor, radiusKm, timeScore float64, now time.Time) []models.MatchCandidate {
	candidates := make([]models.MatchCandidate, len(nearby))

	scoreRange := func(start, end int) {
		for i := start; i < end; i++ {
			n := nearby[i]
			score := e.policy.Score(n.DistanceKm, radiusKm, n.Donor, timeScore, now)
			candidates[i] = models.MatchCandidate{
				Donor:      n.Donor,
				DistanceKm: roundTo(n.DistanceKm, 2),
				Score:      roundTo(score, 3),
			}
		}
	}

	if len(nearby) < parallelThreshold {
		scoreRange(0, len(nearby))
		return candidates
	}

	// Each goroutine writes a disjoint index range, so output order matches input order.
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(nearby) + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < len(nearby); start += chunk {
		start, end := start, min(start+chunk, len(nearby))
		g.Go(func() error {
			scoreRange(start, end)
			return nil
		})
	}
	_ = g.Wait()

	return candidates
}

// Rank returns a new slice ordered by score descending, keeping input order among equal
// scores, truncated to limit when limit is positive.
func Rank(candidates []models.MatchCandidate, limit int) []models.MatchCandidate {
	ranked := make([]models.MatchCandidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
