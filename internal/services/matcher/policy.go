package matcher

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default scoring parameters.
const (
	DefaultDistanceWeight  = 0.4
	DefaultHistoryWeight   = 0.3
	DefaultTimeOfDayWeight = 0.3

	// 12 weeks between whole-blood donations.
	DefaultMinIntervalDays  = 84
	DefaultFullRecoveryDays = 180

	DefaultDayStartHour  = 8
	DefaultDayEndHour    = 20
	DefaultOffHoursScore = 0.5

	weightSumTolerance = 1e-9
)

var (
	ErrInvalidPolicy = errors.New("invalid scoring policy")
)

// Weights are the relative contributions of each sub-score to the final score.
type Weights struct {
	Distance  float64 `yaml:"distance" json:"distance" validate:"gte=0,lte=1"`
	History   float64 `yaml:"history" json:"history" validate:"gte=0,lte=1"`
	TimeOfDay float64 `yaml:"time_of_day" json:"time_of_day" validate:"gte=0,lte=1"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Distance + w.History + w.TimeOfDay
}

// HistoryThresholds control how days since the last donation map to a score.
type HistoryThresholds struct {
	MinIntervalDays  int `yaml:"min_interval_days" json:"min_interval_days" validate:"gte=0"`
	FullRecoveryDays int `yaml:"full_recovery_days" json:"full_recovery_days" validate:"gtfield=MinIntervalDays"`
}

// DaytimeWindow is the local-hour window in which donors are most reachable.
type DaytimeWindow struct {
	StartHour     int     `yaml:"start_hour" json:"start_hour" validate:"gte=0,lte=23"`
	EndHour       int     `yaml:"end_hour" json:"end_hour" validate:"gtfield=StartHour,lte=24"`
	OffHoursScore float64 `yaml:"off_hours_score" json:"off_hours_score" validate:"gte=0,lte=1"`
}

// Policy is the full scoring configuration for the engine.
type Policy struct {
	Weights Weights           `yaml:"weights" json:"weights"`
	History HistoryThresholds `yaml:"history" json:"history"`
	Daytime DaytimeWindow     `yaml:"daytime" json:"daytime"`
	// IncludeIneligible keeps donors still inside the minimum donation interval
	// in the results, scored with a zero history component.
	IncludeIneligible bool `yaml:"include_ineligible" json:"include_ineligible"`
	// Location is the zone used for the local hour and calendar dates. Nil uses
	// the zone of the evaluation timestamp.
	Location *time.Location `yaml:"-" json:"-" validate:"-"`
}

// DefaultPolicy returns the standard 40/30/30 policy.
func DefaultPolicy() Policy {
	return Policy{
		Weights: Weights{
			Distance:  DefaultDistanceWeight,
			History:   DefaultHistoryWeight,
			TimeOfDay: DefaultTimeOfDayWeight,
		},
		History: HistoryThresholds{
			MinIntervalDays:  DefaultMinIntervalDays,
			FullRecoveryDays: DefaultFullRecoveryDays,
		},
		Daytime: DaytimeWindow{
			StartHour:     DefaultDayStartHour,
			EndHour:       DefaultDayEndHour,
			OffHoursScore: DefaultOffHoursScore,
		},
		IncludeIneligible: true,
	}
}

var validate = validator.New()

// Validate checks field ranges and that the weights sum to one.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if sum := p.Weights.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %g, want 1", ErrInvalidPolicy, sum)
	}
	return nil
}
