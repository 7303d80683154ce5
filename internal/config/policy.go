package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"blood-alert-engine/internal/services/matcher"
)

// PolicyFile is the YAML layout of a scoring policy file, for example:
//
//	weights: {distance: 0.5, history: 0.3, time_of_day: 0.2}
//	history: {min_interval_days: 84, full_recovery_days: 180}
//	daytime: {start_hour: 7, end_hour: 21, off_hours_score: 0.5}
//	include_ineligible: false
//	timezone: Asia/Ho_Chi_Minh
type PolicyFile struct {
	matcher.Policy `yaml:",inline"`
	Timezone       string `yaml:"timezone,omitempty" validate:"omitempty,timezone"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// LoadScoringPolicy reads a policy file on top of base. Keys missing from the file keep
// the value from base.
func LoadScoringPolicy(path string, base matcher.Policy) (matcher.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return matcher.Policy{}, fmt.Errorf("failed to read scoring policy file: %w", err)
	}

	file := PolicyFile{Policy: base}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return matcher.Policy{}, fmt.Errorf("failed to parse scoring policy file: %w", err)
	}

	if err := validate.Struct(&file); err != nil {
		return matcher.Policy{}, fmt.Errorf("scoring policy validation failed: %w", err)
	}

	policy := file.Policy
	if file.Timezone != "" {
		// already checked by the timezone validator
		policy.Location, _ = time.LoadLocation(file.Timezone)
	}

	if err := policy.Validate(); err != nil {
		return matcher.Policy{}, err
	}
	return policy, nil
}

// MatcherPolicy builds the scoring policy from defaults, the environment and the
// optional policy file, in that order of precedence.
func (c *Config) MatcherPolicy() (matcher.Policy, error) {
	policy := matcher.DefaultPolicy()
	policy.IncludeIneligible = c.IncludeIneligible

	loc, err := c.Location()
	if err != nil {
		return matcher.Policy{}, err
	}
	policy.Location = loc

	if c.ScoringPolicyFile != "" {
		policy, err = LoadScoringPolicy(c.ScoringPolicyFile, policy)
		if err != nil {
			return matcher.Policy{}, err
		}
	}

	if err := policy.Validate(); err != nil {
		return matcher.Policy{}, err
	}
	return policy, nil
}
