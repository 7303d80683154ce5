package matcher

import (
	"math"
	"time"

	"blood-alert-engine/internal/models"
)

// DistanceScore is 1 at the hospital and falls linearly to 0 at the radius edge.
func DistanceScore(distanceKm, radiusKm float64) float64 {
	return math.Max(0, 1-distanceKm/radiusKm)
}

// DaysSince returns the number of whole calendar days from the donation date to the
// evaluation date. The donation is a date, so only its year, month and day are used.
func (p Policy) DaysSince(lastDonation, now time.Time) int {
	today := p.localize(now)
	return int(civilDay(today) - civilDay(lastDonation))
}

// HistoryScore rates recovery since the last donation. Donors who never donated score 1.
func (p Policy) HistoryScore(lastDonation *time.Time, now time.Time) float64 {
	if lastDonation == nil {
		return 1.0
	}

	elapsed := p.DaysSince(*lastDonation, now)
	if elapsed < p.History.MinIntervalDays {
		return 0
	}

	span := float64(p.History.FullRecoveryDays - p.History.MinIntervalDays)
	return math.Min(1.0, float64(elapsed-p.History.MinIntervalDays)/span)
}

// IsEligible reports whether the donor is past the minimum donation interval.
func (p Policy) IsEligible(lastDonation *time.Time, now time.Time) bool {
	if lastDonation == nil {
		return true
	}
	return p.DaysSince(*lastDonation, now) >= p.History.MinIntervalDays
}

// TimeOfDayScore is 1 inside the daytime window and OffHoursScore outside it.
func (p Policy) TimeOfDayScore(now time.Time) float64 {
	hour := p.localize(now).Hour()
	if hour >= p.Daytime.StartHour && hour < p.Daytime.EndHour {
		return 1.0
	}
	return p.Daytime.OffHoursScore
}

// Score combines the sub-scores with the policy weights. timeScore is passed in so
// every donor in one invocation shares the same value.
func (p Policy) Score(distanceKm, radiusKm float64, donor *models.Donor, timeScore float64, now time.Time) float64 {
	return p.Weights.Distance*DistanceScore(distanceKm, radiusKm) +
		p.Weights.History*p.HistoryScore(donor.LastDonation, now) +
		p.Weights.TimeOfDay*timeScore
}

func (p Policy) localize(t time.Time) time.Time {
	if p.Location != nil {
		return t.In(p.Location)
	}
	return t
}

// civilDay numbers the calendar date of t, ignoring its clock and zone offset.
func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
