package models

import (
	"fmt"
	"math"
	"time"
)

// Coordinate is a WGS-84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Validate checks that the coordinate lies within the valid latitude and longitude ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("%w: NaN component", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// Hospital represents a facility that raises blood alerts.
type Hospital struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Location  Coordinate `json:"location"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// HospitalCreate represents the data needed to create a hospital.
type HospitalCreate struct {
	Name     string     `json:"name" validate:"required,max=100"`
	Location Coordinate `json:"location"`
}
