// Package geoindex keeps donor locations in a Redis GEO set so alerts can
// load only the donors near a hospital.
package geoindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"blood-alert-engine/internal/models"
)

const (
	donorGeoKeyPrefix = "blood_alert:donors:"
	staleKey          = "blood_alert:index_stale"

	// RadiusMargin widens the Redis query so its result is a superset of the
	// exact haversine filter applied afterwards.
	RadiusMargin = 1.01
)

// ErrStale is returned by queries after a write to the index failed. The
// index stays stale until Rebuild succeeds.
var ErrStale = errors.New("donor index is stale")

// Index is a Redis GEO index of donor positions, one set per blood type.
type Index struct {
	redis *redis.Client
	stale atomic.Bool
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Index {
	return &Index{redis: client}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Index, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return New(client), nil
}

// Close closes the underlying client.
func (i *Index) Close() error {
	return i.redis.Close()
}

func geoKey(bloodType models.BloodType) string {
	return donorGeoKeyPrefix + string(bloodType)
}

// Add indexes a donor's location. Donors without a location or blood type are removed instead.
func (i *Index) Add(ctx context.Context, donor *models.Donor) error {
	if donor.Location == nil || !donor.BloodType.IsValid() || donor.Role != models.RoleDonor {
		return i.Remove(ctx, donor.ID)
	}

	member := strconv.FormatInt(donor.ID, 10)
	pipe := i.redis.TxPipeline()
	// a donor can change blood type, so clear the other sets first
	for _, bt := range models.ValidBloodTypes() {
		if bt != donor.BloodType {
			pipe.ZRem(ctx, geoKey(bt), member)
		}
	}
	pipe.GeoAdd(ctx, geoKey(donor.BloodType), &redis.GeoLocation{
		Name:      member,
		Longitude: donor.Location.Lng,
		Latitude:  donor.Location.Lat,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		i.markStale(ctx)
		return fmt.Errorf("failed to index donor %d: %w", donor.ID, err)
	}
	return nil
}

// Remove drops a donor from every blood type set.
func (i *Index) Remove(ctx context.Context, donorID int64) error {
	member := strconv.FormatInt(donorID, 10)
	pipe := i.redis.TxPipeline()
	for _, bt := range models.ValidBloodTypes() {
		pipe.ZRem(ctx, geoKey(bt), member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		i.markStale(ctx)
		return fmt.Errorf("failed to remove donor %d: %w", donorID, err)
	}
	return nil
}

// markStale records a lost write locally and, when Redis still answers, for
// every other process sharing the index.
func (i *Index) markStale(ctx context.Context) {
	i.stale.Store(true)
	_ = i.redis.Set(context.WithoutCancel(ctx), staleKey, "1", 0).Err()
}

// Stale reports whether a write was lost since the last successful Rebuild.
// An unreachable Redis counts as stale.
func (i *Index) Stale(ctx context.Context) bool {
	if i.stale.Load() {
		return true
	}
	n, err := i.redis.Exists(ctx, staleKey).Result()
	return err != nil || n > 0
}

// Count returns the number of indexed donors of a blood type.
func (i *Index) Count(ctx context.Context, bloodType models.BloodType) (int64, error) {
	n, err := i.redis.ZCard(ctx, geoKey(bloodType)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count donor index: %w", err)
	}
	return n, nil
}

// Rebuild replaces the whole index with the given donors and returns how many were indexed.
func (i *Index) Rebuild(ctx context.Context, donors []*models.Donor) (int, error) {
	pipe := i.redis.TxPipeline()
	for _, bt := range models.ValidBloodTypes() {
		pipe.Del(ctx, geoKey(bt))
	}
	pipe.Del(ctx, staleKey)

	indexed := 0
	for _, donor := range donors {
		if donor.Location == nil || !donor.BloodType.IsValid() || donor.Role != models.RoleDonor {
			continue
		}
		pipe.GeoAdd(ctx, geoKey(donor.BloodType), &redis.GeoLocation{
			Name:      strconv.FormatInt(donor.ID, 10),
			Longitude: donor.Location.Lng,
			Latitude:  donor.Location.Lat,
		})
		indexed++
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to rebuild donor index: %w", err)
	}
	i.stale.Store(false)
	return indexed, nil
}

// WithinRadius returns the IDs of donors of the blood type within radiusKm
// (plus RadiusMargin) of center. The result is never nil. A stale index
// returns ErrStale.
func (i *Index) WithinRadius(ctx context.Context, bloodType models.BloodType, center models.Coordinate, radiusKm float64) ([]int64, error) {
	if i.Stale(ctx) {
		return nil, ErrStale
	}
	locations, err := i.redis.GeoRadius(ctx, geoKey(bloodType), center.Lng, center.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm * RadiusMargin,
		Unit:   "km",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query donor index: %w", err)
	}

	ids := make([]int64, 0, len(locations))
	for _, loc := range locations {
		id, err := strconv.ParseInt(loc.Name, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid member %q in donor index: %w", loc.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
