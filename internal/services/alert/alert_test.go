package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-alert-engine/internal/models"
	"blood-alert-engine/internal/services/geoindex"
	"blood-alert-engine/internal/services/matcher"
)

var (
	choRay    = models.Coordinate{Lat: 10.7546, Lng: 106.6622}
	afternoon = time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
)

func offsetNorth(km float64) *models.Coordinate {
	return &models.Coordinate{Lat: choRay.Lat + km/111.195, Lng: choRay.Lng}
}

type fakeHospitals struct {
	hospitals map[int64]*models.Hospital
}

func (f *fakeHospitals) GetByID(_ context.Context, id int64) (*models.Hospital, error) {
	h, ok := f.hospitals[id]
	if !ok {
		return nil, models.ErrHospitalNotFound
	}
	return h, nil
}

func (f *fakeHospitals) ListAll(_ context.Context) ([]*models.Hospital, error) {
	var out []*models.Hospital
	for _, h := range f.hospitals {
		out = append(out, h)
	}
	return out, nil
}

type fakeDonors struct {
	donors  []*models.Donor
	lastIDs []int64
}

func (f *fakeDonors) ListEligible(_ context.Context, bt models.BloodType, ids []int64) ([]*models.Donor, error) {
	f.lastIDs = ids
	allowed := map[int64]bool{}
	for _, id := range ids {
		allowed[id] = true
	}
	var out []*models.Donor
	for _, d := range f.donors {
		if d.BloodType != bt || d.Location == nil {
			continue
		}
		if ids != nil && !allowed[d.ID] {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDonors) CountEligible(ctx context.Context, bt models.BloodType) (int64, error) {
	all, err := f.ListEligible(ctx, bt, nil)
	f.lastIDs = nil
	return int64(len(all)), err
}

func (f *fakeDonors) GetByIDs(_ context.Context, ids []int64) ([]*models.Donor, error) {
	var out []*models.Donor
	for _, id := range ids {
		for _, d := range f.donors {
			if d.ID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

type fakeIndex struct {
	ids   []int64
	count int64
	err   error
}

func (f *fakeIndex) WithinRadius(context.Context, models.BloodType, models.Coordinate, float64) ([]int64, error) {
	return f.ids, f.err
}

func (f *fakeIndex) Count(context.Context, models.BloodType) (int64, error) {
	return f.count, nil
}

type fakeNotifier struct {
	alerted []*models.Donor
	message string
	support []models.SupportRequest
	err     error
}

func (f *fakeNotifier) SendDonorAlerts(_ context.Context, donors []*models.Donor, message string) *models.NotifyResult {
	f.alerted = donors
	f.message = message
	return &models.NotifyResult{Requested: len(donors), Sent: len(donors)}
}

func (f *fakeNotifier) SendSupportMessage(_ context.Context, req models.SupportRequest) error {
	f.support = append(f.support, req)
	return f.err
}

func testDonors() []*models.Donor {
	return []*models.Donor{
		{ID: 1, Name: "Near", Email: "near@example.com", BloodType: models.BloodTypeOPositive, Location: offsetNorth(2)},
		{ID: 2, Name: "Mid", Email: "mid@example.com", BloodType: models.BloodTypeOPositive, Location: offsetNorth(5)},
		{ID: 3, Name: "Far", Email: "far@example.com", BloodType: models.BloodTypeOPositive, Location: offsetNorth(15)},
		{ID: 4, Name: "Other", Email: "other@example.com", BloodType: models.BloodTypeANegative, Location: offsetNorth(1)},
		{ID: 5, Name: "Unlocated", Email: "none@example.com", BloodType: models.BloodTypeOPositive},
	}
}

func newTestService(t *testing.T, donors *fakeDonors, opts ...Option) *Service {
	t.Helper()
	engine, err := matcher.NewEngine(matcher.DefaultPolicy())
	require.NoError(t, err)

	hospitals := &fakeHospitals{hospitals: map[int64]*models.Hospital{
		1: {ID: 1, Name: "Cho Ray", Location: choRay},
	}}
	opts = append([]Option{WithClock(func() time.Time { return afternoon })}, opts...)
	return NewService(hospitals, donors, engine, opts...)
}

func TestCreateAlert_RanksNearbyDonors(t *testing.T) {
	svc := newTestService(t, &fakeDonors{donors: testDonors()})

	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{
		HospitalID: 1,
		BloodType:  "o+",
	})
	require.NoError(t, err)

	assert.Equal(t, models.BloodTypeOPositive, result.BloodTypeNeeded)
	assert.Equal(t, 10.0, result.RadiusKm)
	assert.Equal(t, 2, result.TotalMatched)
	assert.Equal(t, []int64{1, 2}, result.DonorIDs())

	first := result.Donors[0]
	assert.InDelta(t, 2.0, first.DistanceKm, 0.01)
	assert.InDelta(t, 0.92, first.Score, 0.001)
	assert.Equal(t, "near@example.com", first.Donor.Email)
}

func TestCreateAlert_LimitAndRadius(t *testing.T) {
	svc := newTestService(t, &fakeDonors{donors: testDonors()})

	radius := 20.0
	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{
		HospitalID: 1,
		BloodType:  models.BloodTypeOPositive,
		RadiusKm:   &radius,
		Limit:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalMatched)
	assert.Equal(t, []int64{1, 2}, result.DonorIDs())
}

func TestCreateAlert_DefaultsFromConfig(t *testing.T) {
	svc := newTestService(t, &fakeDonors{donors: testDonors()}, WithDefaults(3, 1))

	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.RadiusKm)
	assert.Equal(t, 1, result.TotalMatched)
	assert.Len(t, result.Donors, 1)
}

func TestCreateAlert_Errors(t *testing.T) {
	svc := newTestService(t, &fakeDonors{donors: testDonors()})
	ctx := context.Background()

	_, err := svc.CreateAlert(ctx, models.AlertRequest{HospitalID: 99, BloodType: models.BloodTypeOPositive})
	assert.ErrorIs(t, err, models.ErrHospitalNotFound)

	zero := 0.0
	_, err = svc.CreateAlert(ctx, models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive, RadiusKm: &zero})
	assert.ErrorIs(t, err, models.ErrInvalidRadius)

	_, err = svc.CreateAlert(ctx, models.AlertRequest{HospitalID: 1, BloodType: "C+"})
	assert.ErrorIs(t, err, models.ErrInvalidBloodType)

	_, err = svc.CreateAlert(ctx, models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive, Limit: -1})
	assert.ErrorIs(t, err, models.ErrInvalidLimit)
}

func TestCreateAlert_UsesGeoIndex(t *testing.T) {
	donors := &fakeDonors{donors: testDonors()}
	svc := newTestService(t, donors, WithGeoIndex(&fakeIndex{ids: []int64{2}, count: 3}))

	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, donors.lastIDs)
	assert.Equal(t, []int64{2}, result.DonorIDs())
}

func TestCreateAlert_GeoIndexFailureFallsBack(t *testing.T) {
	donors := &fakeDonors{donors: testDonors()}
	svc := newTestService(t, donors, WithGeoIndex(&fakeIndex{count: 3, err: errors.New("connection refused")}))

	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive})
	require.NoError(t, err)
	assert.Nil(t, donors.lastIDs)
	assert.Equal(t, []int64{1, 2}, result.DonorIDs())
}

func TestCreateAlert_GeoIndexMissingDonorFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	index := geoindex.New(client)

	stored := []*models.Donor{
		{ID: 1, Role: models.RoleDonor, BloodType: models.BloodTypeOPositive, Location: offsetNorth(2)},
		{ID: 2, Role: models.RoleDonor, BloodType: models.BloodTypeOPositive, Location: offsetNorth(1)},
	}
	// donor 2 never made it into Redis
	require.NoError(t, index.Add(context.Background(), stored[0]))

	donors := &fakeDonors{donors: stored}
	svc := newTestService(t, donors, WithGeoIndex(index))

	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive})
	require.NoError(t, err)
	assert.Nil(t, donors.lastIDs)
	assert.Equal(t, 2, result.TotalMatched)
	assert.Equal(t, []int64{2, 1}, result.DonorIDs())
}

func TestCreateAlert_GeoIndexInSyncPrunes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	index := geoindex.New(client)

	stored := []*models.Donor{
		{ID: 1, Role: models.RoleDonor, BloodType: models.BloodTypeOPositive, Location: offsetNorth(2)},
		{ID: 2, Role: models.RoleDonor, BloodType: models.BloodTypeOPositive, Location: offsetNorth(40)},
	}
	_, err := index.Rebuild(context.Background(), stored)
	require.NoError(t, err)

	donors := &fakeDonors{donors: stored}
	svc := newTestService(t, donors, WithGeoIndex(index))

	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, donors.lastIDs)
	assert.Equal(t, []int64{1}, result.DonorIDs())
}

func TestCreateAlert_GeoIndexCountMismatchFallsBack(t *testing.T) {
	donors := &fakeDonors{donors: testDonors()}
	svc := newTestService(t, donors, WithGeoIndex(&fakeIndex{ids: []int64{1}, count: 2}))

	result, err := svc.CreateAlert(context.Background(), models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive})
	require.NoError(t, err)
	assert.Nil(t, donors.lastIDs)
	assert.Equal(t, []int64{1, 2}, result.DonorIDs())
}

func TestCreateAlert_CorruptStoredLocation(t *testing.T) {
	stored := testDonors()
	stored[1].Location = &models.Coordinate{Lat: 200, Lng: 106.66}
	svc := newTestService(t, &fakeDonors{donors: stored})

	_, err := svc.CreateAlert(context.Background(), models.AlertRequest{HospitalID: 1, BloodType: models.BloodTypeOPositive})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptLocation)
	assert.NotErrorIs(t, err, models.ErrInvalidCoordinate)
}

func TestNotifyDonors(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(t, &fakeDonors{donors: testDonors()}, WithNotifier(notifier))

	result, err := svc.NotifyDonors(context.Background(), models.NotifyRequest{
		DonorIDs: []int64{1, 2, 2, 404},
		Message:  " Need O+ today ",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "Need O+ today", notifier.message)
	assert.Len(t, notifier.alerted, 2)
}

func TestNotifyDonors_Errors(t *testing.T) {
	svc := newTestService(t, &fakeDonors{donors: testDonors()})

	_, err := svc.NotifyDonors(context.Background(), models.NotifyRequest{Message: "x"})
	assert.ErrorIs(t, err, models.ErrMissingFields)

	_, err = svc.NotifyDonors(context.Background(), models.NotifyRequest{DonorIDs: []int64{1}, Message: "x"})
	assert.ErrorIs(t, err, ErrNotifierUnavailable)
}

func TestContactSupport(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(t, &fakeDonors{}, WithNotifier(notifier))
	ctx := context.Background()

	req := models.SupportRequest{Name: "A", Email: "a@example.com", Phone: "0900000001", Message: "hi"}
	require.NoError(t, svc.ContactSupport(ctx, req))
	require.Len(t, notifier.support, 1)

	req.Message = ""
	assert.ErrorIs(t, svc.ContactSupport(ctx, req), models.ErrMissingFields)

	notifier.err = errors.New("ses down")
	req.Message = "hi"
	assert.Error(t, svc.ContactSupport(ctx, req))
}
