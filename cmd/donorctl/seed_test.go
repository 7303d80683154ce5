package main

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-alert-engine/internal/models"
)

func TestSeedDonors(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rows := seedDonors(25, rand.New(rand.NewPCG(1, 1)), now)
	require.Len(t, rows, 25)

	phones := map[string]bool{}
	for _, r := range rows {
		require.NoError(t, models.ValidateDonorCreate(r))
		require.NotNil(t, r.Location)
		require.NotNil(t, r.LastDonation)

		days := int(now.Sub(*r.LastDonation).Hours() / 24)
		assert.GreaterOrEqual(t, days, 30)
		assert.LessOrEqual(t, days, 180)
		assert.Len(t, r.Phone, 10)
		phones[r.Phone] = true
	}
	assert.Len(t, phones, 25)
	assert.Equal(t, "0900000001", rows[0].Phone)
}

func TestSeedDonorsDeterministic(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a := seedDonors(5, rand.New(rand.NewPCG(7, 7)), now)
	b := seedDonors(5, rand.New(rand.NewPCG(7, 7)), now)
	for i := range a {
		assert.Equal(t, a[i].BloodType, b[i].BloodType)
		assert.Equal(t, *a[i].Location, *b[i].Location)
	}
}
