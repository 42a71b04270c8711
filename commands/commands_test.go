package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"car-crawler/config"
	"car-crawler/db"
	"car-crawler/filter"
	"car-crawler/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Sources, 3)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: []\n"), 0o644))

	_, err := loadConfig(path)
	assert.ErrorIs(t, err, config.ErrNoSources)
}

func TestFilterParamsRoundTrip(t *testing.T) {
	f := models.Filter{Make: "Toyota", Model: "Axio", MinPrice: 500000, MaxPrice: 1000000, MinYear: 2012, Location: "Mombasa"}

	got, err := filter.FromParams(filterParams(f))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestNewRegistryUsesConfiguredSources(t *testing.T) {
	cfg := config.GetDefaultConfig()
	registry := newRegistry(cfg, nil)

	assert.ElementsMatch(t, []string{"cheki", "usedcars", "kaiandkaro"}, registry.IDs())
	s, err := registry.Get("usedcars")
	require.NoError(t, err)
	assert.Equal(t, "https://www.usedcars.co.ke/cars-for-sale", s.BuildURL(models.Filter{}))
}

func TestCells(t *testing.T) {
	assert.Equal(t, "-", yearCell(0))
	assert.Equal(t, "2015", yearCell(2015))
	assert.Equal(t, "Not available", priceCell(models.Listing{}))
	assert.Equal(t, "KES 950000", priceCell(models.Listing{Price: 950000, PriceParsed: true}))
}

func TestActiveJobs(t *testing.T) {
	jobs := []db.Job{
		{Status: models.JobPending},
		{Status: models.JobRunning},
		{Status: models.JobDone},
		{Status: models.JobFailed},
	}
	assert.Equal(t, 2, activeJobs(jobs))
	assert.Zero(t, activeJobs(nil))
}

func TestDeactivateListing(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store, err := db.Open(db.DriverSQLite, ":memory:", logrus.NewEntry(log))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	id, err := store.CreateListing(ctx, models.Listing{
		Title: "2016 Toyota Fielder", Make: "Toyota", Model: "Fielder", Year: 2016,
		ExternalID: "a1", SourceID: "cheki", SourceURL: "https://autochek.africa/ke/car/a1",
	})
	require.NoError(t, err)

	require.NoError(t, deactivateListing(ctx, store, id))
	stored, err := store.ListListings(ctx, "cheki", 10)
	require.NoError(t, err)
	assert.Empty(t, stored, "inactive listings are not listed")

	assert.ErrorIs(t, deactivateListing(ctx, store, id+1), db.ErrListingNotFound)
}
