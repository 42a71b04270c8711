package db

import (
	"context"
	"io"
	"testing"
	"time"

	"car-crawler/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDB(t *testing.T) (*DB, *testClock) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := Open(DriverSQLite, ":memory:", logrus.NewEntry(log))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &testClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	db.now = clock.now
	require.NoError(t, db.Migrate(context.Background()))
	return db, clock
}

func fielder(externalID string, mileage, price int64) models.Listing {
	return models.Listing{
		Title:       "2016 Toyota Fielder",
		Make:        "Toyota",
		Model:       "Fielder",
		Year:        2016,
		Price:       price,
		PriceParsed: true,
		Currency:    "KES",
		Mileage:     mileage,
		Images:      []string{"https://media.autochek.africa/a.jpg"},
		Specs:       map[string]string{models.FieldLocality: "foreign"},
		SourceURL:   "https://autochek.africa/ke/car/toyota-fielder-ref-" + externalID,
		ExternalID:  externalID,
		SourceID:    "cheki",
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "", logrus.NewEntry(logrus.New()))
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, _ := newTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestCreateListingUpserts(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateListing(ctx, fielder("a1", 85000, 1650000))
	require.NoError(t, err)
	assert.Positive(t, id)

	clock.advance(time.Hour)
	updated := fielder("a1", 86000, 1600000)
	again, err := db.CreateListing(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, id, again, "same source and external id reuse the row")

	got, err := db.GetListing(ctx, "cheki", "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1600000), got.Price)
	assert.Equal(t, int64(86000), got.Mileage)
	assert.Equal(t, "KES", got.Currency)
	assert.Equal(t, []string{"https://media.autochek.africa/a.jpg"}, got.Images)
	assert.Equal(t, "foreign", got.Specs[models.FieldLocality])
	assert.True(t, got.Active)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestGetListingMissing(t *testing.T) {
	db, _ := newTestDB(t)
	got, err := db.GetListing(context.Background(), "cheki", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindSimilar(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	_, err := db.CreateListing(ctx, fielder("a1", 100000, 2000000))
	require.NoError(t, err)

	tests := []struct {
		name  string
		query models.SimilarQuery
		found bool
	}{
		{"mileage within band", models.NewSimilarQuery(fielder("x", 104000, 9000000)), true},
		{"price within band", models.NewSimilarQuery(fielder("x", 200000, 2090000)), true},
		{"case insensitive", func() models.SimilarQuery {
			q := models.NewSimilarQuery(fielder("x", 100000, 2000000))
			q.Make, q.Model = "TOYOTA", "fielder"
			return q
		}(), true},
		{"outside both bands", models.NewSimilarQuery(fielder("x", 120000, 2400000)), false},
		{"other year", func() models.SimilarQuery {
			q := models.NewSimilarQuery(fielder("x", 100000, 2000000))
			q.Year = 2017
			return q
		}(), false},
		{"no mileage no price", models.SimilarQuery{Make: "Toyota", Model: "Fielder", Year: 2016, TolerancePct: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.FindSimilar(ctx, tt.query)
			require.NoError(t, err)
			if tt.found {
				require.NotNil(t, got)
				assert.Equal(t, "a1", got.ExternalID)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestFindSimilarIgnoresInactive(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateListing(ctx, fielder("a1", 100000, 2000000))
	require.NoError(t, err)
	require.NoError(t, db.DeactivateListing(ctx, id))
	assert.ErrorIs(t, db.DeactivateListing(ctx, id+100), ErrListingNotFound)

	got, err := db.FindSimilar(ctx, models.NewSimilarQuery(fielder("x", 100000, 2000000)))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindSimilarMissingYear(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	l := fielder("a1", 100000, 2000000)
	l.Year = 0
	_, err := db.CreateListing(ctx, l)
	require.NoError(t, err)

	q := models.NewSimilarQuery(l)
	got, err := db.FindSimilar(ctx, q)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.Year)
}

func TestListListings(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()

	_, err := db.CreateListing(ctx, fielder("a1", 100000, 2000000))
	require.NoError(t, err)
	clock.advance(time.Minute)
	other := fielder("u1", 50000, 900000)
	other.SourceID = "usedcars"
	_, err = db.CreateListing(ctx, other)
	require.NoError(t, err)

	all, err := db.ListListings(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "u1", all[0].ExternalID)

	cheki, err := db.ListListings(ctx, "cheki", 10)
	require.NoError(t, err)
	require.Len(t, cheki, 1)
	assert.Equal(t, "a1", cheki[0].ExternalID)
}

func TestRecordDefaultsSource(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Record(ctx, models.LogInfo, "crawl started", nil))
	require.NoError(t, db.Record(ctx, models.LogMetric, "listings found", map[string]any{
		"source_id": "cheki",
		"count":     12,
	}))

	logs, err := db.RecentLogs(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "cheki", logs[0].SourceID)
	assert.Equal(t, models.LogMetric, logs[0].Status)
	assert.Equal(t, float64(12), logs[0].Metadata["count"])

	assert.Equal(t, models.UnknownValue, logs[1].SourceID)
	assert.Nil(t, logs[1].Metadata)
}

func TestRecordRejectsUnknownStatus(t *testing.T) {
	db, _ := newTestDB(t)
	assert.Error(t, db.Record(context.Background(), "DEBUG", "nope", nil))
}
