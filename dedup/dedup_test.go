package dedup

import (
	"context"
	"errors"
	"io"
	"testing"

	"car-crawler/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	stored  []models.Listing
	err     error
	queries []models.SimilarQuery
}

func (f *fakeLookup) FindSimilar(ctx context.Context, q models.SimilarQuery) (*models.StoredListing, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	for i, l := range f.stored {
		if q.Matches(l) {
			return &models.StoredListing{ID: int64(i + 1), Listing: l, Active: true}, nil
		}
	}
	return nil, nil
}

func newDedup(store Lookup) *Deduplicator {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(store, logrus.NewEntry(log))
}

func listing(id string, mileage, price int64) models.Listing {
	return models.Listing{
		Title:       "Toyota Fielder",
		Make:        "Toyota",
		Model:       "Fielder",
		Year:        2016,
		Mileage:     mileage,
		Price:       price,
		PriceParsed: true,
		ExternalID:  id,
		SourceURL:   "https://example.com/" + id,
		SourceID:    "cheki",
	}
}

func ids(listings []models.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ExternalID
	}
	return out
}

func TestFingerprint(t *testing.T) {
	l := listing("a", 85000, 1650000)
	assert.Equal(t, "toyota-fielder-2016-85000-1650000", Fingerprint(l))

	upper := l
	upper.Make = "TOYOTA"
	assert.Equal(t, Fingerprint(l), Fingerprint(upper))
}

func TestFilterNewExactDuplicateInBatch(t *testing.T) {
	store := &fakeLookup{}
	d := newDedup(store)

	got := d.FilterNew(context.Background(), []models.Listing{
		listing("a", 85000, 1650000),
		listing("b", 85000, 1650000),
	})

	assert.Equal(t, []string{"a"}, ids(got))
	assert.Len(t, store.queries, 1, "exact duplicate never reaches the store")
}

func TestFilterNewMileageWithinFivePercentKeepsFirst(t *testing.T) {
	d := newDedup(&fakeLookup{})

	got := d.FilterNew(context.Background(), []models.Listing{
		listing("first", 100000, 1000000),
		listing("second", 104000, 1500000),
	})

	assert.Equal(t, []string{"first"}, ids(got))
}

func TestFilterNewTwentyPercentApartKeepsBoth(t *testing.T) {
	d := newDedup(&fakeLookup{})

	got := d.FilterNew(context.Background(), []models.Listing{
		listing("first", 100000, 1000000),
		listing("second", 120000, 1200000),
	})

	assert.Equal(t, []string{"first", "second"}, ids(got))
}

func TestFilterNewDropsStoredMatch(t *testing.T) {
	store := &fakeLookup{stored: []models.Listing{listing("old", 90000, 2000000)}}
	d := newDedup(store)

	got := d.FilterNew(context.Background(), []models.Listing{
		listing("reposted", 92000, 2100000),
		listing("different", 150000, 3000000),
	})

	assert.Equal(t, []string{"different"}, ids(got))
	require.Len(t, store.queries, 2)
	assert.Equal(t, int64(models.DefaultTolerancePct), store.queries[0].TolerancePct)
}

func TestFilterNewFailsOpen(t *testing.T) {
	store := &fakeLookup{err: errors.New("connection refused")}
	d := newDedup(store)

	got := d.FilterNew(context.Background(), []models.Listing{
		listing("a", 85000, 1650000),
		listing("b", 150000, 3000000),
		listing("c", 85000, 1650000),
	})

	assert.Equal(t, []string{"a", "b"}, ids(got), "lookup errors keep candidates, in-batch checks still apply")
}

func TestFilterNewEmpty(t *testing.T) {
	d := newDedup(&fakeLookup{})
	assert.Empty(t, d.FilterNew(context.Background(), nil))
}
