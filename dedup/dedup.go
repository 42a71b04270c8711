package dedup

import (
	"context"
	"fmt"
	"strings"

	"car-crawler/models"

	"github.com/sirupsen/logrus"
)

// Lookup finds an active stored listing similar to q, or nil when none exists
type Lookup interface {
	FindSimilar(ctx context.Context, q models.SimilarQuery) (*models.StoredListing, error)
}

// Deduplicator drops listings already seen in the batch or already stored
type Deduplicator struct {
	store Lookup
	log   *logrus.Entry
}

// New creates a Deduplicator backed by store
func New(store Lookup, log *logrus.Entry) *Deduplicator {
	return &Deduplicator{store: store, log: log.WithField("component", "dedup")}
}

// Fingerprint is the case-insensitive composite key of a listing
func Fingerprint(l models.Listing) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%d-%d-%d", l.Make, l.Model, l.Year, l.Mileage, l.Price))
}

// FilterNew returns the listings that are neither repeated within the batch
// nor similar to a stored active listing, preserving input order. A failed
// store lookup keeps the candidate.
func (d *Deduplicator) FilterNew(ctx context.Context, listings []models.Listing) []models.Listing {
	seen := make(map[string]struct{}, len(listings))
	kept := make([]models.Listing, 0, len(listings))

	for _, l := range listings {
		key := Fingerprint(l)
		entry := d.log.WithFields(logrus.Fields{
			"source_id":   l.SourceID,
			"external_id": l.ExternalID,
		})

		if _, dup := seen[key]; dup {
			entry.Debug("duplicate fingerprint in batch")
			continue
		}

		q := models.NewSimilarQuery(l)
		if matchesAny(q, kept) {
			entry.Debug("similar listing earlier in batch")
			continue
		}

		existing, err := d.store.FindSimilar(ctx, q)
		if err != nil {
			entry.WithError(err).Warn("similar listing lookup failed, keeping listing")
		} else if existing != nil {
			entry.WithField("existing_id", existing.ID).Debug("similar listing already stored")
			continue
		}

		seen[key] = struct{}{}
		kept = append(kept, l)
	}

	d.log.WithFields(logrus.Fields{
		"candidates": len(listings),
		"new":        len(kept),
	}).Info("deduplication finished")
	return kept
}

func matchesAny(q models.SimilarQuery, listings []models.Listing) bool {
	for _, l := range listings {
		if q.Matches(l) {
			return true
		}
	}
	return false
}
