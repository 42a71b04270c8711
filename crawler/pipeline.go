package crawler

import (
	"context"
	"errors"

	"car-crawler/dedup"
	"car-crawler/models"
	"car-crawler/normalizer"

	"github.com/sirupsen/logrus"
)

// Store persists canonical listings
type Store interface {
	dedup.Lookup
	CreateListing(ctx context.Context, l models.Listing) (int64, error)
}

// Exporter receives the listings stored by one run
type Exporter interface {
	Export(ctx context.Context, sourceID string, listings []models.Listing) error
}

// Summary describes one crawl-and-persist run
type Summary struct {
	SourceID     string `json:"sourceId"`
	PagesScanned int    `json:"pagesScanned"`
	HasMore      bool   `json:"hasMore"`
	Found        int    `json:"found"`
	Valid        int    `json:"valid"`
	New          int    `json:"new"`
	Stored       int    `json:"stored"`
}

// Pipeline crawls a source and stores the listings not seen before
type Pipeline struct {
	crawler    *Crawler
	normalizer *normalizer.Normalizer
	dedup      *dedup.Deduplicator
	store      Store
	exporter   Exporter
	log        *logrus.Entry
}

// NewPipeline wires the crawl, normalize, dedup and store stages
func NewPipeline(c *Crawler, n *normalizer.Normalizer, store Store, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		crawler:    c,
		normalizer: n,
		dedup:      dedup.New(store, log),
		store:      store,
		log:        log.WithField("component", "pipeline"),
	}
}

// WithExporter sets an exporter that receives each run's stored listings
func (p *Pipeline) WithExporter(e Exporter) *Pipeline {
	p.exporter = e
	return p
}

// Persist crawls sourceID, then normalizes, validates and deduplicates the
// records as one batch and stores each remaining listing. Store failures do
// not stop the remaining listings and are returned joined.
func (p *Pipeline) Persist(ctx context.Context, sourceID string, f models.Filter, maxPages int) (Summary, error) {
	summary := Summary{SourceID: sourceID}

	result, err := p.crawler.Run(ctx, sourceID, f, maxPages)
	summary.PagesScanned = result.PagesScanned
	summary.HasMore = result.HasMore
	summary.Found = len(result.Records)
	if err != nil {
		return summary, err
	}

	log := p.log.WithField("source_id", sourceID)

	var valid []models.Listing
	for _, l := range p.normalizer.NormalizeAll(result.Records) {
		if !l.Valid() {
			log.WithField("external_id", l.ExternalID).Debug("dropping invalid listing")
			continue
		}
		valid = append(valid, l)
	}
	summary.Valid = len(valid)

	fresh := p.dedup.FilterNew(ctx, valid)
	summary.New = len(fresh)

	var (
		errs   []error
		stored []models.Listing
	)
	for _, l := range fresh {
		if _, err := p.store.CreateListing(ctx, l); err != nil {
			log.WithError(err).WithField("external_id", l.ExternalID).Error("failed to store listing")
			errs = append(errs, err)
			continue
		}
		stored = append(stored, l)
	}
	summary.Stored = len(stored)

	if p.exporter != nil && len(stored) > 0 {
		if err := p.exporter.Export(ctx, sourceID, stored); err != nil {
			log.WithError(err).Warn("failed to export stored listings")
		}
	}

	log.WithFields(logrus.Fields{
		"found":  summary.Found,
		"valid":  summary.Valid,
		"new":    summary.New,
		"stored": summary.Stored,
	}).Info("crawl persisted")
	return summary, errors.Join(errs...)
}
