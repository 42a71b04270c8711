package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"car-crawler/config"
	"car-crawler/fetcher"
	"car-crawler/logger"
	"car-crawler/models"
	"car-crawler/scraper"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoProvider is returned when no session provider serves the engine of a source
	ErrNoProvider = errors.New("no session provider for engine")
	// ErrFirstPage is returned when the first result page cannot be loaded,
	// so that the run has nothing to keep
	ErrFirstPage = errors.New("first page failed")
)

// Crawler drives one source strategy across paginated search results
type Crawler struct {
	registry  *scraper.Registry
	providers map[string]fetcher.Provider
	cfg       *config.Config
	log       *logrus.Entry
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// New creates a crawler. providers maps an engine name to the session
// provider serving it.
func New(cfg *config.Config, registry *scraper.Registry, providers map[string]fetcher.Provider, log *logrus.Entry) *Crawler {
	return &Crawler{
		registry:  registry,
		providers: providers,
		cfg:       cfg,
		log:       log.WithField("component", "crawler"),
		sleep:     sleepContext,
		now:       time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run crawls up to maxPages result pages of sourceID for f. A non-positive
// maxPages uses the configured limit of the source.
//
// A failure after the first page stops pagination and returns the records
// collected so far with HasMore=false and no error.
func (c *Crawler) Run(ctx context.Context, sourceID string, f models.Filter, maxPages int) (models.CrawlResult, error) {
	result := models.CrawlResult{Records: []models.RawRecord{}}

	strategy, err := c.registry.Get(sourceID)
	if err != nil {
		return result, err
	}
	src, ok := c.cfg.Source(sourceID)
	if !ok {
		src = config.SourceConfig{ID: sourceID, Engine: config.EngineBrowser, MaxPages: c.cfg.Crawler.MaxPages}
	}
	if maxPages <= 0 {
		maxPages = src.MaxPages
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	provider, ok := c.providers[src.Engine]
	if !ok {
		return result, fmt.Errorf("%w %q", ErrNoProvider, src.Engine)
	}

	log := c.log.WithFields(logrus.Fields{
		"source_id": sourceID,
		"run_id":    uuid.NewString(),
	})
	searchURL := strategy.BuildURL(f)
	started := c.now()
	log.WithFields(logrus.Fields{"url": searchURL, "max_pages": maxPages}).Info("crawl started")

	var runErr error
	err = fetcher.WithPage(ctx, provider, c.pageOptions(), func(page fetcher.Page) error {
		for n := 1; n <= maxPages; n++ {
			target := searchURL
			if n > 1 {
				target = strategy.PageURL(searchURL, n)
			}
			pageLog := log.WithFields(logrus.Fields{"page": n, "url": target})

			records, next, err := c.scanPage(ctx, strategy, page, target)
			if err != nil {
				pageLog.WithError(err).Error("page failed, stopping pagination")
				result.HasMore = false
				if n == 1 {
					runErr = fmt.Errorf("%w: %v", ErrFirstPage, err)
				}
				return nil
			}
			if len(records) == 0 {
				pageLog.Info("no listings on page, stopping pagination")
				result.HasMore = false
				return nil
			}

			result.Records = append(result.Records, records...)
			result.PagesScanned++
			result.HasMore = next
			pageLog.WithFields(logrus.Fields{"records": len(records), "has_next": next}).Info("page scanned")

			if !next || n == maxPages {
				return nil
			}
			if err := c.sleep(ctx, c.cfg.Crawler.PageDelay); err != nil {
				pageLog.WithError(err).Warn("crawl interrupted between pages")
				result.HasMore = false
				return nil
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("crawl could not start")
		return result, err
	}

	logger.Metric(log, "crawl duration", logrus.Fields{"duration_ms": c.now().Sub(started).Milliseconds()})
	logger.Metric(log, "listings found", logrus.Fields{
		"count":         len(result.Records),
		"pages_scanned": result.PagesScanned,
		"has_more":      result.HasMore,
	})
	return result, runErr
}

// scanPage loads one result page and extracts it. A panic inside the
// strategy is returned as an error for that page.
func (c *Crawler) scanPage(ctx context.Context, strategy scraper.Strategy, page fetcher.Page, target string) (records []models.RawRecord, next bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scanning page: %v", r)
		}
	}()

	if err := strategy.Navigate(ctx, page, target); err != nil {
		return nil, false, err
	}
	records = strategy.ExtractPage(ctx, page)
	if len(records) == 0 {
		return nil, false, nil
	}
	return records, strategy.HasNextPage(ctx, page), nil
}

func (c *Crawler) pageOptions() fetcher.PageOptions {
	return fetcher.PageOptions{
		UserAgent:         c.cfg.Crawler.UserAgent,
		ViewportWidth:     c.cfg.Crawler.ViewportWidth,
		ViewportHeight:    c.cfg.Crawler.ViewportHeight,
		NavigationTimeout: c.cfg.Crawler.NavigationTimeout,
		BlockResources:    c.cfg.Crawler.BlockResources,
	}
}
