package service

import (
	"context"
	"fmt"

	"car-crawler/crawler"
	"car-crawler/filter"
	"car-crawler/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidRequest is returned for requests rejected before crawling
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoStore        = errors.New("no listing store configured")
)

// Crawler runs a single paginated crawl
type Crawler interface {
	Run(ctx context.Context, sourceID string, f models.Filter, maxPages int) (models.CrawlResult, error)
}

// Normalizer maps raw records to canonical listings
type Normalizer interface {
	NormalizeAll(records []models.RawRecord) []models.Listing
}

// Persister runs a crawl and stores the new listings
type Persister interface {
	Persist(ctx context.Context, sourceID string, f models.Filter, maxPages int) (crawler.Summary, error)
}

// Request is the caller input of a crawl
type Request struct {
	SourceID string         `json:"sourceId"`
	Filter   map[string]any `json:"filter,omitempty"`
	MaxPages int            `json:"maxPages,omitempty"`
}

// CrawlData is returned by a test-mode crawl
type CrawlData struct {
	Records           []models.RawRecord `json:"records"`
	NormalizedRecords []models.Listing   `json:"normalizedRecords"`
	Count             int                `json:"count"`
	PagesScanned      int                `json:"pagesScanned"`
	HasMore           bool               `json:"hasMore"`
}

// Result is the structured outcome of every boundary operation
type Result struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Error   string     `json:"error,omitempty"`
	Stack   string     `json:"stack,omitempty"`
	Data    *CrawlData `json:"data,omitempty"`
}

// Service is the invocation surface of the crawler
type Service struct {
	crawler    Crawler
	normalizer Normalizer
	persister  Persister
	production bool
	log        *logrus.Entry
}

// New creates the service. In production mode failures carry no stack trace.
// A nil Persister limits the service to test crawls.
func New(c Crawler, n Normalizer, p Persister, production bool, log *logrus.Entry) *Service {
	return &Service{
		crawler:    c,
		normalizer: n,
		persister:  p,
		production: production,
		log:        log.WithField("component", "service"),
	}
}

// Crawl runs one crawl without persisting and returns the raw and normalized records
func (s *Service) Crawl(ctx context.Context, req Request) Result {
	f, err := s.validate(req)
	if err != nil {
		return s.failure(req, err)
	}

	s.log.WithField("source_id", req.SourceID).Info("starting test crawl")
	result, err := s.crawler.Run(ctx, req.SourceID, f, req.MaxPages)
	if err != nil {
		return s.failure(req, errors.WithStack(err))
	}
	if len(result.Records) == 0 {
		s.log.WithField("source_id", req.SourceID).Info("no listings found")
	}

	return Result{
		Success: true,
		Data: &CrawlData{
			Records:           result.Records,
			NormalizedRecords: s.normalizer.NormalizeAll(result.Records),
			Count:             len(result.Records),
			PagesScanned:      result.PagesScanned,
			HasMore:           result.HasMore,
		},
	}
}

// CrawlAndPersist runs one crawl and stores the new listings
func (s *Service) CrawlAndPersist(ctx context.Context, req Request) Result {
	f, err := s.validate(req)
	if err != nil {
		return s.failure(req, err)
	}

	if s.persister == nil {
		return s.failure(req, errors.WithStack(ErrNoStore))
	}

	summary, err := s.persister.Persist(ctx, req.SourceID, f, req.MaxPages)
	if err != nil {
		return s.failure(req, errors.WithStack(err))
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Crawler completed successfully. %d new listings saved to database.", summary.Stored),
	}
}

func (s *Service) validate(req Request) (models.Filter, error) {
	if req.SourceID == "" {
		return models.Filter{}, errors.Wrap(ErrInvalidRequest, "sourceId is required")
	}
	if req.MaxPages < 0 {
		return models.Filter{}, errors.Wrap(ErrInvalidRequest, "maxPages must not be negative")
	}
	f, err := filter.FromParams(req.Filter)
	if err != nil {
		return models.Filter{}, errors.WithStack(err)
	}
	return f, nil
}

func (s *Service) failure(req Request, err error) Result {
	s.log.WithField("source_id", req.SourceID).WithError(err).Error("crawl request failed")
	res := Result{Success: false, Error: err.Error()}
	if !s.production {
		res.Stack = fmt.Sprintf("%+v", err)
	}
	return res
}
