package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"car-crawler/fetcher"
	"car-crawler/models"
	"car-crawler/parser"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// ErrUnknownSource is returned when no strategy is registered for a source id
var ErrUnknownSource = errors.New("unknown source")

// Strategy extracts listings from one source site
type Strategy interface {
	ID() string
	// BuildURL returns the search URL for f. Empty filter fields are omitted.
	BuildURL(f models.Filter) string
	// PageURL returns the URL of the n-th (1-based) result page of searchURL
	PageURL(searchURL string, n int) string
	// Navigate loads target and waits briefly for results or the empty-results marker
	Navigate(ctx context.Context, page fetcher.Page, target string) error
	// ExtractPage returns the valid records of the loaded page. It never fails:
	// unreadable markup yields an empty result.
	ExtractPage(ctx context.Context, page fetcher.Page) []models.RawRecord
	// HasNextPage reports whether an enabled next-page control is present
	HasNextPage(ctx context.Context, page fetcher.Page) bool
	// ParseRecord reads one listing container
	ParseRecord(s *goquery.Selection) models.RawRecord
}

// Registry maps source ids to strategies
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry holding strategies
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the strategy for s.ID()
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID()] = s
}

// Get returns the strategy registered for sourceID
func (r *Registry) Get(sourceID string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return s, nil
}

// IDs returns the registered source ids, sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Options holds the settings shared by all strategies
type Options struct {
	// BaseURL overrides the default search root of a strategy
	BaseURL     string
	WaitTimeout time.Duration
	Log         *logrus.Entry
}

// site carries the parts every strategy shares
type site struct {
	id          string
	baseURL     string
	origin      string
	waitTimeout time.Duration
	ready       []string
	log         *logrus.Entry
}

func newSite(id, defaultBase string, ready []string, opts Options) site {
	base := strings.TrimRight(defaultBase, "/")
	if opts.BaseURL != "" {
		base = strings.TrimRight(opts.BaseURL, "/")
	}
	origin := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		origin = u.Scheme + "://" + u.Host
	}
	wait := opts.WaitTimeout
	if wait <= 0 {
		wait = 10 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return site{
		id:          id,
		baseURL:     base,
		origin:      origin,
		waitTimeout: wait,
		ready:       ready,
		log:         log.WithFields(logrus.Fields{"component": "scraper", "source_id": id}),
	}
}

func (s site) ID() string {
	return s.id
}

func (s site) Navigate(ctx context.Context, page fetcher.Page, target string) error {
	if err := page.Navigate(ctx, target); err != nil {
		return err
	}
	if err := page.WaitAny(ctx, s.waitTimeout, s.ready...); err != nil {
		return fmt.Errorf("waiting for results at %s: %w", target, err)
	}
	return nil
}

// loadDocument parses the loaded page, logging and returning nil on failure
func (s site) loadDocument(ctx context.Context, page fetcher.Page) *goquery.Document {
	html, err := page.HTML(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to read page markup")
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.log.WithError(err).Error("failed to parse page markup")
		return nil
	}
	return doc
}

// extract runs parse over every container and keeps the valid records.
// A panic while reading one container only drops that container.
func (s site) extract(ctx context.Context, page fetcher.Page, container string, parse func(*goquery.Selection) models.RawRecord) []models.RawRecord {
	doc := s.loadDocument(ctx, page)
	if doc == nil {
		return nil
	}

	var records []models.RawRecord
	skipped := 0
	doc.Find(container).Each(func(i int, sel *goquery.Selection) {
		rec, ok := s.safeParse(i, sel, parse)
		if !ok || !ValidRecord(rec) {
			skipped++
			return
		}
		records = append(records, rec)
	})

	s.log.WithFields(logrus.Fields{"records": len(records), "skipped": skipped}).Debug("page extracted")
	return records
}

func (s site) safeParse(i int, sel *goquery.Selection, parse func(*goquery.Selection) models.RawRecord) (rec models.RawRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warnf("panic while parsing container %d: %v", i, r)
			ok = false
		}
	}()
	return parse(sel), true
}

// hasNext reports whether the next-page control exists and is not disabled
func (s site) hasNext(ctx context.Context, page fetcher.Page, selector string) bool {
	doc := s.loadDocument(ctx, page)
	if doc == nil {
		return false
	}
	next := doc.Find(selector).First()
	if next.Length() == 0 {
		return false
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return false
	}
	if next.HasClass("disabled") || next.AttrOr("aria-disabled", "") == "true" {
		return false
	}
	return true
}

// ValidRecord reports whether a raw record carries the minimum viable
// listing: title, link, external id and a non-zero price.
func ValidRecord(r models.RawRecord) bool {
	return r.Get(models.FieldTitle) != "" &&
		r.Get(models.FieldURL) != "" &&
		r.Get(models.FieldExternalID) != "" &&
		parser.ExtractNumber(r.Get(models.FieldPrice)) > 0
}

// withPage sets the page query parameter of rawURL
func withPage(rawURL, param string, n int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// lastPathSegment returns the final non-empty segment of a URL path
func lastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

// titleMakeModel reads make and model from the word positions around the year
// token. A year after the make ("Toyota 2015 Fielder") makes every earlier word
// the make; a leading year ("2016 Toyota Fielder") makes the next word the
// make. The model is every word after the make.
func titleMakeModel(title string) (mk, model string) {
	words := strings.Fields(title)
	yearAt := -1
	for i, w := range words {
		if len(w) == 4 && parser.ExtractYear(w) != 0 {
			yearAt = i
			break
		}
	}
	switch {
	case yearAt > 0:
		mk = strings.Join(words[:yearAt], " ")
		model = strings.Join(words[yearAt+1:], " ")
	case yearAt == 0 && len(words) > 1:
		mk = words[1]
		model = strings.Join(words[2:], " ")
	}
	return mk, model
}

func setInt(q url.Values, key string, v int64) {
	if v > 0 {
		q.Set(key, strconv.FormatInt(v, 10))
	}
}
