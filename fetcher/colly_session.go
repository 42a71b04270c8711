package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// HTTPLauncher creates colly-backed sessions for sources that render
// their listings server side
type HTTPLauncher struct {
	log *logrus.Entry
}

// NewHTTPLauncher creates an HTTPLauncher
func NewHTTPLauncher(log *logrus.Entry) *HTTPLauncher {
	return &HTTPLauncher{log: log.WithField("component", "http")}
}

// Launch implements Launcher
func (hl *HTTPLauncher) Launch(ctx context.Context) (Session, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	return &collySession{base: c, log: hl.log}, nil
}

type collySession struct {
	base *colly.Collector
	log  *logrus.Entry
}

// Done returns nil: an HTTP session has no connection to lose
func (s *collySession) Done() <-chan struct{} {
	return nil
}

func (s *collySession) Probe(ctx context.Context) error {
	return ctx.Err()
}

func (s *collySession) Close() error {
	return nil
}

// NewPage clones the base collector with opts applied. Resource blocking
// is a no-op since only the document itself is fetched.
func (s *collySession) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	c := s.base.Clone()
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	}
	if opts.NavigationTimeout > 0 {
		c.SetRequestTimeout(opts.NavigationTimeout)
	}

	p := &collyPage{collector: c}
	// callbacks are not carried over by Clone
	c.OnError(func(r *colly.Response, err error) {
		s.log.WithError(err).Warnf("error fetching %s", r.Request.URL)
	})
	c.OnResponse(func(r *colly.Response) {
		p.mu.Lock()
		p.body = string(r.Body)
		p.mu.Unlock()
	})
	return p, nil
}

type collyPage struct {
	collector *colly.Collector

	mu   sync.Mutex
	body string
}

func (p *collyPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.body = ""
	p.mu.Unlock()

	if err := p.collector.Visit(url); err != nil {
		return fmt.Errorf("failed to visit URL: %w", err)
	}
	p.collector.Wait()
	return nil
}

// WaitAny checks the fetched document once; a static page will not change
func (p *collyPage) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) error {
	if len(selectors) == 0 {
		return nil
	}
	html, err := p.HTML(ctx)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return nil
		}
	}
	return ErrNoMatch
}

func (p *collyPage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.body == "" {
		return "", fmt.Errorf("no document loaded")
	}
	return p.body, nil
}

func (p *collyPage) Close() error {
	return nil
}
