package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Resource types that can be blocked while a page navigates
const (
	ResourceImage      = "image"
	ResourceStylesheet = "stylesheet"
	ResourceFont       = "font"
	ResourceMedia      = "media"
)

// ErrNoMatch is returned by WaitAny when none of the selectors appeared
var ErrNoMatch = errors.New("none of the expected elements appeared")

// Page is one navigable document opened on a Session
type Page interface {
	// Navigate loads url and waits for the load event, bounded by the navigation timeout
	Navigate(ctx context.Context, url string) error
	// WaitAny waits until any of the selectors matches, bounded by timeout
	WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) error
	// HTML returns the markup of the currently loaded document
	HTML(ctx context.Context) (string, error)
	Close() error
}

// PageOptions configures a page before its first navigation
type PageOptions struct {
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// BlockResources lists resource types that are failed at the interception layer
	BlockResources []string
}

// Session is a long-lived browser (or HTTP client) shared across crawl runs
type Session interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	// Probe returns an error when the session can no longer serve pages
	Probe(ctx context.Context) error
	// Done is closed when the underlying connection is lost. It may be nil
	// for sessions that cannot disconnect.
	Done() <-chan struct{}
	Close() error
}

// Launcher starts a new Session
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Provider hands out a healthy shared Session
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

// WithPage acquires a session, opens a page and runs fn with it.
// The page is closed when fn returns, including when fn panics.
func WithPage(ctx context.Context, provider Provider, opts PageOptions, fn func(Page) error) error {
	session, err := provider.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire session: %w", err)
	}

	page, err := session.NewPage(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	return fn(page)
}
