package fetcher

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"car-crawler/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"
)

var resourceTypes = map[string]proto.NetworkResourceType{
	ResourceImage:      proto.NetworkResourceTypeImage,
	ResourceStylesheet: proto.NetworkResourceTypeStylesheet,
	ResourceFont:       proto.NetworkResourceTypeFont,
	ResourceMedia:      proto.NetworkResourceTypeMedia,
}

// RodLauncher launches a headless Chromium controlled by rod
type RodLauncher struct {
	cfg config.BrowserConfig
	log *logrus.Entry
}

// NewRodLauncher creates a RodLauncher
func NewRodLauncher(cfg config.BrowserConfig, log *logrus.Entry) *RodLauncher {
	return &RodLauncher{cfg: cfg, log: log.WithField("component", "browser")}
}

// Launch starts the browser process and connects to it
func (rl *RodLauncher) Launch(ctx context.Context) (Session, error) {
	l := launcher.New().
		Headless(rl.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		NoSandbox(true).
		Leakless(false).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-breakpad").
		Set("disable-sync").
		Set("disable-translate").
		Set("mute-audio").
		Set("disable-ipc-flooding-protection").
		Set("disable-features", "TranslateUI,BlinkGenPropertyTrees")

	if rl.cfg.DataDir != "" {
		if err := os.MkdirAll(rl.cfg.DataDir, 0755); err != nil {
			rl.log.WithError(err).Warnf("failed to create browser data directory %s", rl.cfg.DataDir)
		} else {
			l = l.UserDataDir(rl.cfg.DataDir)
		}
	}

	if bin := rl.findBinary(); bin != "" {
		l = l.Bin(bin)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &rodSession{
		browser:  browser,
		launcher: l,
		done:     make(chan struct{}),
	}
	go s.watchEvents()

	rl.log.WithField("control_url", controlURL).Info("browser started")
	return s, nil
}

// findBinary returns the configured browser binary or the first system
// Chrome/Chromium found. An empty result lets rod download its own build.
func (rl *RodLauncher) findBinary() string {
	if rl.cfg.BinPath != "" {
		return rl.cfg.BinPath
	}
	paths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	done     chan struct{}
}

// watchEvents closes done once the browser event stream ends, which happens
// when the devtools websocket is lost.
func (s *rodSession) watchEvents() {
	for range s.browser.Event() {
	}
	close(s.done)
}

func (s *rodSession) Done() <-chan struct{} {
	return s.done
}

func (s *rodSession) Probe(ctx context.Context) error {
	if _, err := s.browser.Context(ctx).Pages(); err != nil {
		return fmt.Errorf("browser probe failed: %w", err)
	}
	return nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	return err
}

// NewPage opens a stealth page with the viewport, user agent and
// resource block-list from opts applied.
func (s *rodSession) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	page, err := stealth.Page(s.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	// Pages outlive the acquiring call; per-operation contexts are applied later.
	page = page.Context(context.Background())

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.ViewportWidth,
			Height:            opts.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			page.Close()
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			page.Close()
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	rp := &rodPage{page: page, navTimeout: opts.NavigationTimeout}
	if len(opts.BlockResources) > 0 {
		router, err := blockResources(page, opts.BlockResources)
		if err != nil {
			page.Close()
			return nil, err
		}
		rp.router = router
	}
	return rp, nil
}

// blockResources installs a hijack router failing the listed resource types
func blockResources(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	for _, name := range types {
		rt, ok := resourceTypes[strings.ToLower(name)]
		if !ok {
			continue
		}
		err := router.Add("*", rt, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
		if err != nil {
			router.Stop()
			return nil, fmt.Errorf("failed to block %s requests: %w", name, err)
		}
	}
	go router.Run()
	return router, nil
}

type rodPage struct {
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if p.navTimeout > 0 {
		page = page.Timeout(p.navTimeout)
	}
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}
	return nil
}

func (p *rodPage) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) error {
	if len(selectors) == 0 {
		return nil
	}
	race := p.page.Context(ctx).Timeout(timeout).Race()
	for _, sel := range selectors {
		race = race.Element(sel)
	}
	if _, err := race.Do(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoMatch, err)
	}
	return nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return html, nil
}

func (p *rodPage) Close() error {
	if p.router != nil {
		p.router.Stop()
	}
	return p.page.Close()
}
