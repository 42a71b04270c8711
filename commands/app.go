package commands

import (
	"context"
	"fmt"
	"os"

	"car-crawler/config"
	"car-crawler/crawler"
	"car-crawler/db"
	"car-crawler/fetcher"
	"car-crawler/logger"
	"car-crawler/normalizer"
	"car-crawler/notify"
	"car-crawler/scraper"
	"car-crawler/service"
	"car-crawler/sheets"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
)

// app holds the wired components of one command invocation
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	entry      *logrus.Entry
	store      *db.DB
	managers   []*fetcher.Manager
	registry   *scraper.Registry
	crawler    *crawler.Crawler
	normalizer *normalizer.Normalizer
	pipeline   *crawler.Pipeline
	service    *service.Service
}

// loadConfig reads the config file, falling back to the built-in defaults
// when the file is absent
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.GetDefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return config.LoadConfig(path)
}

// openStore connects to the listing store, migrates it and attaches the
// log sink hook
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*db.DB, error) {
	store, err := db.NewDB(cfg.Database, logrus.NewEntry(log))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	log.AddHook(logger.NewSinkHook(store))
	return store, nil
}

// newApp wires the crawl stack. The store is only opened when withStore is
// set; without it the app can crawl but not persist.
func newApp(ctx context.Context, withStore bool) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	entry := logrus.NewEntry(log)
	entry.WithField("config", configPath).Debug("configuration loaded")

	a := &app{cfg: cfg, log: log, entry: entry}

	if withStore {
		if a.store, err = openStore(ctx, cfg, log); err != nil {
			return nil, err
		}
	}

	browser := fetcher.NewManager(fetcher.NewRodLauncher(cfg.Browser, entry), entry)
	static := fetcher.NewManager(fetcher.NewHTTPLauncher(entry), entry)
	a.managers = []*fetcher.Manager{browser, static}

	a.registry = newRegistry(cfg, entry)
	a.crawler = crawler.New(cfg, a.registry, map[string]fetcher.Provider{
		config.EngineBrowser: browser,
		config.EngineHTTP:    static,
	}, entry)
	a.normalizer = normalizer.New(entry)

	var persister service.Persister
	if a.store != nil {
		a.pipeline = crawler.NewPipeline(a.crawler, a.normalizer, a.store, entry)
		if w := newExporter(ctx, cfg, entry); w != nil {
			a.pipeline.WithExporter(w)
		}
		persister = a.pipeline
	}
	a.service = service.New(a.crawler, a.normalizer, persister, cfg.IsProduction(), entry)
	return a, nil
}

func newRegistry(cfg *config.Config, log *logrus.Entry) *scraper.Registry {
	opts := func(id string) scraper.Options {
		o := scraper.Options{WaitTimeout: cfg.Crawler.WaitTimeout, Log: log}
		if src, ok := cfg.Source(id); ok {
			o.BaseURL = src.BaseURL
		}
		return o
	}
	return scraper.NewRegistry(
		scraper.NewCheki(opts(scraper.ChekiID)),
		scraper.NewUsedCars(opts(scraper.UsedCarsID)),
		scraper.NewKaiAndKaro(opts(scraper.KaiAndKaroID)),
	)
}

// newExporter returns the sheets writer when a spreadsheet is configured.
// A writer that cannot be created disables the export.
func newExporter(ctx context.Context, cfg *config.Config, log *logrus.Entry) crawler.Exporter {
	if cfg.Sheets.SpreadsheetID == "" {
		return nil
	}
	w, err := sheets.NewWriter(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.CredentialsPath, log)
	if err != nil {
		log.WithError(err).Warn("sheets export disabled")
		return nil
	}
	return w
}

func (a *app) notifier() notify.Notifier {
	n, err := notify.New(a.cfg.Telegram, a.entry)
	if err != nil {
		a.entry.WithError(err).Warn("telegram notifications disabled")
		return notify.Noop{}
	}
	return n
}

func (a *app) Close() {
	for _, m := range a.managers {
		if err := m.Close(); err != nil {
			a.entry.WithError(err).Warn("failed to close session")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.entry.WithError(err).Warn("failed to close store")
		}
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
