package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"car-crawler/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps the database connection
type DB struct {
	conn   *sql.DB
	driver string
	log    *logrus.Entry
	now    func() time.Time
}

// NewDB opens the store selected by cfg. An empty postgres DSN is built
// from the DB_* environment variables.
func NewDB(cfg config.DatabaseConfig, log *logrus.Entry) (*DB, error) {
	dsn := cfg.DSN
	if dsn == "" && cfg.Driver == DriverPostgres {
		host := getEnvOrDefault("DB_HOST", "localhost")
		port := getEnvOrDefault("DB_PORT", "5432")
		user := getEnvOrDefault("DB_USER", "car_crawler")
		password := getEnvOrDefault("DB_PASSWORD", "")
		dbname := getEnvOrDefault("DB_NAME", "car_crawler")
		sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}
	if dsn == "" && cfg.Driver == DriverSQLite {
		dsn = "car-crawler.db"
	}
	return Open(cfg.Driver, dsn, log)
}

// Open connects to the database and pings it
func Open(driver, dsn string, log *logrus.Entry) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// a single connection keeps in-memory databases shared and serializes writers
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		conn:   conn,
		driver: driver,
		log:    log.WithField("component", "db"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the driver name the store was opened with
func (db *DB) Driver() string {
	return db.driver
}

// ddl adapts the shared schema to the driver dialect
func (db *DB) ddl(stmt string) string {
	id, ts := "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if db.driver == DriverSQLite {
		id, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
	}
	return strings.NewReplacer("{{id}}", id, "{{ts}}", ts).Replace(stmt)
}

// Migrate creates the necessary tables if they don't exist
func (db *DB) Migrate(ctx context.Context) error {
	tables := []struct {
		name string
		stmt string
	}{
		{"listings", `
			CREATE TABLE IF NOT EXISTS listings (
				id {{id}},
				source_id TEXT NOT NULL,
				external_id TEXT NOT NULL,
				title TEXT NOT NULL,
				make TEXT NOT NULL,
				model TEXT NOT NULL,
				year INTEGER,
				price BIGINT NOT NULL,
				currency VARCHAR(10),
				mileage BIGINT,
				engine_size BIGINT,
				transmission TEXT,
				location TEXT,
				fuel_type TEXT,
				body_type TEXT,
				images TEXT NOT NULL DEFAULT '[]',
				specs TEXT NOT NULL DEFAULT '{}',
				source_url TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at {{ts}} NOT NULL,
				updated_at {{ts}} NOT NULL,
				UNIQUE (source_id, external_id)
			)`},
		{"crawl_jobs", `
			CREATE TABLE IF NOT EXISTS crawl_jobs (
				id {{id}},
				source_id TEXT NOT NULL,
				url TEXT NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'pending',
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 3,
				stall_count INTEGER NOT NULL DEFAULT 0,
				run_at {{ts}} NOT NULL,
				started_at {{ts}},
				heartbeat_at {{ts}},
				finished_at {{ts}},
				last_error TEXT,
				created_at {{ts}} NOT NULL,
				updated_at {{ts}} NOT NULL,
				CONSTRAINT valid_job_status CHECK (status IN ('pending', 'running', 'done', 'failed'))
			)`},
		{"crawler_logs", `
			CREATE TABLE IF NOT EXISTS crawler_logs (
				id {{id}},
				source_id TEXT NOT NULL DEFAULT 'Unknown',
				status VARCHAR(10) NOT NULL,
				message TEXT NOT NULL,
				metadata TEXT,
				created_at {{ts}} NOT NULL,
				CONSTRAINT valid_log_status CHECK (status IN ('INFO', 'WARN', 'ERROR', 'METRIC'))
			)`},
	}

	for _, t := range tables {
		if _, err := db.conn.ExecContext(ctx, db.ddl(t.stmt)); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_listings_similar ON listings(make, model, year)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(active)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_jobs_status_run_at ON crawl_jobs(status, run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_jobs_source_id ON crawl_jobs(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_crawler_logs_source_id ON crawler_logs(source_id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			db.log.WithError(err).Warnf("failed to create index: %s", stmt)
		}
	}

	db.log.Info("database schema initialized")
	return nil
}
