package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"car-crawler/config"
	"car-crawler/crawler"
	"car-crawler/db"
	"car-crawler/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Queue stores crawl jobs between the cron trigger and the worker
type Queue interface {
	EnqueueJob(ctx context.Context, sourceID, url string, maxAttempts int) (int64, bool, error)
	NextJob(ctx context.Context) (*db.Job, error)
	TouchJob(ctx context.Context, id int64) error
	CompleteJob(ctx context.Context, id int64) error
	FailJob(ctx context.Context, id int64, message string, retryAt time.Time) error
	RequeueStalled(ctx context.Context, staleBefore time.Time, maxStalled int) (int64, int64, error)
}

// Runner executes one crawl-and-persist run of a source
type Runner interface {
	Persist(ctx context.Context, sourceID string, f models.Filter, maxPages int) (crawler.Summary, error)
}

// Notifier sends operator notifications
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Scheduler enqueues a job per active source on its cron schedule and
// processes queued jobs with bounded retries
type Scheduler struct {
	queue    Queue
	runner   Runner
	notifier Notifier
	sources  []config.SourceConfig
	cfg      config.QueueConfig
	cron     *cron.Cron
	log      *logrus.Entry
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler. notifier may be nil.
func NewScheduler(cfg *config.Config, queue Queue, runner Runner, notifier Notifier, log *logrus.Entry) *Scheduler {
	log = log.WithField("component", "scheduler")
	return &Scheduler{
		queue:    queue,
		runner:   runner,
		notifier: notifier,
		sources:  cfg.ActiveSources(),
		cfg:      cfg.Queue,
		cron:     cron.New(cron.WithLogger(cronLogger{log: log})),
		log:      log,
		now:      time.Now,
	}
}

// Start registers the source schedules and starts the worker loop
func (s *Scheduler) Start(ctx context.Context) error {
	for _, src := range s.sources {
		if _, err := s.cron.AddFunc(src.CrawlSchedule, func() { s.Enqueue(s.ctx, src) }); err != nil {
			return fmt.Errorf("failed to schedule source %s: %w", src.ID, err)
		}
		s.log.WithFields(logrus.Fields{"source_id": src.ID, "schedule": src.CrawlSchedule}).Info("source scheduled")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop stops the cron trigger and waits for the running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Backoff returns the delay before retrying after the given failed attempt:
// the base delay doubled for every earlier attempt
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.cfg.Backoff * time.Duration(1<<(attempt-1))
}

// Enqueue adds a crawl job for src unless one is already queued
func (s *Scheduler) Enqueue(ctx context.Context, src config.SourceConfig) {
	log := s.log.WithField("source_id", src.ID)
	id, created, err := s.queue.EnqueueJob(ctx, src.ID, src.BaseURL, s.cfg.Attempts)
	if err != nil {
		log.WithError(err).Error("failed to enqueue crawl job")
		return
	}
	if !created {
		log.WithField("job_id", id).Info("crawl job already queued, skipping")
		return
	}
	log.WithField("job_id", id).Info("crawl job queued")
}

// run is the main worker loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SweepStalled(s.ctx)
			for {
				processed, err := s.ProcessNext(s.ctx)
				if err != nil || !processed || s.ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// SweepStalled requeues running jobs that stopped reporting heartbeats
func (s *Scheduler) SweepStalled(ctx context.Context) {
	requeued, failed, err := s.queue.RequeueStalled(ctx, s.now().Add(-s.cfg.StallTimeout), s.cfg.MaxStalledCount)
	if err != nil {
		s.log.WithError(err).Error("failed to sweep stalled jobs")
		return
	}
	if requeued > 0 || failed > 0 {
		s.log.WithFields(logrus.Fields{"requeued": requeued, "failed": failed}).Warn("stalled jobs swept")
	}
}

// ProcessNext runs the next due job. It reports whether a job was processed.
func (s *Scheduler) ProcessNext(ctx context.Context) (bool, error) {
	job, err := s.queue.NextJob(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to get next job")
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := s.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"source_id": job.SourceID,
		"attempt":   job.Attempts,
	})
	log.Info("processing crawl job")

	stopHeartbeat := s.heartbeat(ctx, job.ID, log)
	summary, runErr := s.runner.Persist(ctx, job.SourceID, models.Filter{}, 0)
	stopHeartbeat()

	if runErr != nil {
		s.handleJobError(ctx, job, runErr, log)
		return true, nil
	}

	if err := s.queue.CompleteJob(ctx, job.ID); err != nil {
		log.WithError(err).Error("failed to mark job done")
	}
	log.WithFields(logrus.Fields{
		"pages_scanned": summary.PagesScanned,
		"stored":        summary.Stored,
	}).Info("crawl job done")

	if summary.Stored > 0 {
		s.notify(ctx, fmt.Sprintf("✅ %s: %d new listings stored (%d pages scanned)",
			job.SourceID, summary.Stored, summary.PagesScanned))
	}
	return true, nil
}

// handleJobError schedules a retry with backoff or fails the job once its
// attempts are used up
func (s *Scheduler) handleJobError(ctx context.Context, job *db.Job, runErr error, log *logrus.Entry) {
	if job.Attempts < job.MaxAttempts {
		delay := s.Backoff(job.Attempts)
		log.WithError(runErr).WithField("retry_in", delay.String()).Warn("crawl job failed, retrying")
		if err := s.queue.FailJob(ctx, job.ID, runErr.Error(), s.now().Add(delay)); err != nil {
			log.WithError(err).Error("failed to schedule retry")
		}
		return
	}

	log.WithError(runErr).Error("crawl job failed permanently")
	if err := s.queue.FailJob(ctx, job.ID, runErr.Error(), time.Time{}); err != nil {
		log.WithError(err).Error("failed to mark job failed")
	}
	s.notify(ctx, fmt.Sprintf("❌ %s: crawl failed after %d attempts\n\nError: %v",
		job.SourceID, job.Attempts, runErr))
}

// heartbeat touches the job until the returned stop function is called
func (s *Scheduler) heartbeat(ctx context.Context, id int64, log *logrus.Entry) func() {
	interval := s.cfg.StallTimeout / 3
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.queue.TouchJob(ctx, id); err != nil {
					log.WithError(err).Warn("failed to touch job")
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Scheduler) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.log.WithError(err).Warn("failed to send notification")
	}
}

// cronLogger adapts cron's logger to logrus
type cronLogger struct {
	log *logrus.Entry
}

func (l cronLogger) fields(keysAndValues []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(l.fields(keysAndValues)).Debugf("cron: %s", msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(l.fields(keysAndValues)).WithError(err).Errorf("cron: %s", msg)
}
