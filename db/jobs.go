package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"car-crawler/models"
)

// Job is one scheduled crawl of a source
type Job struct {
	ID          int64
	SourceID    string
	URL         string
	Status      string // "pending", "running", "done", "failed"
	Attempts    int
	MaxAttempts int
	StallCount  int
	RunAt       time.Time
	HeartbeatAt sql.NullTime
	FinishedAt  sql.NullTime
	LastError   sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const jobColumns = `id, source_id, url, status, attempts, max_attempts, stall_count, run_at,
	heartbeat_at, finished_at, last_error, created_at, updated_at`

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.SourceID, &j.URL, &j.Status, &j.Attempts, &j.MaxAttempts, &j.StallCount, &j.RunAt,
		&j.HeartbeatAt, &j.FinishedAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// EnqueueJob adds a pending job for sourceID unless one is already pending or
// running. created reports whether a new job was inserted.
func (db *DB) EnqueueJob(ctx context.Context, sourceID, url string, maxAttempts int) (id int64, created bool, err error) {
	err = db.conn.QueryRowContext(ctx, `
		SELECT id FROM crawl_jobs
		WHERE source_id = $1 AND status IN ('pending', 'running')
		ORDER BY id LIMIT 1
	`, sourceID).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to check open jobs: %w", err)
	}

	now := db.now()
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO crawl_jobs (source_id, url, status, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6)
		RETURNING id
	`, sourceID, url, maxAttempts, now, now, now).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, true, nil
}

// NextJob claims the oldest due pending job, marks it running and counts the
// attempt. It returns nil when nothing is due.
func (db *DB) NextJob(ctx context.Context) (*Job, error) {
	lock := ""
	if db.driver == DriverPostgres {
		lock = "FOR UPDATE SKIP LOCKED"
	}
	now := db.now()

	var id int64
	err := db.conn.QueryRowContext(ctx, `
		UPDATE crawl_jobs SET
			status = 'running',
			attempts = attempts + 1,
			started_at = $1,
			heartbeat_at = $1,
			updated_at = $1
		WHERE id = (
			SELECT id FROM crawl_jobs
			WHERE status = 'pending' AND run_at <= $1
			ORDER BY run_at ASC, id ASC
			LIMIT 1
			`+lock+`
		)
		RETURNING id`, now).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return db.GetJob(ctx, id)
}

// TouchJob refreshes the heartbeat of a running job
func (db *DB) TouchJob(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE crawl_jobs SET heartbeat_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'running'
	`, db.now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch job %d: %w", id, err)
	}
	return nil
}

// CompleteJob marks a job done
func (db *DB) CompleteJob(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE crawl_jobs SET status = 'done', finished_at = $1, updated_at = $1, last_error = NULL
		WHERE id = $2
	`, db.now(), id)
	if err != nil {
		return fmt.Errorf("failed to complete job %d: %w", id, err)
	}
	return nil
}

// FailJob records a failed attempt. A non-zero retryAt puts the job back in
// the queue for that time, a zero retryAt fails it permanently.
func (db *DB) FailJob(ctx context.Context, id int64, message string, retryAt time.Time) error {
	now := db.now()
	var err error
	if retryAt.IsZero() {
		_, err = db.conn.ExecContext(ctx, `
			UPDATE crawl_jobs SET status = 'failed', last_error = $1, finished_at = $2, updated_at = $2
			WHERE id = $3
		`, message, now, id)
	} else {
		_, err = db.conn.ExecContext(ctx, `
			UPDATE crawl_jobs SET status = 'pending', last_error = $1, run_at = $2, updated_at = $3
			WHERE id = $4
		`, message, retryAt.UTC(), now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to record failure of job %d: %w", id, err)
	}
	return nil
}

// RequeueStalled returns running jobs whose heartbeat is older than
// staleBefore to the queue without consuming an attempt. Jobs that already
// stalled maxStalled times are failed instead.
func (db *DB) RequeueStalled(ctx context.Context, staleBefore time.Time, maxStalled int) (requeued, failed int64, err error) {
	now := db.now()
	staleBefore = staleBefore.UTC()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE crawl_jobs SET status = 'failed', last_error = 'job stalled more than allowable limit',
			finished_at = $1, updated_at = $1
		WHERE status = 'running' AND heartbeat_at < $2 AND stall_count >= $3
	`, now, staleBefore, maxStalled)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fail stalled jobs: %w", err)
	}
	failed, _ = res.RowsAffected()

	res, err = db.conn.ExecContext(ctx, `
		UPDATE crawl_jobs SET status = 'pending', stall_count = stall_count + 1,
			attempts = attempts - 1, run_at = $1, updated_at = $1
		WHERE status = 'running' AND heartbeat_at < $2
	`, now, staleBefore)
	if err != nil {
		return 0, failed, fmt.Errorf("failed to requeue stalled jobs: %w", err)
	}
	requeued, _ = res.RowsAffected()
	return requeued, failed, nil
}

// GetJob returns a job by id, or nil
func (db *DB) GetJob(ctx context.Context, id int64) (*Job, error) {
	job, err := scanJob(db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs, newest first
func (db *DB) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+jobColumns+`
		FROM crawl_jobs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Terminal reports whether the job reached a final status
func (j Job) Terminal() bool {
	return j.Status == models.JobDone || j.Status == models.JobFailed
}
