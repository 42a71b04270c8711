package db

import (
	"context"
	"testing"
	"time"

	"car-crawler/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueJobSkipsOpenJob(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	id, created, err := db.EnqueueJob(ctx, "cheki", "https://autochek.africa/ke/cars-for-sale", 3)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := db.EnqueueJob(ctx, "cheki", "https://autochek.africa/ke/cars-for-sale", 3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	_, created, err = db.EnqueueJob(ctx, "usedcars", "https://www.usedcars.co.ke", 3)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestNextJobLifecycle(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	id, _, err := db.EnqueueJob(ctx, "cheki", "https://autochek.africa/ke/cars-for-sale", 3)
	require.NoError(t, err)

	job, err := db.NextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, models.JobRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.True(t, job.HeartbeatAt.Valid)

	none, err := db.NextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "running jobs are not claimed twice")

	require.NoError(t, db.TouchJob(ctx, id))
	require.NoError(t, db.CompleteJob(ctx, id))

	done, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, done.Status)
	assert.True(t, done.Terminal())
	assert.True(t, done.FinishedAt.Valid)

	_, created, err := db.EnqueueJob(ctx, "cheki", "https://autochek.africa/ke/cars-for-sale", 3)
	require.NoError(t, err)
	assert.True(t, created, "finished jobs do not block new ones")
}

func TestFailJobRetryThenFail(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()

	id, _, err := db.EnqueueJob(ctx, "cheki", "https://autochek.africa/ke/cars-for-sale", 3)
	require.NoError(t, err)
	_, err = db.NextJob(ctx)
	require.NoError(t, err)

	require.NoError(t, db.FailJob(ctx, id, "navigation timeout", clock.t.Add(time.Minute)))

	job, err := db.NextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "retry is not due yet")

	clock.advance(time.Minute)
	job, err = db.NextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "navigation timeout", job.LastError.String)

	require.NoError(t, db.FailJob(ctx, id, "navigation timeout", time.Time{}))
	failed, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, failed.Status)
}

func TestRequeueStalled(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()

	id, _, err := db.EnqueueJob(ctx, "cheki", "https://autochek.africa/ke/cars-for-sale", 3)
	require.NoError(t, err)

	for stall := 1; stall <= 2; stall++ {
		job, err := db.NextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, 1, job.Attempts, "stalls do not consume attempts")

		clock.advance(10 * time.Minute)
		requeued, failed, err := db.RequeueStalled(ctx, clock.t.Add(-5*time.Minute), 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), requeued)
		assert.Zero(t, failed)

		job, err = db.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobPending, job.Status)
		assert.Equal(t, stall, job.StallCount)
	}

	_, err = db.NextJob(ctx)
	require.NoError(t, err)
	clock.advance(10 * time.Minute)
	requeued, failed, err := db.RequeueStalled(ctx, clock.t.Add(-5*time.Minute), 2)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Equal(t, int64(1), failed)

	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
}

func TestRequeueStalledLeavesFreshJobs(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()

	_, _, err := db.EnqueueJob(ctx, "cheki", "https://autochek.africa/ke/cars-for-sale", 3)
	require.NoError(t, err)
	job, err := db.NextJob(ctx)
	require.NoError(t, err)

	clock.advance(4 * time.Minute)
	require.NoError(t, db.TouchJob(ctx, job.ID))
	clock.advance(2 * time.Minute)

	requeued, failed, err := db.RequeueStalled(ctx, clock.t.Add(-5*time.Minute), 3)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, failed)
}

func TestListJobs(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	for _, source := range []string{"cheki", "usedcars", "kaiandkaro"} {
		_, _, err := db.EnqueueJob(ctx, source, "https://example.com/"+source, 3)
		require.NoError(t, err)
	}

	jobs, err := db.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "kaiandkaro", jobs[0].SourceID)
}
