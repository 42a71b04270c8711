package models

// Crawler log statuses persisted by the log sink
const (
	LogInfo   = "INFO"
	LogWarn   = "WARN"
	LogError  = "ERROR"
	LogMetric = "METRIC"
)

// Job statuses of the crawl queue
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)
