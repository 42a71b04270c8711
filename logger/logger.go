package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"car-crawler/config"
	"car-crawler/models"

	"github.com/sirupsen/logrus"
)

// MetricField marks an entry as a crawl metric for the sink
const MetricField = "metric"

// New builds the process logger from configuration
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return log, nil
}

// Metric logs a named crawl metric at info level
func Metric(log *logrus.Entry, name string, fields logrus.Fields) {
	log.WithFields(fields).WithField(MetricField, true).Info(name)
}

// Sink persists crawler log records
type Sink interface {
	Record(ctx context.Context, status, message string, metadata map[string]any) error
}

// SinkHook forwards info, warn and error entries to a Sink. A failing sink
// never blocks the caller, logrus reports the hook error on stderr.
type SinkHook struct {
	sink    Sink
	timeout time.Duration
}

// NewSinkHook creates a hook writing to sink
func NewSinkHook(sink Sink) *SinkHook {
	return &SinkHook{sink: sink, timeout: 5 * time.Second}
}

// Levels implements logrus.Hook
func (h *SinkHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

// Fire implements logrus.Hook
func (h *SinkHook) Fire(entry *logrus.Entry) error {
	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	metadata := make(map[string]any, len(entry.Data))
	for k, v := range entry.Data {
		if k == MetricField {
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		metadata[k] = v
	}
	return h.sink.Record(ctx, Status(entry), entry.Message, metadata)
}

// Status maps a logrus entry to the persisted log status
func Status(entry *logrus.Entry) string {
	if metric, _ := entry.Data[MetricField].(bool); metric {
		return models.LogMetric
	}
	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return models.LogError
	case logrus.WarnLevel:
		return models.LogWarn
	default:
		return models.LogInfo
	}
}
