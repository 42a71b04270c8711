package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"car-crawler/models"
)

// LogRecord is one persisted crawler log row
type LogRecord struct {
	ID        int64
	SourceID  string
	Status    string
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Record persists a crawler log row. The source id is taken from the
// "source_id" metadata key and defaults to "Unknown".
func (db *DB) Record(ctx context.Context, status, message string, metadata map[string]any) error {
	sourceID := models.UnknownValue
	if v, ok := metadata["source_id"].(string); ok && v != "" {
		sourceID = v
	}

	var meta any
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode log metadata: %w", err)
		}
		meta = string(b)
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO crawler_logs (source_id, status, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sourceID, status, message, meta, db.now())
	if err != nil {
		return fmt.Errorf("failed to record crawler log: %w", err)
	}
	return nil
}

// RecentLogs returns the newest log rows of a source, or of every source
// when sourceID is empty
func (db *DB) RecentLogs(ctx context.Context, sourceID string, limit int) ([]LogRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source_id, status, message, COALESCE(metadata, ''), created_at
		FROM crawler_logs
		WHERE $1 = '' OR source_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawler logs: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var (
			r    LogRecord
			meta string
		)
		if err := rows.Scan(&r.ID, &r.SourceID, &r.Status, &r.Message, &meta, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan crawler log: %w", err)
		}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode log metadata: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
