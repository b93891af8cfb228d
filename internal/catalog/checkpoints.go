package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shellac/internal/services"
)

// Operation names used as checkpoint keys.
const (
	OperationScan    = "scan"
	OperationAnalyze = "analyze"
	OperationMigrate = "migrate"
)

// ScanCursor marks progress through a lexical walk of the source tree.
type ScanCursor struct {
	Root     string `json:"root"`
	LastPath string `json:"last_path"`
	Added    int    `json:"added"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// AnalyzeCursor marks progress through size-bucket refinement.
type AnalyzeCursor struct {
	BucketsDone  int `json:"buckets_done"`
	TotalBuckets int `json:"total_buckets"`
}

// MigrateCursor marks progress through the migration plan.
type MigrateCursor struct {
	LastTaskID int64 `json:"last_task_id"`
	Migrated   int   `json:"migrated"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
}

// Checkpoint is one saved operation cursor with progress counters.
type Checkpoint struct {
	Operation string
	Cursor    json.RawMessage
	Processed int
	Total     int
	UpdatedAt time.Time
}

// SaveCheckpoint replaces the stored cursor for an operation in one
// statement so a crash leaves either the old or the new cursor, never a mix.
func (s *Store) SaveCheckpoint(ctx context.Context, operation string, cursor any, processed, total int) error {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO checkpoints (operation, cursor_json, processed, total, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(operation) DO UPDATE SET
             cursor_json = excluded.cursor_json,
             processed = excluded.processed,
             total = excluded.total,
             updated_at = excluded.updated_at`,
		operation, string(payload), processed, total, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint fetches the saved cursor for an operation and decodes it
// into the supplied cursor value. Returns ErrNotFound when the operation has
// no saved checkpoint.
func (s *Store) LoadCheckpoint(ctx context.Context, operation string, cursor any) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT cursor_json, processed, total, updated_at FROM checkpoints WHERE operation = ?`,
		operation,
	)
	var (
		payload   string
		processed int
		total     int
		updatedAt string
	)
	err := row.Scan(&payload, &processed, &total, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "load checkpoint",
			fmt.Sprintf("no checkpoint for %s", operation), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cursor != nil {
		if err := json.Unmarshal([]byte(payload), cursor); err != nil {
			return nil, fmt.Errorf("decode %s cursor: %w", operation, err)
		}
	}
	return &Checkpoint{
		Operation: operation,
		Cursor:    json.RawMessage(payload),
		Processed: processed,
		Total:     total,
		UpdatedAt: parseTimeString(updatedAt),
	}, nil
}

// ClearCheckpoint removes the saved cursor after an operation completes.
// Clearing an absent checkpoint is not an error.
func (s *Store) ClearCheckpoint(ctx context.Context, operation string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE operation = ?`, operation); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
