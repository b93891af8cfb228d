package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shellac/internal/services"
)

const fileColumns = `source_path, size_bytes, mod_time, partial_hash, full_hash, status, error_message, created_at, updated_at`

func scanFile(scanner interface{ Scan(...any) error }) (*FileRecord, error) {
	var (
		record       FileRecord
		modTime      string
		partialHash  sql.NullString
		fullHash     sql.NullString
		status       string
		errorMessage sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := scanner.Scan(
		&record.SourcePath,
		&record.SizeBytes,
		&modTime,
		&partialHash,
		&fullHash,
		&status,
		&errorMessage,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	record.ModTime = parseTimeString(modTime)
	record.PartialHash = partialHash.String
	record.FullHash = fullHash.String
	record.ErrorMessage = errorMessage.String
	record.CreatedAt = parseTimeString(createdAt)
	record.UpdatedAt = parseTimeString(updatedAt)
	parsed, ok := ParseFileStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown file status %q for %s", status, record.SourcePath)
	}
	record.Status = parsed
	return &record, nil
}

// UpsertDiscovered records a file sighting from a scan pass. New files start
// at discovered; known files whose size or mtime changed are reset to
// discovered with stale fingerprints cleared, and unchanged files keep their
// status untouched. Failed records are always reset so a re-scan retries
// them instead of parking them behind a manual reset.
func (s *Store) UpsertDiscovered(ctx context.Context, path string, size int64, modTime time.Time) (*FileRecord, error) {
	existing, err := s.GetFile(ctx, path)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	now := formatTime(time.Now())
	normalizedMod := formatTime(modTime.UTC().Truncate(time.Second))

	if existing == nil {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO files (source_path, size_bytes, mod_time, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			path, size, normalizedMod, StatusDiscovered, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert file: %w", err)
		}
		return s.GetFile(ctx, path)
	}

	if existing.Status != StatusFailed && !existing.ChangedSince(size, modTime) {
		return existing, nil
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE files
         SET size_bytes = ?, mod_time = ?, partial_hash = NULL, full_hash = NULL,
             status = ?, error_message = NULL, updated_at = ?
         WHERE source_path = ?`,
		size, normalizedMod, StatusDiscovered, now, path,
	)
	if err != nil {
		return nil, fmt.Errorf("reset changed file: %w", err)
	}
	return s.GetFile(ctx, path)
}

// GetFile loads a single record by source path.
func (s *Store) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE source_path = ?`, path)
	record, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get", fmt.Sprintf("no record for %s", path), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return record, nil
}

// ListFiles returns records in the given statuses ordered by source path.
// An empty status list returns everything.
func (s *Store) ListFiles(ctx context.Context, statuses ...FileStatus) ([]*FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY source_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListFilesAfter returns up to limit records with source_path strictly greater
// than cursor, in path order. It backs resumable batch iteration.
func (s *Store) ListFilesAfter(ctx context.Context, status FileStatus, cursor string, limit int) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM files
         WHERE status = ? AND source_path > ?
         ORDER BY source_path LIMIT ?`,
		status, cursor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list files after cursor: %w", err)
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// SetPartialHash stores the cheap fingerprint and advances the record to
// fingerprinted in one statement. The compare-and-set on the current status
// keeps concurrent workers from rewinding a further-along record.
func (s *Store) SetPartialHash(ctx context.Context, path, hash string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET partial_hash = ?, status = ?, error_message = NULL, updated_at = ?
         WHERE source_path = ? AND status = ?`,
		hash, StatusFingerprinted, formatTime(time.Now()), path, StatusDiscovered,
	)
	if err != nil {
		return fmt.Errorf("set partial hash: %w", err)
	}
	return s.requireRowChanged(ctx, res, path, "set partial hash")
}

// SetFullHash stores the lazily computed full-content hash without touching
// the lifecycle status.
func (s *Store) SetFullHash(ctx context.Context, path, hash string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET full_hash = ?, updated_at = ? WHERE source_path = ?`,
		hash, formatTime(time.Now()), path,
	)
	if err != nil {
		return fmt.Errorf("set full hash: %w", err)
	}
	return s.requireRowChanged(ctx, res, path, "set full hash")
}

// TransitionStatus moves a record from one status to another through a
// compare-and-set. It fails when the record is absent, already moved, or the
// transition runs against the lifecycle order.
func (s *Store) TransitionStatus(ctx context.Context, path string, from, to FileStatus) error {
	if !CanTransition(from, to) {
		return services.Wrap(services.ErrConfiguration, "catalog", "transition",
			fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE source_path = ? AND status = ?`,
		to, formatTime(time.Now()), path, from,
	)
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrOperationInProgress, "catalog", "transition",
			fmt.Sprintf("%s is no longer %s", path, from), nil)
	}
	return nil
}

// MarkFailed moves a record to failed and records the reason.
func (s *Store) MarkFailed(ctx context.Context, path, message string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET status = ?, error_message = ?, updated_at = ? WHERE source_path = ?`,
		StatusFailed, nullableString(message), formatTime(time.Now()), path,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.requireRowChanged(ctx, res, path, "mark failed")
}

// Quarantine moves a record to quarantined, recording why.
func (s *Store) Quarantine(ctx context.Context, path, message string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET status = ?, error_message = ?, updated_at = ? WHERE source_path = ?`,
		StatusQuarantined, nullableString(message), formatTime(time.Now()), path,
	)
	if err != nil {
		return fmt.Errorf("quarantine: %w", err)
	}
	return s.requireRowChanged(ctx, res, path, "quarantine")
}

// ResetFile returns a record to discovered with fingerprints and error
// details cleared. This is the only way out of an absorbing state.
func (s *Store) ResetFile(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files
         SET status = ?, partial_hash = NULL, full_hash = NULL, error_message = NULL, updated_at = ?
         WHERE source_path = ?`,
		StatusDiscovered, formatTime(time.Now()), path,
	)
	if err != nil {
		return fmt.Errorf("reset file: %w", err)
	}
	return s.requireRowChanged(ctx, res, path, "reset")
}

// RemoveFile deletes a record and, via foreign keys, its metadata, group
// memberships, and migration tasks.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE source_path = ?`, path)
	if err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	return s.requireRowChanged(ctx, res, path, "remove")
}

// Health aggregates per-status counts and total tracked bytes.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1), COALESCE(SUM(size_bytes), 0) FROM files GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("health query: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var (
			status string
			count  int
			bytes  int64
		)
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return HealthSummary{}, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		summary.TotalBytes += bytes
		switch FileStatus(status) {
		case StatusDiscovered:
			summary.Discovered += count
		case StatusFingerprinted:
			summary.Fingerprinted += count
		case StatusDuplicateAnalyzed:
			summary.Analyzed += count
		case StatusMigrated:
			summary.Migrated += count
		case StatusFailed:
			summary.Failed += count
		case StatusQuarantined:
			summary.Quarantined += count
		}
	}
	return summary, rows.Err()
}

func (s *Store) requireRowChanged(ctx context.Context, res sql.Result, path, step string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", step, err)
	}
	if affected == 0 {
		if _, getErr := s.GetFile(ctx, path); getErr != nil {
			return getErr
		}
		return services.Wrap(services.ErrOperationInProgress, "catalog", step,
			fmt.Sprintf("no row changed for %s", path), nil)
	}
	return nil
}
