// Package scanner walks a source tree and keeps the catalog's file index
// current. Walks are resumable: progress is checkpointed at a configurable
// cadence and an interrupted scan fast-forwards past already indexed paths.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/events"
	"shellac/internal/fingerprint"
	"shellac/internal/logging"
	"shellac/internal/services"
	"shellac/internal/tags"
)

// Result summarizes one scan run.
type Result struct {
	Added   int
	Skipped int
	Failed  int
	Elapsed time.Duration
}

// Scanner indexes audio files under a source root.
type Scanner struct {
	cfg    *config.Config
	store  *catalog.Store
	fp     *fingerprint.Fingerprinter
	bus    *events.Bus
	logger *slog.Logger
}

// New constructs a Scanner.
func New(cfg *config.Config, store *catalog.Store, bus *events.Bus, logger *slog.Logger) *Scanner {
	return &Scanner{
		cfg:    cfg,
		store:  store,
		fp:     fingerprint.New(cfg.Scanner.PartialHashKiB),
		bus:    bus,
		logger: logging.WithComponent(logger, "scanner"),
	}
}

// Scan walks root depth-first in lexical order, upserts every allowed file,
// and computes cheap fingerprints for new or changed files. With resume the
// walk fast-forwards past the last checkpointed path instead of re-reading.
// Per-file failures are recorded and counted; only store or checkpoint
// failures abort the run.
func (s *Scanner) Scan(ctx context.Context, root string, resume bool) (Result, error) {
	root = filepath.Clean(root)
	start := time.Now()

	cursor := catalog.ScanCursor{Root: root}
	if resume {
		saved := catalog.ScanCursor{}
		if _, err := s.store.LoadCheckpoint(ctx, catalog.OperationScan, &saved); err == nil && saved.Root == root {
			cursor = saved
			s.logger.Info("resuming scan",
				logging.String("root", root),
				logging.String("last_path", cursor.LastPath))
		} else if err != nil && !errors.Is(err, services.ErrNotFound) {
			return Result{}, err
		}
	}

	provider := tags.NewProvider(root)
	s.publish(events.Event{Type: events.TypeOperationStarted, Operation: catalog.OperationScan, Path: root})

	sinceCheckpoint := 0
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return services.Wrap(services.ErrConfiguration, "scanner", "walk", fmt.Sprintf("source root %s", root), err)
			}
			s.logger.Warn("skipping unreadable entry", logging.String("path", path), logging.Error(err))
			cursor.Failed++
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if !s.cfg.AllowsExtension(filepath.Ext(path)) {
			return nil
		}
		if resume && cursor.LastPath != "" && !walkOrderLess(cursor.LastPath, path) {
			return nil
		}

		s.indexFile(ctx, provider, path, entry, &cursor)
		cursor.LastPath = path

		sinceCheckpoint++
		if sinceCheckpoint >= s.cfg.Scanner.CheckpointInterval {
			sinceCheckpoint = 0
			if err := s.checkpoint(ctx, cursor); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})

	result := Result{
		Added:   cursor.Added,
		Skipped: cursor.Skipped,
		Failed:  cursor.Failed,
		Elapsed: time.Since(start),
	}

	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			s.logger.Info("scan stopped",
				logging.Int("added", result.Added),
				logging.String("last_path", cursor.LastPath))
			if err := s.checkpoint(context.WithoutCancel(ctx), cursor); err != nil {
				return result, err
			}
		}
		return result, walkErr
	}

	if err := s.store.ClearCheckpoint(ctx, catalog.OperationScan); err != nil {
		return result, err
	}

	s.logger.Info("scan complete",
		logging.Int("added", result.Added),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Duration("elapsed", result.Elapsed))
	s.publish(events.Event{
		Type:      events.TypeOperationCompleted,
		Operation: catalog.OperationScan,
		Current:   result.Added + result.Skipped + result.Failed,
		Fields: map[string]string{
			"added":   fmt.Sprint(result.Added),
			"skipped": fmt.Sprint(result.Skipped),
			"failed":  fmt.Sprint(result.Failed),
			"elapsed": result.Elapsed.Round(time.Millisecond).String(),
		},
	})
	return result, nil
}

// indexFile upserts one file and fingerprints it when needed. Failures are
// recorded on the file record and counted, never returned.
func (s *Scanner) indexFile(ctx context.Context, provider *tags.Provider, path string, entry fs.DirEntry, cursor *catalog.ScanCursor) {
	info, err := entry.Info()
	if err != nil {
		s.recordFailure(ctx, path, cursor, fmt.Sprintf("stat: %v", err))
		return
	}

	record, err := s.store.UpsertDiscovered(ctx, path, info.Size(), info.ModTime())
	if err != nil {
		s.recordFailure(ctx, path, cursor, fmt.Sprintf("index: %v", err))
		return
	}
	if record.Status != catalog.StatusDiscovered {
		cursor.Skipped++
		return
	}

	hash, err := s.fp.Cheap(ctx, path)
	if err != nil {
		s.recordFailure(ctx, path, cursor, err.Error())
		return
	}
	if err := s.store.SetPartialHash(ctx, path, hash); err != nil {
		s.recordFailure(ctx, path, cursor, err.Error())
		return
	}

	attrs := provider.Derive(path)
	meta := catalog.Metadata{
		SourcePath:  path,
		Artist:      attrs.Artist,
		Album:       attrs.Album,
		Title:       attrs.Title,
		TrackNumber: attrs.TrackNumber,
		Year:        attrs.Year,
		Format:      attrs.Format,
		BitrateKbps: attrs.BitrateKbps,
	}
	if err := s.store.SaveMetadata(ctx, meta); err != nil {
		s.logger.Warn("metadata save failed", logging.String("path", path), logging.Error(err))
	}
	cursor.Added++
}

func (s *Scanner) recordFailure(ctx context.Context, path string, cursor *catalog.ScanCursor, message string) {
	cursor.Failed++
	s.logger.Warn("file failed", logging.String("path", path), logging.String("reason", message))
	if err := s.store.MarkFailed(ctx, path, message); err != nil && !errors.Is(err, services.ErrNotFound) {
		s.logger.Warn("mark failed", logging.String("path", path), logging.Error(err))
	}
	s.publish(events.Event{
		Type:      events.TypeFileFailed,
		Operation: catalog.OperationScan,
		Path:      path,
		Message:   message,
	})
}

func (s *Scanner) checkpoint(ctx context.Context, cursor catalog.ScanCursor) error {
	processed := cursor.Added + cursor.Skipped + cursor.Failed
	if err := s.store.SaveCheckpoint(ctx, catalog.OperationScan, cursor, processed, 0); err != nil {
		return err
	}
	s.publish(events.Event{
		Type:      events.TypeOperationProgress,
		Operation: catalog.OperationScan,
		Path:      cursor.LastPath,
		Current:   processed,
	})
	return nil
}

func (s *Scanner) publish(evt events.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}

// walkOrderLess reports whether a is visited before b by a lexical
// depth-first walk. Plain string comparison is wrong for this: a directory's
// contents are visited before a sibling file whose name continues past the
// directory name ("The Beatles/..." walks before "The Beatles - Hey
// Jude.mp3"), so the separator must sort below every other byte.
func walkOrderLess(a, b string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		if a[i] == filepath.Separator {
			return true
		}
		if b[i] == filepath.Separator {
			return false
		}
		return a[i] < b[i]
	}
	return len(a) < len(b)
}
