package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"shellac/internal/catalog"
	"shellac/internal/events"
	"shellac/internal/logging"
	"shellac/internal/scanner"
	"shellac/internal/services"
	"shellac/internal/testsupport"
)

func TestScanIndexesAllowedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	testsupport.WriteFileString(t, filepath.Join(root, "Queen", "Greatest Hits", "01 - Bohemian Rhapsody.mp3"), "song one")
	testsupport.WriteFileString(t, filepath.Join(root, "notes.txt"), "not audio")

	s := scanner.New(cfg, store, nil, logging.NewNop())
	result, err := s.Scan(context.Background(), root, false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Added != 1 || result.Skipped != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	record, err := store.GetFile(context.Background(), filepath.Join(root, "Queen", "Greatest Hits", "01 - Bohemian Rhapsody.mp3"))
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if record.Status != catalog.StatusFingerprinted || record.PartialHash == "" {
		t.Fatalf("expected fingerprinted record, got %+v", record)
	}

	meta, err := store.GetMetadata(context.Background(), record.SourcePath)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Artist != "Queen" || meta.TrackNumber != 1 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	if _, err := store.GetFile(context.Background(), filepath.Join(root, "notes.txt")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("disallowed extension should not be indexed, got %v", err)
	}
}

func TestRescanIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	testsupport.WriteFileString(t, filepath.Join(root, "a.mp3"), "content a")
	testsupport.WriteFileString(t, filepath.Join(root, "b.mp3"), "content b")

	s := scanner.New(cfg, store, nil, logging.NewNop())
	ctx := context.Background()
	if _, err := s.Scan(ctx, root, false); err != nil {
		t.Fatalf("first Scan: %v", err)
	}

	result, err := s.Scan(ctx, root, false)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if result.Added != 0 || result.Skipped != 2 {
		t.Fatalf("re-scan should skip unchanged files, got %+v", result)
	}
}

func TestScanRefingerprintsChangedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	path := filepath.Join(root, "a.mp3")
	testsupport.WriteFileString(t, path, "original")

	s := scanner.New(cfg, store, nil, logging.NewNop())
	ctx := context.Background()
	if _, err := s.Scan(ctx, root, false); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	before, err := store.GetFile(ctx, path)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}

	testsupport.WriteFileString(t, path, "rewritten with more bytes")
	result, err := s.Scan(ctx, root, false)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("changed file should be re-indexed, got %+v", result)
	}

	after, err := store.GetFile(ctx, path)
	if err != nil {
		t.Fatalf("GetFile after change: %v", err)
	}
	if after.PartialHash == before.PartialHash {
		t.Fatal("changed content should produce a new fingerprint")
	}
}

func TestScanIndexesSiblingSortingAfterDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	// The loose single sorts before the album directory as a plain string
	// but the walk visits the directory's contents first.
	deep := filepath.Join(root, "The Beatles", "Abbey Road", "01 - Come Together.mp3")
	sibling := filepath.Join(root, "The Beatles - Hey Jude.mp3")
	testsupport.WriteFileString(t, deep, "album track")
	testsupport.WriteFileString(t, sibling, "loose single")

	s := scanner.New(cfg, store, nil, logging.NewNop())
	result, err := s.Scan(context.Background(), root, false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Added != 2 {
		t.Fatalf("both files should be indexed, got %+v", result)
	}
	if _, err := store.GetFile(context.Background(), sibling); err != nil {
		t.Fatalf("sibling of the directory should be indexed: %v", err)
	}
}

func TestScanResumeFastForwards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	pathA := filepath.Join(root, "a.mp3")
	pathB := filepath.Join(root, "b.mp3")
	pathC := filepath.Join(root, "c.mp3")
	for _, p := range []string{pathA, pathB, pathC} {
		testsupport.WriteFileString(t, p, "content of "+p)
	}

	ctx := context.Background()
	cursor := catalog.ScanCursor{Root: root, LastPath: pathB, Added: 2}
	if err := store.SaveCheckpoint(ctx, catalog.OperationScan, cursor, 2, 0); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	s := scanner.New(cfg, store, nil, logging.NewNop())
	result, err := s.Scan(ctx, root, true)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Added != 3 {
		t.Fatalf("resume should carry prior counters and add only c, got %+v", result)
	}

	if _, err := store.GetFile(ctx, pathA); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("paths before the cursor should not be re-read, got %v", err)
	}
	if _, err := store.GetFile(ctx, pathC); err != nil {
		t.Fatalf("path after cursor should be indexed: %v", err)
	}

	var cleared catalog.ScanCursor
	if _, err := store.LoadCheckpoint(ctx, catalog.OperationScan, &cleared); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("completed scan should clear checkpoint, got %v", err)
	}
}

func TestScanResumeCrossesDirectoryBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	deep := filepath.Join(root, "The Beatles", "Abbey Road", "01 - Come Together.mp3")
	sibling := filepath.Join(root, "The Beatles - Hey Jude.mp3")
	testsupport.WriteFileString(t, deep, "album track")
	testsupport.WriteFileString(t, sibling, "loose single")

	ctx := context.Background()
	cursor := catalog.ScanCursor{Root: root, LastPath: deep, Added: 1}
	if err := store.SaveCheckpoint(ctx, catalog.OperationScan, cursor, 1, 0); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	s := scanner.New(cfg, store, nil, logging.NewNop())
	result, err := s.Scan(ctx, root, true)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Added != 2 {
		t.Fatalf("resume should still index the sibling after the directory, got %+v", result)
	}
	if _, err := store.GetFile(ctx, deep); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("path at the cursor should not be re-read, got %v", err)
	}
	if _, err := store.GetFile(ctx, sibling); err != nil {
		t.Fatalf("sibling after the cursor should be indexed: %v", err)
	}
}

func TestRescanRetriesFailedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	path := filepath.Join(root, "a.mp3")
	testsupport.WriteFileString(t, path, "content")

	s := scanner.New(cfg, store, nil, logging.NewNop())
	ctx := context.Background()
	if _, err := s.Scan(ctx, root, false); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	if err := store.MarkFailed(ctx, path, "transient read error"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	result, err := s.Scan(ctx, root, false)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if result.Added != 1 || result.Skipped != 0 {
		t.Fatalf("failed file should be retried, got %+v", result)
	}

	record, err := store.GetFile(ctx, path)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if record.Status != catalog.StatusFingerprinted || record.ErrorMessage != "" {
		t.Fatalf("retried file should be clean, got %+v", record)
	}
}

func TestScanCountsUnreadableFiles(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not bind as root")
	}
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	good := filepath.Join(root, "good.mp3")
	bad := filepath.Join(root, "locked.mp3")
	testsupport.WriteFileString(t, good, "fine")
	testsupport.WriteFileString(t, bad, "no access")
	if err := os.Chmod(bad, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	s := scanner.New(cfg, store, nil, logging.NewNop())
	result, err := s.Scan(context.Background(), root, false)
	if err != nil {
		t.Fatalf("Scan should survive per-file failures: %v", err)
	}
	if result.Added != 1 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	record, err := store.GetFile(context.Background(), bad)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if record.Status != catalog.StatusFailed || record.ErrorMessage == "" {
		t.Fatalf("unreadable file should be recorded failed, got %+v", record)
	}
}

func TestScanEmitsTerminalEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	testsupport.WriteFileString(t, filepath.Join(root, "a.mp3"), "content")
	bus := events.NewBus(32)

	s := scanner.New(cfg, store, bus, logging.NewNop())
	if _, err := s.Scan(context.Background(), root, false); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	published, _, err := bus.Fetch(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var sawStart, sawDone bool
	for _, evt := range published {
		switch evt.Type {
		case events.TypeOperationStarted:
			sawStart = true
		case events.TypeOperationCompleted:
			sawDone = true
			if evt.Fields["added"] != "1" {
				t.Fatalf("unexpected completion fields: %+v", evt.Fields)
			}
		}
	}
	if !sawStart || !sawDone {
		t.Fatalf("expected start and completion events, got %+v", published)
	}
}
