package dedupe_test

import (
	"context"
	"path/filepath"
	"testing"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/dedupe"
	"shellac/internal/logging"
	"shellac/internal/scanner"
	"shellac/internal/testsupport"
)

func scanTree(t *testing.T, cfg *config.Config, store *catalog.Store, root string) {
	t.Helper()
	s := scanner.New(cfg, store, nil, logging.NewNop())
	if _, err := s.Scan(context.Background(), root, false); err != nil {
		t.Fatalf("Scan: %v", err)
	}
}

func TestResolveGroupsIdenticalContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	testsupport.WriteFileString(t, filepath.Join(root, "a.mp3"), "identical bytes")
	testsupport.WriteFileString(t, filepath.Join(root, "b.mp3"), "identical bytes")
	testsupport.WriteFileString(t, filepath.Join(root, "c.mp3"), "different bytes!")
	scanTree(t, cfg, store, root)

	resolver := dedupe.New(cfg, store, nil, logging.NewNop())
	result, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Groups != 1 || result.DuplicateFiles != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	groups, err := store.ListGroups(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	primary, ok := groups[0].Primary()
	if !ok || primary.SourcePath != filepath.Join(root, "a.mp3") {
		t.Fatalf("tie should elect lexically first path, got %+v", primary)
	}

	unique, err := store.GetFile(context.Background(), filepath.Join(root, "c.mp3"))
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if unique.Status != catalog.StatusDuplicateAnalyzed {
		t.Fatalf("unique file should still advance, got %s", unique.Status)
	}
}

func TestResolveSeparatesSameSizeDifferentContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	testsupport.WriteFileString(t, filepath.Join(root, "a.mp3"), "xxxxxxxxxxxxxxxx")
	testsupport.WriteFileString(t, filepath.Join(root, "b.mp3"), "yyyyyyyyyyyyyyyy")
	scanTree(t, cfg, store, root)

	resolver := dedupe.New(cfg, store, nil, logging.NewNop())
	result, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Groups != 0 {
		t.Fatalf("same-size different-content files must not group, got %+v", result)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	testsupport.WriteFileString(t, filepath.Join(root, "x", "song.mp3"), "same content")
	testsupport.WriteFileString(t, filepath.Join(root, "y", "song.mp3"), "same content")
	scanTree(t, cfg, store, root)

	resolver := dedupe.New(cfg, store, nil, logging.NewNop())
	ctx := context.Background()
	first, err := resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if first.Groups != second.Groups || first.DuplicateFiles != second.DuplicateFiles {
		t.Fatalf("results diverged: %+v vs %+v", first, second)
	}

	groups, err := store.ListGroups(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	primary, _ := groups[0].Primary()
	if primary.SourcePath != filepath.Join(root, "x", "song.mp3") {
		t.Fatalf("primary election changed across runs: %+v", primary)
	}
}

func TestResolveHonorsMinFileSize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Dedupe.MinFileSizeMB = 1
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	testsupport.WriteFileString(t, filepath.Join(root, "a.mp3"), "tiny")
	testsupport.WriteFileString(t, filepath.Join(root, "b.mp3"), "tiny")
	scanTree(t, cfg, store, root)

	resolver := dedupe.New(cfg, store, nil, logging.NewNop())
	result, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Examined != 0 || result.Groups != 0 {
		t.Fatalf("files below the size floor should be ignored, got %+v", result)
	}
}

func TestResolveAdvancesFilesBelowSizeFloor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Dedupe.MinFileSizeMB = 1
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	path := filepath.Join(root, "short.mp3")
	testsupport.WriteFileString(t, path, "well under the floor")
	scanTree(t, cfg, store, root)

	resolver := dedupe.New(cfg, store, nil, logging.NewNop())
	if _, err := resolver.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	record, err := store.GetFile(context.Background(), path)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if record.Status != catalog.StatusDuplicateAnalyzed {
		t.Fatalf("sub-floor file should finish analysis, got %s", record.Status)
	}
}

type preferPathScorer struct{ preferred string }

func (p preferPathScorer) Score(record *catalog.FileRecord, _ catalog.Metadata) int {
	if record.SourcePath == p.preferred {
		return 100
	}
	return 0
}

func TestResolveUsesInjectedScorer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := filepath.Join(testsupport.BaseDir(cfg), "music")
	pathA := filepath.Join(root, "a.mp3")
	pathB := filepath.Join(root, "b.mp3")
	testsupport.WriteFileString(t, pathA, "shared content")
	testsupport.WriteFileString(t, pathB, "shared content")
	scanTree(t, cfg, store, root)

	resolver := dedupe.New(cfg, store, nil, logging.NewNop()).WithScorer(preferPathScorer{preferred: pathB})
	if _, err := resolver.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	groups, err := store.ListGroups(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	primary, _ := groups[0].Primary()
	if primary.SourcePath != pathB {
		t.Fatalf("injected scorer should pick b, got %+v", primary)
	}
}
