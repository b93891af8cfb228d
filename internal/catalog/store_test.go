package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shellac/internal/catalog"
	"shellac/internal/services"
	"shellac/internal/testsupport"
)

func TestUpsertDiscoveredInsertsAndKeepsUnchanged(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	modTime := time.Now().Add(-time.Hour)
	record, err := store.UpsertDiscovered(ctx, "/music/a.mp3", 1024, modTime)
	if err != nil {
		t.Fatalf("UpsertDiscovered: %v", err)
	}
	if record.Status != catalog.StatusDiscovered {
		t.Fatalf("expected discovered, got %s", record.Status)
	}

	if err := store.SetPartialHash(ctx, "/music/a.mp3", "abc"); err != nil {
		t.Fatalf("SetPartialHash: %v", err)
	}

	again, err := store.UpsertDiscovered(ctx, "/music/a.mp3", 1024, modTime)
	if err != nil {
		t.Fatalf("second UpsertDiscovered: %v", err)
	}
	if again.Status != catalog.StatusFingerprinted {
		t.Fatalf("unchanged file should keep status, got %s", again.Status)
	}
	if again.PartialHash != "abc" {
		t.Fatalf("unchanged file should keep partial hash, got %q", again.PartialHash)
	}
}

func TestUpsertDiscoveredResetsChangedFile(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	modTime := time.Now().Add(-time.Hour)
	if _, err := store.UpsertDiscovered(ctx, "/music/a.mp3", 1024, modTime); err != nil {
		t.Fatalf("UpsertDiscovered: %v", err)
	}
	if err := store.SetPartialHash(ctx, "/music/a.mp3", "abc"); err != nil {
		t.Fatalf("SetPartialHash: %v", err)
	}

	record, err := store.UpsertDiscovered(ctx, "/music/a.mp3", 2048, modTime)
	if err != nil {
		t.Fatalf("changed UpsertDiscovered: %v", err)
	}
	if record.Status != catalog.StatusDiscovered {
		t.Fatalf("changed file should reset to discovered, got %s", record.Status)
	}
	if record.PartialHash != "" {
		t.Fatalf("changed file should drop partial hash, got %q", record.PartialHash)
	}
	if record.SizeBytes != 2048 {
		t.Fatalf("expected updated size, got %d", record.SizeBytes)
	}
}

func TestUpsertDiscoveredResetsFailedRecord(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	modTime := time.Now().Add(-time.Hour)
	if _, err := store.UpsertDiscovered(ctx, "/music/a.mp3", 1024, modTime); err != nil {
		t.Fatalf("UpsertDiscovered: %v", err)
	}
	if err := store.MarkFailed(ctx, "/music/a.mp3", "read error"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	record, err := store.UpsertDiscovered(ctx, "/music/a.mp3", 1024, modTime)
	if err != nil {
		t.Fatalf("second UpsertDiscovered: %v", err)
	}
	if record.Status != catalog.StatusDiscovered {
		t.Fatalf("failed file should reset even when unchanged, got %s", record.Status)
	}
	if record.ErrorMessage != "" {
		t.Fatalf("reset should clear the error, got %q", record.ErrorMessage)
	}
}

func TestTransitionStatusCompareAndSet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)

	if err := store.SetPartialHash(ctx, "/music/a.mp3", "abc"); err != nil {
		t.Fatalf("SetPartialHash: %v", err)
	}
	if err := store.TransitionStatus(ctx, "/music/a.mp3", catalog.StatusFingerprinted, catalog.StatusDuplicateAnalyzed); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	err := store.TransitionStatus(ctx, "/music/a.mp3", catalog.StatusFingerprinted, catalog.StatusDuplicateAnalyzed)
	if !errors.Is(err, services.ErrOperationInProgress) {
		t.Fatalf("stale transition should fail with operation-in-progress, got %v", err)
	}

	err = store.TransitionStatus(ctx, "/music/a.mp3", catalog.StatusDuplicateAnalyzed, catalog.StatusFingerprinted)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("backward transition should be rejected, got %v", err)
	}
}

func TestMarkFailedAndReset(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)

	if err := store.MarkFailed(ctx, "/music/a.mp3", "read error"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	record, err := store.GetFile(ctx, "/music/a.mp3")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if record.Status != catalog.StatusFailed || record.ErrorMessage != "read error" {
		t.Fatalf("unexpected failed record: %+v", record)
	}

	if err := store.ResetFile(ctx, "/music/a.mp3"); err != nil {
		t.Fatalf("ResetFile: %v", err)
	}
	record, err = store.GetFile(ctx, "/music/a.mp3")
	if err != nil {
		t.Fatalf("GetFile after reset: %v", err)
	}
	if record.Status != catalog.StatusDiscovered || record.ErrorMessage != "" {
		t.Fatalf("reset should return to discovered, got %+v", record)
	}
}

func TestGetFileMissingReturnsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	_, err := store.GetFile(context.Background(), "/music/missing.mp3")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestReplaceGroupsValidatesShape(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)

	err := store.ReplaceGroups(ctx, []catalog.DuplicateGroup{{
		ID:       "g1",
		FullHash: "h1",
		Members:  []catalog.GroupMember{{SourcePath: "/music/a.mp3", IsPrimary: true}},
	}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("single-member group should be rejected, got %v", err)
	}

	testsupport.SeedFile(t, store, "/music/b.mp3", 100)
	err = store.ReplaceGroups(ctx, []catalog.DuplicateGroup{{
		ID:       "g1",
		FullHash: "h1",
		Members: []catalog.GroupMember{
			{SourcePath: "/music/a.mp3", IsPrimary: true},
			{SourcePath: "/music/b.mp3", IsPrimary: true},
		},
	}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("two primaries should be rejected, got %v", err)
	}
}

func TestReplaceGroupsSwapsAtomically(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 4000)
	testsupport.SeedFile(t, store, "/music/b.mp3", 1000)
	testsupport.SeedFile(t, store, "/music/c.mp3", 1000)

	first := []catalog.DuplicateGroup{{
		ID: "g1", FullHash: "h1",
		Members: []catalog.GroupMember{
			{SourcePath: "/music/a.mp3", QualityScore: 90, IsPrimary: true},
			{SourcePath: "/music/b.mp3", QualityScore: 40},
		},
	}}
	if err := store.ReplaceGroups(ctx, first); err != nil {
		t.Fatalf("ReplaceGroups: %v", err)
	}

	second := []catalog.DuplicateGroup{{
		ID: "g2", FullHash: "h2",
		Members: []catalog.GroupMember{
			{SourcePath: "/music/b.mp3", QualityScore: 70, IsPrimary: true},
			{SourcePath: "/music/c.mp3", QualityScore: 30},
		},
	}}
	if err := store.ReplaceGroups(ctx, second); err != nil {
		t.Fatalf("second ReplaceGroups: %v", err)
	}

	groups, err := store.ListGroups(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g2" {
		t.Fatalf("expected only the new group, got %+v", groups)
	}
	primary, ok := groups[0].Primary()
	if !ok || primary.SourcePath != "/music/b.mp3" {
		t.Fatalf("unexpected primary: %+v", primary)
	}
	if got := groups[0].ReclaimableBytes(); got != 1000 {
		t.Fatalf("expected 1000 reclaimable bytes, got %d", got)
	}
}

func TestClaimTaskDrainsPendingWork(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)
	testsupport.SeedFile(t, store, "/music/b.mp3", 100)

	plan := []catalog.MigrationTask{
		{SourcePath: "/music/a.mp3", TargetPath: "/library/a.mp3"},
		{SourcePath: "/music/b.mp3", TargetPath: "/library/b.mp3"},
	}
	if err := store.ReplacePlan(ctx, plan); err != nil {
		t.Fatalf("ReplacePlan: %v", err)
	}

	first, err := store.ClaimTask(ctx)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if first.SourcePath != "/music/a.mp3" || first.Status != catalog.TaskCopying || first.Attempts != 1 {
		t.Fatalf("unexpected first claim: %+v", first)
	}

	second, err := store.ClaimTask(ctx)
	if err != nil {
		t.Fatalf("second ClaimTask: %v", err)
	}
	if second.SourcePath != "/music/b.mp3" {
		t.Fatalf("unexpected second claim: %+v", second)
	}

	if _, err := store.ClaimTask(ctx); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("drained queue should report not-found, got %v", err)
	}

	if err := store.UpdateTaskStatus(ctx, first.ID, catalog.TaskCopying, catalog.TaskVerifying); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if err := store.CompleteTask(ctx, first.ID, catalog.TaskCompleted, ""); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	counts, err := store.TaskCounts(ctx)
	if err != nil {
		t.Fatalf("TaskCounts: %v", err)
	}
	if counts[catalog.TaskCompleted] != 1 || counts[catalog.TaskCopying] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestReplacePlanKeepsCompletedTasks(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)
	testsupport.SeedFile(t, store, "/music/b.mp3", 100)

	if err := store.ReplacePlan(ctx, []catalog.MigrationTask{
		{SourcePath: "/music/a.mp3", TargetPath: "/library/a.mp3"},
	}); err != nil {
		t.Fatalf("ReplacePlan: %v", err)
	}
	task, err := store.ClaimTask(ctx)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if err := store.CompleteTask(ctx, task.ID, catalog.TaskCompleted, ""); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	if err := store.ReplacePlan(ctx, []catalog.MigrationTask{
		{SourcePath: "/music/a.mp3", TargetPath: "/library/a.mp3"},
		{SourcePath: "/music/b.mp3", TargetPath: "/library/b.mp3"},
	}); err != nil {
		t.Fatalf("second ReplacePlan: %v", err)
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Status != catalog.TaskCompleted {
		t.Fatalf("completed task should survive re-planning, got %s", tasks[0].Status)
	}
	if tasks[1].Status != catalog.TaskPending {
		t.Fatalf("new task should be pending, got %s", tasks[1].Status)
	}
}

func TestReplacePlanStoresSkippedTasks(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)
	testsupport.SeedFile(t, store, "/music/b.mp3", 100)

	if err := store.ReplacePlan(ctx, []catalog.MigrationTask{
		{SourcePath: "/music/a.mp3", TargetPath: "/library/a.mp3"},
		{SourcePath: "/music/b.mp3", Status: catalog.TaskSkipped, ErrorMessage: "non-primary duplicate"},
	}); err != nil {
		t.Fatalf("ReplacePlan: %v", err)
	}

	skipped, err := store.ListTasks(ctx, catalog.TaskSkipped)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(skipped) != 1 || skipped[0].SourcePath != "/music/b.mp3" {
		t.Fatalf("unexpected skipped tasks: %+v", skipped)
	}
	if skipped[0].ErrorMessage != "non-primary duplicate" || skipped[0].CompletedAt == nil {
		t.Fatalf("skip should be terminal with its reason, got %+v", skipped[0])
	}

	task, err := store.ClaimTask(ctx)
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if task.SourcePath != "/music/a.mp3" {
		t.Fatalf("unexpected claim: %+v", task)
	}
	if _, err := store.ClaimTask(ctx); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("skipped tasks must never be claimed, got %v", err)
	}

	// A later plan may promote the skip to a copy.
	if err := store.ReplacePlan(ctx, []catalog.MigrationTask{
		{SourcePath: "/music/b.mp3", TargetPath: "/library/b.mp3"},
	}); err != nil {
		t.Fatalf("second ReplacePlan: %v", err)
	}
	pending, err := store.ListTasks(ctx, catalog.TaskPending)
	if err != nil {
		t.Fatalf("ListTasks pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SourcePath != "/music/b.mp3" {
		t.Fatalf("replanned skip should be pending, got %+v", pending)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	cursor := catalog.ScanCursor{Root: "/music", LastPath: "/music/b.mp3"}
	if err := store.SaveCheckpoint(ctx, catalog.OperationScan, cursor, 2, 10); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	var loaded catalog.ScanCursor
	checkpoint, err := store.LoadCheckpoint(ctx, catalog.OperationScan, &loaded)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded != cursor {
		t.Fatalf("cursor round trip mismatch: %+v", loaded)
	}
	if checkpoint.Processed != 2 || checkpoint.Total != 10 {
		t.Fatalf("unexpected counters: %+v", checkpoint)
	}

	if err := store.ClearCheckpoint(ctx, catalog.OperationScan); err != nil {
		t.Fatalf("ClearCheckpoint: %v", err)
	}
	if _, err := store.LoadCheckpoint(ctx, catalog.OperationScan, &loaded); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("cleared checkpoint should be not-found, got %v", err)
	}
}

func TestHealthAggregatesCounts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)
	testsupport.SeedFile(t, store, "/music/b.mp3", 200)
	if err := store.SetPartialHash(ctx, "/music/b.mp3", "abc"); err != nil {
		t.Fatalf("SetPartialHash: %v", err)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if summary.Total != 2 || summary.Discovered != 1 || summary.Fingerprinted != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.TotalBytes != 300 {
		t.Fatalf("expected 300 bytes, got %d", summary.TotalBytes)
	}
}

func TestMetadataMissingRowYieldsEmptyRecord(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedFile(t, store, "/music/a.mp3", 100)

	meta, err := store.GetMetadata(ctx, "/music/a.mp3")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.Artist != "" || meta.TrackNumber != 0 {
		t.Fatalf("expected empty metadata, got %+v", meta)
	}

	saved := catalog.Metadata{
		SourcePath: "/music/a.mp3", Artist: "Artist", Album: "Album",
		Title: "Song", TrackNumber: 3, Year: 1999, Format: "mp3", BitrateKbps: 320,
	}
	if err := store.SaveMetadata(ctx, saved); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	meta, err = store.GetMetadata(ctx, "/music/a.mp3")
	if err != nil {
		t.Fatalf("GetMetadata after save: %v", err)
	}
	if meta != saved {
		t.Fatalf("metadata round trip mismatch: %+v", meta)
	}
}
