package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/events"
	"shellac/internal/fileutil"
	"shellac/internal/logging"
	"shellac/internal/services"
)

// Result summarizes one migration run.
type Result struct {
	Planned  int
	Migrated int
	Skipped  int
	Failed   int
	Elapsed  time.Duration
}

// Executor materializes a plan into migration tasks and copies files with a
// bounded worker pool.
type Executor struct {
	cfg     *config.Config
	store   *catalog.Store
	planner *Planner
	bus     *events.Bus
	logger  *slog.Logger

	// freeBytes is swappable for tests.
	freeBytes func(path string) (uint64, error)

	mu     sync.Mutex
	cursor catalog.MigrateCursor
}

// NewExecutor constructs an Executor.
func NewExecutor(cfg *config.Config, store *catalog.Store, bus *events.Bus, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:       cfg,
		store:     store,
		planner:   NewPlanner(cfg, store),
		bus:       bus,
		logger:    logging.WithComponent(logger, "migrate"),
		freeBytes: statfsFree,
	}
}

// Migrate plans (or, on resume, reuses) migration tasks and executes them.
// Source files are never modified or deleted; failures isolate to their task
// and the run keeps going.
func (e *Executor) Migrate(ctx context.Context, skipDuplicates, resume bool) (Result, error) {
	start := time.Now()
	e.mu.Lock()
	e.cursor = catalog.MigrateCursor{}
	e.mu.Unlock()

	skipped, freshSkips, err := e.prepare(ctx, skipDuplicates, resume)
	if err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	e.cursor.Skipped = skipped
	e.mu.Unlock()

	pending, err := e.store.ListTasks(ctx, catalog.TaskPending)
	if err != nil {
		return Result{}, err
	}

	var planned int64
	for _, task := range pending {
		if info, statErr := os.Stat(task.SourcePath); statErr == nil {
			planned += info.Size()
		}
	}
	free, err := e.freeBytes(e.cfg.Paths.LibraryDir)
	if err != nil {
		return Result{}, services.Wrap(services.ErrIO, "migrate", "preflight", e.cfg.Paths.LibraryDir, err)
	}
	if uint64(planned) > free {
		return Result{}, services.Wrap(services.ErrConfiguration, "migrate", "preflight",
			fmt.Sprintf("need %d bytes in %s, only %d free", planned, e.cfg.Paths.LibraryDir, free), nil)
	}

	e.publish(events.Event{
		Type:      events.TypeOperationStarted,
		Operation: catalog.OperationMigrate,
		Total:     len(pending),
	})
	for _, task := range freshSkips {
		e.publish(events.Event{
			Type:      events.TypeTaskSkipped,
			Operation: catalog.OperationMigrate,
			Path:      task.SourcePath,
			Message:   task.Reason,
		})
	}

	workers := e.cfg.Migrate.WriteWorkers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}
	wg.Wait()

	e.mu.Lock()
	cursor := e.cursor
	e.mu.Unlock()

	result := Result{
		Planned:  len(pending) + skipped,
		Migrated: cursor.Migrated,
		Skipped:  cursor.Skipped,
		Failed:   cursor.Failed,
		Elapsed:  time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	if err := e.store.ClearCheckpoint(ctx, catalog.OperationMigrate); err != nil {
		return result, err
	}
	e.logger.Info("migration complete",
		logging.Int("migrated", result.Migrated),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Duration("elapsed", result.Elapsed))
	e.publish(events.Event{
		Type:      events.TypeOperationCompleted,
		Operation: catalog.OperationMigrate,
		Current:   result.Migrated + result.Skipped + result.Failed,
		Total:     result.Planned,
		Fields: map[string]string{
			"migrated": fmt.Sprint(result.Migrated),
			"skipped":  fmt.Sprint(result.Skipped),
			"failed":   fmt.Sprint(result.Failed),
		},
	})
	return result, nil
}

// prepare stores the plan. On resume, existing non-terminal tasks are reused
// after requeueing any left in flight by a previous run; otherwise a fresh
// plan replaces whatever was pending. Skip tasks are persisted terminal so a
// resumed run still accounts for them. Returns the skip count and, on a
// fresh plan, the skip tasks for event publication.
func (e *Executor) prepare(ctx context.Context, skipDuplicates, resume bool) (int, []PlannedTask, error) {
	if resume {
		inflight, err := e.store.ListTasks(ctx, catalog.TaskCopying, catalog.TaskVerifying)
		if err != nil {
			return 0, nil, err
		}
		for _, task := range inflight {
			if err := e.store.RequeueTask(ctx, task.ID); err != nil {
				return 0, nil, err
			}
		}
		pending, err := e.store.ListTasks(ctx, catalog.TaskPending)
		if err != nil {
			return 0, nil, err
		}
		if len(pending) > 0 || len(inflight) > 0 {
			counts, err := e.store.TaskCounts(ctx)
			if err != nil {
				return 0, nil, err
			}
			return counts[catalog.TaskSkipped], nil, nil
		}
	}

	plan, err := e.planner.Plan(ctx, skipDuplicates)
	if err != nil {
		return 0, nil, err
	}

	var stored []catalog.MigrationTask
	var skipTasks []PlannedTask
	for _, task := range plan {
		if task.Skip {
			skipTasks = append(skipTasks, task)
			stored = append(stored, catalog.MigrationTask{
				SourcePath:   task.SourcePath,
				Status:       catalog.TaskSkipped,
				ErrorMessage: task.Reason,
			})
			continue
		}
		stored = append(stored, catalog.MigrationTask{SourcePath: task.SourcePath, TargetPath: task.TargetPath})
	}
	if err := e.store.ReplacePlan(ctx, stored); err != nil {
		return 0, nil, err
	}
	return len(skipTasks), skipTasks, nil
}

// work claims tasks until the queue drains or the context ends. Stop is
// observed between tasks so an in-flight copy always finishes or fails.
func (e *Executor) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := e.store.ClaimTask(ctx)
		if errors.Is(err, services.ErrNotFound) {
			return
		}
		if err != nil {
			e.logger.Error("claim task", logging.Error(err))
			return
		}
		e.runTask(ctx, task)
	}
}

func (e *Executor) runTask(ctx context.Context, task *catalog.MigrationTask) {
	err := e.copyAndVerify(ctx, task)
	switch {
	case err == nil:
		e.finishTask(ctx, task, catalog.TaskCompleted, "")
	case services.IsRetryable(err) && task.Attempts <= e.cfg.Migrate.MaxRetries:
		e.logger.Warn("task retry",
			logging.String("path", task.SourcePath),
			logging.Int("attempt", task.Attempts),
			logging.Error(err))
		backoff := time.Duration(e.cfg.Migrate.RetryBackoffSeconds) * time.Second
		if backoff > 0 {
			backoff <<= task.Attempts - 1
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
		}
		if requeueErr := e.store.RequeueTask(ctx, task.ID); requeueErr != nil {
			e.logger.Error("requeue task", logging.Error(requeueErr))
		}
	default:
		e.finishTask(ctx, task, catalog.TaskFailed, err.Error())
	}
}

func (e *Executor) copyAndVerify(ctx context.Context, task *catalog.MigrationTask) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrTransient, "migrate", "copy", task.SourcePath, err)
	}

	record, err := e.store.GetFile(ctx, task.SourcePath)
	if err != nil {
		return err
	}
	if record.Status == catalog.StatusDuplicateAnalyzed {
		if err := e.store.TransitionStatus(ctx, task.SourcePath, catalog.StatusDuplicateAnalyzed, catalog.StatusMigrating); err != nil {
			return err
		}
	}

	sourceHash, err := fileutil.CopyFileVerified(task.SourcePath, task.TargetPath)
	if err != nil {
		marker := services.ErrIO
		if os.IsNotExist(err) {
			marker = services.ErrNotFound
		}
		return services.Wrap(marker, "migrate", "copy", task.SourcePath, err)
	}

	if err := e.store.UpdateTaskStatus(ctx, task.ID, catalog.TaskCopying, catalog.TaskVerifying); err != nil {
		return err
	}

	// The streamed copy already proved source and target match; a stored
	// full hash additionally pins the copy to the content that was analyzed.
	if record.FullHash != "" && record.FullHash != sourceHash {
		_ = os.Remove(task.TargetPath)
		return services.Wrap(services.ErrVerification, "migrate", "verify",
			fmt.Sprintf("%s changed since analysis", task.SourcePath), nil)
	}

	return nil
}

func (e *Executor) finishTask(ctx context.Context, task *catalog.MigrationTask, status catalog.TaskStatus, message string) {
	if err := e.store.CompleteTask(ctx, task.ID, status, message); err != nil {
		e.logger.Error("complete task", logging.Error(err))
		return
	}

	eventType := events.TypeTaskCompleted
	switch status {
	case catalog.TaskCompleted:
		if err := e.transitionToMigrated(ctx, task.SourcePath); err != nil {
			e.logger.Warn("status update", logging.String("path", task.SourcePath), logging.Error(err))
		}
	case catalog.TaskFailed:
		eventType = events.TypeTaskFailed
		if err := e.store.MarkFailed(ctx, task.SourcePath, message); err != nil {
			e.logger.Warn("mark failed", logging.String("path", task.SourcePath), logging.Error(err))
		}
	}

	e.mu.Lock()
	switch status {
	case catalog.TaskCompleted:
		e.cursor.Migrated++
	case catalog.TaskFailed:
		e.cursor.Failed++
	}
	if task.ID > e.cursor.LastTaskID {
		e.cursor.LastTaskID = task.ID
	}
	cursor := e.cursor
	e.mu.Unlock()

	done := cursor.Migrated + cursor.Skipped + cursor.Failed
	if err := e.store.SaveCheckpoint(ctx, catalog.OperationMigrate, cursor, done, 0); err != nil {
		e.logger.Error("save checkpoint", logging.Error(err))
	}
	e.publish(events.Event{
		Type:      eventType,
		Operation: catalog.OperationMigrate,
		Path:      task.SourcePath,
		Current:   done,
		Message:   message,
	})
}

func (e *Executor) transitionToMigrated(ctx context.Context, path string) error {
	record, err := e.store.GetFile(ctx, path)
	if err != nil {
		return err
	}
	if record.Status == catalog.StatusMigrated {
		return nil
	}
	return e.store.TransitionStatus(ctx, path, record.Status, catalog.StatusMigrated)
}

func (e *Executor) publish(evt events.Event) {
	if e.bus != nil {
		e.bus.Publish(evt)
	}
}

func statfsFree(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
