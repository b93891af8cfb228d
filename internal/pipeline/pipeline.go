// Package pipeline coordinates the scan, analyze, and migrate operations.
// It owns a single-flight claim per operation type, runs operations on
// detached contexts so callers can disconnect, and merges live run state
// with persisted checkpoints for status reads.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/dedupe"
	"shellac/internal/events"
	"shellac/internal/logging"
	"shellac/internal/migrate"
	"shellac/internal/scanner"
	"shellac/internal/services"
)

// Run is a handle to one in-flight operation.
type Run struct {
	Operation string

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Done is closed when the operation finishes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err reports the operation outcome once Done is closed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until the operation finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the operation. The run keeps going until the next batch
// boundary, then checkpoints and exits.
func (r *Run) Stop() { r.cancel() }

// OperationStatus is the merged view of one operation type.
type OperationStatus struct {
	Operation string    `json:"operation"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Processed int       `json:"processed"`
	Total     int       `json:"total,omitempty"`
	Resumable bool      `json:"resumable"`
	LastError string    `json:"last_error,omitempty"`
}

// Status is the merged view of the whole system.
type Status struct {
	Health     catalog.HealthSummary      `json:"health"`
	Operations map[string]OperationStatus `json:"operations"`
}

// Pipeline wires the operation implementations behind single-flight claims.
type Pipeline struct {
	cfg      *config.Config
	store    *catalog.Store
	bus      *events.Bus
	logger   *slog.Logger
	scanner  *scanner.Scanner
	resolver *dedupe.Resolver
	executor *migrate.Executor
	planner  *migrate.Planner

	mu       sync.Mutex
	active   map[string]*Run
	lastErrs map[string]string
}

// New constructs a Pipeline.
func New(cfg *config.Config, store *catalog.Store, bus *events.Bus, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		logger:   logging.WithComponent(logger, "pipeline"),
		scanner:  scanner.New(cfg, store, bus, logger),
		resolver: dedupe.New(cfg, store, bus, logger),
		executor: migrate.NewExecutor(cfg, store, bus, logger),
		planner:  migrate.NewPlanner(cfg, store),
		active:   make(map[string]*Run),
		lastErrs: make(map[string]string),
	}
}

// Bus exposes the progress bus for event consumers.
func (p *Pipeline) Bus() *events.Bus { return p.bus }

// start acquires the claim for an operation and launches fn on a detached
// context. The claim is released when fn returns.
func (p *Pipeline) start(operation string, fn func(ctx context.Context) error) (*Run, error) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{Operation: operation, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if _, busy := p.active[operation]; busy {
		p.mu.Unlock()
		cancel()
		return nil, services.Wrap(services.ErrOperationInProgress, "pipeline", "start",
			fmt.Sprintf("%s already running", operation), nil)
	}
	p.active[operation] = run
	p.mu.Unlock()

	go func() {
		defer cancel()
		err := fn(services.WithOperation(ctx, operation))

		run.mu.Lock()
		run.err = err
		run.mu.Unlock()

		p.mu.Lock()
		delete(p.active, operation)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.lastErrs[operation] = err.Error()
		} else if err == nil {
			delete(p.lastErrs, operation)
		}
		p.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("operation failed",
				logging.String("operation", operation),
				logging.Error(err))
			if p.bus != nil {
				p.bus.Publish(events.Event{
					Type:      events.TypeOperationFailed,
					Operation: operation,
					Message:   err.Error(),
				})
			}
		}
		close(run.done)
	}()
	return run, nil
}

// StartScan launches a scan of root. A second concurrent scan fails with
// ErrOperationInProgress.
func (p *Pipeline) StartScan(root string, resume bool) (*Run, error) {
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "scan", "source root required", nil)
	}
	return p.start(catalog.OperationScan, func(ctx context.Context) error {
		_, err := p.scanner.Scan(ctx, root, resume)
		return err
	})
}

// StartAnalyze launches duplicate resolution.
func (p *Pipeline) StartAnalyze() (*Run, error) {
	return p.start(catalog.OperationAnalyze, func(ctx context.Context) error {
		_, err := p.resolver.Resolve(ctx)
		return err
	})
}

// StartMigration launches migration.
func (p *Pipeline) StartMigration(skipDuplicates, resume bool) (*Run, error) {
	return p.start(catalog.OperationMigrate, func(ctx context.Context) error {
		_, err := p.executor.Migrate(ctx, skipDuplicates, resume)
		return err
	})
}

// PlanMigration previews the migration mapping without writing anything.
func (p *Pipeline) PlanMigration(ctx context.Context, skipDuplicates bool) ([]migrate.PlannedTask, error) {
	return p.planner.Plan(ctx, skipDuplicates)
}

// Stop cancels the named operation if it is running.
func (p *Pipeline) Stop(operation string) bool {
	p.mu.Lock()
	run, ok := p.active[operation]
	p.mu.Unlock()
	if ok {
		run.Stop()
	}
	return ok
}

// StopAll cancels every running operation and waits for them to settle.
func (p *Pipeline) StopAll(ctx context.Context) {
	p.mu.Lock()
	runs := make([]*Run, 0, len(p.active))
	for _, run := range p.active {
		runs = append(runs, run)
	}
	p.mu.Unlock()

	for _, run := range runs {
		run.Stop()
	}
	for _, run := range runs {
		select {
		case <-run.Done():
		case <-ctx.Done():
			return
		}
	}
}

// OperationStatus merges live run state with the persisted checkpoint.
func (p *Pipeline) OperationStatus(ctx context.Context, operation string) (OperationStatus, error) {
	status := OperationStatus{Operation: operation}

	p.mu.Lock()
	_, status.Running = p.active[operation]
	status.LastError = p.lastErrs[operation]
	p.mu.Unlock()

	checkpoint, err := p.store.LoadCheckpoint(ctx, operation, nil)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return status, nil
		}
		return status, err
	}
	status.Processed = checkpoint.Processed
	status.Total = checkpoint.Total
	status.StartedAt = checkpoint.UpdatedAt
	status.Resumable = !status.Running
	return status, nil
}

// Status aggregates index health and all three operation statuses.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	health, err := p.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{Health: health, Operations: make(map[string]OperationStatus, 3)}
	for _, operation := range []string{catalog.OperationScan, catalog.OperationAnalyze, catalog.OperationMigrate} {
		opStatus, err := p.OperationStatus(ctx, operation)
		if err != nil {
			return Status{}, err
		}
		status.Operations[operation] = opStatus
	}
	return status, nil
}

// ListDuplicateGroups pages through the persisted grouping, largest
// reclaimable first.
func (p *Pipeline) ListDuplicateGroups(ctx context.Context, limit, offset int) ([]catalog.DuplicateGroup, error) {
	return p.store.ListGroups(ctx, limit, offset)
}

// Reset returns one file to discovered, clearing fingerprints and errors.
func (p *Pipeline) Reset(ctx context.Context, path string) error {
	return p.store.ResetFile(ctx, path)
}

// ResetFailed returns every failed file to discovered and reports how many
// were reset.
func (p *Pipeline) ResetFailed(ctx context.Context) (int, error) {
	records, err := p.store.ListFiles(ctx, catalog.StatusFailed)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, record := range records {
		if err := p.store.ResetFile(ctx, record.SourcePath); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}
