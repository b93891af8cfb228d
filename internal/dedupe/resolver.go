// Package dedupe finds content-identical files and elects a primary per
// group. Resolution is partition refinement: size buckets are split by the
// cheap fingerprint and then by the full hash, so whole-file hashing cost is
// proportional to the collision candidates, not the collection.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"

	"shellac/internal/catalog"
	"shellac/internal/config"
	"shellac/internal/events"
	"shellac/internal/fingerprint"
	"shellac/internal/logging"
	"shellac/internal/services"
)

// Result summarizes one resolution run.
type Result struct {
	Examined         int
	Groups           int
	DuplicateFiles   int
	ReclaimableBytes int64
	Failed           int
}

// Resolver groups duplicate files in the catalog.
type Resolver struct {
	cfg    *config.Config
	store  *catalog.Store
	fp     *fingerprint.Fingerprinter
	bus    *events.Bus
	scorer Scorer
	logger *slog.Logger
}

// New constructs a Resolver with the default scorer.
func New(cfg *config.Config, store *catalog.Store, bus *events.Bus, logger *slog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		store:  store,
		fp:     fingerprint.New(cfg.Scanner.PartialHashKiB),
		bus:    bus,
		scorer: QualityScorer{},
		logger: logging.WithComponent(logger, "dedupe"),
	}
}

// WithScorer overrides the scorer used for primary election.
func (r *Resolver) WithScorer(scorer Scorer) *Resolver {
	if scorer != nil {
		r.scorer = scorer
	}
	return r
}

// Resolve partitions fingerprinted files into duplicate groups, elects a
// primary per group, and persists the grouping atomically. Re-running over
// unchanged content reproduces the same groups.
func (r *Resolver) Resolve(ctx context.Context) (Result, error) {
	records, err := r.store.ListFiles(ctx, catalog.StatusFingerprinted, catalog.StatusDuplicateAnalyzed)
	if err != nil {
		return Result{}, err
	}

	// Files below the size floor are exempt from grouping but still finish
	// analysis, otherwise they would never become migratable.
	minSize := int64(r.cfg.Dedupe.MinFileSizeMB) * (1 << 20)
	eligible := make([]*catalog.FileRecord, 0, len(records))
	for _, record := range records {
		if record.SizeBytes >= minSize {
			eligible = append(eligible, record)
		}
	}

	result := Result{Examined: len(eligible)}
	r.publish(events.Event{Type: events.TypeOperationStarted, Operation: catalog.OperationAnalyze, Current: 0, Total: len(eligible)})

	sizeBuckets := make(map[int64][]*catalog.FileRecord)
	for _, record := range eligible {
		sizeBuckets[record.SizeBytes] = append(sizeBuckets[record.SizeBytes], record)
	}
	sizes := make([]int64, 0, len(sizeBuckets))
	for size := range sizeBuckets {
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	var groups []catalog.DuplicateGroup
	cursor := catalog.AnalyzeCursor{TotalBuckets: len(sizes)}
	for _, size := range sizes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		bucket := sizeBuckets[size]
		if len(bucket) > 1 {
			bucketGroups, failed, err := r.refineBucket(ctx, bucket)
			if err != nil {
				return result, err
			}
			groups = append(groups, bucketGroups...)
			result.Failed += failed
		}
		cursor.BucketsDone++
		if err := r.store.SaveCheckpoint(ctx, catalog.OperationAnalyze, cursor, cursor.BucketsDone, cursor.TotalBuckets); err != nil {
			return result, err
		}
		r.publish(events.Event{
			Type:      events.TypeOperationProgress,
			Operation: catalog.OperationAnalyze,
			Current:   cursor.BucketsDone,
			Total:     cursor.TotalBuckets,
		})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].FullHash < groups[j].FullHash })
	if err := r.store.ReplaceGroups(ctx, groups); err != nil {
		return result, err
	}

	for _, record := range records {
		if record.Status != catalog.StatusFingerprinted {
			continue
		}
		err := r.store.TransitionStatus(ctx, record.SourcePath, catalog.StatusFingerprinted, catalog.StatusDuplicateAnalyzed)
		if err != nil && !errors.Is(err, services.ErrOperationInProgress) {
			return result, err
		}
	}

	if err := r.store.ClearCheckpoint(ctx, catalog.OperationAnalyze); err != nil {
		return result, err
	}

	result.Groups = len(groups)
	for _, group := range groups {
		result.DuplicateFiles += len(group.Members) - 1
		result.ReclaimableBytes += group.ReclaimableBytes()
	}

	r.logger.Info("resolution complete",
		logging.Int("examined", result.Examined),
		logging.Int("groups", result.Groups),
		logging.Int("duplicate_files", result.DuplicateFiles),
		logging.Int64("reclaimable_bytes", result.ReclaimableBytes))
	r.publish(events.Event{
		Type:      events.TypeOperationCompleted,
		Operation: catalog.OperationAnalyze,
		Current:   result.Examined,
		Total:     result.Examined,
		Fields: map[string]string{
			"groups":            fmt.Sprint(result.Groups),
			"duplicate_files":   fmt.Sprint(result.DuplicateFiles),
			"reclaimable_bytes": fmt.Sprint(result.ReclaimableBytes),
		},
	})
	return result, nil
}

// refineBucket splits one same-size bucket by cheap fingerprint, then by
// full hash, and builds scored groups for every final cell with two or more
// members.
func (r *Resolver) refineBucket(ctx context.Context, bucket []*catalog.FileRecord) ([]catalog.DuplicateGroup, int, error) {
	partialBuckets := make(map[string][]*catalog.FileRecord)
	for _, record := range bucket {
		if record.PartialHash == "" {
			continue
		}
		partialBuckets[record.PartialHash] = append(partialBuckets[record.PartialHash], record)
	}

	var (
		groups []catalog.DuplicateGroup
		failed int
	)
	for _, candidates := range partialBuckets {
		if len(candidates) < 2 {
			continue
		}

		fullBuckets := make(map[string][]*catalog.FileRecord)
		for _, record := range candidates {
			hash, err := r.ensureFullHash(ctx, record)
			if err != nil {
				if services.IsPerFile(err) {
					failed++
					r.logger.Warn("full hash failed", logging.String("path", record.SourcePath), logging.Error(err))
					continue
				}
				return nil, failed, err
			}
			fullBuckets[hash] = append(fullBuckets[hash], record)
		}

		for hash, members := range fullBuckets {
			if len(members) < 2 {
				continue
			}
			group, err := r.buildGroup(ctx, hash, members)
			if err != nil {
				return nil, failed, err
			}
			groups = append(groups, group)
		}
	}
	return groups, failed, nil
}

// ensureFullHash returns the cached full hash or computes and stores it.
// The cache is trusted only while size and mtime still match the index.
func (r *Resolver) ensureFullHash(ctx context.Context, record *catalog.FileRecord) (string, error) {
	if record.FullHash != "" {
		info, err := os.Stat(record.SourcePath)
		if err == nil && !record.ChangedSince(info.Size(), info.ModTime()) {
			return record.FullHash, nil
		}
	}
	hash, err := r.fp.Full(ctx, record.SourcePath)
	if err != nil {
		return "", err
	}
	if err := r.store.SetFullHash(ctx, record.SourcePath, hash); err != nil {
		return "", err
	}
	record.FullHash = hash
	return hash, nil
}

// buildGroup scores members and elects the primary: highest score, ties
// broken by shortest path, then lexical order.
func (r *Resolver) buildGroup(ctx context.Context, hash string, members []*catalog.FileRecord) (catalog.DuplicateGroup, error) {
	paths := make([]string, 0, len(members))
	for _, member := range members {
		paths = append(paths, member.SourcePath)
	}
	metaByPath, err := r.store.MetadataForPaths(ctx, paths)
	if err != nil {
		return catalog.DuplicateGroup{}, err
	}

	sort.Slice(members, func(i, j int) bool { return members[i].SourcePath < members[j].SourcePath })

	group := catalog.DuplicateGroup{ID: uuid.NewString(), FullHash: hash}
	for _, member := range members {
		group.Members = append(group.Members, catalog.GroupMember{
			SourcePath:   member.SourcePath,
			SizeBytes:    member.SizeBytes,
			QualityScore: r.scorer.Score(member, metaByPath[member.SourcePath]),
		})
	}

	winner := electPrimary(group.Members)
	for i := range group.Members {
		group.Members[i].IsPrimary = group.Members[i].SourcePath == winner
	}
	return group, nil
}

func electPrimary(members []catalog.GroupMember) string {
	winner := members[0]
	for _, member := range members[1:] {
		if member.QualityScore != winner.QualityScore {
			if member.QualityScore > winner.QualityScore {
				winner = member
			}
			continue
		}
		if len(member.SourcePath) != len(winner.SourcePath) {
			if len(member.SourcePath) < len(winner.SourcePath) {
				winner = member
			}
			continue
		}
		if member.SourcePath < winner.SourcePath {
			winner = member
		}
	}
	return winner.SourcePath
}

func (r *Resolver) publish(evt events.Event) {
	if r.bus != nil {
		r.bus.Publish(evt)
	}
}
