// Package migrate plans and executes verified copies of catalog files into
// the normalized library layout. Planning is pure; execution runs a bounded
// worker pool and records every outcome in the catalog so an interrupted
// migration resumes instead of restarting.
package migrate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"shellac/internal/catalog"
	"shellac/internal/classify"
	"shellac/internal/config"
	"shellac/internal/textutil"
)

// PlannedTask is one source-to-target mapping. Skip tasks carry the reason a
// file is excluded instead of a target.
type PlannedTask struct {
	SourcePath string
	TargetPath string
	SizeBytes  int64
	Skip       bool
	Reason     string
}

// Planner derives library targets for analyzed files. It reads the catalog
// but never writes to it or the filesystem.
type Planner struct {
	cfg        *config.Config
	store      *catalog.Store
	classifier *classify.Classifier
}

// NewPlanner constructs a Planner.
func NewPlanner(cfg *config.Config, store *catalog.Store) *Planner {
	return &Planner{cfg: cfg, store: store, classifier: classify.New(cfg)}
}

// Plan maps every analyzed file to a target under the library root. With
// skipDuplicates, non-primary group members become skip tasks instead of
// copies; files classified as samples are skipped unconditionally. Target
// collisions are resolved deterministically with a numeric suffix in
// source-path order, and targets already claimed by completed tasks from
// earlier runs stay claimed.
func (p *Planner) Plan(ctx context.Context, skipDuplicates bool) ([]PlannedTask, error) {
	records, err := p.store.ListFiles(ctx, catalog.StatusDuplicateAnalyzed, catalog.StatusMigrating)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SourcePath < records[j].SourcePath })

	nonPrimary := map[string]bool{}
	if skipDuplicates {
		groups, err := p.store.ListGroups(ctx, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, group := range groups {
			for _, member := range group.Members {
				if !member.IsPrimary {
					nonPrimary[member.SourcePath] = true
				}
			}
		}
	}

	paths := make([]string, 0, len(records))
	for _, record := range records {
		paths = append(paths, record.SourcePath)
	}
	metaByPath, err := p.store.MetadataForPaths(ctx, paths)
	if err != nil {
		return nil, err
	}

	completed, err := p.store.ListTasks(ctx, catalog.TaskCompleted)
	if err != nil {
		return nil, err
	}
	claimed := map[string]bool{}
	for _, task := range completed {
		claimed[task.TargetPath] = true
	}

	tasks := make([]PlannedTask, 0, len(records))
	for _, record := range records {
		if nonPrimary[record.SourcePath] {
			tasks = append(tasks, PlannedTask{
				SourcePath: record.SourcePath,
				SizeBytes:  record.SizeBytes,
				Skip:       true,
				Reason:     "non-primary duplicate",
			})
			continue
		}
		if verdict := p.classifier.Classify(record.SizeBytes); verdict.Kind == classify.KindSample {
			tasks = append(tasks, PlannedTask{
				SourcePath: record.SourcePath,
				SizeBytes:  record.SizeBytes,
				Skip:       true,
				Reason:     "classified as sample: " + verdict.Reason,
			})
			continue
		}

		target := p.targetFor(record.SourcePath, metaByPath[record.SourcePath])
		target = resolveCollision(target, claimed)
		claimed[target] = true
		tasks = append(tasks, PlannedTask{
			SourcePath: record.SourcePath,
			TargetPath: target,
			SizeBytes:  record.SizeBytes,
		})
	}
	return tasks, nil
}

// targetFor builds LibraryDir/Artist/Album/NN - Title.ext with the fallback
// chain: Unknown Artist, Singles, and the original filename when no title is
// known.
func (p *Planner) targetFor(sourcePath string, meta catalog.Metadata) string {
	artist := textutil.SanitizeSegment(meta.Artist)
	if artist == "" {
		artist = p.cfg.Migrate.UnknownArtist
	}
	album := textutil.SanitizeSegment(meta.Album)
	if album == "" {
		album = p.cfg.Migrate.SinglesAlbum
	}

	ext := strings.ToLower(filepath.Ext(sourcePath))
	title := textutil.SanitizeSegment(meta.Title)
	var filename string
	switch {
	case title != "" && meta.TrackNumber > 0:
		filename = fmt.Sprintf("%02d - %s%s", meta.TrackNumber, title, ext)
	case title != "":
		filename = title + ext
	default:
		filename = filepath.Base(sourcePath)
	}

	return filepath.Join(p.cfg.Paths.LibraryDir, artist, album, filename)
}

// resolveCollision appends " (n)" before the extension until the target is
// unique within the plan.
func resolveCollision(target string, claimed map[string]bool) string {
	if !claimed[target] {
		return target
	}
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !claimed[candidate] {
			return candidate
		}
	}
}
