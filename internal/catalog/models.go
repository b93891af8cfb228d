package catalog

import (
	"strings"
	"time"
)

// FileStatus represents the lifecycle of an indexed source file.
type FileStatus string

const (
	StatusDiscovered        FileStatus = "discovered"
	StatusFingerprinted     FileStatus = "fingerprinted"
	StatusDuplicateAnalyzed FileStatus = "duplicate_analyzed"
	StatusMigrating         FileStatus = "migrating"
	StatusMigrated          FileStatus = "migrated"
	StatusFailed            FileStatus = "failed"
	StatusQuarantined       FileStatus = "quarantined"
)

var fileStatusRank = map[FileStatus]int{
	StatusDiscovered:        0,
	StatusFingerprinted:     1,
	StatusDuplicateAnalyzed: 2,
	StatusMigrating:         3,
	StatusMigrated:          4,
}

// ParseFileStatus converts a string into a known FileStatus.
func ParseFileStatus(value string) (FileStatus, bool) {
	normalized := FileStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusDiscovered, StatusFingerprinted, StatusDuplicateAnalyzed,
		StatusMigrating, StatusMigrated, StatusFailed, StatusQuarantined:
		return normalized, true
	}
	return "", false
}

// IsTerminal reports whether a status absorbs further automated processing.
func (s FileStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusQuarantined
}

// CanTransition reports whether moving from one status to another respects
// the monotonic lifecycle. Absorbing states are reachable from anywhere;
// leaving them requires an explicit reset, not a transition.
func CanTransition(from, to FileStatus) bool {
	if to == StatusFailed || to == StatusQuarantined {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	fromRank, ok := fileStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := fileStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// FileRecord is one row of the file index, keyed by source path.
type FileRecord struct {
	SourcePath   string
	SizeBytes    int64
	ModTime      time.Time
	PartialHash  string
	FullHash     string
	Status       FileStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChangedSince reports whether the on-disk size or mtime differ from the
// indexed record, meaning cached fingerprints can no longer be trusted.
func (f *FileRecord) ChangedSince(size int64, modTime time.Time) bool {
	return f.SizeBytes != size || !f.ModTime.Equal(modTime.UTC().Truncate(time.Second))
}

// Metadata is the best-effort attribute record supplied by the tags
// collaborator for one file.
type Metadata struct {
	SourcePath  string
	Artist      string
	Album       string
	Title       string
	TrackNumber int
	Year        int
	Format      string
	BitrateKbps int
}

// GroupMember is one file's membership in a duplicate group.
type GroupMember struct {
	SourcePath   string
	SizeBytes    int64
	QualityScore int
	IsPrimary    bool
}

// DuplicateGroup is a set of content-identical files with one elected primary.
type DuplicateGroup struct {
	ID       string
	FullHash string
	Members  []GroupMember
}

// Primary returns the elected member. Persisted groups always have one.
func (g *DuplicateGroup) Primary() (GroupMember, bool) {
	for _, m := range g.Members {
		if m.IsPrimary {
			return m, true
		}
	}
	return GroupMember{}, false
}

// ReclaimableBytes sums the sizes of all non-primary members.
func (g *DuplicateGroup) ReclaimableBytes() int64 {
	var total int64
	for _, m := range g.Members {
		if !m.IsPrimary {
			total += m.SizeBytes
		}
	}
	return total
}

// TaskStatus represents the lifecycle of a migration task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCopying   TaskStatus = "copying"
	TaskVerifying TaskStatus = "verifying"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// MigrationTask is one planned copy from source into the library layout.
type MigrationTask struct {
	ID           int64
	SourcePath   string
	TargetPath   string
	Status       TaskStatus
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// HealthSummary aggregates index counts per key lifecycle state.
type HealthSummary struct {
	Total         int
	Discovered    int
	Fingerprinted int
	Analyzed      int
	Migrated      int
	Failed        int
	Quarantined   int
	TotalBytes    int64
}
