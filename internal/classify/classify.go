// Package classify sorts catalog files into songs, samples, and unknowns by
// size. Samples are short preview clips that do not belong in the organized
// library; the migration planner skips them.
package classify

import "shellac/internal/config"

// Kind is the outcome of a classification.
type Kind string

const (
	KindSong    Kind = "song"
	KindSample  Kind = "sample"
	KindUnknown Kind = "unknown"
)

// Classification carries the kind with the confidence the size heuristic
// assigns to it and a short human-readable reason.
type Classification struct {
	Kind       Kind
	Confidence float64
	Reason     string
}

// Classifier applies configured size thresholds.
type Classifier struct {
	minSongBytes   int64
	maxSampleBytes int64
}

// New constructs a Classifier from the classify config section. A zero
// threshold disables the corresponding band.
func New(cfg *config.Config) *Classifier {
	return &Classifier{
		minSongBytes:   int64(cfg.Classify.MinSongSizeMB) * (1 << 20),
		maxSampleBytes: int64(cfg.Classify.MaxSampleSizeKiB) * (1 << 10),
	}
}

// Classify buckets a file by size. Files at or above the song floor are
// songs, files at or below the sample ceiling are samples, and everything
// between the bands is unknown.
func (c *Classifier) Classify(sizeBytes int64) Classification {
	if c.minSongBytes > 0 && sizeBytes >= c.minSongBytes {
		return Classification{Kind: KindSong, Confidence: 0.8, Reason: "size at or above song threshold"}
	}
	if c.maxSampleBytes > 0 && sizeBytes <= c.maxSampleBytes {
		return Classification{Kind: KindSample, Confidence: 0.8, Reason: "size at or below sample threshold"}
	}
	return Classification{Kind: KindUnknown, Confidence: 0, Reason: "size between sample and song thresholds"}
}
