package dedupe

import (
	"strings"

	"shellac/internal/catalog"
)

// Scorer ranks candidate files within a duplicate group. Higher is better.
type Scorer interface {
	Score(record *catalog.FileRecord, meta catalog.Metadata) int
}

// QualityScorer is the shipped scorer. It prefers lossless and
// high-bitrate formats, complete metadata, and paths that do not look like
// backup copies. The exact weights are tuning, not contract.
type QualityScorer struct{}

var formatRank = map[string]int{
	"flac": 70,
	"wav":  60,
	"m4a":  50,
	"mp3":  40,
	"aac":  30,
	"ogg":  20,
	"wma":  10,
}

var backupMarkers = []string{"backup", "copy", "old", ".bak", "duplicate"}

// Score implements Scorer.
func (QualityScorer) Score(record *catalog.FileRecord, meta catalog.Metadata) int {
	score := formatRank[strings.ToLower(meta.Format)]

	switch {
	case meta.BitrateKbps >= 320:
		score += 30
	case meta.BitrateKbps >= 256:
		score += 25
	case meta.BitrateKbps >= 192:
		score += 20
	case meta.BitrateKbps >= 128:
		score += 10
	case meta.BitrateKbps > 0:
		score += 5
	}

	for _, present := range []bool{
		meta.Artist != "",
		meta.Album != "",
		meta.Title != "",
		meta.TrackNumber > 0,
		meta.Year > 0,
	} {
		if present {
			score += 5
		}
	}

	sizeBonus := int(record.SizeBytes / (1 << 20))
	if sizeBonus > 20 {
		sizeBonus = 20
	}
	score += sizeBonus

	lowered := strings.ToLower(record.SourcePath)
	for _, marker := range backupMarkers {
		if strings.Contains(lowered, marker) {
			score -= 25
			break
		}
	}

	return score
}
