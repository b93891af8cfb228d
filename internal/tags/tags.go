// Package tags derives best-effort track attributes for audio files.
//
// Full tag parsing needs per-container codecs; this provider works from the
// path instead: directory layout and common filename patterns carry enough
// structure to label most collections. Attributes it cannot derive stay at
// their zero values and downstream consumers treat them as unknown.
package tags

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Attributes holds whatever track information could be derived for one file.
// Zero values mean unknown.
type Attributes struct {
	Artist      string
	Album       string
	Title       string
	TrackNumber int
	Year        int
	Format      string
	BitrateKbps int
}

// Provider derives attributes for files under a source root.
type Provider struct {
	root string
}

// NewProvider returns a Provider that interprets directory structure
// relative to the given source root.
func NewProvider(root string) *Provider {
	return &Provider{root: filepath.Clean(root)}
}

var (
	// "01 - Title", "01. Title", "01 Title"
	trackTitlePattern = regexp.MustCompile(`^(\d{1,3})\s*[-._]?\s+(.+)$`)
	// "Artist - Album - 01 - Title"
	fullPattern = regexp.MustCompile(`^(.+?)\s+-\s+(.+?)\s+-\s+(\d{1,3})\s+-\s+(.+)$`)
	// "Artist - Title"
	artistTitlePattern = regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`)
	// "(1994)" or "[1994]" anywhere in an album directory name
	yearPattern = regexp.MustCompile(`[([](\d{4})[)\]]`)
)

// Derive inspects the path and returns whatever attributes it can.
func (p *Provider) Derive(path string) Attributes {
	attrs := Attributes{
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.TrimSpace(stem)

	if m := fullPattern.FindStringSubmatch(stem); m != nil {
		attrs.Artist = strings.TrimSpace(m[1])
		attrs.Album = strings.TrimSpace(m[2])
		attrs.TrackNumber, _ = strconv.Atoi(m[3])
		attrs.Title = strings.TrimSpace(m[4])
	} else if m := trackTitlePattern.FindStringSubmatch(stem); m != nil {
		attrs.TrackNumber, _ = strconv.Atoi(m[1])
		attrs.Title = strings.TrimSpace(m[2])
	} else if m := artistTitlePattern.FindStringSubmatch(stem); m != nil {
		attrs.Artist = strings.TrimSpace(m[1])
		attrs.Title = strings.TrimSpace(m[2])
	} else if stem != "" {
		attrs.Title = stem
	}

	p.fillFromDirectories(path, &attrs)
	return attrs
}

// fillFromDirectories reads Artist/Album from the two directory levels above
// the file when the filename itself did not carry them. An album directory
// like "Album Name (1994)" also supplies the year.
func (p *Provider) fillFromDirectories(path string, attrs *Attributes) {
	rel, err := filepath.Rel(p.root, filepath.Clean(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Clean(path)
	}
	segments := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	var dirs []string
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == "/" {
			continue
		}
		dirs = append(dirs, segment)
	}
	if len(dirs) == 0 {
		return
	}

	albumDir := dirs[len(dirs)-1]
	if m := yearPattern.FindStringSubmatch(albumDir); m != nil {
		if attrs.Year == 0 {
			attrs.Year, _ = strconv.Atoi(m[1])
		}
		albumDir = strings.TrimSpace(yearPattern.ReplaceAllString(albumDir, ""))
	}
	if attrs.Album == "" {
		attrs.Album = albumDir
	}
	if attrs.Artist == "" && len(dirs) >= 2 {
		attrs.Artist = dirs[len(dirs)-2]
	}
}
