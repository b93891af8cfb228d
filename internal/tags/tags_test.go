package tags_test

import (
	"testing"

	"shellac/internal/tags"
)

func TestDeriveFullFilenamePattern(t *testing.T) {
	provider := tags.NewProvider("/music")
	attrs := provider.Derive("/music/incoming/Queen - A Night at the Opera - 11 - Bohemian Rhapsody.flac")

	if attrs.Artist != "Queen" {
		t.Fatalf("artist = %q", attrs.Artist)
	}
	if attrs.Album != "A Night at the Opera" {
		t.Fatalf("album = %q", attrs.Album)
	}
	if attrs.TrackNumber != 11 {
		t.Fatalf("track = %d", attrs.TrackNumber)
	}
	if attrs.Title != "Bohemian Rhapsody" {
		t.Fatalf("title = %q", attrs.Title)
	}
	if attrs.Format != "flac" {
		t.Fatalf("format = %q", attrs.Format)
	}
}

func TestDeriveTrackTitleWithDirectoryContext(t *testing.T) {
	provider := tags.NewProvider("/music")
	attrs := provider.Derive("/music/Pink Floyd/The Wall (1979)/05 - Another Brick in the Wall.mp3")

	if attrs.Artist != "Pink Floyd" {
		t.Fatalf("artist = %q", attrs.Artist)
	}
	if attrs.Album != "The Wall" {
		t.Fatalf("album = %q", attrs.Album)
	}
	if attrs.Year != 1979 {
		t.Fatalf("year = %d", attrs.Year)
	}
	if attrs.TrackNumber != 5 {
		t.Fatalf("track = %d", attrs.TrackNumber)
	}
	if attrs.Title != "Another Brick in the Wall" {
		t.Fatalf("title = %q", attrs.Title)
	}
}

func TestDeriveArtistTitlePattern(t *testing.T) {
	provider := tags.NewProvider("/music")
	attrs := provider.Derive("/music/downloads/Radiohead - Creep.mp3")

	if attrs.Artist != "Radiohead" {
		t.Fatalf("artist = %q", attrs.Artist)
	}
	if attrs.Title != "Creep" {
		t.Fatalf("title = %q", attrs.Title)
	}
	if attrs.TrackNumber != 0 {
		t.Fatalf("track = %d", attrs.TrackNumber)
	}
}

func TestDeriveBareFilenameFallsBackToTitle(t *testing.T) {
	provider := tags.NewProvider("/music")
	attrs := provider.Derive("/music/loose/recording.wav")

	if attrs.Title != "recording" {
		t.Fatalf("title = %q", attrs.Title)
	}
	if attrs.Album != "loose" {
		t.Fatalf("album should come from directory, got %q", attrs.Album)
	}
	if attrs.Artist != "" {
		t.Fatalf("artist should stay unknown, got %q", attrs.Artist)
	}
}
