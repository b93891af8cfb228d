package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveMetadata stores or replaces the attribute record for one file.
func (s *Store) SaveMetadata(ctx context.Context, meta Metadata) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO metadata (source_path, artist, album, title, track_number, year, format, bitrate_kbps, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(source_path) DO UPDATE SET
             artist = excluded.artist,
             album = excluded.album,
             title = excluded.title,
             track_number = excluded.track_number,
             year = excluded.year,
             format = excluded.format,
             bitrate_kbps = excluded.bitrate_kbps,
             updated_at = excluded.updated_at`,
		meta.SourcePath,
		nullableString(meta.Artist),
		nullableString(meta.Album),
		nullableString(meta.Title),
		meta.TrackNumber,
		meta.Year,
		nullableString(meta.Format),
		meta.BitrateKbps,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// GetMetadata loads the attribute record for one file. A file with no stored
// row yields an empty record rather than an error; callers treat missing
// attributes the same as unknown ones.
func (s *Store) GetMetadata(ctx context.Context, path string) (Metadata, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT artist, album, title, track_number, year, format, bitrate_kbps
         FROM metadata WHERE source_path = ?`,
		path,
	)
	meta := Metadata{SourcePath: path}
	var artist, album, title, format sql.NullString
	err := row.Scan(&artist, &album, &title, &meta.TrackNumber, &meta.Year, &format, &meta.BitrateKbps)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("get metadata: %w", err)
	}
	meta.Artist = artist.String
	meta.Album = album.String
	meta.Title = title.String
	meta.Format = format.String
	return meta, nil
}

// MetadataForPaths loads attribute records for a batch of files in one query.
// Paths without a stored row are absent from the result map.
func (s *Store) MetadataForPaths(ctx context.Context, paths []string) (map[string]Metadata, error) {
	if len(paths) == 0 {
		return map[string]Metadata{}, nil
	}
	args := make([]any, 0, len(paths))
	for _, path := range paths {
		args = append(args, path)
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source_path, artist, album, title, track_number, year, format, bitrate_kbps
         FROM metadata WHERE source_path IN (`+makePlaceholders(len(paths))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("metadata for paths: %w", err)
	}
	defer rows.Close()

	result := make(map[string]Metadata, len(paths))
	for rows.Next() {
		var meta Metadata
		var artist, album, title, format sql.NullString
		if err := rows.Scan(&meta.SourcePath, &artist, &album, &title, &meta.TrackNumber, &meta.Year, &format, &meta.BitrateKbps); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		meta.Artist = artist.String
		meta.Album = album.String
		meta.Title = title.String
		meta.Format = format.String
		result[meta.SourcePath] = meta
	}
	return result, rows.Err()
}
