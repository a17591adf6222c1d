package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const trackColumns = "id, batch_id, source_path, size_bytes, format, duration, title, artist, album, album_artist, genre, year, track_number, total_tracks, disc_number, total_discs, fingerprint, fingerprint_duration, is_compilation, status, confidence, error_message, chosen_candidate_json, dest_path, created_at, updated_at"

// UpsertTrack inserts a track for a batch or refreshes the stored row when
// the (batch_id, source_path) pair already exists. The refresh overwrites the
// row whatever its stored status.
func (s *Store) UpsertTrack(ctx context.Context, track *Track) error {
	if track == nil {
		return errors.New("track is nil")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	if track.CreatedAt.IsZero() {
		track.CreatedAt = now
	}
	track.UpdatedAt = now
	if track.Status == "" {
		track.Status = StatusPending
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tracks (
            batch_id, source_path, size_bytes, format, duration,
            title, artist, album, album_artist, genre,
            year, track_number, total_tracks, disc_number, total_discs,
            fingerprint, fingerprint_duration, is_compilation,
            status, confidence, error_message, chosen_candidate_json, dest_path,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (batch_id, source_path) DO UPDATE SET
            size_bytes = excluded.size_bytes,
            format = excluded.format,
            duration = excluded.duration,
            title = excluded.title,
            artist = excluded.artist,
            album = excluded.album,
            album_artist = excluded.album_artist,
            genre = excluded.genre,
            year = excluded.year,
            track_number = excluded.track_number,
            total_tracks = excluded.total_tracks,
            disc_number = excluded.disc_number,
            total_discs = excluded.total_discs,
            fingerprint = excluded.fingerprint,
            fingerprint_duration = excluded.fingerprint_duration,
            is_compilation = excluded.is_compilation,
            status = excluded.status,
            confidence = excluded.confidence,
            error_message = excluded.error_message,
            chosen_candidate_json = excluded.chosen_candidate_json,
            dest_path = excluded.dest_path,
            updated_at = excluded.updated_at`,
		track.BatchID,
		track.SourcePath,
		track.SizeBytes,
		nullableString(track.Format),
		track.Duration,
		nullableString(track.Title),
		nullableString(track.Artist),
		nullableString(track.Album),
		nullableString(track.AlbumArtist),
		nullableString(track.Genre),
		track.Year,
		track.TrackNumber,
		track.TotalTracks,
		track.DiscNumber,
		track.TotalDiscs,
		nullableString(track.Fingerprint),
		track.FingerprintDuration,
		boolToInt(track.IsCompilation),
		string(track.Status),
		track.Confidence,
		nullableString(track.ErrorMessage),
		nullableString(track.ChosenCandidateJSON),
		nullableString(track.DestPath),
		formatTime(track.CreatedAt),
		formatTime(track.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}

	// LastInsertId is unreliable on the conflict-update path, so a track
	// without an id has it resolved with a lookup.
	if track.ID == 0 {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM tracks WHERE batch_id = ? AND source_path = ?`,
			track.BatchID,
			track.SourcePath,
		)
		if err := row.Scan(&track.ID); err != nil {
			return fmt.Errorf("resolve track id: %w", err)
		}
	}
	return nil
}

// GetTrack fetches a track by batch id and source path.
func (s *Store) GetTrack(ctx context.Context, batchID, sourcePath string) (*Track, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE batch_id = ? AND source_path = ?`,
		batchID,
		sourcePath,
	)
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return track, nil
}

// TracksForBatch returns every track recorded for a batch in creation order.
func (s *Store) TracksForBatch(ctx context.Context, batchID string) ([]*Track, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE batch_id = ? ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query batch tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// ProcessedPaths returns the source paths already retired for the batch.
// Used by the resume filter at batch start.
func (s *Store) ProcessedPaths(ctx context.Context, batchID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source_path FROM tracks WHERE batch_id = ? AND status IN (?, ?, ?, ?, ?)`,
		batchID,
		StatusApplied,
		StatusReview,
		StatusUnmatched,
		StatusFailed,
		StatusSkipped,
	)
	if err != nil {
		return nil, fmt.Errorf("query processed paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths[path] = struct{}{}
	}
	return paths, rows.Err()
}

// BatchStats counts tracks per terminal tier for a batch.
func (s *Store) BatchStats(ctx context.Context, batchID string) (BatchStats, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM tracks WHERE batch_id = ? GROUP BY status`,
		batchID,
	)
	if err != nil {
		return BatchStats{}, fmt.Errorf("batch stats: %w", err)
	}
	defer rows.Close()

	stats := BatchStats{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return BatchStats{}, err
		}
		stats.Total += count
		switch status {
		case StatusApplied:
			stats.Applied += count
		case StatusReview:
			stats.Review += count
		case StatusUnmatched:
			stats.Unmatched += count
		case StatusFailed:
			stats.Failed += count
		case StatusSkipped:
			stats.Skipped += count
		}
	}
	return stats, rows.Err()
}

func scanTrack(scanner interface{ Scan(dest ...any) error }) (*Track, error) {
	var (
		id            int64
		batchID       string
		sourcePath    string
		sizeBytes     sql.NullInt64
		format        sql.NullString
		duration      sql.NullFloat64
		title         sql.NullString
		artist        sql.NullString
		album         sql.NullString
		albumArtist   sql.NullString
		genre         sql.NullString
		year          sql.NullInt64
		trackNumber   sql.NullInt64
		totalTracks   sql.NullInt64
		discNumber    sql.NullInt64
		totalDiscs    sql.NullInt64
		fingerprint   sql.NullString
		fpDuration    sql.NullFloat64
		isCompilation sql.NullInt64
		statusStr     string
		confidence    sql.NullFloat64
		errorMessage  sql.NullString
		candidateJSON sql.NullString
		destPath      sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&batchID,
		&sourcePath,
		&sizeBytes,
		&format,
		&duration,
		&title,
		&artist,
		&album,
		&albumArtist,
		&genre,
		&year,
		&trackNumber,
		&totalTracks,
		&discNumber,
		&totalDiscs,
		&fingerprint,
		&fpDuration,
		&isCompilation,
		&statusStr,
		&confidence,
		&errorMessage,
		&candidateJSON,
		&destPath,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	track := &Track{
		ID:                  id,
		BatchID:             batchID,
		SourcePath:          sourcePath,
		SizeBytes:           sizeBytes.Int64,
		Format:              format.String,
		Duration:            duration.Float64,
		Title:               title.String,
		Artist:              artist.String,
		Album:               album.String,
		AlbumArtist:         albumArtist.String,
		Genre:               genre.String,
		Year:                int(year.Int64),
		TrackNumber:         int(trackNumber.Int64),
		TotalTracks:         int(totalTracks.Int64),
		DiscNumber:          int(discNumber.Int64),
		TotalDiscs:          int(totalDiscs.Int64),
		Fingerprint:         fingerprint.String,
		FingerprintDuration: fpDuration.Float64,
		IsCompilation:       isCompilation.Int64 != 0,
		Status:              Status(statusStr),
		Confidence:          confidence.Float64,
		ErrorMessage:        errorMessage.String,
		ChosenCandidateJSON: candidateJSON.String,
		DestPath:            destPath.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		track.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		track.UpdatedAt = updated
	}
	return track, nil
}
