package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tagflow/internal/config"
	"tagflow/internal/logging"
	"tagflow/internal/services"
	"tagflow/internal/store"
	"tagflow/internal/tags"
)

// ErrDuplicate indicates the destination already holds this track; the
// source is left in place.
var ErrDuplicate = errors.New("destination already exists")

// Ledger is the subset of the store the organizer appends to.
type Ledger interface {
	AppendMove(ctx context.Context, record *store.MoveRecord) error
	SetReversal(ctx context.Context, id int64, state store.ReversalState) error
	MovesForBatch(ctx context.Context, batchID string) ([]*store.MoveRecord, error)
	MovesForTrack(ctx context.Context, trackID int64) ([]*store.MoveRecord, error)
	GetMove(ctx context.Context, id int64) (*store.MoveRecord, error)
}

// Options configures an organizer instance.
type Options struct {
	LibraryRoot     string
	BackupRoot      string
	KeepOriginals   bool
	FolderTemplate  string
	FileTemplate    string
	SinglesFolder   string
	UnmatchedFolder string
	DryRun          bool
}

// OptionsFromConfig builds organizer options from the application config.
func OptionsFromConfig(cfg *config.Config, dryRun bool) Options {
	return Options{
		LibraryRoot:     cfg.Paths.LibraryRoot,
		BackupRoot:      cfg.Paths.BackupRoot,
		KeepOriginals:   cfg.Organizer.KeepOriginals,
		FolderTemplate:  cfg.Organizer.FolderTemplate,
		FileTemplate:    cfg.Organizer.FileTemplate,
		SinglesFolder:   cfg.Organizer.SinglesFolder,
		UnmatchedFolder: cfg.Organizer.UnmatchedFolder,
		DryRun:          dryRun,
	}
}

// Organizer moves identified tracks into the library layout with
// backup-before-mutate and ledger-backed rollback.
type Organizer struct {
	ledger Ledger
	logger *slog.Logger

	libraryRoot     string
	backupRoot      string
	keepOriginals   bool
	folderTemplate  string
	fileTemplate    string
	singlesFolder   string
	unmatchedFolder string
	dryRun          bool
}

// New constructs an organizer. When opts.DryRun is set every mutation is
// simulated while still producing a speculative plan.
func New(opts Options, ledger Ledger, logger *slog.Logger) *Organizer {
	singles := opts.SinglesFolder
	if strings.TrimSpace(singles) == "" {
		singles = "Singles"
	}
	unmatched := opts.UnmatchedFolder
	if strings.TrimSpace(unmatched) == "" {
		unmatched = "_Unmatched"
	}
	if strings.TrimSpace(opts.FolderTemplate) == "" {
		opts.FolderTemplate = defaultFolderTemplate
	}
	if strings.TrimSpace(opts.FileTemplate) == "" {
		opts.FileTemplate = defaultFileTemplate
	}
	return &Organizer{
		ledger:          ledger,
		logger:          logging.NewComponentLogger(logger, "organizer"),
		libraryRoot:     opts.LibraryRoot,
		backupRoot:      opts.BackupRoot,
		keepOriginals:   opts.KeepOriginals,
		folderTemplate:  opts.FolderTemplate,
		fileTemplate:    opts.FileTemplate,
		singlesFolder:   singles,
		unmatchedFolder: unmatched,
		dryRun:          opts.DryRun,
	}
}

// Apply performs the ordered mutation for a track whose metadata has already
// been merged from the chosen candidate:
//
//  1. compute and sanitize the destination, resolving collisions
//  2. back up the original (verified copy) when keep_originals is set
//  3. write the new tags into the source file
//  4. move the source to the destination (atomic or copy-verify-delete)
//  5. append a reversible MoveRecord
//
// Any step failure reverts the steps already performed, in reverse order,
// before the error surfaces.
func (o *Organizer) Apply(ctx context.Context, track *store.Track, coverArt []byte) (*store.MoveRecord, error) {
	logger := o.logger
	source := track.SourcePath

	if !o.dryRun && !fileExists(source) {
		return nil, services.Wrap(services.ErrValidation, "organize", "stat source", "source file missing", nil)
	}

	dest := o.BuildDestination(track)

	if !o.dryRun && dest != source && fileExists(dest) {
		if fileSize(dest) == fileSize(source) {
			// Same slot, same size: a duplicate of something already in the
			// library. Leave the source alone.
			logger.Warn("duplicate destination, skipping",
				logging.String(logging.FieldTrackPath, source),
				logging.String("dest", dest))
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, dest)
		}
		dest = uniquePath(dest, fileExists)
	}

	operation := store.OpMoveWithTags
	if dest == source {
		operation = store.OpTagOnly
	}

	if o.dryRun {
		record := &store.MoveRecord{
			BatchID:      track.BatchID,
			TrackID:      track.ID,
			OriginalPath: source,
			CurrentPath:  dest,
			Operation:    operation,
			DryRun:       true,
		}
		if err := o.ledger.AppendMove(ctx, record); err != nil {
			return nil, fmt.Errorf("append dry-run record: %w", err)
		}
		logger.Info("dry run: would organize",
			logging.String(logging.FieldTrackPath, source),
			logging.String("dest", dest))
		track.DestPath = dest
		return record, nil
	}

	// Step 2: backup before any mutation so the copy preserves the original
	// tags.
	backupPath := ""
	if o.keepOriginals {
		path, err := o.backupFile(track)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "organize", "backup", "backup failed, aborting before mutation", err)
		}
		backupPath = path
	}

	revertBackup := func() {
		if backupPath != "" {
			_ = os.Remove(backupPath)
		}
	}

	// Step 3: rewrite tags in place.
	tagsWritten := false
	if tags.CanWrite(source) {
		meta := tags.Metadata{
			Title:       track.Title,
			Artist:      track.Artist,
			Album:       track.Album,
			AlbumArtist: track.AlbumArtist,
			Genre:       track.Genre,
			Year:        track.Year,
			TrackNumber: track.TrackNumber,
			TotalTracks: track.TotalTracks,
			DiscNumber:  track.DiscNumber,
			TotalDiscs:  track.TotalDiscs,
		}
		if err := tags.Write(source, meta, coverArt); err != nil {
			o.revertTagWrite(source, backupPath)
			revertBackup()
			return nil, services.Wrap(services.ErrExternalTool, "organize", "write tags", "tag rewrite failed", err)
		}
		tagsWritten = true
	} else {
		logger.Debug("format is read-only for tags, moving without rewrite",
			logging.String(logging.FieldTrackPath, source))
		if operation == store.OpMoveWithTags {
			operation = store.OpMove
		}
	}

	// Step 4: move into the library.
	if dest != source {
		if err := safeMove(source, dest); err != nil {
			if tagsWritten {
				o.revertTagWrite(source, backupPath)
			}
			revertBackup()
			return nil, services.Wrap(services.ErrValidation, "organize", "move", "move failed, original left in place", err)
		}
	}

	// Step 5: ledger append. A failed append undoes the move and tag write
	// so the mutation never exists outside the ledger.
	record := &store.MoveRecord{
		BatchID:      track.BatchID,
		TrackID:      track.ID,
		OriginalPath: source,
		BackupPath:   backupPath,
		CurrentPath:  dest,
		Operation:    operation,
	}
	if err := o.ledger.AppendMove(ctx, record); err != nil {
		if dest != source {
			_ = safeMove(dest, source)
		}
		if tagsWritten {
			o.revertTagWrite(source, backupPath)
		}
		revertBackup()
		return nil, fmt.Errorf("append move record: %w", err)
	}

	track.DestPath = dest
	o.cleanupSourceDirs(filepath.Dir(source))
	logger.Info("organized",
		logging.String(logging.FieldTrackPath, source),
		logging.String("dest", dest),
		logging.String("operation", string(operation)))
	return record, nil
}

// MoveUnmatched relocates an unmatched track into the unmatched folder,
// preserving its filename.
func (o *Organizer) MoveUnmatched(ctx context.Context, track *store.Track) (*store.MoveRecord, error) {
	source := track.SourcePath
	dest := o.UnmatchedDestination(track)

	if o.dryRun {
		record := &store.MoveRecord{
			BatchID:      track.BatchID,
			TrackID:      track.ID,
			OriginalPath: source,
			CurrentPath:  dest,
			Operation:    store.OpMove,
			DryRun:       true,
		}
		if err := o.ledger.AppendMove(ctx, record); err != nil {
			return nil, err
		}
		track.DestPath = dest
		return record, nil
	}

	dest = uniquePath(dest, fileExists)

	backupPath := ""
	if o.keepOriginals {
		path, err := o.backupFile(track)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "organize", "backup", "backup failed, aborting before mutation", err)
		}
		backupPath = path
	}

	if err := safeMove(source, dest); err != nil {
		if backupPath != "" {
			_ = os.Remove(backupPath)
		}
		return nil, services.Wrap(services.ErrValidation, "organize", "move unmatched", "move failed, original left in place", err)
	}

	record := &store.MoveRecord{
		BatchID:      track.BatchID,
		TrackID:      track.ID,
		OriginalPath: source,
		BackupPath:   backupPath,
		CurrentPath:  dest,
		Operation:    store.OpMove,
	}
	if err := o.ledger.AppendMove(ctx, record); err != nil {
		_ = safeMove(dest, source)
		if backupPath != "" {
			_ = os.Remove(backupPath)
		}
		return nil, fmt.Errorf("append move record: %w", err)
	}

	track.DestPath = dest
	o.cleanupSourceDirs(filepath.Dir(source))
	return record, nil
}

// backupFile copies the original into the backup tree before any mutation.
// The backup mirrors the source path relative to the library root; sources
// outside the library fall back to their filename. Size is re-verified via
// the copy helper's size and hash checks.
func (o *Organizer) backupFile(track *store.Track) (string, error) {
	if strings.TrimSpace(o.backupRoot) == "" {
		return "", errors.New("backup root not configured")
	}

	relative := filepath.Base(track.SourcePath)
	if rel, err := filepath.Rel(o.libraryRoot, track.SourcePath); err == nil && !strings.HasPrefix(rel, "..") {
		relative = rel
	}
	backupPath := filepath.Join(o.backupRoot, relative+".bak")
	backupPath = uniquePath(backupPath, fileExists)

	if err := copyVerified(track.SourcePath, backupPath); err != nil {
		return "", err
	}
	return backupPath, nil
}

// revertTagWrite restores the source file's original bytes from its backup
// after a failed step. Without a backup the (possibly retagged) source is
// left as-is; the caller surfaces the error either way.
func (o *Organizer) revertTagWrite(source, backupPath string) {
	if backupPath == "" || !fileExists(backupPath) {
		return
	}
	if err := copyVerified(backupPath, source); err != nil {
		o.logger.Warn("failed to restore original bytes after error",
			logging.String(logging.FieldTrackPath, source),
			logging.Error(err))
	}
}
