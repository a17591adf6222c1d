package organizer

import (
	"context"
	"fmt"
	"path/filepath"

	"tagflow/internal/logging"
	"tagflow/internal/store"
)

// RollbackReport summarizes a rollback run.
type RollbackReport struct {
	Reversed int
	Broken   int
	Skipped  int
}

// RollbackBatch reverses every reversible record of a batch in descending
// ledger order, restoring each file to its original path (from its current
// path, or from backup when the chain is broken mid-way). Broken records are
// marked and reported; the run continues past them.
func (o *Organizer) RollbackBatch(ctx context.Context, batchID string) (RollbackReport, error) {
	records, err := o.ledger.MovesForBatch(ctx, batchID)
	if err != nil {
		return RollbackReport{}, err
	}
	return o.rollbackRecords(ctx, records)
}

// RollbackTrack reverses the ledger records of a single track.
func (o *Organizer) RollbackTrack(ctx context.Context, trackID int64) (RollbackReport, error) {
	records, err := o.ledger.MovesForTrack(ctx, trackID)
	if err != nil {
		return RollbackReport{}, err
	}
	return o.rollbackRecords(ctx, records)
}

// RollbackRecord reverses a single ledger record by id.
func (o *Organizer) RollbackRecord(ctx context.Context, recordID int64) (RollbackReport, error) {
	record, err := o.ledger.GetMove(ctx, recordID)
	if err != nil {
		return RollbackReport{}, err
	}
	if record == nil {
		return RollbackReport{}, fmt.Errorf("move record %d not found", recordID)
	}
	return o.rollbackRecords(ctx, []*store.MoveRecord{record})
}

func (o *Organizer) rollbackRecords(ctx context.Context, records []*store.MoveRecord) (RollbackReport, error) {
	report := RollbackReport{}
	for _, record := range records {
		if record.DryRun || record.Reversal != store.ReversalReversible {
			report.Skipped++
			continue
		}

		restored := o.restoreOriginal(record)
		if !restored {
			report.Broken++
			if err := o.ledger.SetReversal(ctx, record.ID, store.ReversalBroken); err != nil {
				return report, err
			}
			continue
		}

		report.Reversed++
		if err := o.ledger.SetReversal(ctx, record.ID, store.ReversalReversed); err != nil {
			return report, err
		}
		if record.CurrentPath != record.OriginalPath {
			o.CleanupEmptyDirs(filepath.Dir(record.CurrentPath))
		}
	}
	return report, nil
}

// restoreOriginal puts the file back at its original path: first by moving
// it from its current location, then by restoring the pre-mutation backup
// over it so the original tag bytes return too. When the current file is
// gone, the backup alone restores it.
func (o *Organizer) restoreOriginal(record *store.MoveRecord) bool {
	logger := o.logger

	moved := false
	if record.CurrentPath != record.OriginalPath && fileExists(record.CurrentPath) {
		if err := safeMove(record.CurrentPath, record.OriginalPath); err != nil {
			logger.Warn("rollback move failed",
				logging.String("current", record.CurrentPath),
				logging.String("original", record.OriginalPath),
				logging.Error(err))
			return false
		}
		moved = true
	}

	if record.BackupPath != "" && fileExists(record.BackupPath) {
		if err := copyVerified(record.BackupPath, record.OriginalPath); err != nil {
			logger.Warn("backup restore failed",
				logging.String("backup", record.BackupPath),
				logging.Error(err))
			// The move back still counts when the backup copy fails; the
			// file exists at its original path with rewritten tags.
			return moved || fileExists(record.OriginalPath)
		}
		return true
	}

	if moved {
		return true
	}
	if record.CurrentPath == record.OriginalPath && fileExists(record.OriginalPath) {
		// Tag-only record without a backup: nothing to restore from.
		return false
	}
	if fileExists(record.OriginalPath) {
		return true
	}
	logger.Warn("rollback chain broken",
		logging.String("current", record.CurrentPath),
		logging.String("backup", record.BackupPath))
	return false
}
