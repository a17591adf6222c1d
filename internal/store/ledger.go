package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const ledgerColumns = "id, batch_id, track_id, original_path, backup_path, current_path, operation, reversal, dry_run, created_at"

// AppendMove records a file operation in the ledger. Appends are serialized
// and ids are monotonically ordered within a batch.
func (s *Store) AppendMove(ctx context.Context, record *MoveRecord) error {
	if record == nil {
		return errors.New("move record is nil")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record.CreatedAt = time.Now().UTC()
	if record.Reversal == "" {
		record.Reversal = ReversalReversible
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO move_ledger (
            batch_id, track_id, original_path, backup_path, current_path,
            operation, reversal, dry_run, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.BatchID,
		record.TrackID,
		record.OriginalPath,
		nullableString(record.BackupPath),
		record.CurrentPath,
		string(record.Operation),
		string(record.Reversal),
		boolToInt(record.DryRun),
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append move record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("move record id: %w", err)
	}
	record.ID = id
	return nil
}

// SetReversal updates the reversal state of a ledger record.
func (s *Store) SetReversal(ctx context.Context, id int64, state ReversalState) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE move_ledger SET reversal = ? WHERE id = ?`,
		string(state),
		id,
	)
	if err != nil {
		return fmt.Errorf("update reversal state: %w", err)
	}
	return nil
}

// MovesForBatch returns the batch's ledger records in descending id order,
// which is the order rollback must process them in.
func (s *Store) MovesForBatch(ctx context.Context, batchID string) ([]*MoveRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+ledgerColumns+` FROM move_ledger WHERE batch_id = ? ORDER BY id DESC`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query move ledger: %w", err)
	}
	defer rows.Close()

	var records []*MoveRecord
	for rows.Next() {
		record, err := scanMoveRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MovesForTrack returns ledger records for a single track, newest first.
func (s *Store) MovesForTrack(ctx context.Context, trackID int64) ([]*MoveRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+ledgerColumns+` FROM move_ledger WHERE track_id = ? ORDER BY id DESC`,
		trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("query track moves: %w", err)
	}
	defer rows.Close()

	var records []*MoveRecord
	for rows.Next() {
		record, err := scanMoveRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetMove fetches a single ledger record by id.
func (s *Store) GetMove(ctx context.Context, id int64) (*MoveRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM move_ledger WHERE id = ?`, id)
	record, err := scanMoveRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get move record: %w", err)
	}
	return record, nil
}

// PurgeDryRunMoves removes speculative dry-run records for a batch. Dry-run
// ledger entries never survive the batch that produced them.
func (s *Store) PurgeDryRunMoves(ctx context.Context, batchID string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM move_ledger WHERE batch_id = ? AND dry_run = 1`,
		batchID,
	)
	if err != nil {
		return 0, fmt.Errorf("purge dry-run moves: %w", err)
	}
	return res.RowsAffected()
}

func scanMoveRecord(scanner interface{ Scan(dest ...any) error }) (*MoveRecord, error) {
	var (
		id           int64
		batchID      string
		trackID      sql.NullInt64
		originalPath string
		backupPath   sql.NullString
		currentPath  string
		operation    string
		reversal     string
		dryRun       sql.NullInt64
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&batchID,
		&trackID,
		&originalPath,
		&backupPath,
		&currentPath,
		&operation,
		&reversal,
		&dryRun,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	record := &MoveRecord{
		ID:           id,
		BatchID:      batchID,
		TrackID:      trackID.Int64,
		OriginalPath: originalPath,
		BackupPath:   backupPath.String,
		CurrentPath:  currentPath,
		Operation:    OperationKind(operation),
		Reversal:     ReversalState(reversal),
		DryRun:       dryRun.Int64 != 0,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}
