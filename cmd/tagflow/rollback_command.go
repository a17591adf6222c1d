package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tagflow/internal/organizer"
	"tagflow/internal/store"
)

func newRollbackCommand(configFlag *string) *cobra.Command {
	var (
		recordID int64
		trackID  int64
	)

	cmd := &cobra.Command{
		Use:   "rollback [batch-id]",
		Short: "Undo the file operations of a batch, track, or single record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			org := organizer.New(organizer.OptionsFromConfig(cfg, false), db, logger)

			var report organizer.RollbackReport
			switch {
			case recordID > 0:
				report, err = org.RollbackRecord(cmd.Context(), recordID)
			case trackID > 0:
				report, err = org.RollbackTrack(cmd.Context(), trackID)
			case len(args) == 1:
				report, err = org.RollbackBatch(cmd.Context(), args[0])
			default:
				return errors.New("pass a batch id, --record, or --track")
			}
			if err != nil {
				return err
			}

			fmt.Printf("reversed %s, broken %s, skipped %s\n",
				strconv.Itoa(report.Reversed),
				strconv.Itoa(report.Broken),
				strconv.Itoa(report.Skipped))
			if report.Broken > 0 {
				return errors.New("some records could not be reversed; see the log for details")
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&recordID, "record", 0, "Rollback a single ledger record id")
	cmd.Flags().Int64Var(&trackID, "track", 0, "Rollback every record of a track id")
	return cmd
}
