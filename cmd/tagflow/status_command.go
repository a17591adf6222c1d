package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"tagflow/internal/store"
)

func newStatusCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show the per-track state of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			tracks, err := db.TracksForBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			writer := table.NewWriter()
			writer.SetOutputMirror(os.Stdout)
			writer.AppendHeader(table.Row{"ID", "Status", "Confidence", "Source", "Destination / Error"})
			for _, track := range tracks {
				detail := track.DestPath
				if track.ErrorMessage != "" {
					detail = track.ErrorMessage
				}
				writer.AppendRow(table.Row{
					track.ID,
					string(track.Status),
					int(track.Confidence),
					track.SourcePath,
					detail,
				})
			}
			writer.Render()
			return nil
		},
	}
}
