package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tagflow/internal/config"
	"tagflow/internal/deps"
	"tagflow/internal/fingerprint"
	"tagflow/internal/identify"
	"tagflow/internal/pipeline"
	"tagflow/internal/ratelimit"
	"tagflow/internal/report"
	"tagflow/internal/scanner"
	"tagflow/internal/services/acoustid"
	"tagflow/internal/services/archive"
	"tagflow/internal/services/coverart"
	"tagflow/internal/services/musicbrainz"
	"tagflow/internal/store"
)

func newProcessCommand(configFlag *string) *cobra.Command {
	var (
		dryRun  bool
		batchID string
	)

	cmd := &cobra.Command{
		Use:   "process <root>...",
		Short: "Identify and organize the audio files under the given roots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			if batchID == "" {
				batchID = uuid.NewString()
			}
			return runBatch(cmd.Context(), cfg, batchID, args, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate all mutations and print the plan")
	cmd.Flags().StringVar(&batchID, "batch", "", "Batch id to run or resume (default: new)")
	return cmd
}

func newRetryCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Re-process files from the last unmatched report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			saved, err := report.Load(cfg.Paths.LibraryRoot)
			if err != nil {
				return err
			}
			paths := saved.RetryPaths()
			if len(paths) == 0 {
				fmt.Println("nothing to retry")
				return nil
			}
			return runBatch(cmd.Context(), cfg, uuid.NewString(), paths, false)
		},
	}
}

func runBatch(ctx context.Context, cfg *config.Config, batchID string, roots []string, dryRun bool) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pipe, err := buildPipeline(cfg, db, logger)
	if err != nil {
		return err
	}

	opts := pipeline.OptionsFromConfig(cfg)
	opts.DryRun = dryRun

	pipe.Subscribe(newProgressPrinter())

	// First interrupt cancels the batch cleanly; a second one kills the
	// process.
	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-signalCtx.Done()
		if errors.Is(signalCtx.Err(), context.Canceled) && ctx.Err() == nil {
			pipe.Cancel()
		}
	}()

	summary, err := pipe.RunBatch(ctx, batchID, roots, opts)
	if err != nil {
		return err
	}
	printSummary(summary, dryRun)
	return nil
}

// buildPipeline wires the oracles, limiter, cache, and stages into a
// pipeline using the application config.
func buildPipeline(cfg *config.Config, db *store.Store, logger *slog.Logger) (*pipeline.Pipeline, error) {
	acoustidClient, err := acoustid.New(cfg.AcoustID.APIKey, cfg.AcoustID.BaseURL)
	if err != nil {
		return nil, err
	}
	mbClient, err := musicbrainz.New(cfg.MusicBrainz.BaseURL, cfg.MusicBrainz.Contact, cfg.MusicBrainz.Token)
	if err != nil {
		return nil, err
	}

	var coverArtClient *coverart.Client
	if cfg.CoverArt.Enabled {
		coverArtClient, err = coverart.New(cfg.CoverArt.BaseURL)
		if err != nil {
			return nil, err
		}
	}
	var archiveClient *archive.Client
	if cfg.Archive.Enabled {
		archiveClient, err = archive.New(cfg.Archive.BaseURL, cfg.Archive.Collection)
		if err != nil {
			return nil, err
		}
	}

	limiter := ratelimit.New(map[string]time.Duration{
		identify.ServiceAcoustID:    secondsToDuration(cfg.RateLimits.AcoustIDSeconds),
		identify.ServiceMusicBrainz: secondsToDuration(cfg.RateLimits.MusicBrainzSeconds),
		identify.ServiceArchive:     secondsToDuration(cfg.RateLimits.ArchiveSeconds),
	})

	screw := identify.NewScrewHandler(archiveClient, db, logger)
	detector := identify.NewCompilationDetector(screw)

	var coverArtOracle identify.CoverArtOracle
	var artFetcher pipeline.ArtFetcher
	if coverArtClient != nil {
		coverArtOracle = coverArtClient
		artFetcher = coverArtClient
	}
	var archiveOracle identify.ArchiveOracle
	if archiveClient != nil {
		archiveOracle = archiveClient
	}

	resolver := identify.NewResolver(
		acoustidClient, mbClient, coverArtOracle, archiveOracle,
		screw, limiter, db, logger,
	)

	extractor := fingerprint.NewFpcalc(deps.ResolveFpcalcPath(cfg.FpcalcBinary()))
	stage := fingerprint.NewStage(extractor, logger)
	fileScanner := scanner.New(logger)

	return pipeline.New(db, fileScanner, stage, resolver, detector, artFetcher, logger), nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
