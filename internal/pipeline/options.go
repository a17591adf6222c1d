package pipeline

import (
	"tagflow/internal/config"
	"tagflow/internal/identify"
	"tagflow/internal/organizer"
)

// Options is the per-batch configuration record.
type Options struct {
	DryRun                   bool
	AutoApplyThreshold       float64
	ReviewThreshold          float64
	AlbumSimilarityThreshold float64
	WorkerCount              int
	KeepOriginals            bool
	LibraryRoot              string
	BackupRoot               string
	FolderTemplate           string
	FileTemplate             string
	SinglesFolder            string
	UnmatchedFolder          string
	SkipShortDurationSeconds float64
	MoveUnmatched            bool
}

// OptionsFromConfig derives batch options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AutoApplyThreshold:       cfg.Matching.AutoApplyThreshold,
		ReviewThreshold:          cfg.Matching.ReviewThreshold,
		AlbumSimilarityThreshold: cfg.Matching.AlbumSimilarityThreshold,
		WorkerCount:              cfg.Processing.WorkerCount,
		KeepOriginals:            cfg.Organizer.KeepOriginals,
		LibraryRoot:              cfg.Paths.LibraryRoot,
		BackupRoot:               cfg.Paths.BackupRoot,
		FolderTemplate:           cfg.Organizer.FolderTemplate,
		FileTemplate:             cfg.Organizer.FileTemplate,
		SinglesFolder:            cfg.Organizer.SinglesFolder,
		UnmatchedFolder:          cfg.Organizer.UnmatchedFolder,
		SkipShortDurationSeconds: cfg.Processing.SkipShortDurationSeconds,
		MoveUnmatched:            cfg.Organizer.MoveUnmatched,
	}
}

func (o *Options) applyDefaults() {
	if o.AutoApplyThreshold <= 0 {
		o.AutoApplyThreshold = 90
	}
	if o.ReviewThreshold <= 0 {
		o.ReviewThreshold = 70
	}
	if o.AlbumSimilarityThreshold <= 0 {
		o.AlbumSimilarityThreshold = 80
	}
	if o.WorkerCount <= 0 {
		o.WorkerCount = config.DefaultWorkerCount()
	}
	if o.SkipShortDurationSeconds < 0 {
		o.SkipShortDurationSeconds = 10
	}
}

func (o Options) thresholds() identify.Thresholds {
	return identify.Thresholds{AutoApply: o.AutoApplyThreshold, Review: o.ReviewThreshold}
}

func (o Options) organizerOptions() organizer.Options {
	return organizer.Options{
		LibraryRoot:     o.LibraryRoot,
		BackupRoot:      o.BackupRoot,
		KeepOriginals:   o.KeepOriginals,
		FolderTemplate:  o.FolderTemplate,
		FileTemplate:    o.FileTemplate,
		SinglesFolder:   o.SinglesFolder,
		UnmatchedFolder: o.UnmatchedFolder,
		DryRun:          o.DryRun,
	}
}
