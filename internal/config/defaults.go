package config

import "runtime"

const (
	defaultLibraryRoot     = "~/Music/Library"
	defaultDataDir         = "~/.local/share/tagflow"
	defaultLogDir          = "~/.local/share/tagflow/logs"
	defaultFolderTemplate  = "{artist}/{album} ({year})"
	defaultFileTemplate    = "{track:02d} - {title}"
	defaultSinglesFolder   = "Singles"
	defaultUnmatchedFolder = "_Unmatched"

	defaultAutoApplyThreshold       = 90
	defaultReviewThreshold          = 70
	defaultAlbumSimilarityThreshold = 80

	defaultSkipShortDurationSeconds = 10

	defaultAcoustIDBaseURL    = "https://api.acoustid.org/v2"
	defaultMusicBrainzBaseURL = "https://musicbrainz.org/ws/2"
	defaultMusicBrainzContact = "https://github.com/tagflow/tagflow"
	defaultCoverArtBaseURL    = "https://coverartarchive.org"
	defaultArchiveBaseURL     = "https://archive.org"
	defaultArchiveCollection  = "dj-screw-discography"

	defaultOracleRateSeconds = 1.0

	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

// DefaultWorkerCount is half the logical cores, minimum 2, so the host stays
// responsive while fpcalc subprocesses run.
func DefaultWorkerCount() int {
	count := (runtime.NumCPU() + 1) / 2
	if count < 2 {
		count = 2
	}
	return count
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryRoot: defaultLibraryRoot,
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
		},
		Organizer: Organizer{
			FolderTemplate:  defaultFolderTemplate,
			FileTemplate:    defaultFileTemplate,
			SinglesFolder:   defaultSinglesFolder,
			UnmatchedFolder: defaultUnmatchedFolder,
			KeepOriginals:   true,
		},
		Matching: Matching{
			AutoApplyThreshold:       defaultAutoApplyThreshold,
			ReviewThreshold:          defaultReviewThreshold,
			AlbumSimilarityThreshold: defaultAlbumSimilarityThreshold,
		},
		Processing: Processing{
			WorkerCount:              DefaultWorkerCount(),
			SkipShortDurationSeconds: defaultSkipShortDurationSeconds,
		},
		AcoustID: AcoustID{
			BaseURL: defaultAcoustIDBaseURL,
		},
		MusicBrainz: MusicBrainz{
			BaseURL: defaultMusicBrainzBaseURL,
			Contact: defaultMusicBrainzContact,
		},
		CoverArt: CoverArt{
			Enabled: true,
			BaseURL: defaultCoverArtBaseURL,
		},
		Archive: Archive{
			Enabled:    true,
			BaseURL:    defaultArchiveBaseURL,
			Collection: defaultArchiveCollection,
		},
		RateLimits: RateLimits{
			AcoustIDSeconds:    defaultOracleRateSeconds,
			MusicBrainzSeconds: defaultOracleRateSeconds,
			ArchiveSeconds:     defaultOracleRateSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
