package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryRoot string `toml:"library_root"`
	BackupRoot  string `toml:"backup_root"`
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
}

// Organizer contains configuration for the library layout.
type Organizer struct {
	FolderTemplate  string `toml:"folder_template"`
	FileTemplate    string `toml:"file_template"`
	SinglesFolder   string `toml:"singles_folder"`
	UnmatchedFolder string `toml:"unmatched_folder"`
	KeepOriginals   bool   `toml:"keep_originals"`
	MoveUnmatched   bool   `toml:"move_unmatched"`
}

// Matching contains confidence thresholds.
type Matching struct {
	AutoApplyThreshold       float64 `toml:"auto_apply_threshold"`
	ReviewThreshold          float64 `toml:"review_threshold"`
	AlbumSimilarityThreshold float64 `toml:"album_similarity_threshold"`
}

// Processing contains batch processing knobs.
type Processing struct {
	WorkerCount              int     `toml:"worker_count"`
	SkipShortDurationSeconds float64 `toml:"skip_short_duration_seconds"`
}

// AcoustID contains configuration for the fingerprint oracle.
type AcoustID struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// MusicBrainz contains configuration for the metadata oracle.
type MusicBrainz struct {
	BaseURL string `toml:"base_url"`
	Contact string `toml:"contact"`
	Token   string `toml:"token"`
}

// CoverArt contains configuration for the cover art oracle.
type CoverArt struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

// Archive contains configuration for the Internet Archive oracle.
type Archive struct {
	Enabled    bool   `toml:"enabled"`
	BaseURL    string `toml:"base_url"`
	Collection string `toml:"collection"`
}

// RateLimits contains per-service pacing intervals in seconds.
type RateLimits struct {
	AcoustIDSeconds    float64 `toml:"acoustid_seconds"`
	MusicBrainzSeconds float64 `toml:"musicbrainz_seconds"`
	ArchiveSeconds     float64 `toml:"archive_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tagflow.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Organizer   Organizer   `toml:"organizer"`
	Matching    Matching    `toml:"matching"`
	Processing  Processing  `toml:"processing"`
	AcoustID    AcoustID    `toml:"acoustid"`
	MusicBrainz MusicBrainz `toml:"musicbrainz"`
	CoverArt    CoverArt    `toml:"coverart"`
	Archive     Archive     `toml:"archive"`
	RateLimits  RateLimits  `toml:"rate_limits"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tagflow/config.toml")
}

// Load locates, parses, and validates a configuration file. Unknown keys are
// rejected. Credentials may be supplied through the environment (optionally
// via a .env file next to the working directory).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnvironment()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnvironment() {
	if key := strings.TrimSpace(os.Getenv("ACOUSTID_API_KEY")); key != "" {
		c.AcoustID.APIKey = key
	}
	if token := strings.TrimSpace(os.Getenv("MUSICBRAINZ_TOKEN")); token != "" {
		c.MusicBrainz.Token = token
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("tagflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.LibraryRoot,
		&c.Paths.BackupRoot,
		&c.Paths.DataDir,
		&c.Paths.LogDir,
	} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	if strings.TrimSpace(c.Paths.BackupRoot) == "" && strings.TrimSpace(c.Paths.LibraryRoot) != "" {
		c.Paths.BackupRoot = filepath.Join(c.Paths.LibraryRoot, "_Backups")
	}
	return nil
}

// EnsureDirectories creates the directories tagflow needs to run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryRoot) != "" {
		// Best-effort so config load survives offline external storage.
		_ = os.MkdirAll(c.Paths.LibraryRoot, 0o755)
	}
	return nil
}

// DatabasePath returns the location of the embedded database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "tagflow.db")
}

// FpcalcBinary returns the Chromaprint executable name.
func (c *Config) FpcalcBinary() string {
	return "fpcalc"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
