package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable. Invalid configuration fails
// fast at batch start; no mutations are performed.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateOracles(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LibraryRoot) == "" {
		return errors.New("paths.library_root must be set")
	}
	if !LibraryRootIsSafe(c.Paths.LibraryRoot) {
		return fmt.Errorf("paths.library_root %q is too close to the filesystem root; refusing to organize into it", c.Paths.LibraryRoot)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.AutoApplyThreshold < 0 || c.Matching.AutoApplyThreshold > 100 {
		return errors.New("matching.auto_apply_threshold must be between 0 and 100")
	}
	if c.Matching.ReviewThreshold < 0 || c.Matching.ReviewThreshold > 100 {
		return errors.New("matching.review_threshold must be between 0 and 100")
	}
	if c.Matching.ReviewThreshold > c.Matching.AutoApplyThreshold {
		return errors.New("matching.review_threshold must not exceed matching.auto_apply_threshold")
	}
	if c.Matching.AlbumSimilarityThreshold < 0 || c.Matching.AlbumSimilarityThreshold > 100 {
		return errors.New("matching.album_similarity_threshold must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.WorkerCount <= 0 {
		return errors.New("processing.worker_count must be positive")
	}
	if c.Processing.SkipShortDurationSeconds < 0 {
		return errors.New("processing.skip_short_duration_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateOracles() error {
	if strings.TrimSpace(c.AcoustID.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/tagflow/config.toml"
		}
		return fmt.Errorf("acoustid.api_key is required. Set ACOUSTID_API_KEY env var or edit %s (create with 'tagflow config init')", defaultPath)
	}
	if strings.TrimSpace(c.MusicBrainz.BaseURL) == "" {
		return errors.New("musicbrainz.base_url must be set")
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.BaseURL) == "" {
		return errors.New("archive.base_url must be set when archive.enabled is true")
	}
	return nil
}

// LibraryRootIsSafe reports whether the library root sits at least two
// levels below the filesystem root. Blocks targets like "/", "/usr", or a
// bare drive so cleanup and moves can never touch system directories.
func LibraryRootIsSafe(root string) bool {
	cleaned := filepath.Clean(strings.TrimSpace(root))
	if cleaned == "" || cleaned == "." {
		return false
	}
	cleaned = strings.TrimPrefix(cleaned, filepath.VolumeName(cleaned))
	parts := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	return len(parts) >= 2
}
