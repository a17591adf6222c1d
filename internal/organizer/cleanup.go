package organizer

import (
	"os"
	"path/filepath"
	"strings"

	"tagflow/internal/logging"
)

// junkFilenames are system droppings that never block directory removal.
// Cover art files (folder.jpg, albumart.jpg) are NOT junk: users and media
// players place them deliberately.
var junkFilenames = map[string]struct{}{
	"thumbs.db": {}, "desktop.ini": {}, ".ds_store": {}, ".thumbs": {},
}

// CleanupEmptyDirs removes empty directories starting at dir and walking up,
// never ascending outside the library root and never deleting the root
// itself. Junk files are deleted so rmdir can succeed; any real file stops
// the walk.
func (o *Organizer) CleanupEmptyDirs(dir string) {
	rootResolved, err := filepath.EvalSymlinks(o.libraryRoot)
	if err != nil {
		return
	}
	current, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return
	}

	// Refuse to touch anything that is not a strict descendant of the
	// library root.
	if !isStrictDescendant(rootResolved, current) {
		o.logger.Debug("skipping cleanup outside library",
			logging.String("dir", current))
		return
	}

	for current != rootResolved {
		if parent := filepath.Dir(current); parent == current {
			break
		}
		if !o.dirIsEffectivelyEmpty(current) {
			break
		}
		if err := os.Remove(current); err != nil {
			break
		}
		o.logger.Debug("removed empty directory", logging.String("dir", current))
		current = filepath.Dir(current)
		if !isStrictDescendant(rootResolved, current) {
			break
		}
	}
}

// cleanupSourceDirs cleans up behind a moved file when the source lived
// inside the library; foreign source trees are never touched.
func (o *Organizer) cleanupSourceDirs(dir string) {
	o.CleanupEmptyDirs(dir)
}

// dirIsEffectivelyEmpty reports whether the directory contains only junk
// files, deleting the junk on the way.
func (o *Organizer) dirIsEffectivelyEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	var junk []string
	for _, entry := range entries {
		if entry.IsDir() {
			return false
		}
		if _, isJunk := junkFilenames[strings.ToLower(entry.Name())]; !isJunk {
			return false
		}
		junk = append(junk, filepath.Join(dir, entry.Name()))
	}
	for _, path := range junk {
		if err := os.Remove(path); err != nil {
			return false
		}
	}
	return true
}

func isStrictDescendant(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
