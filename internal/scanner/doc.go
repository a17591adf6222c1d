// Package scanner discovers audio files under the user-provided roots,
// reads their embedded tags, and guesses missing tags from filename and
// folder conventions.
package scanner
