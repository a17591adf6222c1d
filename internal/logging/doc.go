// Package logging builds the slog loggers used across tagflow and provides
// typed attribute helpers so call sites stay terse and consistent.
package logging
