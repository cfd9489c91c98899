// Package logging builds the slog loggers used across the daemon and CLI and
// defines the standardized structured field keys shared by every component.
package logging
