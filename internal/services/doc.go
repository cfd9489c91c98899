// Package services defines shared utilities consumed by the pipeline stage
// processors and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so stage failures classify
//     consistently into retryable and terminal outcomes.
package services
