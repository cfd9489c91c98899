// Package store persists leads, conversations, generation requests, and
// sequence definitions in a local SQLite database.
//
// Every record that moves through the pipeline carries a status column, and
// all status changes go through conditional updates so that concurrent stage
// processors can never double-claim a record. Lead documents additionally
// carry a revision counter that guards read-modify-write updates to their
// embedded JSON lists (tags, active sequences, lyric history).
package store
