// Package textutil provides text normalization helpers for song titles and
// storage object names: title casing, diacritic folding, and filesystem-safe
// tokens.
package textutil
