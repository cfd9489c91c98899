// Package llm wraps the OpenRouter chat completion API used for lyric and
// style prompt generation.
//
// The client retries transient failures (timeouts, 429s, 5xx, empty
// completions) with exponential backoff and honors Retry-After headers.
// Callers receive the raw completion text; prompt construction belongs to the
// pipeline stages.
package llm
