// Package suno submits asynchronous track generation tasks to the Suno API
// gateway. Submission returns a task id; completion arrives out-of-band on
// the daemon's callback endpoint with either a playable audio URL or an error
// description.
package suno
