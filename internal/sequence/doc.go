// Package sequence implements the drip-message engine: named sequences of
// delayed messages attached to leads by trigger events and advanced by a
// periodic processor. Step delays are measured from the instance start, so a
// backlog of overdue steps drains in order within a single tick.
package sequence
