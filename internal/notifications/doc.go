// Package notifications pushes operator alerts through ntfy. Stage failures
// and deliveries produce notifications when a topic is configured; with no
// topic the service degrades to a noop so pipeline code never branches on
// notification availability.
package notifications
