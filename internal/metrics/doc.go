// Package metrics exposes broadcaster counters and lifecycle events as
// Prometheus collectors.
package metrics
