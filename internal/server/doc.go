// Package server implements the HTTP control and monitoring API of the
// broadcaster. Besides start, stop and volume control it serves Prometheus
// metrics and a WebSocket feed of broadcast events.
package server
