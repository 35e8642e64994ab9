// Package events publishes broadcaster state, events and loudness to an MQTT
// broker so dashboards and automations can follow the broadcast.
package events
