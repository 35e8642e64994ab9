// Package directory resolves the streaming server a broadcast connects to.
// Server lists come from an HTTP directory, a static configuration list or
// multicast DNS browsing on the local network.
package directory
