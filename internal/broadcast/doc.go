// Package broadcast runs a live broadcast session: microphone capture, MP3
// encoding and the network leg to a streaming server, joined by two ring
// buffers and governed by a four-state lifecycle.
//
// A Broadcaster is the single owner of a session. Observers registered on its
// Notifier receive lifecycle and error events, state changes and loudness
// samples.
package broadcast
