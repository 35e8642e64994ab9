// Package protocol implements the ICE/SOURCE handshake spoken to streaming
// servers. Requests are CRLF-terminated header lines encoded as Shift_JIS;
// the server answers with a single status line.
package protocol
