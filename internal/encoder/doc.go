// Package encoder wraps the MP3 compressor used by the encode stage.
package encoder
