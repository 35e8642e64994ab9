package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
)

// Protocol constants
const (
	LineTerminator = "\r\n"
	ContentType    = "audio/mpeg"

	// Authorization is the fixed credential "source:ladio".
	Authorization = "Basic c291cmNlOmxhZGlv"

	// Charset advertised in x-ladio-info; must match the request encoding.
	Charset = "sjis"
)

// SourceRequest holds the values sent in the handshake header.
type SourceRequest struct {
	Mount       string
	UserAgent   string
	Name        string
	Genre       string
	Description string
	URL         string
	DJ          string
	Bitrate     int // kbps
	SampleRate  int
	Channels    int
}

// String renders the request in header order, ending with the blank line
func (r *SourceRequest) String() string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString(LineTerminator)
	}

	bitrate := strconv.Itoa(r.Bitrate)
	line("SOURCE " + r.Mount + " ICE/1.0")
	line("Content-Type: " + ContentType)
	line("User-Agent: " + r.UserAgent)
	line("Authorization: " + Authorization)
	line("ice-name: " + r.Name)
	line("ice-genre: " + r.Genre)
	line("ice-description: " + r.Description)
	line("ice-url: " + r.URL)
	line("ice-bitrate: " + bitrate)
	line("ice-public: 0")
	line(fmt.Sprintf("ice-audio-info:ice-samplerate=%d;ice-bitrate=%s;ice-channels=%d",
		r.SampleRate, bitrate, r.Channels))
	line("x-ladio-info:charset=" + Charset + ";dj=" + r.DJ)
	line("")
	return b.String()
}

// Encode returns the request as Shift_JIS bytes. Characters with no Shift_JIS
// form are replaced.
func (r *SourceRequest) Encode() ([]byte, error) {
	enc := encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder())
	out, err := enc.Bytes([]byte(r.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request as Shift_JIS: %w", err)
	}
	return out, nil
}

// WriteSourceRequest encodes r and writes it to w
func WriteSourceRequest(w io.Writer, r *SourceRequest) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to send request header: %w", err)
	}
	return nil
}
