package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/japanese"
)

// Server status lines
const (
	ResponseOK                     = "HTTP/1.0 200 OK"
	ResponseAuthRequired           = "HTTP/1.0 401 Authentication Required"
	ResponseMountpointInUse        = "HTTP/1.0 403 Mountpoint in use"
	ResponseMountpointTooLong      = "HTTP/1.0 403 Mountpoint too long"
	ResponseContentTypeUnsupported = "HTTP/1.0 403 Content-type not supported"
	ResponseTooManySources         = "HTTP/1.0 403 too many sources connected"
)

// ResponseCode classifies a server status line.
type ResponseCode int

const (
	CodeOK ResponseCode = iota
	CodeAuthRequired
	CodeMountpointInUse
	CodeMountpointTooLong
	CodeContentTypeNotSupported
	CodeTooManySources
	CodeUnknown
)

var codeNames = map[ResponseCode]string{
	CodeOK:                      "ok",
	CodeAuthRequired:            "auth_required",
	CodeMountpointInUse:         "mountpoint_in_use",
	CodeMountpointTooLong:       "mountpoint_too_long",
	CodeContentTypeNotSupported: "content_type_not_supported",
	CodeTooManySources:          "too_many_sources",
	CodeUnknown:                 "unknown_response",
}

func (c ResponseCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

var responseCodes = map[string]ResponseCode{
	ResponseOK:                     CodeOK,
	ResponseAuthRequired:           CodeAuthRequired,
	ResponseMountpointInUse:        CodeMountpointInUse,
	ResponseMountpointTooLong:      CodeMountpointTooLong,
	ResponseContentTypeUnsupported: CodeContentTypeNotSupported,
	ResponseTooManySources:         CodeTooManySources,
}

// ErrNoResponse is returned when the status line could not be read.
var ErrNoResponse = errors.New("no response received")

// Sentinels matched by errors.Is against a *ResponseError.
var (
	ErrAuthRequired            = &ResponseError{Code: CodeAuthRequired}
	ErrMountpointInUse         = &ResponseError{Code: CodeMountpointInUse}
	ErrMountpointTooLong       = &ResponseError{Code: CodeMountpointTooLong}
	ErrContentTypeNotSupported = &ResponseError{Code: CodeContentTypeNotSupported}
	ErrTooManySources          = &ResponseError{Code: CodeTooManySources}
	ErrUnknownResponse         = &ResponseError{Code: CodeUnknown}
)

// ResponseError is a rejected handshake.
type ResponseError struct {
	Code ResponseCode
	Line string
}

func (e *ResponseError) Error() string {
	if e.Line == "" {
		return "server rejected source: " + e.Code.String()
	}
	return fmt.Sprintf("server rejected source: %s (%q)", e.Code, e.Line)
}

// Is matches any ResponseError with the same code
func (e *ResponseError) Is(target error) bool {
	t, ok := target.(*ResponseError)
	return ok && t.Code == e.Code
}

// ParseResponse maps a status line to nil on success or a *ResponseError
func ParseResponse(line string) error {
	code, ok := responseCodes[line]
	if !ok {
		return &ResponseError{Code: CodeUnknown, Line: line}
	}
	if code == CodeOK {
		return nil
	}
	return &ResponseError{Code: code, Line: line}
}

// ReadResponse reads one status line and parses it. A read failure wraps
// ErrNoResponse.
func ReadResponse(r *bufio.Reader) error {
	raw, err := r.ReadString('\n')
	if err != nil && raw == "" {
		return fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	line := strings.TrimRight(raw, "\r\n")
	if decoded, derr := japanese.ShiftJIS.NewDecoder().String(line); derr == nil {
		line = decoded
	}
	return ParseResponse(line)
}
