package http2

import (
	"errors"
	"fmt"
)

// ErrorCode is the 32-bit error code carried by RST_STREAM and GOAWAY
// frames.
//
// https://tools.ietf.org/html/rfc7540#section-7
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	StreamCanceled       ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectError         ErrorCode = 0xa
	EnhanceYourCalm      ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11RequiredError  ErrorCode = 0xd
)

func (e ErrorCode) String() string {
	switch e {
	case NoError:
		return "NO_ERROR"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case InternalError:
		return "INTERNAL_ERROR"
	case FlowControlError:
		return "FLOW_CONTROL_ERROR"
	case SettingsTimeoutError:
		return "SETTINGS_TIMEOUT"
	case StreamClosedError:
		return "STREAM_CLOSED"
	case FrameSizeError:
		return "FRAME_SIZE_ERROR"
	case RefusedStreamError:
		return "REFUSED_STREAM"
	case StreamCanceled:
		return "CANCEL"
	case CompressionError:
		return "COMPRESSION_ERROR"
	case ConnectError:
		return "CONNECT_ERROR"
	case EnhanceYourCalm:
		return "ENHANCE_YOUR_CALM"
	case InadequateSecurity:
		return "INADEQUATE_SECURITY"
	case HTTP11RequiredError:
		return "HTTP_1_1_REQUIRED"
	}

	return fmt.Sprintf("ErrorCode(%d)", uint32(e))
}

// Error is the error type raised by stream and connection handling code to
// signal that the peer must be told about a protocol violation. Its
// frameType says whether the caller should respond with GOAWAY (connection
// fatal) or RST_STREAM (stream-scoped); see writeError in serverConn.go.
type Error struct {
	frameType FrameType
	code      ErrorCode
	msg       string
}

func (e Error) Error() string {
	if e.msg == "" {
		return e.code.String()
	}

	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// Code returns the error code to be sent to the peer.
func (e Error) Code() ErrorCode {
	return e.code
}

// NewError creates a generic stream-scoped Error wrapping code and msg.
func NewError(code ErrorCode, msg string) error {
	return Error{frameType: FrameResetStream, code: code, msg: msg}
}

// NewGoAwayError creates an Error that, once handled by writeError, closes
// the whole connection with a GOAWAY frame.
func NewGoAwayError(code ErrorCode, msg string) error {
	return Error{frameType: FrameGoAway, code: code, msg: msg}
}

// NewResetStreamError creates an Error that, once handled by writeError,
// resets only the offending stream.
func NewResetStreamError(code ErrorCode, msg string) error {
	return Error{frameType: FrameResetStream, code: code, msg: msg}
}

var (
	// ErrMissingBytes is returned when a frame's payload is shorter than the
	// minimum size its type requires.
	ErrMissingBytes = errors.New("http2: missing payload bytes")
	// ErrPayloadExceeds is returned when a frame's length exceeds the
	// negotiated maximum frame size.
	ErrPayloadExceeds = errors.New("http2: payload exceeds the maximum frame size")
	// ErrUnexpectedSize is returned by the HPACK decoder when a header block
	// ends mid-field; the caller buffers the fragment and waits for a
	// CONTINUATION frame to complete it.
	ErrUnexpectedSize = errors.New("http2: header block ended on an incomplete field")
	// ErrUnknownFrameType is returned when a frame header carries a type
	// byte outside the range this engine understands.
	ErrUnknownFrameType = errors.New("http2: unknown frame type")
	// ErrBadPreface is returned when the connection preface read from the
	// client doesn't match the expected HTTP/2 magic string.
	ErrBadPreface = errors.New("http2: bad preface")
	// ErrFrameLengthOverflow is returned by EncodeFrameHeader when asked to
	// encode a length that won't fit the wire's 24-bit field.
	ErrFrameLengthOverflow = errors.New("http2: frame length exceeds 2^24-1")
	// ErrStreamIDOverflow is returned by EncodeFrameHeader when asked to
	// encode a stream id that won't fit the wire's 31-bit field.
	ErrStreamIDOverflow = errors.New("http2: stream id exceeds 2^31-1")
)
