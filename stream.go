package http2

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// StreamState is one of the five request-stream states this engine tracks.
// Push-promise-only states (reserved local/remote) are folded into
// StreamStateReserved since this engine is a server that never pushes.
//
// https://tools.ietf.org/html/rfc7540#section-5.1
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateReserved
	StreamStateOpen
	StreamStateHalfClosed
	StreamStateClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "Idle"
	case StreamStateReserved:
		return "Reserved"
	case StreamStateOpen:
		return "Open"
	case StreamStateHalfClosed:
		return "HalfClosed"
	case StreamStateClosed:
		return "Closed"
	}

	return "IDK"
}

// Stream is the server's bookkeeping for one HTTP/2 stream: its flow-control
// window, state machine position, and the fasthttp.RequestCtx the request is
// assembled into as HEADERS/CONTINUATION/DATA frames arrive.
//
// Streams are pooled; acquire one with NewStream and return it to
// streamPool once closed (see closeStream in serverConn.go).
type Stream struct {
	id    uint32
	state StreamState

	// window is this stream's outbound flow-control window, adjusted by
	// WINDOW_UPDATE frames and by the initial value negotiated in SETTINGS.
	// int64 because a misbehaving peer can push it negative or attempt to
	// overflow it; see handleFrame's FrameWindowUpdate case.
	window int64

	ctx *fasthttp.RequestCtx

	// origType records whether the stream was opened by HEADERS or
	// PUSH_PROMISE, since only HEADERS-opened streams count against
	// maxStreams and participate in the idle-stream-closing rule.
	origType FrameType

	startedAt time.Time

	headersFinished     bool
	previousHeaderBytes []byte
	scheme              []byte

	// headerBlockNum counts how many header frames (HEADERS and
	// CONTINUATION alike) handleHeaderFrame has processed for this stream.
	headerBlockNum int

	// regularHeaderSeen tracks whether a non-pseudo header field has
	// already been emitted in the current header block; once true, another
	// pseudo-header field is out of order.
	//
	// https://tools.ietf.org/html/rfc7540#section-8.1.2.1
	regularHeaderSeen bool

	// headerListSize accumulates HeaderField.Size() for every field decoded
	// in the current header block, checked against the negotiated
	// SETTINGS_MAX_HEADER_LIST_SIZE as each field is added.
	headerListSize uint32
}

var streamPool = sync.Pool{
	New: func() interface{} {
		return &Stream{}
	},
}

// NewStream acquires a Stream from the pool and resets it to the idle state
// with the given id and initial outbound window.
func NewStream(id uint32, window int32) *Stream {
	strm := streamPool.Get().(*Stream)
	strm.id = id
	strm.state = StreamStateIdle
	strm.window = int64(window)
	strm.ctx = nil
	strm.origType = 0
	strm.startedAt = time.Time{}
	strm.headersFinished = false
	strm.previousHeaderBytes = strm.previousHeaderBytes[:0]
	strm.scheme = strm.scheme[:0]
	strm.headerBlockNum = 0
	strm.regularHeaderSeen = false
	strm.headerListSize = 0

	return strm
}

func (s *Stream) ID() uint32 {
	return s.id
}

func (s *Stream) SetID(id uint32) {
	s.id = id
}

func (s *Stream) State() StreamState {
	return s.state
}

func (s *Stream) SetState(state StreamState) {
	s.state = state
}

// SetData associates ctx with the stream. Named (rather than SetCtx) to
// keep the request/response payload abstracted behind an interface-shaped
// name, matching the rest of the package's Data()/SetData() pooled-object
// convention.
func (s *Stream) SetData(ctx *fasthttp.RequestCtx) {
	s.ctx = ctx
}

// Data returns the stream's associated request context.
func (s *Stream) Data() *fasthttp.RequestCtx {
	return s.ctx
}
