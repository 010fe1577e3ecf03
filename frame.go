package http2

import (
	"fmt"
	"sync"
)

// FrameType identifies the type of a frame's payload.
//
// https://tools.ietf.org/html/rfc7540#section-6
type FrameType uint8

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "Data"
	case FrameHeaders:
		return "Headers"
	case FramePriority:
		return "Priority"
	case FrameResetStream:
		return "RstStream"
	case FrameSettings:
		return "Settings"
	case FramePushPromise:
		return "PushPromise"
	case FramePing:
		return "Ping"
	case FrameGoAway:
		return "GoAway"
	case FrameWindowUpdate:
		return "WindowUpdate"
	case FrameContinuation:
		return "Continuation"
	}

	return fmt.Sprintf("FrameType(%d)", uint8(ft))
}

// FrameFlags is the bitset carried in a frame header's flags octet.
//
// The meaning of each bit is frame-type specific; see the flag constants
// declared alongside frameHeader.go.
type FrameFlags uint8

// Has reports whether all bits in f are set.
func (ff FrameFlags) Has(f FrameFlags) bool {
	return ff&f == f
}

// Add sets the bits in f and returns the resulting flag set.
func (ff FrameFlags) Add(f FrameFlags) FrameFlags {
	return ff | f
}

// Frame is the payload of an HTTP/2 frame, excluding the 9-byte header.
//
// Concrete frame types are pooled; acquire one with AcquireFrame and
// release it with ReleaseFrame rather than constructing it directly.
type Frame interface {
	// Type returns the wire frame type this Frame serializes as.
	Type() FrameType
	// Reset clears the frame so it can be reused from the pool.
	Reset()
	// Serialize writes the frame's fields into frh's payload and flags.
	Serialize(frh *FrameHeader)
	// Deserialize populates the frame's fields from frh's payload and flags.
	Deserialize(frh *FrameHeader) error
}

var (
	dataPool         = sync.Pool{New: func() interface{} { return &Data{} }}
	headersPool      = sync.Pool{New: func() interface{} { return &Headers{} }}
	priorityPool     = sync.Pool{New: func() interface{} { return &Priority{} }}
	rstStreamPool    = sync.Pool{New: func() interface{} { return &RstStream{} }}
	settingsPool     = sync.Pool{New: func() interface{} { return &Settings{} }}
	pushPromisePool  = sync.Pool{New: func() interface{} { return &PushPromise{} }}
	pingPool         = sync.Pool{New: func() interface{} { return &Ping{} }}
	goAwayPool       = sync.Pool{New: func() interface{} { return &GoAway{} }}
	windowUpdatePool = sync.Pool{New: func() interface{} { return &WindowUpdate{} }}
	continuationPool = sync.Pool{New: func() interface{} { return &Continuation{} }}
)

// AcquireFrame returns a pooled Frame implementation for the given type.
//
// Panics on an unknown type; callers are expected to have already validated
// the wire type (frameHeader.go rejects anything above FrameContinuation
// before calling this).
func AcquireFrame(ft FrameType) Frame {
	switch ft {
	case FrameData:
		return dataPool.Get().(*Data)
	case FrameHeaders:
		return headersPool.Get().(*Headers)
	case FramePriority:
		return priorityPool.Get().(*Priority)
	case FrameResetStream:
		return rstStreamPool.Get().(*RstStream)
	case FrameSettings:
		return settingsPool.Get().(*Settings)
	case FramePushPromise:
		return pushPromisePool.Get().(*PushPromise)
	case FramePing:
		return pingPool.Get().(*Ping)
	case FrameGoAway:
		return goAwayPool.Get().(*GoAway)
	case FrameWindowUpdate:
		return windowUpdatePool.Get().(*WindowUpdate)
	case FrameContinuation:
		return continuationPool.Get().(*Continuation)
	}

	panic(fmt.Sprintf("http2: unknown frame type %d", uint8(ft)))
}

// ReleaseFrame resets fr and returns it to its pool. A nil fr is a no-op,
// which keeps ReleaseFrameHeader simple when a header has no body yet.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}

	fr.Reset()

	switch f := fr.(type) {
	case *Data:
		dataPool.Put(f)
	case *Headers:
		headersPool.Put(f)
	case *Priority:
		priorityPool.Put(f)
	case *RstStream:
		rstStreamPool.Put(f)
	case *Settings:
		settingsPool.Put(f)
	case *PushPromise:
		pushPromisePool.Put(f)
	case *Ping:
		pingPool.Put(f)
	case *GoAway:
		goAwayPool.Put(f)
	case *WindowUpdate:
		windowUpdatePool.Put(f)
	case *Continuation:
		continuationPool.Put(f)
	}
}
