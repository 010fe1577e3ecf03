package http2

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/h2conform/engine/http2utils"
)

const (
	// FrameHeader default size
	// http://httpwg.org/specs/rfc7540.html#FrameHeader
	DefaultFrameSize = 9
	// https://httpwg.org/specs/rfc7540.html#SETTINGS_MAX_FRAME_SIZE
	defaultMaxLen = 1 << 14

	// maxFrameLength is the largest value the wire's 24-bit length field
	// can hold.
	maxFrameLength = 1<<24 - 1
	// maxStreamID is the largest value the wire's 31-bit stream id field
	// can hold.
	maxStreamID = 1<<31 - 1

	// Frame Flag (described along the frame types)
	// More flags have been ignored due to redundancy
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

// TODO: Develop methods for FrameFlags

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{}
	},
}

// FrameHeader is frame representation of HTTP2 protocol
//
// Use AcquireFrameHeader instead of creating FrameHeader every time
// if you are going to use FrameHeader as your own and ReleaseFrameHeader to
// delete the FrameHeader
//
// FrameHeader instance MUST NOT be used from different goroutines.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
type FrameHeader struct {
	length int        // 24 bits
	kind   FrameType  // 8 bits
	flags  FrameFlags // 8 bits
	stream uint32     // 31 bits

	maxLen uint32

	rawHeader [DefaultFrameSize]byte
	payload   []byte

	fr Frame
}

// AcquireFrameHeader gets a FrameHeader from pool.
func AcquireFrameHeader() *FrameHeader {
	fr := frameHeaderPool.Get().(*FrameHeader)
	fr.Reset()
	return fr
}

// ReleaseFrameHeader reset and puts fr to the pool.
func ReleaseFrameHeader(fr *FrameHeader) {
	ReleaseFrame(fr.Body())
	frameHeaderPool.Put(fr)
}

// Reset resets header values.
func (frh *FrameHeader) Reset() {
	frh.kind = 0
	frh.flags = 0
	frh.stream = 0
	frh.length = 0
	frh.maxLen = defaultMaxLen
	frh.fr = nil
	frh.payload = frh.payload[:0]
}

// Type returns the frame type (https://httpwg.org/specs/rfc7540.html#Frame_types)
func (frh *FrameHeader) Type() FrameType {
	return frh.kind
}

// Flags ...
func (frh *FrameHeader) Flags() FrameFlags {
	return frh.flags
}

func (frh *FrameHeader) SetFlags(flags FrameFlags) {
	frh.flags = flags
}

// Stream returns the stream id of the current frame.
func (frh *FrameHeader) Stream() uint32 {
	return frh.stream
}

// SetStream sets the stream id on the current frame.
//
// This function DOESN'T delete the reserved bit (first bit)
// in order to support personalized implementations of the protocol.
func (frh *FrameHeader) SetStream(stream uint32) {
	frh.stream = stream
}

// Len returns the payload length
func (frh *FrameHeader) Len() int {
	return frh.length
}

// MaxLen returns max negotiated payload length.
func (frh *FrameHeader) MaxLen() uint32 {
	return frh.maxLen
}

// EncodeFrameHeader encodes the 9-byte wire representation of a frame
// header: a 24-bit length, an 8-bit type, an 8-bit flags field and a
// 31-bit stream id. The reserved high bit is never written: a streamID
// with it set is above 2^31-1 and is rejected with ErrStreamIDOverflow.
//
// It fails if length or streamID can't fit their wire-sized fields, so a
// caller building a frame from untrusted/accumulated state can't silently
// truncate onto the wire.
//
// https://tools.ietf.org/html/rfc7540#section-4.1
func EncodeFrameHeader(length int, typ FrameType, flags FrameFlags, streamID uint32) ([DefaultFrameSize]byte, error) {
	var out [DefaultFrameSize]byte

	if length < 0 || length > maxFrameLength {
		return out, ErrFrameLengthOverflow
	}
	if streamID > maxStreamID {
		return out, ErrStreamIDOverflow
	}

	http2utils.Uint24ToBytes(out[:3], uint32(length))
	out[3] = byte(typ)
	out[4] = byte(flags)
	http2utils.Uint32ToBytes(out[5:], streamID&maxStreamID)

	return out, nil
}

// DecodeFrameHeader parses the 9-byte wire frame header fronting b. Unlike
// EncodeFrameHeader, the reserved bit of the stream id field is left
// untouched: callers that need to detect or reject a peer setting it
// (adversarial/conformance traffic) can inspect the raw value before
// anyone masks it away.
//
// It reports FRAME_SIZE_ERROR when fewer than DefaultFrameSize bytes are
// available, per this engine's frame codec contract.
func DecodeFrameHeader(b []byte) (length int, typ FrameType, flags FrameFlags, streamID uint32, err error) {
	if len(b) < DefaultFrameSize {
		return 0, 0, 0, 0, NewError(FrameSizeError, "short frame header")
	}

	length = int(http2utils.BytesToUint24(b[:3]))
	typ = FrameType(b[3])
	flags = FrameFlags(b[4])
	streamID = http2utils.BytesToUint32(b[5:9])

	return length, typ, flags, streamID, nil
}

func (frh *FrameHeader) parseValues(header []byte) error {
	length, kind, flags, stream, err := DecodeFrameHeader(header)
	if err != nil {
		return err
	}

	frh.length = length
	frh.kind = kind
	frh.flags = flags
	frh.stream = stream & maxStreamID

	return nil
}

func (frh *FrameHeader) parseHeader(header []byte) {
	// SetStream keeps the reserved bit, so it is cleared here before encoding.
	enc, err := EncodeFrameHeader(frh.length, frh.kind, frh.flags, frh.stream&maxStreamID)
	if err != nil {
		// Only the length can fail here: it is the payload length, and a
		// payload longer than 2^24-1 bytes can't be framed, which no caller
		// can recover from mid-write.
		panic(err)
	}

	copy(header, enc[:])
}

// ReadFrameFrom ...
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	fr := AcquireFrameHeader()

	_, err := fr.ReadFrom(br)
	if err != nil {
		if fr.Body() != nil {
			ReleaseFrameHeader(fr)
		} else {
			frameHeaderPool.Put(fr)
		}

		fr = nil
	}

	return fr, err
}
func ReadFrameFromWithSize(br *bufio.Reader, max uint32) (*FrameHeader, error) {
	fr := AcquireFrameHeader()
	fr.maxLen = max
	_, err := fr.ReadFrom(br)
	if err != nil {
		if fr.Body() != nil {
			ReleaseFrameHeader(fr)
		} else {
			frameHeaderPool.Put(fr)
		}

		fr = nil
	}

	return fr, err
}

// ReadFrom reads frame from Reader.
//
// This function returns read bytes and/or error.
//
// Unlike io.ReaderFrom this method does not read until io.EOF
func (frh *FrameHeader) ReadFrom(br *bufio.Reader) (int64, error) {
	return frh.readFrom(br)
}

func (frh *FrameHeader) readFrom(br *bufio.Reader) (int64, error) {
	header, err := br.Peek(DefaultFrameSize)
	if err != nil {
		return -1, err
	}

	br.Discard(DefaultFrameSize)

	rn := int64(DefaultFrameSize)

	if err := frh.parseValues(header); err != nil {
		return 0, err
	}
	if err := frh.checkLen(); err != nil {
		return 0, err
	}
	if err := frh.checkTypeLen(); err != nil {
		return 0, err
	}

	if frh.kind > FrameContinuation {
		br.Discard(frh.length)
		return 0, ErrUnknownFrameType
	}
	frh.fr = AcquireFrame(frh.kind)

	if frh.length > 0 {
		n := frh.length
		if n < 0 {
			panic(fmt.Sprintf("length is less than 0 (%d). Overflow? (%d)", n, frh.length))
		}

		frh.payload = http2utils.Resize(frh.payload, n)

		n, err = io.ReadFull(br, frh.payload[:n])
		rn += int64(n)
	}

	return rn, frh.fr.Deserialize(frh)
}

// WriteTo writes frame to the Writer.
//
// This function returns FrameHeader bytes written and/or error.
func (frh *FrameHeader) WriteTo(w *bufio.Writer) (wb int64, err error) {
	frh.fr.Serialize(frh)

	frh.length = len(frh.payload)
	frh.parseHeader(frh.rawHeader[:])

	n, err := w.Write(frh.rawHeader[:])
	if err == nil {
		wb += int64(n)

		n, err = w.Write(frh.payload)
		wb += int64(n)
	}

	return wb, err
}

// Body ...
func (frh *FrameHeader) Body() Frame {
	return frh.fr
}

func (frh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("Body cannot be nil")
	}

	frh.kind = fr.Type()
	frh.fr = fr
}

func (fhr *FrameHeader) setPayload(payload []byte) {
	fhr.payload = append(fhr.payload[:0], payload...)
}

func (fhr *FrameHeader) checkLen() error {
	if fhr.maxLen != 0 && fhr.length > int(fhr.maxLen) {
		return ErrPayloadExceeds
	}
	return nil
}

// checkTypeLen enforces the fixed or constrained payload lengths that
// RFC 7540 assigns to specific frame types, ahead of any type-specific
// Deserialize getting a chance to misinterpret a malformed length.
//
// https://tools.ietf.org/html/rfc7540#section-6
func (fhr *FrameHeader) checkTypeLen() error {
	switch fhr.kind {
	case FrameWindowUpdate:
		if fhr.length != 4 {
			return NewError(FrameSizeError, "WINDOW_UPDATE payload must be 4 bytes")
		}
	case FramePing:
		if fhr.length != 8 {
			return NewError(FrameSizeError, "PING payload must be 8 bytes")
		}
	case FrameResetStream:
		if fhr.length != 4 {
			return NewError(FrameSizeError, "RST_STREAM payload must be 4 bytes")
		}
	case FramePriority:
		if fhr.length != 5 {
			return NewError(FrameSizeError, "PRIORITY payload must be 5 bytes")
		}
	case FrameSettings:
		if fhr.flags.Has(FlagAck) && fhr.length != 0 {
			return NewError(FrameSizeError, "SETTINGS ack must carry no payload")
		}
		if fhr.length%6 != 0 {
			return NewError(FrameSizeError, "SETTINGS payload must be a multiple of 6 bytes")
		}
	}

	return nil
}

func (frh *FrameHeader) appendCheckingLen(dst, src []byte) (n int, err error) {
	n = len(src)
	if frh.maxLen > 0 && uint32(n+len(dst)) > frh.maxLen {
		err = ErrPayloadExceeds
	} else {
		frh.payload = append(dst, src...)
		frh.length = len(frh.payload)
	}

	return
}
