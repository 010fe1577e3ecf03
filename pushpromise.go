package http2

import (
	"github.com/h2conform/engine/http2utils"
)

const FramePushPromise FrameType = 0x5

var _ Frame = &PushPromise{}

// PushPromise https://tools.ietf.org/html/rfc7540#section-6.6
//
// This engine never advertises server push (SETTINGS_ENABLE_PUSH is always
// sent as 0, see ServeConn in server.go), so Serialize is never reached
// in practice; checkFrameWithStream in serverConn.go rejects any
// PUSH_PROMISE a client sends once it has been read and deserialized. The codec is kept
// complete regardless, the way the other frame types are, rather than left
// half-implemented because the current server never exercises the write
// side.
type PushPromise struct {
	pad    bool
	ended  bool
	stream uint32
	header []byte // header block fragment
}

func (pp *PushPromise) Type() FrameType {
	return FramePushPromise
}

func (pp *PushPromise) Reset() {
	pp.pad = false
	pp.ended = false
	pp.stream = 0
	pp.header = pp.header[:0]
}

// Stream returns the promised stream id.
func (pp *PushPromise) Stream() uint32 {
	return pp.stream
}

// SetStream sets the promised stream id.
func (pp *PushPromise) SetStream(stream uint32) {
	pp.stream = stream & (1<<31 - 1)
}

// EndHeaders reports whether the header block fragment is complete, i.e.
// the frame carries END_HEADERS and no CONTINUATION follows.
func (pp *PushPromise) EndHeaders() bool {
	return pp.ended
}

// Padding reports whether the frame carries (or, before Serialize, will
// carry) the PADDED flag.
func (pp *PushPromise) Padding() bool {
	return pp.pad
}

// SetPadding enables or disables padding the frame on Serialize.
func (pp *PushPromise) SetPadding(value bool) {
	pp.pad = value
}

// SetEndHeaders marks the header block fragment as complete.
func (pp *PushPromise) SetEndHeaders(value bool) {
	pp.ended = value
}

func (pp *PushPromise) SetHeader(h []byte) {
	pp.header = append(pp.header[:0], h...)
}

func (pp *PushPromise) Write(b []byte) (int, error) {
	n := len(b)
	pp.header = append(pp.header, b...)
	return n, nil
}

func (pp *PushPromise) Deserialize(fr *FrameHeader) error {
	payload := fr.payload

	pp.pad = fr.Flags().Has(FlagPadded)
	if pp.pad {
		var err error
		payload, err = http2utils.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
	}

	if len(payload) < 4 {
		return ErrMissingBytes
	}

	pp.stream = http2utils.BytesToUint32(payload) & (1<<31 - 1)
	pp.header = append(pp.header, payload[4:]...)
	pp.ended = fr.Flags().Has(FlagEndHeaders)

	return nil
}

func (pp *PushPromise) Serialize(fr *FrameHeader) {
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], pp.stream)
	fr.payload = append(fr.payload, pp.header...)

	if pp.ended {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}

	if pp.pad {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		fr.payload = http2utils.AddPadding(fr.payload)
	}
}
