package http2

import (
	"bytes"
	"sync"

	"golang.org/x/net/http2/hpack"
)

// HPACK wraps a pair of codec directions (the encoder side uses hpack.Encoder,
// the decoder side hpack.Decoder), each with its own dynamic table, matching
// the one-table-per-direction model RFC 7541 requires: the table a Conn
// uses to encode its own requests is independent from the one it uses to
// decode the peer's responses.
//
// HPACK is pooled; acquire one with AcquireHPACK and return it with
// ReleaseHPACK when the connection closes.
type HPACK struct {
	buf *bytes.Buffer
	enc *hpack.Encoder
	dec *hpack.Decoder

	pending []hpack.HeaderField
}

var hpackPool = sync.Pool{
	New: func() interface{} {
		return &HPACK{}
	},
}

// AcquireHPACK gets an HPACK codec from the pool.
func AcquireHPACK() *HPACK {
	hp := hpackPool.Get().(*HPACK)
	hp.ensure()
	return hp
}

// ReleaseHPACK resets hp and returns it to the pool.
func ReleaseHPACK(hp *HPACK) {
	hp.Reset()
	hpackPool.Put(hp)
}

// ensure lazily builds the underlying codecs, so an HPACK embedded by value
// (as serverConn does) works from its zero value without a pool round trip.
func (hp *HPACK) ensure() {
	if hp.enc == nil {
		hp.buf = &bytes.Buffer{}
		hp.enc = hpack.NewEncoder(hp.buf)
		hp.dec = hpack.NewDecoder(defaultHeaderTableSize, nil)
	}
}

// Reset clears the codec's dynamic tables and any buffered state, as if it
// had just been acquired.
func (hp *HPACK) Reset() {
	hp.ensure()
	hp.buf.Reset()
	hp.enc = hpack.NewEncoder(hp.buf)
	hp.dec = hpack.NewDecoder(defaultHeaderTableSize, nil)
	hp.pending = hp.pending[:0]
}

// SetMaxTableSize sets the maximum size of the encoder's dynamic table, i.e.
// the limit this side will honor when the peer tells us (via SETTINGS)
// what it is prepared to store.
func (hp *HPACK) SetMaxTableSize(size int) {
	hp.ensure()
	hp.enc.SetMaxDynamicTableSize(uint32(size))
}

// AppendHeader HPACK-encodes hf and appends the representation to dst,
// returning the extended slice.
func (hp *HPACK) AppendHeader(dst []byte, hf *HeaderField) []byte {
	hp.ensure()
	hp.buf.Reset()

	_ = hp.enc.WriteField(hpack.HeaderField{
		Name:      hf.Key(),
		Value:     hf.Value(),
		Sensitive: hf.IsSensible(),
	})

	return append(dst, hp.buf.Bytes()...)
}

// Next decodes the next header field out of b into hf, same as nextField
// but without the server side's block/field bookkeeping; used by the
// client to parse a fully-assembled response header block.
func (hp *HPACK) Next(hf *HeaderField, b []byte) ([]byte, error) {
	return hp.nextField(hf, 0, 0, b)
}

// nextField decodes the next header field out of b into hf.
//
// b is the header block accumulated so far for the stream (across HEADERS
// and any CONTINUATION frames). headerBlockNum (the number of header
// frames already handled on the stream) and fieldsProcessed (how many
// fields have already been emitted from the current block) are accepted
// from the caller but not used by the decoder. Returns ErrUnexpectedSize when b ends on an incomplete field,
// signalling the caller should hold onto b and retry once more bytes
// arrive via CONTINUATION.
func (hp *HPACK) nextField(hf *HeaderField, headerBlockNum, fieldsProcessed int, b []byte) ([]byte, error) {
	_ = headerBlockNum
	_ = fieldsProcessed

	hp.ensure()

	if len(hp.pending) == 0 {
		fields, err := hp.dec.DecodeFull(b)
		if err != nil {
			return b, ErrUnexpectedSize
		}

		hp.pending = fields
	}

	if len(hp.pending) == 0 {
		return nil, nil
	}

	f := hp.pending[0]
	hp.pending = hp.pending[1:]

	hf.SetBytes([]byte(f.Name), []byte(f.Value))
	hf.sensible = f.Sensitive

	if len(hp.pending) == 0 {
		return nil, nil
	}

	return b[:len(hp.pending)], nil
}
