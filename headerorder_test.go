package http2

import (
	"testing"

	"github.com/valyala/fasthttp"
)

// buildHeadersFrame encodes kvs, in order, into a single HEADERS frame.
// Unlike makeHeaders in server_test.go (which ranges over a map and so
// can't produce a deterministic field order), this lets a test place a
// regular header field before a pseudo-header field on the wire.
func buildHeadersFrame(id uint32, enc *HPACK, kvs [][2]string) *FrameHeader {
	fr := AcquireFrameHeader()
	fr.SetStream(id)

	h := AcquireFrame(FrameHeaders).(*Headers)
	fr.SetBody(h)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	for _, kv := range kvs {
		hf.Set(kv[0], kv[1])
		h.AppendHeaderField(enc, hf, kv[0][0] == ':')
	}

	h.SetPadding(false)
	h.SetEndStream(true)
	h.SetEndHeaders(true)

	return fr
}

func newTestServerConn() *serverConn {
	sc := &serverConn{logger: defaultLogger}
	sc.st.Reset()
	sc.clientS.Reset()
	return sc
}

func TestHandleHeaderFrameRejectsReorderedPseudoHeader(t *testing.T) {
	sc := newTestServerConn()

	strm := NewStream(1, 1<<20)
	strm.SetData(&fasthttp.RequestCtx{})

	fr := buildHeadersFrame(1, &sc.enc, [][2]string{
		{string(StringMethod), "GET"},
		{"x-misplaced", "value"},
		{string(StringPath), "/"},
	})
	defer ReleaseFrameHeader(fr)

	err := sc.handleHeaderFrame(strm, fr)
	if err == nil {
		t.Fatal("expected an error for a pseudo-header reordered after a regular header")
	}

	herr, ok := err.(Error)
	if !ok || herr.Code() != ProtocolError {
		t.Fatalf("expected PROTOCOL_ERROR, got %v", err)
	}
}

func TestHandleHeaderFrameAcceptsWellOrderedHeaders(t *testing.T) {
	sc := newTestServerConn()

	strm := NewStream(1, 1<<20)
	strm.SetData(&fasthttp.RequestCtx{})

	fr := buildHeadersFrame(1, &sc.enc, [][2]string{
		{string(StringMethod), "GET"},
		{string(StringPath), "/"},
		{string(StringAuthority), "localhost"},
		{string(StringScheme), "https"},
		{"x-trailing", "value"},
	})
	defer ReleaseFrameHeader(fr)

	if err := sc.handleHeaderFrame(strm, fr); err != nil {
		t.Fatalf("unexpected error for well-ordered headers: %v", err)
	}
}

func TestHandleHeaderFrameResetsOrderingPerBlock(t *testing.T) {
	sc := newTestServerConn()

	strm := NewStream(1, 1<<20)
	strm.SetData(&fasthttp.RequestCtx{})

	fr := buildHeadersFrame(1, &sc.enc, [][2]string{
		{string(StringMethod), "GET"},
		{string(StringPath), "/"},
		{"x-trailing", "value"},
	})
	defer ReleaseFrameHeader(fr)

	if err := sc.handleHeaderFrame(strm, fr); err != nil {
		t.Fatalf("unexpected error on first block: %v", err)
	}
	if !strm.regularHeaderSeen {
		t.Fatal("expected regularHeaderSeen to be set after a regular header field")
	}

	// A second HEADERS frame (e.g. trailers) starts a fresh header block, so
	// a pseudo-header here is fine even though the previous block already
	// saw a regular header.
	fr2 := buildHeadersFrame(1, &sc.enc, [][2]string{
		{string(StringMethod), "GET"},
	})
	defer ReleaseFrameHeader(fr2)

	if err := sc.handleHeaderFrame(strm, fr2); err != nil {
		t.Fatalf("unexpected error on second block: %v", err)
	}
}
