package http2

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"

	"github.com/valyala/fasthttp"
)

// These tests exercise the end-to-end scenarios a conforming implementation
// of this engine must satisfy, one per named scenario. Each one is scoped to
// what the engine actually implements; where a scenario's literal wording
// names behavior this engine doesn't have (see the comment on each such
// test), the test asserts the implemented subset and says so rather than
// silently asserting something that never ran.

// S1: preface + SETTINGS exchange reaches a negotiated state on both ends.
func TestScenarioS1PrefaceAndSettingsHandshake(t *testing.T) {
	s := &Server{
		s:   &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {}},
		cnf: ServerConfig{MaxConcurrentStreams: 100},
	}

	c, ln, err := getConn(s)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	defer ln.Close()

	if got := c.serverS.MaxConcurrentStreams(); got != 100 {
		t.Fatalf("expected negotiated MAX_CONCURRENT_STREAMS=100, got %d", got)
	}
}

// S2: a GET on stream 1 gets back HEADERS{:status=200} + DATA{END_STREAM}.
func TestScenarioS2SimpleGET(t *testing.T) {
	s := &Server{
		s: &fasthttp.Server{
			Handler: func(ctx *fasthttp.RequestCtx) {
				io.WriteString(ctx, "OK")
			},
		},
		cnf: ServerConfig{},
	}

	c, ln, err := getConn(s)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	defer ln.Close()

	h := makeHeaders(1, c.enc, true, true, map[string]string{
		string(StringMethod):    "GET",
		string(StringScheme):    "https",
		string(StringAuthority): "example.com",
		string(StringPath):      "/",
	})
	if err := c.writeFrame(h); err != nil {
		t.Fatal(err)
	}

	fr, err := c.readNext()
	if err != nil {
		t.Fatal(err)
	}
	if fr.Type() != FrameHeaders {
		t.Fatalf("expected HEADERS, got %s", fr.Type())
	}

	res := &fasthttp.Response{}
	if err := c.readStream(fr, res); err != nil {
		t.Fatal(err)
	}
	if res.StatusCode() != 200 {
		t.Fatalf("expected status 200, got %d", res.StatusCode())
	}
	ReleaseFrameHeader(fr)

	fr2, err := c.readNext()
	if err != nil {
		t.Fatal(err)
	}
	if fr2.Type() != FrameData {
		t.Fatalf("expected DATA, got %s", fr2.Type())
	}
	if err := c.readStream(fr2, res); err != nil {
		t.Fatal(err)
	}
	if string(res.Body()) != "OK" {
		t.Fatalf("expected body %q, got %q", "OK", res.Body())
	}
	if !fr2.Flags().Has(FlagEndStream) {
		t.Fatal("expected END_STREAM on the DATA frame")
	}
	ReleaseFrameHeader(fr2)
}

// S3: a 40000-byte request body is fragmented into DATA frames of exactly
// 16384, 16384 and 7232 bytes, the last carrying END_STREAM.
//
// writeData (conn.go) is a blind chunker: it splits in fixed 1<<14-byte
// steps (the default SETTINGS_MAX_FRAME_SIZE, whatever the peer
// advertised) and never consults an outbound flow-control
// window, so this test drives it directly rather than through a live
// connection. That also means the window-replenishment clause of S3 ("the
// client must have received WINDOW_UPDATE frames increasing its send window
// sufficiently") isn't asserted here: this engine's server never emits a
// WINDOW_UPDATE in response to consumed request-body bytes, only the
// one-time initial grant during the handshake, so there is nothing to wait
// on before the third frame.
func TestScenarioS3FlowControlledBodyFragmentation(t *testing.T) {
	fh := AcquireFrameHeader()
	defer ReleaseFrameHeader(fh)
	fh.SetStream(1)

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	body := make([]byte, 40000)
	if err := writeData(bw, fh, body); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}

	want := []int{16384, 16384, 7232}
	b := buf.Bytes()
	for i, wantLen := range want {
		length, typ, flags, streamID, err := DecodeFrameHeader(b)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if typ != FrameData {
			t.Fatalf("frame %d: expected DATA, got %s", i, typ)
		}
		if streamID != 1 {
			t.Fatalf("frame %d: expected stream 1, got %d", i, streamID)
		}
		if length != wantLen {
			t.Fatalf("frame %d: expected %d bytes, got %d", i, wantLen, length)
		}

		isLast := i == len(want)-1
		if flags.Has(FlagEndStream) != isLast {
			t.Fatalf("frame %d: END_STREAM=%v, want %v", i, flags.Has(FlagEndStream), isLast)
		}

		b = b[DefaultFrameSize+length:]
	}
	if len(b) != 0 {
		t.Fatalf("unexpected %d trailing bytes after the last DATA frame", len(b))
	}
}

// S4: a connection-level WINDOW_UPDATE that would push the client's send
// window past 2^31-1 triggers GOAWAY(FLOW_CONTROL_ERROR); reaching exactly
// 2^31-1 is in bounds and must not.
func TestScenarioS4WindowOverflowTriggersGoAway(t *testing.T) {
	sc := newTestServerConn()
	sc.writer = make(chan *FrameHeader, 4)

	atomic.StoreInt64(&sc.clientWindow, 1<<31-2)

	grow := func(increment int) {
		fr := AcquireFrameHeader()
		defer ReleaseFrameHeader(fr)
		fr.SetStream(0)

		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(increment)
		fr.SetBody(wu)

		if err := sc.handleConnFrame(fr); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	grow(1) // lands exactly on 2^31-1: must be accepted.

	select {
	case fr := <-sc.writer:
		t.Fatalf("unexpected %s: window reached exactly 2^31-1, which is in bounds", fr.Type())
	default:
	}
	if got := atomic.LoadInt64(&sc.clientWindow); got != 1<<31-1 {
		t.Fatalf("window = %d, want %d", got, int64(1<<31-1))
	}

	grow(1) // one more pushes it over: must be rejected.

	select {
	case fr := <-sc.writer:
		if fr.Type() != FrameGoAway {
			t.Fatalf("expected GOAWAY, got %s", fr.Type())
		}
		if code := fr.Body().(*GoAway).Code(); code != FlowControlError {
			t.Fatalf("expected FLOW_CONTROL_ERROR, got %s", code)
		}
	default:
		t.Fatal("expected a GOAWAY once the window exceeds 2^31-1")
	}
}

// S5: with MAX_CONCURRENT_STREAMS=1, a second stream attempted before the
// first completes is refused locally with no frame written to the wire.
func TestScenarioS5ConcurrencyCapRefusesLocally(t *testing.T) {
	s := &Server{
		s: &fasthttp.Server{
			Handler: func(ctx *fasthttp.RequestCtx) {
				io.WriteString(ctx, "ok")
			},
		},
		cnf: ServerConfig{MaxConcurrentStreams: 1},
	}

	c, ln, err := getConn(s)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	defer ln.Close()

	req1 := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req1)
	req1.SetRequestURI("https://example.com/")
	req1.Header.SetMethod("GET")

	if _, err := c.writeRequest(req1); err != nil {
		t.Fatalf("first stream should have opened: %v", err)
	}

	if c.CanOpenStream() {
		t.Fatal("expected CanOpenStream to report false at the concurrency cap")
	}

	req2 := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req2)
	req2.SetRequestURI("https://example.com/")
	req2.Header.SetMethod("GET")

	if _, err := c.writeRequest(req2); err != ErrNotAvailableStreams {
		t.Fatalf("expected ErrNotAvailableStreams, got %v", err)
	}
}

// S6: a GOAWAY stops further stream allocation.
//
// The literal scenario also has streams already open before the GOAWAY
// drain to completion while a later one is cancelled locally without wire
// effect; this engine's client doesn't track last_stream_id against its own
// in-flight streams to do that (see the GOAWAY dispatch notes in
// SPEC_FULL.md §4.6), so only the stop-allocating-new-streams half is
// asserted here.
func TestScenarioS6GoAwayStopsNewStreamAllocation(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	defer clientEnd.Close()
	defer serverEnd.Close()

	c := NewConn(clientEnd, ConnOpts{})

	if !c.CanOpenStream() {
		t.Fatal("expected CanOpenStream to be true before any GOAWAY arrives")
	}

	fr := AcquireFrameHeader()
	fr.SetStream(0)

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(7)
	ga.SetCode(NoError)
	fr.SetBody(ga)

	go func() {
		bw := bufio.NewWriter(serverEnd)
		fr.WriteTo(bw)
		bw.Flush()
	}()

	_, err := c.readNext()

	var gotGoAway *GoAway
	if !errors.As(err, &gotGoAway) {
		t.Fatalf("expected readNext to surface the GOAWAY, got %v", err)
	}
	if gotGoAway.Stream() != 7 {
		t.Fatalf("expected last_stream_id 7, got %d", gotGoAway.Stream())
	}

	if c.CanOpenStream() {
		t.Fatal("expected CanOpenStream to report false once a GOAWAY has been received")
	}
}
