package http2

import "testing"

func TestStreamsSearch(t *testing.T) {
	var strms Streams
	strms = append(strms, NewStream(1, 0), NewStream(3, 0), NewStream(5, 0))

	if s := strms.Search(3); s == nil || s.ID() != 3 {
		t.Fatalf("expected to find stream 3, got %v", s)
	}
	if s := strms.Search(4); s != nil {
		t.Fatalf("expected no stream 4, got %v", s)
	}
}

func TestStreamsDel(t *testing.T) {
	var strms Streams
	strms = append(strms, NewStream(1, 0), NewStream(3, 0), NewStream(5, 0))

	removed := strms.Del(3)
	if removed == nil || removed.ID() != 3 {
		t.Fatalf("expected to remove stream 3, got %v", removed)
	}
	if len(strms) != 2 {
		t.Fatalf("unexpected length after Del: %d", len(strms))
	}
	if strms.Search(3) != nil {
		t.Fatal("stream 3 should no longer be present")
	}
	if strms.Del(99) != nil {
		t.Fatal("deleting an absent stream should return nil")
	}
}

func TestStreamsGetFirstOf(t *testing.T) {
	var strms Streams

	a := NewStream(1, 0)
	a.origType = FrameHeaders
	b := NewStream(3, 0)
	b.origType = FramePushPromise
	c := NewStream(5, 0)
	c.origType = FrameHeaders

	strms = append(strms, a, b, c)

	if s := strms.GetFirstOf(FrameHeaders); s != a {
		t.Fatalf("expected first HEADERS-opened stream to be id 1, got %v", s)
	}
	if s := strms.GetFirstOf(FramePushPromise); s != b {
		t.Fatalf("expected push-promise stream to be id 3, got %v", s)
	}
}

func TestStreamsGetPreviousSkipsNewest(t *testing.T) {
	var strms Streams

	a := NewStream(1, 0)
	a.origType = FrameHeaders
	b := NewStream(3, 0)
	b.origType = FrameHeaders

	strms = append(strms, a, b)

	// b is the newest HEADERS-opened stream; getPrevious must skip it and
	// return a, the one opened just before it.
	if s := strms.getPrevious(FrameHeaders); s != a {
		t.Fatalf("expected getPrevious to return stream 1, got %v", s)
	}
}

func TestStreamsGetPreviousNoneBeforeNewest(t *testing.T) {
	var strms Streams

	a := NewStream(1, 0)
	a.origType = FrameHeaders

	strms = append(strms, a)

	if s := strms.getPrevious(FrameHeaders); s != nil {
		t.Fatalf("expected no stream before the only one, got %v", s)
	}
}
