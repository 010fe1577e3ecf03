package http2

import "testing"

func TestNewStreamResetsState(t *testing.T) {
	strm := NewStream(7, 1<<16)
	strm.headersFinished = true
	strm.previousHeaderBytes = append(strm.previousHeaderBytes, 1, 2, 3)
	strm.headerBlockNum = 2
	streamPool.Put(strm)

	strm2 := NewStream(9, 1<<15)
	if strm2.ID() != 9 {
		t.Fatalf("unexpected id: %d", strm2.ID())
	}
	if strm2.State() != StreamStateIdle {
		t.Fatalf("unexpected state: %s", strm2.State())
	}
	if strm2.headersFinished {
		t.Fatal("expected headersFinished to be reset")
	}
	if len(strm2.previousHeaderBytes) != 0 {
		t.Fatalf("expected previousHeaderBytes to be cleared, got %v", strm2.previousHeaderBytes)
	}
	if strm2.headerBlockNum != 0 {
		t.Fatalf("expected headerBlockNum to be reset, got %d", strm2.headerBlockNum)
	}
}

func TestStreamData(t *testing.T) {
	strm := NewStream(1, 0)
	if strm.Data() != nil {
		t.Fatal("expected a fresh stream to have no data")
	}
}

func TestStreamStateString(t *testing.T) {
	states := []StreamState{
		StreamStateIdle, StreamStateReserved, StreamStateOpen,
		StreamStateHalfClosed, StreamStateClosed,
	}
	for _, s := range states {
		if s.String() == "IDK" {
			t.Fatalf("unexpected unknown state string for %d", s)
		}
	}
}
