package http2

import (
	"bufio"
	"bytes"
	"testing"
)

func TestPrefaceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	if err := WritePreface(bw); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(&buf)
	if err := ReadPreface(br); err != nil {
		t.Fatal(err)
	}
}

func TestPrefaceMismatch(t *testing.T) {
	br := bufio.NewReader(bytes.NewBufferString("GET / HTTP/1.1\r\n\r\n"))

	err := ReadPreface(br)
	if err != ErrBadPreface {
		t.Fatalf("expected ErrBadPreface, got %v", err)
	}
}

func TestPrefaceShortRead(t *testing.T) {
	br := bufio.NewReader(bytes.NewBufferString("PRI * HTTP"))

	if err := ReadPreface(br); err == nil {
		t.Fatal("expected an error on a truncated preface")
	}
}
