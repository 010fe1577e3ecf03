package http2

import (
	"bytes"
	"testing"
)

func TestHPACKRoundTrip(t *testing.T) {
	enc := AcquireHPACK()
	defer ReleaseHPACK(enc)

	dec := AcquireHPACK()
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	hf.SetKey(":method")
	hf.SetValue("GET")

	var block []byte
	block = enc.AppendHeader(block, hf)

	hf.SetKey(":path")
	hf.SetValue("/")
	block = enc.AppendHeader(block, hf)

	out := AcquireHeaderField()
	defer ReleaseHeaderField(out)

	rest, err := dec.Next(out, block)
	if err != nil {
		t.Fatal(err)
	}
	if out.Key() != ":method" || out.Value() != "GET" {
		t.Fatalf("unexpected first field: %s=%s", out.Key(), out.Value())
	}

	rest, err = dec.Next(out, rest)
	if err != nil {
		t.Fatal(err)
	}
	if out.Key() != ":path" || out.Value() != "/" {
		t.Fatalf("unexpected second field: %s=%s", out.Key(), out.Value())
	}
}

func TestHPACKTruncatedBlock(t *testing.T) {
	enc := AcquireHPACK()
	defer ReleaseHPACK(enc)

	dec := AcquireHPACK()
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	hf.SetKey("content-type")
	hf.SetValue("application/json")

	var block []byte
	block = enc.AppendHeader(block, hf)

	out := AcquireHeaderField()
	defer ReleaseHeaderField(out)

	// Cut the encoded block short, as if only part of it had arrived
	// before a CONTINUATION frame.
	_, err := dec.Next(out, block[:len(block)-1])
	if err != ErrUnexpectedSize {
		t.Fatalf("expected ErrUnexpectedSize on truncated block, got %v", err)
	}
}

func TestHPACKResetClearsDynamicTable(t *testing.T) {
	hp := AcquireHPACK()
	defer ReleaseHPACK(hp)

	hp.SetMaxTableSize(0)
	hp.Reset()

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetKey("x-test")
	hf.SetValue("value")

	var block []byte
	block = hp.AppendHeader(block, hf)
	if len(block) == 0 {
		t.Fatal("expected a non-empty encoded block after Reset")
	}

	// Encoding block put x-test into the dynamic table; after another Reset
	// the same field must be encoded as the same literal again, not as a
	// reference into the old table.
	hp.Reset()
	again := hp.AppendHeader(nil, hf)
	if !bytes.Equal(again, block) {
		t.Fatalf("expected %x after Reset, got %x", block, again)
	}
}

func TestHPACKValueEmbedding(t *testing.T) {
	// serverConn.go embeds HPACK by value (enc HPACK, dec HPACK), relying on
	// ensure() to lazily initialize it without a pool round trip.
	var hp HPACK

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetKey(":status")
	hf.SetValue("200")

	var block []byte
	block = hp.AppendHeader(block, hf)
	if len(block) == 0 {
		t.Fatal("expected zero-value HPACK to encode via lazy init")
	}
}
