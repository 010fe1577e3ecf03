package http2

import (
	"bufio"
	"io"
)

// http2Preface is the 24-octet magic string a client must send before any
// other HTTP/2 bytes, so a server that supports both HTTP/1.1 and HTTP/2 on
// the same port can tell the two apart.
//
// https://tools.ietf.org/html/rfc7540#section-3.5
var http2Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// WritePreface writes the HTTP/2 connection preface to bw.
func WritePreface(bw *bufio.Writer) error {
	_, err := bw.Write(http2Preface)
	return err
}

// ReadPreface reads and validates the HTTP/2 connection preface from br,
// returning ErrBadPreface if the bytes read don't match.
func ReadPreface(br *bufio.Reader) error {
	b := make([]byte, len(http2Preface))

	if _, err := io.ReadFull(br, b); err != nil {
		return err
	}

	for i := range http2Preface {
		if b[i] != http2Preface[i] {
			return ErrBadPreface
		}
	}

	return nil
}
