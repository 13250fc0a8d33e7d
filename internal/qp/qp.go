// Package qp encodes and decodes frame payloads as quoted-printable so
// that arbitrary 8-bit bytes and embedded newlines survive the NAME
// LEN:PAYLOAD wire framing used by internal/protocol.
package qp

import (
	"bytes"
	"io"
	"mime/quotedprintable"
)

// Encode returns the quoted-printable encoding of data. The writer still
// folds any run longer than 76 characters with RFC 2045 soft line breaks
// ("=\r\n"); Decode removes them again.
//
// quotedprintable.Writer treats its input as mail text and canonicalizes
// bare '\n' into "\r\n", so a payload's own newlines cannot be handed to
// it directly without being rewritten. Encode instead escapes every '\r'
// and '\n' itself to "=0D"/"=0A" before the writer sees the surrounding
// bytes, so the writer never observes a raw line ending to canonicalize
// and the payload round-trips as opaque binary rather than mail text.
func Encode(data []byte) string {
	var out bytes.Buffer
	start := 0
	encodeRun := func(end int) {
		if end <= start {
			return
		}
		w := quotedprintable.NewWriter(&out)
		w.Write(data[start:end])
		w.Close()
	}
	for i, b := range data {
		switch b {
		case '\r':
			encodeRun(i)
			out.WriteString("=0D")
			start = i + 1
		case '\n':
			encodeRun(i)
			out.WriteString("=0A")
			start = i + 1
		}
	}
	encodeRun(len(data))
	return out.String()
}

// Decode reverses Encode. It is tolerant of the soft line breaks a
// standards-compliant encoder may still emit for very long lines.
func Decode(encoded string) ([]byte, error) {
	r := quotedprintable.NewReader(bytes.NewReader([]byte(encoded)))
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return data, nil
}
