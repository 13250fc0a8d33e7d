// Package protocol implements the cattleshed wire framing:
//
//	NAME SP LEN ':' PAYLOAD LF
//
// NAME matches [^\s]+, LEN is a non-negative decimal byte count, and
// PAYLOAD is exactly LEN bytes of quoted-printable text. Decoding is
// lenient: a malformed header causes the decoder to skip to the next
// line terminator and resume, rather than aborting the connection.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/wandbox-go/cattleshed/internal/qp"
)

// Frame is one decoded wire record with its payload already
// quoted-printable-decoded.
type Frame struct {
	Name    string
	Payload []byte
}

// BufSiz bounds how much of a single unterminated line a Multiplexer
// read will buffer before forcing a chunk boundary (spec.md §4.1's
// "BUFSIZ, a buffer-sized ceiling"). Exported so callers sizing their
// own readers can match it.
const BufSiz = 8192

// Encoder serializes Frames onto an io.Writer. Callers are responsible
// for ensuring only one goroutine calls Write at a time — internal/multiplex
// does this by routing every frame through a single writer goroutine, so
// concurrently produced chunks interleave at whole-frame granularity.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write encodes and writes one frame: NAME LEN:PAYLOAD\n.
func (e *Encoder) Write(name string, payload []byte) error {
	encoded := qp.Encode(payload)
	_, err := fmt.Fprintf(e.w, "%s %d:%s\n", name, len(encoded), encoded)
	return err
}

// WriteControl is a convenience for the Control frames the Session state
// machine emits (Start, run, Finish).
func (e *Encoder) WriteControl(payload string) error {
	return e.Write("Control", []byte(payload))
}

// Decoder reads Frames off a byte stream, retaining lenient recovery
// from malformed headers (spec.md §4.1).
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next reads and decodes the next frame, skipping any malformed header
// lines it encounters along the way. It returns io.EOF when the stream
// is exhausted.
func (d *Decoder) Next() (Frame, error) {
	for {
		name, length, err := d.readHeader()
		if err != nil {
			return Frame{}, err
		}
		if name == "" {
			// Malformed header; readHeader already skipped to the next
			// line terminator. Try again.
			continue
		}

		encoded := make([]byte, length)
		if _, err := io.ReadFull(d.r, encoded); err != nil {
			return Frame{}, err
		}
		// Require (and consume) the trailing line terminator.
		if b, err := d.r.ReadByte(); err != nil {
			return Frame{}, err
		} else if b != '\n' {
			// Not well-formed — treat as a malformed frame and resume
			// scanning from here rather than aborting the session.
			d.r.UnreadByte()
			d.skipLine()
			continue
		}

		payload, err := qp.Decode(string(encoded))
		if err != nil {
			// A corrupt payload is still a lenient-recovery case: skip
			// it and keep the connection alive.
			continue
		}
		return Frame{Name: name, Payload: payload}, nil
	}
}

// readHeader parses "NAME SP* LEN ':'" from the stream. On a malformed
// header it skips to the next newline and returns name="" so the caller
// retries, matching spec.md's "skip to next line terminator and resume".
func (d *Decoder) readHeader() (name string, length int, err error) {
	// Skip leading whitespace before NAME.
	for {
		b, peekErr := d.r.Peek(1)
		if peekErr != nil {
			return "", 0, peekErr
		}
		if b[0] == ' ' || b[0] == '\t' || b[0] == '\r' || b[0] == '\n' {
			d.r.ReadByte()
			continue
		}
		break
	}

	var nameBuf []byte
	for {
		b, readErr := d.r.ReadByte()
		if readErr != nil {
			return "", 0, readErr
		}
		if b == ' ' || b == '\t' {
			break
		}
		if b == '\n' {
			// NAME with no LEN at all — malformed, already at line end.
			return "", 0, nil
		}
		nameBuf = append(nameBuf, b)
	}
	name = string(nameBuf)

	// Skip spaces between NAME and LEN.
	for {
		b, peekErr := d.r.Peek(1)
		if peekErr != nil {
			return "", 0, peekErr
		}
		if b[0] == ' ' || b[0] == '\t' {
			d.r.ReadByte()
			continue
		}
		break
	}

	var lenBuf []byte
	for {
		b, readErr := d.r.ReadByte()
		if readErr != nil {
			return "", 0, readErr
		}
		if b == ':' {
			break
		}
		if b < '0' || b > '9' {
			// Not a valid LEN — malformed header, recover.
			if b != '\n' {
				d.skipLine()
			}
			return "", 0, nil
		}
		lenBuf = append(lenBuf, b)
	}
	if len(lenBuf) == 0 {
		d.skipLine()
		return "", 0, nil
	}
	n, convErr := strconv.Atoi(string(lenBuf))
	if convErr != nil || n < 0 {
		d.skipLine()
		return "", 0, nil
	}
	return name, n, nil
}

// skipLine discards bytes up to and including the next newline.
func (d *Decoder) skipLine() {
	for {
		b, err := d.r.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}
