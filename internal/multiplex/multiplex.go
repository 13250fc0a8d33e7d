// Package multiplex fans in concurrent reads from a set of child pipes
// and serializes them onto a single framed writer, one whole frame at a
// time, so stdout/stderr chunks never interleave mid-frame.
package multiplex

import (
	"bufio"
	"io"

	"github.com/wandbox-go/cattleshed/internal/protocol"
)

// chunk is one bounded read result awaiting its turn at the writer.
type chunk struct {
	label string
	data  []byte
}

// Source is one (reader, frame-name) pair to drain.
type Source struct {
	Label  string
	Reader io.Reader
}

// Run drains every source concurrently, writing each non-empty chunk it
// reads as a frame via enc, serialized so at most one frame write is in
// flight at a time. It returns once every source has hit EOF or error.
// Frame writes are issued in the order chunks arrive on the fan-in
// channel; order across distinct sources is therefore unspecified,
// matching spec.md §4.4's ordering guarantee.
func Run(enc *protocol.Encoder, sources []Source) error {
	if len(sources) == 0 {
		return nil
	}

	chunks := make(chan chunk)
	done := make(chan struct{}, len(sources))

	for _, s := range sources {
		go drain(s, chunks, done)
	}

	remaining := len(sources)
	var writeErr error
	for remaining > 0 {
		select {
		case c := <-chunks:
			if writeErr == nil {
				if err := enc.Write(c.label, c.data); err != nil {
					// Stop issuing writes but keep draining so children
					// are still reaped once their pipes empty out
					// (spec.md §7's client I/O error policy).
					writeErr = err
				}
			}
		case <-done:
			remaining--
		}
	}
	return writeErr
}

// drain performs bounded (newline-or-BufSiz) reads from s.Reader,
// forwarding each non-empty chunk on chunks, until EOF or error, then
// signals done.
func drain(s Source, chunks chan<- chunk, done chan<- struct{}) {
	r := bufio.NewReaderSize(s.Reader, protocol.BufSiz)
	buf := make([]byte, protocol.BufSiz)
	for {
		n, err := readChunk(r, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunks <- chunk{label: s.Label, data: data}
		}
		if err != nil {
			done <- struct{}{}
			return
		}
	}
}

// readChunk reads into buf up to either a newline (inclusive) or
// len(buf) bytes, whichever comes first — the read boundary heuristic
// from spec.md §4.1.
func readChunk(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		b, err := r.ReadByte()
		if err != nil {
			return total, err
		}
		buf[total] = b
		total++
		if b == '\n' {
			return total, nil
		}
	}
	return total, nil
}
