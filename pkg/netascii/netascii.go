// Package netascii implements the LF→CRLF transform TFTP's NETASCII mode
// requires (spec §4.4). Existing CRLF pairs and bare CRs pass through
// unchanged; this is the spec's adopted, implementation-defined stance on
// bare CR (spec.md §9 Open Questions).
package netascii

import "io"

// Reader wraps an underlying byte source, expanding every LF not already
// preceded by CR into CRLF. It is applied ahead of the block packetizer so
// the wire block size matches exactly what the client negotiated.
type Reader struct {
	src      io.Reader
	lastByte byte
	pending  bool // one CR byte buffered between Read calls, already emitted
	inBuf    []byte
	inPos    int
	inLen    int
}

// NewReader returns a Reader transforming bytes read from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, inBuf: make([]byte, 32*1024)}
}

// Read implements io.Reader. It expands LF to CRLF, which can make the
// transformed stream longer than the source; callers should not assume a
// fixed length relationship between input and output byte counts.
func (r *Reader) Read(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if r.inPos >= r.inLen {
			n, err := r.src.Read(r.inBuf)
			r.inPos, r.inLen = 0, n
			if n == 0 {
				if err != nil {
					if written > 0 {
						return written, nil
					}
					return 0, err
				}
				continue
			}
		}

		b := r.inBuf[r.inPos]
		if b == '\n' && r.lastByte != '\r' {
			// Need to emit CR then LF; if only one byte of room, emit CR
			// now and leave LF for the next call.
			if len(p)-written < 2 {
				p[written] = '\r'
				written++
				r.lastByte = '\r'
				// don't advance inPos: re-emit the LF itself next call,
				// this time with lastByte=='\r' so it passes straight through.
				continue
			}
			p[written] = '\r'
			p[written+1] = '\n'
			written += 2
			r.lastByte = '\n'
			r.inPos++
			continue
		}

		p[written] = b
		written++
		r.lastByte = b
		r.inPos++
	}
	return written, nil
}
