package engine

import (
	"io"

	"github.com/nullboot/tftpd/pkg/bufpool"
)

// readBlock reads exactly blockSize bytes from r, or fewer at EOF. A short
// read (including a zero-length one, for files whose size is an exact
// multiple of blockSize) signals the final DATA block (spec §4.4 EOF
// invariant: "payload strictly shorter than the negotiated block size").
//
// The returned payload is drawn from the shared buffer pool; it stays alive
// in the inflight window until acknowledged, and the caller is responsible
// for returning it via bufpool.Put once it is evicted from that window.
func readBlock(r io.Reader, blockSize int) (payload []byte, isFinal bool, err error) {
	buf := bufpool.Get(blockSize)
	n, readErr := io.ReadFull(r, buf)
	switch readErr {
	case nil:
		return buf[:n], false, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return buf[:n], true, nil
	default:
		bufpool.Put(buf)
		return nil, false, readErr
	}
}
