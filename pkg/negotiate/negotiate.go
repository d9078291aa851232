// Package negotiate parses a request's option set into concrete transfer
// parameters and the OACK payload the server replies with (RFC 2347/2348/
// 2349/7440).
package negotiate

import (
	"strconv"
	"strings"

	"github.com/nullboot/tftpd/pkg/wire"
)

// Limits bounds what the server will accept during negotiation, sourced
// from the immutable server Config (spec §6).
type Limits struct {
	DefaultBlockSize int
	MaxBlockSize     int
	DefaultTimeout   int // seconds
	MaxWindowSize    int
}

// Options holds the concrete, negotiated session parameters (spec §3
// "Negotiated Options").
type Options struct {
	BlockSize  int
	Timeout    int // seconds
	Tsize      int64
	WindowSize int

	// Accepted lists every option the server accepted, each of which must be
	// echoed in an OACK, in the fixed order they were recognized.
	Accepted []wire.Option
}

// Negotiate walks reqOptions in the fixed recognized order (blksize,
// timeout, tsize, windowsize), accepts each only when its value lies in its
// legal range (out-of-range values are ignored), and returns the resulting
// session Options. Unknown option names are dropped silently
// per RFC 2347. fileSize is used to fill in tsize when the client requests
// it (tsize=0 in the RRQ).
func Negotiate(reqOptions []wire.Option, limits Limits, fileSize int64) Options {
	opts := Options{
		BlockSize:  limits.DefaultBlockSize,
		Timeout:    limits.DefaultTimeout,
		WindowSize: 1,
	}

	values := make(map[string]string, len(reqOptions))
	for _, opt := range reqOptions {
		values[strings.ToLower(opt.Name)] = opt.Value
	}

	for _, name := range []string{"blksize", "timeout", "tsize", "windowsize"} {
		raw, present := values[name]
		if !present {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			continue // malformed values are ignored, not fatal (spec §4.3)
		}

		switch name {
		case "blksize":
			if v < 8 || v > uint64(limits.MaxBlockSize) {
				continue
			}
			opts.BlockSize = int(v)
			opts.Accepted = append(opts.Accepted, wire.Option{Name: "blksize", Value: strconv.FormatUint(v, 10)})

		case "timeout":
			if v < 1 || v > 255 {
				continue
			}
			opts.Timeout = int(v)
			opts.Accepted = append(opts.Accepted, wire.Option{Name: "timeout", Value: strconv.FormatUint(v, 10)})

		case "tsize":
			if v != 0 {
				continue
			}
			opts.Tsize = fileSize
			opts.Accepted = append(opts.Accepted, wire.Option{Name: "tsize", Value: strconv.FormatInt(fileSize, 10)})

		case "windowsize":
			if v < 1 || v > uint64(limits.MaxWindowSize) {
				continue
			}
			opts.WindowSize = int(v)
			opts.Accepted = append(opts.Accepted, wire.Option{Name: "windowsize", Value: strconv.FormatUint(v, 10)})
		}
	}

	return opts
}

// NeedsOack reports whether at least one option was accepted, in which case
// the server must send an OACK and await ACK(0) before the first DATA
// (spec §4.3).
func (o Options) NeedsOack() bool {
	return len(o.Accepted) > 0
}

// OackPacket builds the OACK wire packet for the accepted options.
func (o Options) OackPacket() wire.OackPacket {
	return wire.OackPacket{Options: o.Accepted}
}
