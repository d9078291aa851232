package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Decode errors, matching the taxonomy named in spec §4.1.
var (
	ErrTruncatedPacket = errors.New("wire: truncated packet")
	ErrUnknownOpcode   = errors.New("wire: unknown opcode")
	ErrInvalidString   = errors.New("wire: invalid string field")
	ErrMalformedOption = errors.New("wire: malformed option")
)

// Packet is the decoded result of Decode: exactly one of the typed fields
// is populated, selected by Op.
type Packet struct {
	Op      Opcode
	Request RequestPacket
	Data    DataPacket
	Ack     AckPacket
	Error   ErrorPacket
	Oack    OackPacket
}

// Decode parses a raw UDP payload into a typed Packet.
func Decode(b []byte) (Packet, error) {
	if len(b) < 2 {
		return Packet{}, fmt.Errorf("decode: %w", ErrTruncatedPacket)
	}
	op := Opcode(binary.BigEndian.Uint16(b[0:2]))
	rest := b[2:]

	switch op {
	case OpRRQ, OpWRQ:
		req, err := decodeRequest(op, rest)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Op: op, Request: req}, nil
	case OpDATA:
		if len(rest) < 2 {
			return Packet{}, fmt.Errorf("decode DATA: %w", ErrTruncatedPacket)
		}
		block := binary.BigEndian.Uint16(rest[0:2])
		payload := append([]byte(nil), rest[2:]...)
		return Packet{Op: op, Data: DataPacket{Block: block, Payload: payload}}, nil
	case OpACK:
		if len(rest) < 2 {
			return Packet{}, fmt.Errorf("decode ACK: %w", ErrTruncatedPacket)
		}
		block := binary.BigEndian.Uint16(rest[0:2])
		return Packet{Op: op, Ack: AckPacket{Block: block}}, nil
	case OpERROR:
		if len(rest) < 2 {
			return Packet{}, fmt.Errorf("decode ERROR: %w", ErrTruncatedPacket)
		}
		code := ErrorCode(binary.BigEndian.Uint16(rest[0:2]))
		msg, err := readBoundedCString(rest[2:], MaxErrorMessageLen-5)
		if err != nil {
			return Packet{}, fmt.Errorf("decode ERROR message: %w", err)
		}
		return Packet{Op: op, Error: ErrorPacket{Code: code, Message: msg}}, nil
	case OpOACK:
		opts, err := readOptions(rest)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Op: op, Oack: OackPacket{Options: opts}}, nil
	default:
		return Packet{}, fmt.Errorf("decode: opcode %d: %w", uint16(op), ErrUnknownOpcode)
	}
}

func decodeRequest(op Opcode, rest []byte) (RequestPacket, error) {
	filename, rest, err := splitCString(rest)
	if err != nil {
		return RequestPacket{}, fmt.Errorf("decode request filename: %w", err)
	}
	modeStr, rest, err := splitCString(rest)
	if err != nil {
		return RequestPacket{}, fmt.Errorf("decode request mode: %w", err)
	}
	mode, ok := ParseMode(modeStr)
	if !ok {
		return RequestPacket{}, fmt.Errorf("decode request: mode %q: %w", modeStr, ErrInvalidString)
	}
	opts, err := readOptions(rest)
	if err != nil {
		return RequestPacket{}, err
	}
	return RequestPacket{Op: op, Filename: filename, Mode: mode, Options: opts}, nil
}

// readOptions parses a trailing sequence of NUL-terminated name/value pairs.
func readOptions(rest []byte) ([]Option, error) {
	var opts []Option
	for len(rest) > 0 {
		var name, value string
		var err error
		name, rest, err = splitCString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode option name: %w", err)
		}
		if len(rest) == 0 {
			return nil, fmt.Errorf("decode option %q: missing value: %w", name, ErrMalformedOption)
		}
		value, rest, err = splitCString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode option %q value: %w", name, err)
		}
		opts = append(opts, Option{Name: name, Value: value})
	}
	return opts, nil
}

// splitCString extracts the NUL-terminated field at the front of b,
// returning the field (without the terminator) and the remaining bytes.
func splitCString(b []byte) (string, []byte, error) {
	s, err := readCString(b)
	if err != nil {
		return "", nil, err
	}
	return s, b[len(s)+1:], nil
}

// readCString validates and returns the leading NUL-terminated field,
// bounded to MaxFieldLen (filenames, mode, option name/value).
func readCString(b []byte) (string, error) {
	return readBoundedCString(b, MaxFieldLen)
}

// readBoundedCString validates and returns the leading NUL-terminated field
// bounded to maxLen bytes before the terminator.
func readBoundedCString(b []byte, maxLen int) (string, error) {
	idx := -1
	for i, c := range b {
		if c == 0 {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", ErrInvalidString
	}
	if idx > maxLen {
		return "", ErrInvalidString
	}
	field := b[:idx]
	if !utf8.Valid(field) {
		return "", ErrInvalidString
	}
	return string(field), nil
}
