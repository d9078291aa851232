package wire

import (
	"encoding/binary"
)

// EncodeRequest writes an RRQ/WRQ packet. Encoding is total: it never fails,
// but callers must supply fields that already satisfy the length bounds
// enforced during decode (in this repository only the tests build request
// packets).
func EncodeRequest(p RequestPacket) []byte {
	buf := make([]byte, 0, 2+len(p.Filename)+1+len(p.Mode.String())+1+optionsLen(p.Options))
	buf = appendUint16(buf, uint16(p.Op))
	buf = append(buf, p.Filename...)
	buf = append(buf, 0)
	buf = append(buf, p.Mode.String()...)
	buf = append(buf, 0)
	for _, opt := range p.Options {
		buf = append(buf, opt.Name...)
		buf = append(buf, 0)
		buf = append(buf, opt.Value...)
		buf = append(buf, 0)
	}
	return buf
}

// EncodeData writes a DATA packet: opcode(2) | block(2) | payload.
func EncodeData(block uint16, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(OpDATA))
	binary.BigEndian.PutUint16(buf[2:4], block)
	copy(buf[4:], payload)
	return buf
}

// EncodeDataInto encodes a DATA packet into dst, which must have length
// 4+len(payload). It is the bufpool-friendly variant of EncodeData for
// callers that reuse a buffer; the transfer engine itself uses EncodeData.
func EncodeDataInto(dst []byte, block uint16, payload []byte) int {
	binary.BigEndian.PutUint16(dst[0:2], uint16(OpDATA))
	binary.BigEndian.PutUint16(dst[2:4], block)
	n := copy(dst[4:], payload)
	return 4 + n
}

// EncodeAck writes an ACK packet: opcode(2) | block(2).
func EncodeAck(block uint16) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], uint16(OpACK))
	binary.BigEndian.PutUint16(buf[2:4], block)
	return buf
}

// EncodeError writes an ERROR packet: opcode(2) | code(2) | message | 0x00.
// The message is truncated so the whole packet stays within
// MaxErrorMessageLen.
func EncodeError(code ErrorCode, message string) []byte {
	maxMsg := MaxErrorMessageLen - 5 // opcode+code+NUL
	if len(message) > maxMsg {
		message = message[:maxMsg]
	}
	buf := make([]byte, 0, 4+len(message)+1)
	buf = appendUint16(buf, uint16(OpERROR))
	buf = appendUint16(buf, uint16(code))
	buf = append(buf, message...)
	buf = append(buf, 0)
	return buf
}

// EncodeOack writes an OACK packet: opcode(2) | (name 0x00 value 0x00)*.
func EncodeOack(opts []Option) []byte {
	buf := make([]byte, 0, 2+optionsLen(opts))
	buf = appendUint16(buf, uint16(OpOACK))
	for _, opt := range opts {
		buf = append(buf, opt.Name...)
		buf = append(buf, 0)
		buf = append(buf, opt.Value...)
		buf = append(buf, 0)
	}
	return buf
}

func optionsLen(opts []Option) int {
	n := 0
	for _, opt := range opts {
		n += len(opt.Name) + 1 + len(opt.Value) + 1
	}
	return n
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}
