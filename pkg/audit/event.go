// Package audit defines the structured event surface the Transfer Engine
// and Acceptor emit (the Acceptor reports Path Jail rejections), and the
// Sink interface that consumes them (spec §3, §4.6, §7).
package audit

import "time"

// Severity classifies an event for filtering/alerting.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Envelope carries the fields common to every event case (spec §3).
type Envelope struct {
	Timestamp     time.Time
	Service       string
	Severity      Severity
	PeerAddress   string
	CorrelationID string
	TraceID       string
	SpanID        string
}

// Event is the closed sum type over every audit case. Only the types
// declared in this package implement it (the unexported sealed method
// prevents other packages from adding cases — the Go analogue of the
// original's closed Rust enum, per DESIGN.md). Callers build events with
// the New* constructors below, never with a struct literal.
type Event interface {
	sealed()
	Env() Envelope
}

type base struct {
	Envelope
}

func (base) sealed() {}

func (b base) Env() Envelope { return b.Envelope }

// TransferStarted is emitted once admission passes and a session spawns.
type TransferStarted struct {
	base
	Filename   string
	Mode       string
	BlockSize  int
	WindowSize int
	Tsize      int64
}

// NewTransferStarted builds a TransferStarted event.
func NewTransferStarted(env Envelope, filename, mode string, blockSize, windowSize int, tsize int64) *TransferStarted {
	return &TransferStarted{base{env}, filename, mode, blockSize, windowSize, tsize}
}

// TransferCompleted is emitted when the final ACK is observed (spec §9
// Open Question: completion requires the final ACK, not merely sending
// the final DATA).
type TransferCompleted struct {
	base
	Filename  string
	BytesSent int64
	Duration  time.Duration
}

// NewTransferCompleted builds a TransferCompleted event.
func NewTransferCompleted(env Envelope, filename string, bytesSent int64, duration time.Duration) *TransferCompleted {
	return &TransferCompleted{base{env}, filename, bytesSent, duration}
}

// FailureReason enumerates why a transfer did not complete.
type FailureReason int

const (
	ReasonPeerTimeout FailureReason = iota
	ReasonPeerError
	ReasonIOError
	ReasonInternalError
	ReasonCancelled
)

func (r FailureReason) String() string {
	switch r {
	case ReasonPeerTimeout:
		return "peer_timeout"
	case ReasonPeerError:
		return "peer_error"
	case ReasonIOError:
		return "io_error"
	case ReasonInternalError:
		return "internal_error"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TransferFailed is emitted on any non-successful session termination.
type TransferFailed struct {
	base
	Filename  string
	Reason    FailureReason
	BytesSent int64
	Detail    string
}

// NewTransferFailed builds a TransferFailed event.
func NewTransferFailed(env Envelope, filename string, reason FailureReason, bytesSent int64, detail string) *TransferFailed {
	if reason == ReasonInternalError || reason == ReasonIOError {
		env.Severity = SeverityError
	}
	return &TransferFailed{base{env}, filename, reason, bytesSent, detail}
}

// PathViolation is emitted when the Path Jail rejects a filename.
type PathViolation struct {
	base
	Filename string
	Detail   string
}

// NewPathViolation builds a PathViolation event.
func NewPathViolation(env Envelope, filename, detail string) *PathViolation {
	env.Severity = SeverityWarn
	return &PathViolation{base{env}, filename, detail}
}

// FileSizeRejected is emitted when a resolved file exceeds max_file_size.
type FileSizeRejected struct {
	base
	Filename string
	FileSize int64
	MaxSize  int64
}

// NewFileSizeRejected builds a FileSizeRejected event.
func NewFileSizeRejected(env Envelope, filename string, fileSize, maxSize int64) *FileSizeRejected {
	env.Severity = SeverityWarn
	return &FileSizeRejected{base{env}, filename, fileSize, maxSize}
}

// InvalidOpcode is emitted when the acceptor or engine receives a packet
// with an opcode it will not process in that context.
type InvalidOpcode struct {
	base
	Opcode uint16
}

// NewInvalidOpcode builds an InvalidOpcode event.
func NewInvalidOpcode(env Envelope, opcode uint16) *InvalidOpcode {
	env.Severity = SeverityWarn
	return &InvalidOpcode{base{env}, opcode}
}

// OptionNegotiated is emitted once per accepted RRQ carrying options,
// immediately before the OACK is sent.
type OptionNegotiated struct {
	base
	Filename   string
	BlockSize  int
	Timeout    int
	WindowSize int
	Tsize      int64
}

// NewOptionNegotiated builds an OptionNegotiated event.
func NewOptionNegotiated(env Envelope, filename string, blockSize, timeout, windowSize int, tsize int64) *OptionNegotiated {
	return &OptionNegotiated{base{env}, filename, blockSize, timeout, windowSize, tsize}
}

// Retransmission is emitted whenever the engine's timer fires and resends
// the current inflight window.
type Retransmission struct {
	base
	Filename         string
	FromBlock        uint64
	ToBlock          uint64
	RetriesRemaining int
}

// NewRetransmission builds a Retransmission event.
func NewRetransmission(env Envelope, filename string, fromBlock, toBlock uint64, retriesRemaining int) *Retransmission {
	env.Severity = SeverityWarn
	return &Retransmission{base{env}, filename, fromBlock, toBlock, retriesRemaining}
}

// PeerTimeoutEvent is emitted when the retry budget is exhausted while
// awaiting an ACK.
type PeerTimeoutEvent struct {
	base
	Filename string
	Block    uint64
}

// NewPeerTimeoutEvent builds a PeerTimeoutEvent event.
func NewPeerTimeoutEvent(env Envelope, filename string, block uint64) *PeerTimeoutEvent {
	env.Severity = SeverityWarn
	return &PeerTimeoutEvent{base{env}, filename, block}
}

// UnknownTID is emitted when a datagram arrives on a session's ephemeral
// socket from an unexpected peer address or port.
type UnknownTID struct {
	base
	ExpectedAddr string
	ActualAddr   string
}

// NewUnknownTID builds an UnknownTID event.
func NewUnknownTID(env Envelope, expectedAddr, actualAddr string) *UnknownTID {
	env.Severity = SeverityWarn
	return &UnknownTID{base{env}, expectedAddr, actualAddr}
}

// WriteRefused is emitted when a WRQ is rejected (write is never
// supported).
type WriteRefused struct {
	base
	Filename string
}

// NewWriteRefused builds a WriteRefused event.
func NewWriteRefused(env Envelope, filename string) *WriteRefused {
	return &WriteRefused{base{env}, filename}
}

// MailRefused is emitted when an RRQ requests MAIL mode (a WRQ is refused
// earlier, as WriteRefused).
type MailRefused struct {
	base
	Filename string
}

// NewMailRefused builds a MailRefused event.
func NewMailRefused(env Envelope, filename string) *MailRefused {
	return &MailRefused{base{env}, filename}
}

// RateLimited is emitted when the acceptor's admission control drops a
// request for exceeding the configured per-source rate.
type RateLimited struct {
	base
	SourceAddress string
}

// NewRateLimited builds a RateLimited event.
func NewRateLimited(env Envelope, sourceAddress string) *RateLimited {
	env.Severity = SeverityWarn
	return &RateLimited{base{env}, sourceAddress}
}
